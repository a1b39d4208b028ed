/*
Package action defines the units of work that run when an event fires.

# Variants

The package provides a closed set of action variants:

  - Command: runs a shell command line
  - Sleep: waits for a fixed duration
  - Log: writes an info record
  - Lua: runs a precompiled Lua chunk in a fresh interpreter
  - Shutdown: asks the engine to stop
  - Composite: runs child actions in order and joins their errors

Func and Simple adapt plain Go functions.

# Spec Strings

Configuration binds actions with tagged spec strings of the form
kind[:params], parsed once at registration time:

	cmd:/usr/local/bin/open-door
	sleep:2.5
	log:doorbell pressed
	lua:if extra.pin == "1234" then shutdown("maintenance") end
	shutdown:nightly restart
	seq:log:ring|cmd:aplay /usr/share/doorpi/ring.wav

A Parser knows the built-in kinds; Register adds more.
*/
package action
