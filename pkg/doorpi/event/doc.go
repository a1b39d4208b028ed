/*
Package event implements the DoorPi event dispatch engine.

Sources (door buttons, card readers, SIP state, web commands, timers)
announce named events; the engine runs the action chain bound to each
event.

# Registry

An Engine holds three tables:

  - the registered sources
  - event name to the ordered sources allowed to raise it
  - event name to the ordered action chain

An event exists only while at least one source is bound to it. Removing
its last source deletes the event together with its action chain and
run metadata.

	engine := event.New(event.WithLogger(logger))
	engine.RegisterEvent("OnKeyPressed", "gpio1")
	engine.RegisterActionSpec("OnKeyPressed", "cmd:/usr/local/bin/open-door")
	engine.RegisterActionSpec("OnKeyPressed", "log:first ring", event.WithSingleFire())

# Firing

Fire validates the request and reports the outcome as a Result:

	res := engine.Fire(ctx, "OnKeyPressed", "gpio1", event.Sync, map[string]any{"pin": 17})
	if !res.OK() {
	    logger.Warn("not fired", "status", res.Status)
	}

Sync fires run the chain on the caller's goroutine. Async fires run on a
new goroutine tracked by the engine; AsyncDetached fires are listed in the
task table but never waited on. Every action in a chain runs, whatever
the outcome of the ones before it. Panics are recovered and count as
failures.

# Teardown

An action returning a shutdown or interrupt signal (see
pkg/doorpi/errors) destroys the engine before Fire returns: Done is
closed, the WithOnFatal callback runs, and new ordinary fires are
rejected with StatusDestroyed. The host then calls Teardown, which waits
for tracked fires and closes the event log.

Silent events (by default names containing "OnTime") skip debug logging
and the event log, and keep firing after the engine was destroyed.
*/
package event
