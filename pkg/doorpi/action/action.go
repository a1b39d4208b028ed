package action

import (
	"context"
	"maps"
)

// Call describes the fire an action is running for.
type Call struct {
	// Event is the name of the event being fired.
	Event string

	// Source is the source that raised the event.
	Source string

	// FireID identifies this particular fire.
	FireID string

	// Silent is true for heartbeat events whose runs are not logged.
	Silent bool

	// Extra is the caller's data for this fire. Each action receives its
	// own copy.
	Extra map[string]any
}

// Action is a unit of work bound to an event.
//
// Run returns nil on success. Any other error is a failure of this action
// only; the chain continues with the next action. Errors categorized as
// shutdown or interrupt (see pkg/doorpi/errors) make the engine begin
// teardown.
type Action interface {
	Run(ctx context.Context, call Call) error

	// String returns a short human-readable description.
	String() string
}

// WithExtra returns a copy of c whose Extra map is a shallow clone.
func (c Call) WithExtra() Call {
	if c.Extra != nil {
		c.Extra = maps.Clone(c.Extra)
	}
	return c
}

type funcAction struct {
	name string
	fn   func(ctx context.Context, call Call) error
}

// Func wraps fn as an Action described by name.
// A nil fn yields a nil Action.
func Func(name string, fn func(ctx context.Context, call Call) error) Action {
	if fn == nil {
		return nil
	}
	return &funcAction{name: name, fn: fn}
}

func (f *funcAction) Run(ctx context.Context, call Call) error {
	return f.fn(ctx, call)
}

func (f *funcAction) String() string {
	return f.name
}

// Simple wraps a function that needs neither the context nor the call.
// A nil fn yields a nil Action.
func Simple(name string, fn func() error) Action {
	if fn == nil {
		return nil
	}
	return &funcAction{name: name, fn: func(context.Context, Call) error { return fn() }}
}
