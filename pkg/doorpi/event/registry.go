package event

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync/atomic"

	"github.com/doorpi/doorpi/pkg/doorpi/action"
)

// Binding is an action attached to an event, returned by RegisterAction.
type Binding struct {
	Action     action.Action
	SingleFire bool

	claimed atomic.Bool
}

// BindOption configures a Binding.
type BindOption func(*Binding)

// WithSingleFire removes the binding from its chain after its first run,
// whether the action failed or not.
func WithSingleFire() BindOption {
	return func(b *Binding) {
		b.SingleFire = true
	}
}

// RegisterSource adds source to the registry. Registering twice is a no-op.
func (e *Engine) RegisterSource(source string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registerSourceLocked(source)
}

func (e *Engine) registerSourceLocked(source string) {
	if _, ok := e.sources[source]; ok {
		return
	}
	e.sources[source] = struct{}{}
	e.logger.Debug("source registered", slog.String("source", source))
}

// RegisterEvent allows source to raise the named event, registering the
// source and creating the event as needed.
func (e *Engine) RegisterEvent(name, source string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	silent := e.silent(name)
	e.registerSourceLocked(source)

	sources := e.events[name]
	if slices.Contains(sources, source) {
		if !silent {
			e.logger.Debug("event already known",
				slog.String("event", name),
				slog.String("source", source),
			)
		}
		return
	}
	e.events[name] = append(sources, source)
	if !silent {
		e.logger.Debug("event registered",
			slog.String("event", name),
			slog.String("source", source),
		)
	}
}

// RegisterAction appends a to the action chain of the named event.
// The event does not need to exist yet.
func (e *Engine) RegisterAction(name string, a action.Action, opts ...BindOption) (*Binding, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil action for event %s", ErrInvalidAction, name)
	}
	b := &Binding{Action: a}
	for _, opt := range opts {
		opt(b)
	}

	e.mu.Lock()
	e.actions[name] = append(e.actions[name], b)
	e.mu.Unlock()

	e.logger.Debug("action registered",
		slog.String("event", name),
		slog.String("action", a.String()),
		slog.Bool("single_fire", b.SingleFire),
	)
	return b, nil
}

// RegisterActionSpec parses spec with the engine's parser and appends the
// result to the action chain of the named event. Specs that do not parse
// fail here, never at fire time.
func (e *Engine) RegisterActionSpec(name, spec string, opts ...BindOption) (*Binding, error) {
	a, err := e.parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: event %s: %w", ErrInvalidAction, name, err)
	}
	return e.RegisterAction(name, a, opts...)
}

// UnregisterEvent removes source from the named event. The event and its run
// metadata are deleted once it has no sources. Its action chain is kept, so
// re-registering the event restores the bindings.
//
// With cascadeSource the source itself is then unregistered unless it is
// still bound to other events; that case is not an error.
func (e *Engine) UnregisterEvent(name, source string, cascadeSource bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sources, ok := e.events[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventUnknown, name)
	}
	idx := slices.Index(sources, source)
	if idx < 0 {
		return fmt.Errorf("%w: %s is not bound to %s", ErrSourceNotBound, source, name)
	}
	e.unbindLocked(name, idx)

	if cascadeSource {
		err := e.unregisterSourceLocked(source, false)
		if err != nil && !errors.Is(err, ErrSourceInUse) && !errors.Is(err, ErrSourceUnknown) {
			return err
		}
	}
	return nil
}

// UnregisterSource removes source from the registry. While the source is
// bound to events it fails with *SourceInUseError, unless force is set; then
// the source is first removed from every event it is bound to.
func (e *Engine) UnregisterSource(source string, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unregisterSourceLocked(source, force)
}

func (e *Engine) unregisterSourceLocked(source string, force bool) error {
	if _, ok := e.sources[source]; !ok {
		return fmt.Errorf("%w: %s", ErrSourceUnknown, source)
	}

	bound := e.eventsOfLocked(source)
	if len(bound) > 0 && !force {
		return &SourceInUseError{Source: source, Events: bound}
	}
	for _, name := range bound {
		e.unbindLocked(name, slices.Index(e.events[name], source))
	}
	delete(e.sources, source)

	e.logger.Debug("source unregistered",
		slog.String("source", source),
		slog.Int("events_removed", len(bound)),
	)
	return nil
}

// unbindLocked removes the source at idx from the named event and deletes
// the event once it has no sources left.
func (e *Engine) unbindLocked(name string, idx int) {
	sources := slices.Delete(slices.Clone(e.events[name]), idx, idx+1)
	if len(sources) > 0 {
		e.events[name] = sources
		return
	}

	delete(e.events, name)
	delete(e.metadata, name)
	if !e.silent(name) {
		e.logger.Debug("event removed", slog.String("event", name))
	}
}

// eventsOfLocked returns the sorted names of the events source is bound to.
func (e *Engine) eventsOfLocked(source string) []string {
	var names []string
	for name, sources := range e.events {
		if slices.Contains(sources, source) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// detach removes a single-fire binding after its run.
func (e *Engine) detach(name string, b *Binding) {
	e.mu.Lock()
	defer e.mu.Unlock()

	chain := e.actions[name]
	idx := slices.Index(chain, b)
	if idx < 0 {
		return
	}
	chain = slices.Delete(slices.Clone(chain), idx, idx+1)
	if len(chain) == 0 {
		delete(e.actions, name)
		return
	}
	e.actions[name] = chain
}
