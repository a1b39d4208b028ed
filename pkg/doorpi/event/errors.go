package event

import (
	"errors"
	"fmt"
	"strings"
)

// Registry errors. The registry is left unchanged when one is returned.
var (
	// ErrInvalidAction is returned when registering a nil action or an
	// action spec that does not parse.
	ErrInvalidAction = errors.New("invalid action")

	// ErrEventUnknown is returned when the named event has no sources.
	ErrEventUnknown = errors.New("event unknown")

	// ErrSourceUnknown is returned for a source that was never registered.
	ErrSourceUnknown = errors.New("source unknown")

	// ErrSourceNotBound is returned when a source is not bound to the event.
	ErrSourceNotBound = errors.New("source not bound to event")

	// ErrSourceInUse matches *SourceInUseError with errors.Is.
	ErrSourceInUse = errors.New("source in use")
)

// SourceInUseError is returned by UnregisterSource without force while the
// source is still bound to events.
type SourceInUseError struct {
	Source string
	Events []string
}

// Error implements error interface.
func (e *SourceInUseError) Error() string {
	return fmt.Sprintf("source %s is still used by events: %s", e.Source, strings.Join(e.Events, ", "))
}

// Is reports whether target is ErrSourceInUse.
func (e *SourceInUseError) Is(target error) bool {
	return target == ErrSourceInUse
}
