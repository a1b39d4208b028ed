// Package eventlog records event firings and action executions.
//
// The engine writes one event entry per accepted fire and one action entry
// per executed action. Silent events are never logged. Store implementations
// must be safe for concurrent use.
package eventlog

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Kind distinguishes event entries from action entries.
type Kind string

// Entry kinds.
const (
	KindEvent  Kind = "event"
	KindAction Kind = "action"
)

// DefaultMaxEntries is used by Entries when max is not positive.
const DefaultMaxEntries = 100

// Entry is one line of the event log.
type Entry struct {
	ID        int64          `json:"id"`
	Kind      Kind           `json:"kind"`
	FireID    string         `json:"fire_id"`
	Event     string         `json:"event"`
	Source    string         `json:"source"`
	Action    string         `json:"action,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Matches reports whether the entry's event, source or action contains
// filter. An empty filter matches everything.
func (e Entry) Matches(filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(e.Event, filter) ||
		strings.Contains(e.Source, filter) ||
		strings.Contains(e.Action, filter)
}

// Store persists event log entries.
type Store interface {
	// InsertEventLog records an accepted fire.
	InsertEventLog(ctx context.Context, entry Entry) error

	// InsertActionLog records one executed action.
	InsertActionLog(ctx context.Context, entry Entry) error

	// Entries returns up to max entries matching filter, newest first.
	Entries(ctx context.Context, max int, filter string) ([]Entry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Close flushes pending writes and releases resources.
	// Close is idempotent.
	Close() error
}

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("event log closed")

func normalize(entry Entry, kind Kind) Entry {
	entry.Kind = kind
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Timestamp = entry.Timestamp.UTC()
	return entry
}

func limit(max int) int {
	if max <= 0 {
		return DefaultMaxEntries
	}
	return max
}
