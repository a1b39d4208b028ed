package eventlog

import (
	"context"
	"maps"
	"sync"
)

// DefaultMemoryCapacity bounds a MemoryStore created with capacity <= 0.
const DefaultMemoryCapacity = 1000

// MemoryStore keeps the most recent entries in memory.
// Data is lost when the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	nextID   int64
	closed   bool
}

// NewMemoryStore creates a store that keeps at most capacity entries,
// dropping the oldest first.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// InsertEventLog implements Store.
func (m *MemoryStore) InsertEventLog(_ context.Context, entry Entry) error {
	return m.insert(normalize(entry, KindEvent))
}

// InsertActionLog implements Store.
func (m *MemoryStore) InsertActionLog(_ context.Context, entry Entry) error {
	return m.insert(normalize(entry, KindAction))
}

func (m *MemoryStore) insert(entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.nextID++
	entry.ID = m.nextID
	// Copy extra to avoid retaining the caller's map
	if entry.Extra != nil {
		entry.Extra = maps.Clone(entry.Extra)
	}

	if len(m.entries) >= m.capacity {
		copy(m.entries, m.entries[1:])
		m.entries = m.entries[:len(m.entries)-1]
	}
	m.entries = append(m.entries, entry)
	return nil
}

// Entries implements Store.
func (m *MemoryStore) Entries(_ context.Context, max int, filter string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	max = limit(max)
	out := make([]Entry, 0, min(max, len(m.entries)))
	for i := len(m.entries) - 1; i >= 0 && len(out) < max; i-- {
		if m.entries[i].Matches(filter) {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

// Count implements Store.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	return len(m.entries), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.entries = nil
	return nil
}
