package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists the event log to SQLite.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens or creates an event log database.
// The path should be a file path (e.g., "./eventlog.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and serializes writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS event_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			fire_id TEXT NOT NULL,
			event_name TEXT NOT NULL,
			source TEXT NOT NULL,
			action TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL,
			extra TEXT NOT NULL DEFAULT '{}'
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_event_log_fire_id
		ON event_log(fire_id)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// InsertEventLog implements Store.
func (s *SQLiteStore) InsertEventLog(ctx context.Context, entry Entry) error {
	return s.insert(ctx, normalize(entry, KindEvent))
}

// InsertActionLog implements Store.
func (s *SQLiteStore) InsertActionLog(ctx context.Context, entry Entry) error {
	return s.insert(ctx, normalize(entry, KindAction))
}

func (s *SQLiteStore) insert(ctx context.Context, entry Entry) error {
	extra, err := encodeExtra(entry.Extra)
	if err != nil {
		return fmt.Errorf("encode extra: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO event_log (kind, fire_id, event_name, source, action, error, timestamp, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, string(entry.Kind), entry.FireID, entry.Event, entry.Source, entry.Action, entry.Error,
		entry.Timestamp.Format(time.RFC3339Nano), extra)
	if err != nil {
		return fmt.Errorf("insert %s log: %w", entry.Kind, err)
	}
	return nil
}

// Entries implements Store.
func (s *SQLiteStore) Entries(ctx context.Context, max int, filter string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, fire_id, event_name, source, action, error, timestamp, extra
		FROM event_log
		WHERE ? = '' OR instr(event_name, ?) > 0 OR instr(source, ?) > 0 OR instr(action, ?) > 0
		ORDER BY id DESC
		LIMIT ?
	`, filter, filter, filter, filter, limit(max))
	if err != nil {
		return nil, fmt.Errorf("query event log: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			entry     Entry
			kind      string
			timestamp string
			extra     string
		)
		if err := rows.Scan(&entry.ID, &kind, &entry.FireID, &entry.Event, &entry.Source,
			&entry.Action, &entry.Error, &timestamp, &extra); err != nil {
			return nil, fmt.Errorf("scan event log: %w", err)
		}
		entry.Kind = Kind(kind)
		ts, err := time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return nil, fmt.Errorf("decode timestamp for entry %d: %w", entry.ID, err)
		}
		entry.Timestamp = ts
		if extra != "" && extra != "{}" {
			if err := json.Unmarshal([]byte(extra), &entry.Extra); err != nil {
				return nil, fmt.Errorf("decode extra for entry %d: %w", entry.ID, err)
			}
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event log: %w", err)
	}
	return entries, nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count event log: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// encodeExtra serializes caller data. Values json cannot encode are stored
// in their fmt representation.
func encodeExtra(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(extra)
	if err == nil {
		return string(b), nil
	}

	flat := make(map[string]string, len(extra))
	for k, v := range extra {
		flat[k] = fmt.Sprint(v)
	}
	b, err = json.Marshal(flat)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
