package eventlog

import "context"

// NoopStore discards everything.
type NoopStore struct{}

var _ Store = NoopStore{}

func (NoopStore) InsertEventLog(context.Context, Entry) error  { return nil }
func (NoopStore) InsertActionLog(context.Context, Entry) error { return nil }

func (NoopStore) Entries(context.Context, int, string) ([]Entry, error) {
	return []Entry{}, nil
}

func (NoopStore) Count(context.Context) (int, error) { return 0, nil }
func (NoopStore) Close() error                       { return nil }
