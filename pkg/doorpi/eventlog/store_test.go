package eventlog_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/doorpi/doorpi/pkg/doorpi/eventlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) eventlog.Store

func storeContractTest(t *testing.T, name string, factory storeFactory) {
	ctx := context.Background()

	t.Run(name+"/Insert_and_Entries", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.InsertEventLog(ctx, eventlog.Entry{
			FireID: "F1", Event: "OnKeyPressed", Source: "gpio1",
			Extra: map[string]any{"pin": "1"},
		}))
		require.NoError(t, store.InsertActionLog(ctx, eventlog.Entry{
			FireID: "F1", Event: "OnKeyPressed", Source: "gpio1", Action: "log:ring",
		}))

		entries, err := store.Entries(ctx, 10, "")
		require.NoError(t, err)
		require.Len(t, entries, 2)

		// newest first
		assert.Equal(t, eventlog.KindAction, entries[0].Kind)
		assert.Equal(t, "log:ring", entries[0].Action)
		assert.Equal(t, eventlog.KindEvent, entries[1].Kind)
		assert.Equal(t, "F1", entries[1].FireID)
		assert.Equal(t, "1", entries[1].Extra["pin"])
		assert.False(t, entries[1].Timestamp.IsZero())
		assert.Greater(t, entries[0].ID, entries[1].ID)
	})

	t.Run(name+"/Entries_Empty", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		entries, err := store.Entries(ctx, 10, "")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run(name+"/Entries_MaxAndFilter", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		for i := 0; i < 5; i++ {
			require.NoError(t, store.InsertEventLog(ctx, eventlog.Entry{
				FireID: fmt.Sprintf("F%d", i), Event: "OnKeyPressed", Source: "gpio1",
			}))
		}
		require.NoError(t, store.InsertEventLog(ctx, eventlog.Entry{
			FireID: "W", Event: "OnWebServerRequest", Source: "doorpi.web",
		}))

		entries, err := store.Entries(ctx, 3, "")
		require.NoError(t, err)
		assert.Len(t, entries, 3)

		entries, err = store.Entries(ctx, 10, "Web")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "W", entries[0].FireID)

		entries, err = store.Entries(ctx, 10, "gpio")
		require.NoError(t, err)
		assert.Len(t, entries, 5)
		assert.Equal(t, "F4", entries[0].FireID)
	})

	t.Run(name+"/Count", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		require.NoError(t, store.InsertEventLog(ctx, eventlog.Entry{FireID: "F", Event: "E", Source: "S"}))
		n, err = store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run(name+"/Closed", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())
		require.NoError(t, store.Close())

		err := store.InsertEventLog(ctx, eventlog.Entry{FireID: "F", Event: "E", Source: "S"})
		assert.ErrorIs(t, err, eventlog.ErrStoreClosed)

		_, err = store.Entries(ctx, 1, "")
		assert.ErrorIs(t, err, eventlog.ErrStoreClosed)
	})

	t.Run(name+"/Concurrent", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		const writers = 20
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, store.InsertActionLog(ctx, eventlog.Entry{
					FireID: fmt.Sprintf("F%d", i), Event: "E", Source: "S", Action: "a",
				}))
			}(i)
		}
		wg.Wait()

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, writers, n)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContractTest(t, "memory", func(t *testing.T) eventlog.Store {
		return eventlog.NewMemoryStore(0)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeContractTest(t, "sqlite", func(t *testing.T) eventlog.Store {
		store, err := eventlog.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return store
	})
}

func TestMemoryStore_Capacity(t *testing.T) {
	ctx := context.Background()
	store := eventlog.NewMemoryStore(2)

	for i := 0; i < 4; i++ {
		require.NoError(t, store.InsertEventLog(ctx, eventlog.Entry{FireID: fmt.Sprintf("F%d", i)}))
	}

	entries, err := store.Entries(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "F3", entries[0].FireID)
	assert.Equal(t, "F2", entries[1].FireID)
}

func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "eventlog.db")

	store1, err := eventlog.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store1.InsertEventLog(ctx, eventlog.Entry{
		FireID: "F1", Event: "OnStartup", Source: "doorpi", Timestamp: time.Unix(100, 0),
	}))
	require.NoError(t, store1.Close())

	store2, err := eventlog.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	entries, err := store2.Entries(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "OnStartup", entries[0].Event)
	assert.True(t, entries[0].Timestamp.Equal(time.Unix(100, 0)))
}

func TestSQLiteStore_UnencodableExtra(t *testing.T) {
	ctx := context.Background()
	store, err := eventlog.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.InsertEventLog(ctx, eventlog.Entry{
		FireID: "F", Event: "E", Source: "S",
		Extra: map[string]any{"ch": make(chan int), "n": 1},
	}))

	entries, err := store.Entries(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1", entries[0].Extra["n"])
}

func TestSQLiteStore_CorruptTimestamp(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "eventlog.db")

	store, err := eventlog.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.InsertEventLog(ctx, eventlog.Entry{
		FireID: "F", Event: "E", Source: "S", Timestamp: time.Unix(100, 0),
	}))

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.ExecContext(ctx, `UPDATE event_log SET timestamp = 'yesterday'`)
	require.NoError(t, err)

	_, err = store.Entries(ctx, 10, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode timestamp")
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	_, err := eventlog.NewSQLiteStore("/nonexistent/path/eventlog.db")
	assert.Error(t, err)
}

func TestNoopStore(t *testing.T) {
	ctx := context.Background()
	var store eventlog.Store = eventlog.NoopStore{}

	require.NoError(t, store.InsertEventLog(ctx, eventlog.Entry{}))
	entries, err := store.Entries(ctx, 10, "")
	require.NoError(t, err)
	assert.Empty(t, entries)
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, store.Close())
}

func TestEntryMatches(t *testing.T) {
	e := eventlog.Entry{Event: "OnKeyPressed", Source: "gpio1", Action: "cmd:echo"}
	assert.True(t, e.Matches(""))
	assert.True(t, e.Matches("KeyPressed"))
	assert.True(t, e.Matches("gpio"))
	assert.True(t, e.Matches("echo"))
	assert.False(t, e.Matches("OnRing"))
}
