package ticker_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doorpi/doorpi/pkg/doorpi/action"
	"github.com/doorpi/doorpi/pkg/doorpi/event"
	"github.com/doorpi/doorpi/pkg/doorpi/ticker"
)

type fakeEngine struct {
	mu         sync.Mutex
	registered []string
	fired      []string
	modes      []event.Mode
	unregister []string
}

func (f *fakeEngine) RegisterEvent(name, source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, name+"@"+source)
}

func (f *fakeEngine) UnregisterSource(source string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if force {
		f.unregister = append(f.unregister, source)
	}
	return nil
}

func (f *fakeEngine) Fire(_ context.Context, name, _ string, mode event.Mode, _ map[string]any) event.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, name)
	f.modes = append(f.modes, mode)
	return event.Result{Status: event.StatusScheduled}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTick(t *testing.T) {
	base := time.Date(2026, 10, 19, 23, 59, 58, 100_000_000, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want []string
	}{
		{"first tick", base, []string{ticker.EventTick, ticker.EventSecond, ticker.EventSecondEven}},
		{"same second", base.Add(200 * time.Millisecond), []string{ticker.EventTick}},
		{"uneven second", base.Add(time.Second), []string{ticker.EventTick, ticker.EventSecond, ticker.EventSecondUneven}},
		{"new day", base.Add(2 * time.Second), []string{
			ticker.EventTick, ticker.EventSecond, ticker.EventSecondEven,
			ticker.EventMinute, ticker.EventHour, ticker.EventDay,
		}},
		{"new minute only", base.Add(62 * time.Second), []string{
			ticker.EventTick, ticker.EventSecond, ticker.EventSecondEven, ticker.EventMinute,
		}},
	}

	fake := &fakeEngine{}
	tk := ticker.New(fake, time.Second, discard())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tk.Tick(context.Background(), tt.now))
		})
	}

	for _, m := range fake.modes {
		assert.Equal(t, event.Async, m)
	}
}

func TestEventsAreSilent(t *testing.T) {
	for _, name := range ticker.Events {
		assert.True(t, event.DefaultSilent(name), name)
	}
}

func TestStartAndClose(t *testing.T) {
	fake := &fakeEngine{}
	tk := ticker.New(fake, 5*time.Millisecond, discard())

	require.NoError(t, tk.Start())
	assert.ErrorIs(t, tk.Start(), ticker.ErrStarted)

	assert.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.fired) > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, tk.Close())
	require.NoError(t, tk.Close())
	assert.ErrorIs(t, tk.Start(), ticker.ErrClosed)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Len(t, fake.registered, len(ticker.Events))
	assert.Contains(t, fake.registered, "OnTimeTick@"+ticker.Source)
	assert.Equal(t, []string{ticker.Source}, fake.unregister)
}

func TestWithEngine(t *testing.T) {
	e := event.New(event.WithLogger(discard()))
	t.Cleanup(func() { _ = e.Teardown(context.Background()) })

	var ticks atomic.Int32
	_, err := e.RegisterAction(ticker.EventTick, action.Simple("count", func() error {
		ticks.Add(1)
		return nil
	}))
	require.NoError(t, err)

	tk := ticker.New(e, 5*time.Millisecond, discard())
	require.NoError(t, tk.Start())

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, tk.Close())
	snap := e.Snapshot()
	assert.NotContains(t, snap.Sources, ticker.Source)
	assert.Empty(t, snap.Events)
}

func TestCloseWithoutStart(t *testing.T) {
	e := event.New(event.WithLogger(discard()))
	t.Cleanup(func() { _ = e.Teardown(context.Background()) })

	tk := ticker.New(e, 0, discard())
	assert.NoError(t, tk.Close())
}
