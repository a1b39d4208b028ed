package event_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/doorpi/doorpi/pkg/doorpi/action"
	"github.com/doorpi/doorpi/pkg/doorpi/event"
)

func newEngine(t *testing.T, opts ...event.Option) *event.Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := event.New(append([]event.Option{event.WithLogger(logger)}, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Teardown(ctx)
	})
	return e
}

func counting(name string, n *atomic.Int32) action.Action {
	return action.Simple(name, func() error {
		n.Add(1)
		return nil
	})
}

func failing(name string, err error) action.Action {
	return action.Simple(name, func() error { return err })
}

// blocking returns an action that waits until release is closed.
func blocking(name string, started chan<- struct{}, release <-chan struct{}) action.Action {
	return action.Func(name, func(context.Context, action.Call) error {
		if started != nil {
			started <- struct{}{}
		}
		<-release
		return nil
	})
}

type recordingMetrics struct {
	mu         sync.Mutex
	fires      map[string]int
	labels     map[string]int
	chains     int
	actions    int
	actionErrs int
	active     int64
	peak       int64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{fires: make(map[string]int), labels: make(map[string]int)}
}

func (m *recordingMetrics) RecordFire(_ context.Context, name string, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fires[status]++
	m.labels[name]++
}

func (m *recordingMetrics) RecordChain(context.Context, string, time.Duration, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chains++
}

func (m *recordingMetrics) RecordAction(_ context.Context, _ string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions++
	if err != nil {
		m.actionErrs++
	}
}

func (m *recordingMetrics) AddActiveFires(_ context.Context, delta int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active += delta
	if m.active > m.peak {
		m.peak = m.active
	}
}
