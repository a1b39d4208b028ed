// Package ticker raises the OnTime* heartbeat events.
//
// All heartbeat events belong to the engine's silent class: they are not
// logged and keep firing while the engine shuts down.
package ticker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/doorpi/doorpi/pkg/doorpi/event"
)

// Source is the source name the ticker registers.
const Source = "doorpi.timer"

// DefaultInterval is the OnTimeTick period.
const DefaultInterval = 200 * time.Millisecond

// Heartbeat events.
const (
	EventTick         = "OnTimeTick"
	EventSecond       = "OnTimeSecond"
	EventSecondEven   = "OnTimeSecondEvenNumber"
	EventSecondUneven = "OnTimeSecondUnevenNumber"
	EventMinute       = "OnTimeMinute"
	EventHour         = "OnTimeHour"
	EventDay          = "OnTimeDay"
)

// Events lists every event the ticker raises.
var Events = []string{
	EventTick,
	EventSecond,
	EventSecondEven,
	EventSecondUneven,
	EventMinute,
	EventHour,
	EventDay,
}

var (
	// ErrStarted is returned by Start on a ticker that was already started.
	ErrStarted = errors.New("ticker already started")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("ticker closed")
)

// Engine is the part of *event.Engine the ticker uses.
type Engine interface {
	RegisterEvent(name, source string)
	UnregisterSource(source string, force bool) error
	Fire(ctx context.Context, name, source string, mode event.Mode, extra map[string]any) event.Result
}

// Ticker fires heartbeat events on an Engine.
type Ticker struct {
	engine   Engine
	interval time.Duration
	logger   *slog.Logger

	last    time.Time
	started atomic.Bool
	closed  atomic.Bool
	closeCh chan struct{}
	done    chan struct{}
}

// New creates a Ticker. A non-positive interval uses DefaultInterval.
func New(engine Engine, interval time.Duration, logger *slog.Logger) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ticker{
		engine:   engine,
		interval: interval,
		logger:   logger,
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Register binds the heartbeat events to Source.
func (t *Ticker) Register() {
	for _, name := range Events {
		t.engine.RegisterEvent(name, Source)
	}
}

// Start registers the heartbeat events and starts ticking.
func (t *Ticker) Start() error {
	if t.closed.Load() {
		return ErrClosed
	}
	if !t.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	t.Register()
	go t.loop()
	t.logger.Info("ticker started", slog.Duration("interval", t.interval))
	return nil
}

func (t *Ticker) loop() {
	defer close(t.done)

	tick := time.NewTicker(t.interval)
	defer tick.Stop()

	for {
		select {
		case now := <-tick.C:
			t.Tick(context.Background(), now)
		case <-t.closeCh:
			return
		}
	}
}

// Tick fires the heartbeat events due at now and returns their names.
// OnTimeTick fires on every call; the others fire when now is in a new
// second, minute, hour or day compared to the previous call. The first
// call only starts the second-based events.
//
// Tick is not safe for concurrent use; a started ticker calls it from its
// own goroutine.
func (t *Ticker) Tick(ctx context.Context, now time.Time) []string {
	due := []string{EventTick}

	first := t.last.IsZero()
	if first || now.Unix() != t.last.Unix() {
		due = append(due, EventSecond)
		if now.Second()%2 == 0 {
			due = append(due, EventSecondEven)
		} else {
			due = append(due, EventSecondUneven)
		}
	}
	if !first {
		if !now.Truncate(time.Minute).Equal(t.last.Truncate(time.Minute)) {
			due = append(due, EventMinute)
		}
		if !now.Truncate(time.Hour).Equal(t.last.Truncate(time.Hour)) {
			due = append(due, EventHour)
		}
		if !sameDay(now, t.last) {
			due = append(due, EventDay)
		}
	}
	t.last = now

	extra := map[string]any{"time": now.Unix()}
	for _, name := range due {
		t.engine.Fire(ctx, name, Source, event.Async, extra)
	}
	return due
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Close stops ticking and unregisters Source with all its events.
func (t *Ticker) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.closeCh)
	if t.started.Load() {
		<-t.done
	}

	err := t.engine.UnregisterSource(Source, true)
	if errors.Is(err, event.ErrSourceUnknown) {
		return nil
	}
	return err
}
