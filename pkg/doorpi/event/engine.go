package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/doorpi/doorpi/pkg/doorpi/action"
	"github.com/doorpi/doorpi/pkg/doorpi/eventlog"
	"github.com/doorpi/doorpi/pkg/doorpi/observability"
)

// Engine owns the registry, the run metadata and the table of in-flight
// fires. All methods are safe for concurrent use.
type Engine struct {
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	eventLog eventlog.Store
	parser   *action.Parser
	silent   func(name string) bool
	onFatal  func(err error)
	wait     bool

	mu       sync.RWMutex
	sources  map[string]struct{}
	events   map[string][]string
	actions  map[string][]*Binding
	metadata map[string]*Record
	cause    error

	tasksMu sync.Mutex
	tasks   map[uint64]TaskInfo
	taskSeq uint64
	closing bool
	wg      sync.WaitGroup

	destroyed atomic.Bool
	tornDown  atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once
	fatalOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder. Default: no metrics.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithSpanManager sets the span manager. Default: no tracing.
func WithSpanManager(s observability.SpanManager) Option {
	return func(e *Engine) {
		if s != nil {
			e.spans = s
		}
	}
}

// WithEventLog sets the event log. Default: an in-memory store holding the
// most recent eventlog.DefaultMemoryCapacity entries.
//
// The engine closes the store on Teardown.
func WithEventLog(store eventlog.Store) Option {
	return func(e *Engine) {
		if store != nil {
			e.eventLog = store
		}
	}
}

// WithParser sets the parser used by RegisterActionSpec.
// Default: action.NewParser with the engine's logger.
func WithParser(p *action.Parser) Option {
	return func(e *Engine) {
		e.parser = p
	}
}

// WithSilent sets the predicate selecting silent events.
// Silent events do not write debug or info logs or event log entries, and
// may still fire after teardown started.
// Default: names containing "OnTime".
func WithSilent(fn func(name string) bool) Option {
	return func(e *Engine) {
		if fn != nil {
			e.silent = fn
		}
	}
}

// WithOnFatal sets a callback invoked once, from the firing goroutine, when an
// action raises a shutdown or interrupt signal. The callback must not call
// Teardown synchronously; Teardown waits for the fire that invoked it.
func WithOnFatal(fn func(err error)) Option {
	return func(e *Engine) {
		e.onFatal = fn
	}
}

// WithTeardownWait controls whether Teardown waits for tracked async fires.
// Default: true.
func WithTeardownWait(wait bool) Option {
	return func(e *Engine) {
		e.wait = wait
	}
}

// DefaultSilent reports whether name is a heartbeat event.
func DefaultSilent(name string) bool {
	return strings.Contains(name, "OnTime")
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
		silent:   DefaultSilent,
		wait:     true,
		sources:  make(map[string]struct{}),
		events:   make(map[string][]string),
		actions:  make(map[string][]*Binding),
		metadata: make(map[string]*Record),
		tasks:    make(map[uint64]TaskInfo),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.eventLog == nil {
		e.eventLog = eventlog.NewMemoryStore(eventlog.DefaultMemoryCapacity)
	}
	if e.parser == nil {
		e.parser = action.NewParser(e.logger)
	}
	return e
}

// Done returns a channel closed once the engine is destroyed, either by
// Teardown or by an action raising a shutdown or interrupt signal.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Destroyed reports whether ordinary fires are rejected.
func (e *Engine) Destroyed() bool {
	return e.destroyed.Load()
}

// Cause returns the first shutdown or interrupt signal raised by an action,
// or nil.
func (e *Engine) Cause() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cause
}

func (e *Engine) closeDone() {
	e.doneOnce.Do(func() { close(e.done) })
}

// signalFatal begins teardown on behalf of an action. It does not wait for
// in-flight fires since the caller is one of them.
func (e *Engine) signalFatal(err error) {
	e.destroyed.Store(true)

	e.mu.Lock()
	if e.cause == nil {
		e.cause = err
	}
	e.mu.Unlock()

	e.closeDone()
	e.fatalOnce.Do(func() {
		if e.onFatal != nil {
			e.onFatal(err)
		}
	})
}

// Teardown destroys the engine. New ordinary fires are rejected; running
// chains are never aborted. Unless disabled with WithTeardownWait, Teardown
// waits for tracked async fires until ctx is done. The event log is closed
// last. Calling Teardown more than once is a no-op.
func (e *Engine) Teardown(ctx context.Context) error {
	if !e.tornDown.CompareAndSwap(false, true) {
		return nil
	}
	e.destroyed.Store(true)
	e.closeDone()

	e.tasksMu.Lock()
	e.closing = true
	pending := len(e.tasks)
	e.tasksMu.Unlock()

	e.logger.Info("engine teardown", slog.Int("active_tasks", pending))

	var errs []error
	if e.wait {
		if err := e.waitTracked(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for fires: %w", err))
		}
	}
	if err := e.eventLog.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close event log: %w", err))
	}
	return errors.Join(errs...)
}

func (e *Engine) waitTracked(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// History returns up to max event log entries, newest first, whose event,
// source or action contains filter.
func (e *Engine) History(ctx context.Context, max int, filter string) ([]eventlog.Entry, error) {
	return e.eventLog.Entries(ctx, max, filter)
}

// HistoryCount returns the number of entries in the event log.
func (e *Engine) HistoryCount(ctx context.Context) (int, error) {
	return e.eventLog.Count(ctx)
}
