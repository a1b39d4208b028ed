package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doorpi/doorpi/pkg/doorpi/action"
	dperrors "github.com/doorpi/doorpi/pkg/doorpi/errors"
	"github.com/doorpi/doorpi/pkg/doorpi/eventlog"
	"github.com/doorpi/doorpi/pkg/doorpi/observability"
)

// Mode selects where a fire runs its action chain.
type Mode int

const (
	// Sync runs the chain on the caller's goroutine.
	Sync Mode = iota

	// Async runs the chain on a new goroutine that Teardown waits for.
	Async

	// AsyncDetached runs the chain on a new goroutine that nothing waits
	// for. Used for best-effort final notifications.
	AsyncDetached
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Sync:
		return "sync"
	case Async:
		return "async"
	case AsyncDetached:
		return "detached"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a mode name. The empty string is Async.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "async":
		return Async, nil
	case "sync":
		return Sync, nil
	case "detached", "async-detached":
		return AsyncDetached, nil
	default:
		return 0, fmt.Errorf("unknown fire mode %q", s)
	}
}

// Status is the outcome of a fire request.
type Status string

const (
	StatusFired         Status = "fired"
	StatusScheduled     Status = "scheduled"
	StatusDestroyed     Status = "engine destroyed"
	StatusSourceUnknown Status = "source unknown"
	StatusEventUnknown  Status = "event unknown"
	StatusSourceUnbound Status = "source unknown for this event"
	StatusNoActions     Status = "no actions for this event"
)

// Result describes a fire request.
// Executed and Failed are only filled in for Sync fires. Failed counts
// ordinary failures; shutdown and interrupt signals are not failures.
type Result struct {
	Status   Status `json:"status"`
	FireID   string `json:"fire_id,omitempty"`
	Executed int    `json:"executed"`
	Failed   int    `json:"failed"`
}

// OK reports whether the chain ran or was scheduled.
func (r Result) OK() bool {
	return r.Status == StatusFired || r.Status == StatusScheduled
}

// TaskInfo describes an in-flight async fire.
type TaskInfo struct {
	FireID   string    `json:"fire_id"`
	Event    string    `json:"event"`
	Source   string    `json:"source"`
	Detached bool      `json:"detached"`
	Started  time.Time `json:"started"`
}

type firing struct {
	id     string
	event  string
	source string
	mode   Mode
	silent bool
	chain  []*Binding
	extra  map[string]any
	start  time.Time
	logger *slog.Logger

	task    uint64
	tracked bool
}

func newFireID() string {
	return uuid.New().String()[:8]
}

// Trigger fires the named event asynchronously.
func (e *Engine) Trigger(name, source string, extra map[string]any) Result {
	return e.Fire(context.Background(), name, source, Async, extra)
}

// Fire raises the named event from source.
//
// Validation and the chain snapshot happen on the caller's goroutine for
// every mode, so rejections are always reported in the Result. Registration
// changes made after Fire returns do not affect the captured chain.
//
// Every action of the chain runs even when earlier ones fail. Fire never
// panics on behalf of an action.
func (e *Engine) Fire(ctx context.Context, name, source string, mode Mode, extra map[string]any) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	silent := e.silent(name)

	if e.destroyed.Load() && !silent {
		return e.reject(ctx, name, source, StatusDestroyed)
	}

	f, status := e.prepare(name, source, mode, silent, extra)
	if status != "" {
		return e.reject(ctx, name, source, status)
	}

	if !silent {
		observability.LogFireStart(f.logger, mode.String(), len(f.chain))
		e.writeLog(ctx, f, eventlog.Entry{Extra: f.extra}, e.eventLog.InsertEventLog, "insert_event_log")
	}

	if mode == Sync {
		executed, failed := e.run(ctx, f)
		e.metrics.RecordFire(ctx, name, string(StatusFired))
		return Result{Status: StatusFired, FireID: f.id, Executed: executed, Failed: failed}
	}

	e.spawn(ctx, f)
	e.metrics.RecordFire(ctx, name, string(StatusScheduled))
	return Result{Status: StatusScheduled, FireID: f.id}
}

// UnknownEventLabel is the event label of rejection metrics for names that
// are not registered events. Callers can pass arbitrary names, and metric
// series must stay bounded.
const UnknownEventLabel = "(unknown)"

func (e *Engine) reject(ctx context.Context, name, source string, status Status) Result {
	e.metrics.RecordFire(ctx, e.metricLabel(name), string(status))

	switch {
	case e.silent(name):
	case status == StatusNoActions, status == StatusDestroyed:
		e.logger.Debug("fire skipped",
			slog.String("event", name),
			slog.String("source", source),
			slog.String("reason", string(status)),
		)
	default:
		observability.LogRejected(e.logger, name, source, string(status))
	}
	return Result{Status: status}
}

func (e *Engine) metricLabel(name string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.events[name]; ok {
		return name
	}
	if _, ok := e.actions[name]; ok {
		return name
	}
	return UnknownEventLabel
}

// prepare validates the request, snapshots the chain, admits async fires
// to the task table and stamps the run metadata, all under one lock. A fire
// that is not admitted leaves no trace.
func (e *Engine) prepare(name, source string, mode Mode, silent bool, extra map[string]any) (*firing, Status) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sources[source]; !ok {
		return nil, StatusSourceUnknown
	}
	sources, ok := e.events[name]
	if !ok {
		return nil, StatusEventUnknown
	}
	if !slices.Contains(sources, source) {
		return nil, StatusSourceUnbound
	}

	chain := make([]*Binding, 0, len(e.actions[name]))
	for _, b := range e.actions[name] {
		if b.SingleFire && b.claimed.Load() {
			continue
		}
		chain = append(chain, b)
	}
	if len(chain) == 0 {
		return nil, StatusNoActions
	}

	f := &firing{
		id:     newFireID(),
		event:  name,
		source: source,
		mode:   mode,
		silent: silent,
		chain:  chain,
		extra:  maps.Clone(extra),
		start:  time.Now(),
	}
	f.logger = observability.EnrichLogger(e.logger, f.id, name, source)
	if mode != Sync && !e.admit(f) {
		return nil, StatusDestroyed
	}
	e.stampLocked(name, source, f.id, f.start, extra)
	return f, ""
}

// admit reserves a task table slot for an async fire. Once Teardown has
// begun only silent fires are admitted, and they are not tracked.
func (e *Engine) admit(f *firing) bool {
	f.tracked = f.mode == Async

	e.tasksMu.Lock()
	defer e.tasksMu.Unlock()
	if e.closing {
		if !f.silent {
			return false
		}
		f.tracked = false
	}
	if f.tracked {
		e.wg.Add(1)
	}
	e.taskSeq++
	f.task = e.taskSeq
	e.tasks[f.task] = TaskInfo{
		FireID:   f.id,
		Event:    f.event,
		Source:   f.source,
		Detached: !f.tracked,
		Started:  f.start,
	}
	return true
}

// spawn runs an admitted fire on a new goroutine.
func (e *Engine) spawn(ctx context.Context, f *firing) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer func() {
			e.tasksMu.Lock()
			delete(e.tasks, f.task)
			e.tasksMu.Unlock()
			if f.tracked {
				e.wg.Done()
			}
		}()
		e.run(ctx, f)
	}()
}

// run executes the captured chain in order.
func (e *Engine) run(ctx context.Context, f *firing) (executed, failed int) {
	ctx, span := e.spans.StartFireSpan(ctx, f.event, f.source, f.id)
	e.metrics.AddActiveFires(ctx, 1)
	defer e.metrics.AddActiveFires(ctx, -1)

	var errs []error
	for _, b := range f.chain {
		if b.SingleFire && !b.claimed.CompareAndSwap(false, true) {
			continue
		}

		err := e.runAction(ctx, f, b)
		executed++
		if b.SingleFire {
			e.detach(f.event, b)
		}
		if err != nil {
			errs = append(errs, err)
			if !dperrors.IsFatal(err) {
				failed++
			}
		}
	}

	now := time.Now()
	duration := now.Sub(f.start)
	e.finish(f.event, now, duration)
	e.metrics.RecordChain(ctx, f.event, duration, failed)
	e.spans.EndSpanWithError(span, errors.Join(errs...))

	if !f.silent {
		observability.LogFireComplete(f.logger, float64(duration.Microseconds())/1000, executed, failed)
	}
	return executed, failed
}

func (e *Engine) runAction(ctx context.Context, f *firing, b *Binding) error {
	desc := b.Action.String()
	actx, span := e.spans.StartActionSpan(ctx, desc)
	if !f.silent {
		observability.LogActionStart(f.logger, desc)
	}

	start := time.Now()
	err := invoke(actx, b.Action, action.Call{
		Event:  f.event,
		Source: f.source,
		FireID: f.id,
		Silent: f.silent,
		Extra:  maps.Clone(f.extra),
	})
	e.spans.EndSpanWithError(span, err)
	e.metrics.RecordAction(ctx, f.event, time.Since(start), err)

	switch {
	case err == nil:
	case dperrors.IsFatal(err):
		observability.LogFatal(f.logger, desc, dperrors.Categorize(err).String(), err)
		e.signalFatal(err)
	default:
		observability.LogActionError(f.logger, desc, err)
	}

	if !f.silent {
		entry := eventlog.Entry{Action: desc}
		if err != nil {
			entry.Error = err.Error()
		}
		e.writeLog(ctx, f, entry, e.eventLog.InsertActionLog, "insert_action_log")
	}
	return err
}

// invoke runs a with panic recovery. A panic is an ordinary failure.
func invoke(ctx context.Context, a action.Action, call action.Call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &dperrors.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return a.Run(ctx, call)
}

func (e *Engine) writeLog(ctx context.Context, f *firing, entry eventlog.Entry, insert func(context.Context, eventlog.Entry) error, op string) {
	entry.FireID = f.id
	entry.Event = f.event
	entry.Source = f.source
	if err := insert(ctx, entry); err != nil && !errors.Is(err, eventlog.ErrStoreClosed) {
		observability.LogEventLogError(f.logger, op, err)
	}
}
