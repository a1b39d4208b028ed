package event

import (
	"maps"
	"time"
)

// Record is the run metadata of one event.
// A Record exists from the first fire that passes validation until the
// event is deleted.
type Record struct {
	LastFired     time.Time      `json:"last_fired"`
	LastFiredFrom string         `json:"last_fired_from"`
	FireID        string         `json:"fire_id"`
	LastFinished  *time.Time     `json:"last_finished"`
	LastDuration  *time.Duration `json:"last_duration"`
	Extra         map[string]any `json:"extra,omitempty"`
}

func (r *Record) clone() Record {
	out := *r
	if r.LastFinished != nil {
		t := *r.LastFinished
		out.LastFinished = &t
	}
	if r.LastDuration != nil {
		d := *r.LastDuration
		out.LastDuration = &d
	}
	out.Extra = maps.Clone(r.Extra)
	return out
}

// stampLocked records the start of a fire. e.mu must be held for writing.
func (e *Engine) stampLocked(name, source, fireID string, at time.Time, extra map[string]any) {
	rec, ok := e.metadata[name]
	if !ok {
		rec = &Record{}
		e.metadata[name] = rec
	}
	rec.LastFired = at
	rec.LastFiredFrom = source
	rec.FireID = fireID
	if len(extra) > 0 {
		if rec.Extra == nil {
			rec.Extra = make(map[string]any, len(extra))
		}
		maps.Copy(rec.Extra, extra)
	}
}

// finish records the completion of a fire. The record may have been purged
// while the chain ran; then nothing is written.
func (e *Engine) finish(name string, at time.Time, duration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.metadata[name]
	if !ok {
		return
	}
	rec.LastFinished = &at
	rec.LastDuration = &duration
}

// Metadata returns a copy of the run metadata of the named event.
// The second result is false if the event has not fired since it was
// registered.
func (e *Engine) Metadata(name string) (Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.metadata[name]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}
