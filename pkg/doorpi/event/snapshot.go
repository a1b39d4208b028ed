package event

import (
	"slices"
	"sort"
)

// Snapshot is a consistent copy of the registry and the task table.
type Snapshot struct {
	Sources        []string            `json:"sources"`
	Events         []string            `json:"events"`
	EventSources   map[string][]string `json:"event_sources"`
	EventActions   map[string][]string `json:"event_actions"`
	EventsBySource map[string][]string `json:"events_by_source"`
	Tasks          []TaskInfo          `json:"tasks"`
	ActiveTasks    int                 `json:"active_tasks"`
	Idle           bool                `json:"idle"`
	Destroyed      bool                `json:"destroyed"`
}

// Snapshot returns the live registry state. Sources and Events are sorted;
// event sources and actions keep registration order.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Snapshot{
		Sources:        sortedKeys(e.sources),
		Events:         sortedKeys(e.events),
		EventSources:   make(map[string][]string, len(e.events)),
		EventActions:   make(map[string][]string, len(e.actions)),
		EventsBySource: e.eventsBySourceLocked(),
		Destroyed:      e.destroyed.Load(),
	}
	for name, sources := range e.events {
		s.EventSources[name] = slices.Clone(sources)
	}
	for name, chain := range e.actions {
		descs := make([]string, 0, len(chain))
		for _, b := range chain {
			if b.SingleFire && b.claimed.Load() {
				continue
			}
			descs = append(descs, b.Action.String())
		}
		if len(descs) > 0 {
			s.EventActions[name] = descs
		}
	}

	s.Tasks = e.taskList()
	s.ActiveTasks = len(s.Tasks)
	s.Idle = s.ActiveTasks == 0
	return s
}

// EventsBySource maps every registered source to the sorted names of the
// events it is bound to.
func (e *Engine) EventsBySource() map[string][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.eventsBySourceLocked()
}

func (e *Engine) eventsBySourceLocked() map[string][]string {
	out := make(map[string][]string, len(e.sources))
	for source := range e.sources {
		out[source] = []string{}
	}
	for name, sources := range e.events {
		for _, source := range sources {
			out[source] = append(out[source], name)
		}
	}
	for source := range out {
		sort.Strings(out[source])
	}
	return out
}

// ActiveTasks returns the number of in-flight async fires, detached ones
// included.
func (e *Engine) ActiveTasks() int {
	e.tasksMu.Lock()
	defer e.tasksMu.Unlock()
	return len(e.tasks)
}

// Idle reports whether no async fire is in flight.
func (e *Engine) Idle() bool {
	return e.ActiveTasks() == 0
}

func (e *Engine) taskList() []TaskInfo {
	e.tasksMu.Lock()
	defer e.tasksMu.Unlock()

	tasks := make([]TaskInfo, 0, len(e.tasks))
	for _, t := range e.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].Started.Before(tasks[j].Started)
	})
	return tasks
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
