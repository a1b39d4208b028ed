package config

import "fmt"

// Binding is one configured action for an event.
type Binding struct {
	Event      string
	Spec       string
	SingleFire bool
}

// Bindings reads the event → actions table stored under key.
//
// Each event maps to a list whose items are either an action spec string or
// a table with "spec" and optional "single_fire". A single string is
// accepted in place of a one-item list. Events are returned in name order,
// actions in list order.
//
//	events:
//	  OnKeyPressed:
//	    - "cmd:/usr/local/bin/open-door"
//	    - spec: "log:first ring after boot"
//	      single_fire: true
func (c Config) Bindings(key string) ([]Binding, error) {
	section := c.Section(key)

	var out []Binding
	for _, event := range section.Keys() {
		var items []any
		switch v := section.data[event].(type) {
		case string:
			items = []any{v}
		case []any:
			items = v
		case []string:
			for _, s := range v {
				items = append(items, s)
			}
		default:
			return nil, fmt.Errorf("%s.%s: expected a list of actions, got %T", key, event, v)
		}

		for i, item := range items {
			b, err := parseBinding(event, item)
			if err != nil {
				return nil, fmt.Errorf("%s.%s[%d]: %w", key, event, i, err)
			}
			out = append(out, b)
		}
	}
	return out, nil
}

func parseBinding(event string, item any) (Binding, error) {
	switch v := item.(type) {
	case string:
		if v == "" {
			return Binding{}, fmt.Errorf("empty action spec")
		}
		return Binding{Event: event, Spec: v}, nil
	case map[string]any:
		item := New(v)
		spec := item.String("spec", "")
		if spec == "" {
			return Binding{}, fmt.Errorf("missing spec")
		}
		return Binding{
			Event:      event,
			Spec:       spec,
			SingleFire: item.Bool("single_fire", false),
		}, nil
	default:
		return Binding{}, fmt.Errorf("unsupported action entry %T", item)
	}
}
