package orchestrator

import "fmt"

const noDescription = "No description"

// Registry is an immutable id -> Action table. It is safe for concurrent
// reads and is shared by every run of an Engine.
type Registry struct {
	order   []string
	actions map[string]Action
}

// NewRegistry validates the given actions and builds a registry. Duplicate or
// empty ids, missing Run functions, negative retry budgets and broken
// dependency declarations are reported as *ConfigError.
func NewRegistry(actions ...Action) (*Registry, error) {
	r := &Registry{
		order:   make([]string, 0, len(actions)),
		actions: make(map[string]Action, len(actions)),
	}

	for _, a := range actions {
		id := a.Config.ID
		switch {
		case id == "":
			return nil, &ConfigError{Reason: "action id is empty"}
		case a.Run == nil:
			return nil, &ConfigError{ActionID: id, Reason: "run function is nil"}
		case a.Config.Retries < 0:
			return nil, &ConfigError{ActionID: id, Reason: fmt.Sprintf("retries must be >= 0, got %d", a.Config.Retries)}
		}
		if _, exists := r.actions[id]; exists {
			return nil, &ConfigError{ActionID: id, Reason: "duplicate action id"}
		}
		a.Config.DependsOn = append([]string(nil), a.Config.DependsOn...)
		r.actions[id] = a
		r.order = append(r.order, id)
	}

	for _, id := range r.order {
		for _, dep := range r.actions[id].Config.DependsOn {
			if dep == id {
				return nil, &ConfigError{ActionID: id, Reason: "action depends on itself"}
			}
			if _, ok := r.actions[dep]; !ok {
				return nil, &ConfigError{ActionID: id, Reason: fmt.Sprintf("depends on unknown action %q", dep)}
			}
		}
	}
	if cycle := r.findCycle(); cycle != nil {
		return nil, &ConfigError{ActionID: cycle[0], Reason: fmt.Sprintf("dependency cycle %v", cycle)}
	}

	return r, nil
}

// MustRegistry is NewRegistry that panics on error, for static setups.
func MustRegistry(actions ...Action) *Registry {
	r, err := NewRegistry(actions...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Lookup(id string) (Action, bool) {
	if r == nil {
		return Action{}, false
	}
	a, ok := r.actions[id]
	return a, ok
}

// Describe returns (id, description) pairs in registration order.
func (r *Registry) Describe() []ActionDescriptor {
	if r == nil {
		return nil
	}
	out := make([]ActionDescriptor, 0, len(r.order))
	for _, id := range r.order {
		desc := r.actions[id].Config.Metadata.Description
		if desc == "" {
			desc = noDescription
		}
		out = append(out, ActionDescriptor{ID: id, Description: desc})
	}
	return out
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// findCycle runs a depth-first search over DependsOn edges and returns the
// first cycle found, or nil.
func (r *Registry) findCycle() []string {
	const (
		unvisited = iota
		inProgress
		finished
	)
	marks := make(map[string]int, len(r.order))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		marks[id] = inProgress
		stack = append(stack, id)
		for _, dep := range r.actions[id].Config.DependsOn {
			switch marks[dep] {
			case inProgress:
				for i, s := range stack {
					if s == dep {
						return append(append([]string(nil), stack[i:]...), dep)
					}
				}
			case unvisited:
				if c := visit(dep); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		marks[id] = finished
		return nil
	}

	for _, id := range r.order {
		if marks[id] == unvisited {
			if c := visit(id); c != nil {
				return c
			}
		}
	}
	return nil
}
