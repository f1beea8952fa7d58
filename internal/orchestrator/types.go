package orchestrator

import "context"

// RunFunc is the body of an action. The returned value is folded into the
// next decision round, so it must be JSON-serializable.
type RunFunc func(ctx context.Context, actx *ActionContext) (any, error)

type ActionMetadata struct {
	Description string         `yaml:"description" json:"description"`
	Extra       map[string]any `yaml:",inline" json:"extra,omitempty"`
}

type ActionConfig struct {
	ID        string         `yaml:"id" json:"id"`
	Retries   int            `yaml:"retries" json:"retries"`
	DependsOn []string       `yaml:"depends_on,omitempty" json:"dependsOn,omitempty"`
	Metadata  ActionMetadata `yaml:"metadata" json:"metadata"`
}

// Action is a registered unit of work. It is immutable once registered.
type Action struct {
	Config ActionConfig
	Run    RunFunc
}

// ActionContext is built fresh for every invocation and must not be retained
// by the action after Run returns.
type ActionContext struct {
	RunID   string
	Round   int
	Attempt int
	// Input holds the caller's structured input plus "query", the request text.
	Input map[string]any
	// Actions is the full registry, for introspection only.
	Actions *Registry
	// Results maps action id to the latest result it produced in this run.
	Results map[string]any
}

// Query returns the original request text.
func (c *ActionContext) Query() string {
	s, _ := c.Input["query"].(string)
	return s
}

type ActionDescriptor struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Decision is the structured answer of a Decider for one round.
type Decision struct {
	Actions []string `json:"actions"`
	IsDone  bool     `json:"isDone"`
	Summary string   `json:"summary,omitempty"`
}

// Request is the caller-facing input to Engine.Run.
type Request struct {
	Query string
	Input map[string]any
}

// Result is returned when a run reaches DONE.
type Result struct {
	RunID   string `json:"runId"`
	Summary string `json:"summary"`
	Results any    `json:"results"`
	Rounds  int    `json:"rounds"`
}

// ResultPolicy selects what is carried from one round into the next.
type ResultPolicy string

const (
	// ResultPolicyLast keeps only the most recent action's result.
	ResultPolicyLast ResultPolicy = "last"
	// ResultPolicyHistory keeps every completed action's result in order.
	ResultPolicyHistory ResultPolicy = "history"
)

// HistoryEntry is one element of the accumulated results under
// ResultPolicyHistory.
type HistoryEntry struct {
	Action string `json:"action"`
	Round  int    `json:"round"`
	Result any    `json:"result"`
}

type State string

const (
	StateAwaitingDecision State = "AWAITING_DECISION"
	StateExecuting        State = "EXECUTING"
	StateDone             State = "DONE"
	StateFailed           State = "FAILED"
)
