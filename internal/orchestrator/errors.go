package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names the boundary at which a run failed.
type Kind string

const (
	KindDecision     Kind = "decision"
	KindDispatch     Kind = "dispatch"
	KindAction       Kind = "action"
	KindLoopExceeded Kind = "loop_exceeded"
	KindConfig       Kind = "config"
	KindCanceled     Kind = "canceled"
	KindUnknown      Kind = "unknown"
)

// DecisionError reports that the Decider was unreachable, returned nothing,
// or returned content that is not a valid Decision.
type DecisionError struct {
	Round   int
	Content string
	Cause   error
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("decision failed in round %d: %v", e.Round, e.Cause)
}

func (e *DecisionError) Unwrap() error { return e.Cause }

type DispatchReason string

const (
	ReasonUnknownAction   DispatchReason = "unknown_action"
	ReasonUnmetDependency DispatchReason = "unmet_dependency"
)

// DispatchError reports a decision that cannot be dispatched: the action is
// not registered, or one of its dependencies has not produced a result yet.
type DispatchError struct {
	Round    int
	ActionID string
	Reason   DispatchReason
	Missing  []string
}

func (e *DispatchError) Error() string {
	if e.Reason == ReasonUnmetDependency {
		return fmt.Sprintf("action %q in round %d has unmet dependencies: %s",
			e.ActionID, e.Round, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("action %q not found (round %d)", e.ActionID, e.Round)
}

// ActionError reports an action that failed on every attempt of its budget.
type ActionError struct {
	Round    int
	ActionID string
	Attempts int
	Cause    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %q failed after %d attempt(s) in round %d: %v",
		e.ActionID, e.Attempts, e.Round, e.Cause)
}

func (e *ActionError) Unwrap() error { return e.Cause }

type LoopLimit string

const (
	LimitMaxRounds LoopLimit = "max_rounds"
	LimitDeadline  LoopLimit = "deadline"
)

// LoopExceededError reports that a run hit its round or wall-clock budget
// before the Decider signalled completion.
type LoopExceededError struct {
	Rounds       int
	Limit        LoopLimit
	LastDecision *Decision
}

func (e *LoopExceededError) Error() string {
	last := "none"
	if e.LastDecision != nil {
		last = fmt.Sprintf("actions=%v isDone=%t", e.LastDecision.Actions, e.LastDecision.IsDone)
	}
	return fmt.Sprintf("orchestration loop exceeded %s after %d round(s) (last decision: %s)",
		e.Limit, e.Rounds, last)
}

// ConfigError is raised while building a Registry, before any run starts.
type ConfigError struct {
	ActionID string
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.ActionID == "" {
		return "invalid action configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid action %q: %s", e.ActionID, e.Reason)
}

// CanceledError reports that the caller's context ended the run.
type CanceledError struct {
	Round int
	Cause error
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("run canceled in round %d: %v", e.Round, e.Cause)
}

func (e *CanceledError) Unwrap() error { return e.Cause }

// ErrorKind classifies err by the boundary that failed.
func ErrorKind(err error) Kind {
	var (
		decErr  *DecisionError
		dispErr *DispatchError
		actErr  *ActionError
		loopErr *LoopExceededError
		cfgErr  *ConfigError
		canErr  *CanceledError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &canErr):
		return KindCanceled
	case errors.As(err, &decErr):
		return KindDecision
	case errors.As(err, &dispErr):
		return KindDispatch
	case errors.As(err, &actErr):
		return KindAction
	case errors.As(err, &loopErr):
		return KindLoopExceeded
	case errors.As(err, &cfgErr):
		return KindConfig
	default:
		return KindUnknown
	}
}
