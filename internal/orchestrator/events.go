package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type EventKind string

const (
	EventRunStarted      EventKind = "run_started"
	EventDecision        EventKind = "decision"
	EventActionStarted   EventKind = "action_started"
	EventActionRetry     EventKind = "action_retry"
	EventActionCompleted EventKind = "action_completed"
	EventRunCompleted    EventKind = "run_completed"
	EventRunFailed       EventKind = "run_failed"
)

// Event is emitted by the Engine at every state transition of a run.
type Event struct {
	RunID    string         `json:"runId"`
	Kind     EventKind      `json:"kind"`
	State    State          `json:"state"`
	Time     time.Time      `json:"time"`
	Round    int            `json:"round,omitempty"`
	Query    string         `json:"query,omitempty"`
	Input    map[string]any `json:"input,omitempty"`
	Decision *Decision      `json:"decision,omitempty"`
	ActionID string         `json:"action,omitempty"`
	Attempt  int            `json:"attempt,omitempty"`
	Result   any            `json:"result,omitempty"`
	Summary  string         `json:"summary,omitempty"`
	Elapsed  time.Duration  `json:"elapsed,omitempty"`
	Err      error          `json:"-"`
	Error    string         `json:"error,omitempty"`
	ErrKind  Kind           `json:"errorKind,omitempty"`
}

// Observer receives run events synchronously, on the run's goroutine.
// Implementations must not block for long.
type Observer interface {
	OnEvent(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) OnEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// LogObserver traces every event at debug level, one line per transition.
type LogObserver struct {
	log zerolog.Logger
}

func NewLogObserver(log *zerolog.Logger) *LogObserver {
	return &LogObserver{log: log.With().Str("component", "trace").Logger()}
}

func (o *LogObserver) OnEvent(_ context.Context, ev Event) {
	e := o.log.Debug().
		Str("run_id", ev.RunID).
		Str("state", string(ev.State)).
		Int("round", ev.Round)
	if ev.ActionID != "" {
		e = e.Str("action", ev.ActionID).Int("attempt", ev.Attempt)
	}
	if ev.Decision != nil {
		e = e.Strs("actions", ev.Decision.Actions).Bool("is_done", ev.Decision.IsDone)
	}
	if ev.Result != nil {
		e = e.Interface("result", ev.Result)
	}
	if ev.Err != nil {
		e = e.Err(ev.Err)
	}
	if ev.Elapsed > 0 {
		e = e.Dur("elapsed", ev.Elapsed)
	}
	e.Msg(string(ev.Kind))
}
