package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/spinup/spinup/internal/provider"
)

const (
	DefaultMaxRounds = 20
	completedSummary = "Task completed"
)

type Options struct {
	// Instructions are appended to the generated system prompt.
	Instructions string
	Rules        []string
	// MaxRounds caps decision rounds per run. Zero means DefaultMaxRounds.
	MaxRounds int
	// Deadline caps the wall-clock time of a run. Zero means no deadline.
	Deadline     time.Duration
	ResultPolicy ResultPolicy
	// RetryBackoff is the pause between attempts of a failing action.
	RetryBackoff time.Duration
	Guard        *Guard
	Logger       *zerolog.Logger
	Observers    []Observer
	NewRunID     func() string
}

// Engine runs the decision/execute loop. A single Engine serves any number
// of concurrent runs; each run owns its conversation and results.
type Engine struct {
	registry *Registry
	decider  Decider
	opts     Options
	system   string
	guard    *Guard
	log      zerolog.Logger
}

func NewEngine(registry *Registry, decider Decider, opts Options) (*Engine, error) {
	if registry == nil {
		return nil, errors.New("engine: registry is required")
	}
	if decider == nil {
		return nil, errors.New("engine: decider is required")
	}
	if opts.MaxRounds < 0 {
		return nil, fmt.Errorf("engine: max rounds must be >= 0, got %d", opts.MaxRounds)
	}
	if opts.MaxRounds == 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	switch opts.ResultPolicy {
	case "":
		opts.ResultPolicy = ResultPolicyLast
	case ResultPolicyLast, ResultPolicyHistory:
	default:
		return nil, fmt.Errorf("engine: unknown result policy %q", opts.ResultPolicy)
	}
	if opts.NewRunID == nil {
		opts.NewRunID = func() string { return "run_" + uuid.New().String() }
	}
	guard := opts.Guard
	if guard == nil {
		guard = NewGuard()
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "engine").Logger()
	}

	return &Engine{
		registry: registry,
		decider:  decider,
		opts:     opts,
		system:   BuildSystemPrompt(registry.Describe(), NewRulesConfig(opts.Rules), opts.Instructions),
		guard:    guard,
		log:      log,
	}, nil
}

func (e *Engine) Registry() *Registry { return e.registry }

// SystemPrompt is the system turn every run starts with.
func (e *Engine) SystemPrompt() string { return e.system }

// Run drives one request to DONE or FAILED. Extra observers receive this
// run's events in addition to the Engine's own.
func (e *Engine) Run(ctx context.Context, req Request, observers ...Observer) (*Result, error) {
	r := e.newRun(req, observers)
	start := time.Now()

	r.log.Info().Str("query", req.Query).Msg("run started")
	r.emit(ctx, Event{Kind: EventRunStarted, Query: req.Query, Input: req.Input})

	res, err := r.loop(ctx)
	elapsed := time.Since(start)
	if err != nil {
		r.state = StateFailed
		kind := ErrorKind(err)
		r.log.Error().Err(err).Str("kind", string(kind)).Int("round", r.round).Dur("elapsed", elapsed).Msg("run failed")
		r.emit(ctx, Event{Kind: EventRunFailed, Err: err, Error: err.Error(), ErrKind: kind, Elapsed: elapsed})
		return nil, err
	}

	r.state = StateDone
	r.log.Info().Int("rounds", res.Rounds).Dur("elapsed", elapsed).Msg("run completed")
	r.emit(ctx, Event{Kind: EventRunCompleted, Summary: res.Summary, Result: res.Results, Elapsed: elapsed})
	return res, nil
}

type run struct {
	e         *Engine
	id        string
	query     string
	input     map[string]any
	observers []Observer
	log       zerolog.Logger

	state     State
	round     int
	deadline  time.Time
	previous  any
	history   []HistoryEntry
	results   map[string]any
	completed map[string]bool
	last      *Decision
}

func (e *Engine) newRun(req Request, observers []Observer) *run {
	id := e.opts.NewRunID()
	input := make(map[string]any, len(req.Input)+1)
	maps.Copy(input, req.Input)
	input["query"] = req.Query

	all := make([]Observer, 0, len(e.opts.Observers)+len(observers))
	all = append(all, e.opts.Observers...)
	all = append(all, observers...)

	r := &run{
		e:         e,
		id:        id,
		query:     req.Query,
		input:     input,
		observers: all,
		log:       e.log.With().Str("run_id", id).Logger(),
		state:     StateAwaitingDecision,
		results:   make(map[string]any),
		completed: make(map[string]bool),
	}
	if e.opts.Deadline > 0 {
		r.deadline = time.Now().Add(e.opts.Deadline)
	}
	return r
}

func (r *run) loop(ctx context.Context) (*Result, error) {
	for {
		if r.round >= r.e.opts.MaxRounds {
			return nil, &LoopExceededError{Rounds: r.round, Limit: LimitMaxRounds, LastDecision: r.last}
		}
		r.round++
		r.state = StateAwaitingDecision

		if err := r.checkBudget(ctx); err != nil {
			return nil, err
		}
		decision, err := r.decide(ctx)
		if err != nil {
			return nil, err
		}
		r.last = decision

		if len(decision.Actions) == 0 {
			return r.finish(decision.Summary), nil
		}

		r.state = StateExecuting
		for _, id := range decision.Actions {
			if err := r.checkBudget(ctx); err != nil {
				return nil, err
			}
			if err := r.dispatch(ctx, id); err != nil {
				return nil, err
			}
		}

		if decision.IsDone {
			summary := decision.Summary
			if summary == "" {
				summary = completedSummary
			}
			return r.finish(summary), nil
		}
	}
}

func (r *run) finish(summary string) *Result {
	return &Result{RunID: r.id, Summary: summary, Results: r.previous, Rounds: r.round}
}

// checkBudget stops scheduling once the caller has gone away or the run's
// deadline has passed.
func (r *run) checkBudget(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &CanceledError{Round: r.round, Cause: err}
	}
	if !r.deadline.IsZero() && !time.Now().Before(r.deadline) {
		return &LoopExceededError{Rounds: r.round, Limit: LimitDeadline, LastDecision: r.last}
	}
	return nil
}

func (r *run) conversation() []provider.Message {
	msgs := seedConversation(r.e.system, r.query)
	if r.previous != nil {
		msgs = append(msgs, provider.Message{
			Role:    provider.RoleUser,
			Content: r.e.guard.ResultsTurn(r.previous),
		})
	}
	return msgs
}

func (r *run) decide(ctx context.Context) (*Decision, error) {
	decideCtx := ctx
	if !r.deadline.IsZero() {
		var cancel context.CancelFunc
		decideCtx, cancel = context.WithDeadline(ctx, r.deadline)
		defer cancel()
	}

	decision, err := r.e.decider.Decide(decideCtx, r.conversation())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &CanceledError{Round: r.round, Cause: ctxErr}
		}
		if !r.deadline.IsZero() && !time.Now().Before(r.deadline) {
			return nil, &LoopExceededError{Rounds: r.round, Limit: LimitDeadline, LastDecision: r.last}
		}
		var decErr *DecisionError
		if errors.As(err, &decErr) {
			decErr.Round = r.round
			return nil, decErr
		}
		return nil, &DecisionError{Round: r.round, Cause: err}
	}
	if decision == nil {
		return nil, &DecisionError{Round: r.round, Cause: ErrEmptyDecision}
	}

	r.log.Debug().Int("round", r.round).Strs("actions", decision.Actions).Bool("is_done", decision.IsDone).Msg("decision")
	r.emit(ctx, Event{Kind: EventDecision, Decision: decision})
	return decision, nil
}

func (r *run) dispatch(ctx context.Context, id string) error {
	action, ok := r.e.registry.Lookup(id)
	if !ok {
		return &DispatchError{Round: r.round, ActionID: id, Reason: ReasonUnknownAction}
	}

	var missing []string
	for _, dep := range action.Config.DependsOn {
		if !r.completed[dep] {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return &DispatchError{Round: r.round, ActionID: id, Reason: ReasonUnmetDependency, Missing: missing}
	}

	result, err := r.invoke(ctx, action)
	if err != nil {
		return err
	}

	r.completed[id] = true
	r.results[id] = result
	if r.e.opts.ResultPolicy == ResultPolicyHistory {
		r.history = append(r.history, HistoryEntry{Action: id, Round: r.round, Result: result})
		r.previous = append([]HistoryEntry(nil), r.history...)
	} else {
		r.previous = result
	}
	return nil
}

// invoke runs action with its retry budget: Retries additional attempts
// after the first failure. Once the caller's context is done no further
// attempt is started, but a running attempt is always waited for.
func (r *run) invoke(ctx context.Context, action Action) (any, error) {
	id := action.Config.ID
	maxAttempts := action.Config.Retries + 1
	log := r.log.With().Str("action", id).Int("round", r.round).Logger()

	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		actx := &ActionContext{
			RunID:   r.id,
			Round:   r.round,
			Attempt: attempt,
			Input:   maps.Clone(r.input),
			Actions: r.e.registry,
			Results: maps.Clone(r.results),
		}

		r.emit(ctx, Event{Kind: EventActionStarted, ActionID: id, Attempt: attempt})
		start := time.Now()
		attemptCtx, cancel := r.e.guard.AttemptContext(ctx)
		result, err := safeRun(attemptCtx, action, actx)
		cancel()
		elapsed := time.Since(start)

		if err == nil {
			log.Debug().Int("attempt", attempt).Dur("elapsed", elapsed).Msg("action completed")
			r.emit(ctx, Event{Kind: EventActionCompleted, ActionID: id, Attempt: attempt, Result: result, Elapsed: elapsed})
			return result, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, &CanceledError{Round: r.round, Cause: ctx.Err()}
		}
		if attempt == maxAttempts {
			break
		}

		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", maxAttempts).Msg("action failed, retrying")
		r.emit(ctx, Event{Kind: EventActionRetry, ActionID: id, Attempt: attempt, Err: err, Error: err.Error(), Elapsed: elapsed})
		if err := r.backoff(ctx); err != nil {
			return nil, err
		}
	}

	return nil, &ActionError{Round: r.round, ActionID: id, Attempts: attempt, Cause: lastErr}
}

func (r *run) backoff(ctx context.Context) error {
	if r.e.opts.RetryBackoff <= 0 {
		return nil
	}
	t := time.NewTimer(r.e.opts.RetryBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return &CanceledError{Round: r.round, Cause: ctx.Err()}
	case <-t.C:
		return nil
	}
}

// safeRun converts a panicking action into an ordinary failure.
func safeRun(ctx context.Context, action Action, actx *ActionContext) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("action %q panicked: %v", action.Config.ID, p)
		}
	}()
	return action.Run(ctx, actx)
}

func (r *run) emit(ctx context.Context, ev Event) {
	if len(r.observers) == 0 {
		return
	}
	ev.RunID = r.id
	ev.State = r.state
	ev.Time = time.Now()
	if ev.Round == 0 {
		ev.Round = r.round
	}
	for _, o := range r.observers {
		o.OnEvent(ctx, ev)
	}
}
