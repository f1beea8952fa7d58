package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spinup/spinup/internal/provider"
)

// scriptedDecider returns the scripted decisions in order, recording every
// conversation it was shown. When the script runs out it repeats the last
// entry.
type scriptedDecider struct {
	mu            sync.Mutex
	decisions     []*Decision
	conversations [][]provider.Message
}

func script(decisions ...*Decision) *scriptedDecider {
	return &scriptedDecider{decisions: decisions}
}

func (s *scriptedDecider) Decide(_ context.Context, conv []provider.Message) (*Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = append(s.conversations, conv)
	i := len(s.conversations) - 1
	if i >= len(s.decisions) {
		i = len(s.decisions) - 1
	}
	return s.decisions[i], nil
}

func (s *scriptedDecider) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

func next(ids ...string) *Decision { return &Decision{Actions: ids} }

func done(summary string, ids ...string) *Decision {
	if ids == nil {
		ids = []string{}
	}
	return &Decision{Actions: ids, IsDone: true, Summary: summary}
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func returning(id string, log *callLog, result any) Action {
	return Action{
		Config: ActionConfig{ID: id, Metadata: ActionMetadata{Description: "returns " + id}},
		Run: func(context.Context, *ActionContext) (any, error) {
			if log != nil {
				log.add(id)
			}
			return result, nil
		},
	}
}

func newEngine(t *testing.T, reg *Registry, d Decider, opts Options) *Engine {
	t.Helper()
	e, err := NewEngine(reg, d, opts)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestEngineFindJaneScenario(t *testing.T) {
	jane := map[string]any{"id": "jane", "name": "Jane Doe", "status": "active"}
	reg := MustRegistry(returning("getUserInfo", nil, jane))
	d := script(
		next("getUserInfo"),
		&Decision{Actions: []string{}, IsDone: true, Summary: "Found Jane's status: active"},
	)

	res, err := newEngine(t, reg, d, Options{}).Run(context.Background(), Request{Query: "find Jane's account status"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary != "Found Jane's status: active" {
		t.Errorf("summary = %q", res.Summary)
	}
	got, ok := res.Results.(map[string]any)
	if !ok || got["id"] != "jane" || got["status"] != "active" {
		t.Errorf("results = %#v", res.Results)
	}
	if res.Rounds != 2 {
		t.Errorf("rounds = %d, want 2", res.Rounds)
	}
	if !strings.HasPrefix(res.RunID, "run_") {
		t.Errorf("run id = %q", res.RunID)
	}

	first := d.conversations[0]
	if len(first) != 2 || first[0].Role != provider.RoleSystem || first[1].Role != provider.RoleUser {
		t.Fatalf("first conversation = %+v", first)
	}
	if first[1].Content != "find Jane's account status" {
		t.Errorf("user turn = %q", first[1].Content)
	}
	if !strings.Contains(first[0].Content, "- getUserInfo: returns getUserInfo") {
		t.Errorf("system turn lacks roster:\n%s", first[0].Content)
	}

	second := d.conversations[1]
	if len(second) != 3 {
		t.Fatalf("second conversation has %d turns, want 3", len(second))
	}
	if !strings.HasPrefix(second[2].Content, "Previous action results: ") || !strings.Contains(second[2].Content, `"status": "active"`) {
		t.Errorf("results turn = %q", second[2].Content)
	}
}

func TestEngineDispatchOrder(t *testing.T) {
	var (
		log      callLog
		inFlight int32
		overlap  int32
	)
	mk := func(id string) Action {
		return Action{
			Config: ActionConfig{ID: id},
			Run: func(context.Context, *ActionContext) (any, error) {
				if atomic.AddInt32(&inFlight, 1) > 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				time.Sleep(5 * time.Millisecond)
				log.add(id)
				atomic.AddInt32(&inFlight, -1)
				return id, nil
			},
		}
	}
	reg := MustRegistry(mk("a"), mk("b"), mk("c"))
	d := script(done("", "a", "b", "c"))

	res, err := newEngine(t, reg, d, Options{}).Run(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(log.get(), ","); got != "a,b,c" {
		t.Errorf("order = %s, want a,b,c", got)
	}
	if atomic.LoadInt32(&overlap) != 0 {
		t.Error("actions overlapped")
	}
	if res.Summary != "Task completed" {
		t.Errorf("summary = %q, want default", res.Summary)
	}
	if res.Results != "c" {
		t.Errorf("results = %v, want c", res.Results)
	}
}

func TestEngineUnknownActionShortCircuits(t *testing.T) {
	var log callLog
	reg := MustRegistry(returning("a", &log, 1), returning("c", &log, 3))
	d := script(next("a", "b", "c"))

	res, err := newEngine(t, reg, d, Options{}).Run(context.Background(), Request{Query: "q"})
	if res != nil {
		t.Errorf("partial result returned: %+v", res)
	}
	var dispErr *DispatchError
	if !errors.As(err, &dispErr) {
		t.Fatalf("err = %v, want *DispatchError", err)
	}
	if dispErr.ActionID != "b" || dispErr.Reason != ReasonUnknownAction || dispErr.Round != 1 {
		t.Errorf("dispatch error = %+v", dispErr)
	}
	if got := strings.Join(log.get(), ","); got != "a" {
		t.Errorf("invoked %s, want only a", got)
	}
	if ErrorKind(err) != KindDispatch {
		t.Errorf("kind = %s", ErrorKind(err))
	}
}

func TestEngineFoldsLastResult(t *testing.T) {
	reg := MustRegistry(
		returning("a", nil, map[string]any{"from": "a"}),
		returning("b", nil, map[string]any{"from": "b"}),
	)
	d := script(next("a", "b"), done("ok"))
	e := newEngine(t, reg, d, Options{})

	res, err := e.Run(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Results.(map[string]any)["from"] != "b" {
		t.Errorf("results = %v, want b's result", res.Results)
	}

	want := "Previous action results: " + formatResults(map[string]any{"from": "b"})
	turn := d.conversations[1][2].Content
	if turn != want {
		t.Errorf("results turn = %q, want %q", turn, want)
	}
}

func TestEngineResultsTurnIsNotAccumulated(t *testing.T) {
	reg := MustRegistry(returning("a", nil, "A"), returning("b", nil, "B"))
	d := script(next("a"), next("b"), done("ok"))

	if _, err := newEngine(t, reg, d, Options{}).Run(context.Background(), Request{Query: "q"}); err != nil {
		t.Fatal(err)
	}
	third := d.conversations[2]
	if len(third) != 3 || third[2].Content != `Previous action results: "B"` {
		t.Errorf("third conversation = %+v", third)
	}
}

func TestEngineHistoryPolicy(t *testing.T) {
	reg := MustRegistry(returning("a", nil, "A"), returning("b", nil, "B"))
	d := script(next("a"), next("b"), done("ok"))

	res, err := newEngine(t, reg, d, Options{ResultPolicy: ResultPolicyHistory}).Run(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatal(err)
	}
	hist, ok := res.Results.([]HistoryEntry)
	if !ok || len(hist) != 2 {
		t.Fatalf("results = %#v", res.Results)
	}
	if hist[0] != (HistoryEntry{Action: "a", Round: 1, Result: "A"}) || hist[1] != (HistoryEntry{Action: "b", Round: 2, Result: "B"}) {
		t.Errorf("history = %+v", hist)
	}
	if !strings.Contains(d.conversations[2][2].Content, `"action": "a"`) {
		t.Errorf("history turn should include earlier results: %s", d.conversations[2][2].Content)
	}
}

func TestEngineNilResultSkipsResultsTurn(t *testing.T) {
	reg := MustRegistry(returning("a", nil, nil))
	d := script(next("a"), done("ok"))

	res, err := newEngine(t, reg, d, Options{}).Run(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if len(d.conversations[1]) != 2 {
		t.Errorf("expected no results turn, got %+v", d.conversations[1])
	}
	if res.Results != nil {
		t.Errorf("results = %v", res.Results)
	}
}

func TestEngineTerminatesWithinRounds(t *testing.T) {
	for n := 1; n <= 5; n++ {
		t.Run(fmt.Sprintf("rounds=%d", n), func(t *testing.T) {
			reg := MustRegistry(returning("a", nil, 1))
			decisions := make([]*Decision, 0, n)
			for i := 1; i < n; i++ {
				decisions = append(decisions, next("a"))
			}
			decisions = append(decisions, done("fin"))
			d := script(decisions...)

			res, err := newEngine(t, reg, d, Options{MaxRounds: n}).Run(context.Background(), Request{Query: "q"})
			if err != nil {
				t.Fatal(err)
			}
			if res.Rounds != n || d.calls() != n {
				t.Errorf("rounds = %d, decider calls = %d, want %d", res.Rounds, d.calls(), n)
			}
		})
	}
}

func TestEngineLoopExceeded(t *testing.T) {
	var count int32
	reg := MustRegistry(Action{
		Config: ActionConfig{ID: "spin"},
		Run: func(context.Context, *ActionContext) (any, error) {
			return atomic.AddInt32(&count, 1), nil
		},
	})
	d := script(next("spin"))

	_, err := newEngine(t, reg, d, Options{MaxRounds: 4}).Run(context.Background(), Request{Query: "q"})
	var loopErr *LoopExceededError
	if !errors.As(err, &loopErr) {
		t.Fatalf("err = %v, want *LoopExceededError", err)
	}
	if loopErr.Rounds != 4 || loopErr.Limit != LimitMaxRounds {
		t.Errorf("loop error = %+v", loopErr)
	}
	if loopErr.LastDecision == nil || loopErr.LastDecision.Actions[0] != "spin" {
		t.Errorf("last decision = %+v", loopErr.LastDecision)
	}
	if d.calls() != 4 || atomic.LoadInt32(&count) != 4 {
		t.Errorf("decider calls = %d, action runs = %d", d.calls(), count)
	}
	if ErrorKind(err) != KindLoopExceeded {
		t.Errorf("kind = %s", ErrorKind(err))
	}
}

func TestEngineDefaultMaxRounds(t *testing.T) {
	reg := MustRegistry(returning("a", nil, 1))
	d := script(next("a"))

	_, err := newEngine(t, reg, d, Options{}).Run(context.Background(), Request{Query: "q"})
	var loopErr *LoopExceededError
	if !errors.As(err, &loopErr) || loopErr.Rounds != DefaultMaxRounds {
		t.Fatalf("err = %v", err)
	}
}

func TestEngineDeadline(t *testing.T) {
	reg := MustRegistry(Action{
		Config: ActionConfig{ID: "slow"},
		Run: func(context.Context, *ActionContext) (any, error) {
			time.Sleep(20 * time.Millisecond)
			return "x", nil
		},
	})
	d := script(next("slow"))

	_, err := newEngine(t, reg, d, Options{MaxRounds: 1000, Deadline: 50 * time.Millisecond}).Run(context.Background(), Request{Query: "q"})
	var loopErr *LoopExceededError
	if !errors.As(err, &loopErr) || loopErr.Limit != LimitDeadline {
		t.Fatalf("err = %v, want deadline LoopExceededError", err)
	}
	if loopErr.Rounds < 1 || loopErr.Rounds > 10 {
		t.Errorf("rounds = %d", loopErr.Rounds)
	}
}

func flaky(id string, retries, failures int, attempts *int32) Action {
	return Action{
		Config: ActionConfig{ID: id, Retries: retries},
		Run: func(_ context.Context, actx *ActionContext) (any, error) {
			n := atomic.AddInt32(attempts, 1)
			if int(n) != actx.Attempt {
				return nil, fmt.Errorf("attempt = %d, want %d", actx.Attempt, n)
			}
			if int(n) <= failures {
				return nil, fmt.Errorf("transient failure %d", n)
			}
			return "ok", nil
		},
	}
}

func TestEngineRetryBudgetRecovers(t *testing.T) {
	var attempts int32
	reg := MustRegistry(flaky("flaky", 2, 2, &attempts))
	d := script(done("", "flaky"))

	var retries int32
	obs := ObserverFunc(func(_ context.Context, ev Event) {
		if ev.Kind == EventActionRetry {
			atomic.AddInt32(&retries, 1)
		}
	})
	res, err := newEngine(t, reg, d, Options{}).Run(context.Background(), Request{Query: "q"}, obs)
	if err != nil {
		t.Fatal(err)
	}
	if res.Results != "ok" {
		t.Errorf("results = %v", res.Results)
	}
	if attempts != 3 || retries != 2 {
		t.Errorf("attempts = %d, retry events = %d", attempts, retries)
	}
}

func TestEngineRetryBudgetExhausted(t *testing.T) {
	var attempts int32
	reg := MustRegistry(flaky("flaky", 2, 3, &attempts))
	d := script(done("", "flaky"))

	_, err := newEngine(t, reg, d, Options{RetryBackoff: time.Millisecond}).Run(context.Background(), Request{Query: "q"})
	var actErr *ActionError
	if !errors.As(err, &actErr) {
		t.Fatalf("err = %v, want *ActionError", err)
	}
	if actErr.Attempts != 3 || attempts != 3 {
		t.Errorf("ActionError.Attempts = %d, actual attempts = %d, want 3", actErr.Attempts, attempts)
	}
	if !strings.Contains(actErr.Cause.Error(), "transient failure 3") {
		t.Errorf("cause = %v", actErr.Cause)
	}
}

func TestEngineNoRetryByDefault(t *testing.T) {
	var attempts int32
	reg := MustRegistry(flaky("once", 0, 1, &attempts))
	d := script(done("", "once"))

	_, err := newEngine(t, reg, d, Options{}).Run(context.Background(), Request{Query: "q"})
	if ErrorKind(err) != KindAction || attempts != 1 {
		t.Errorf("err = %v, attempts = %d", err, attempts)
	}
}

func TestEnginePanickingActionFails(t *testing.T) {
	reg := MustRegistry(Action{
		Config: ActionConfig{ID: "boom"},
		Run:    func(context.Context, *ActionContext) (any, error) { panic("kaboom") },
	})
	_, err := newEngine(t, reg, script(next("boom")), Options{}).Run(context.Background(), Request{Query: "q"})
	if ErrorKind(err) != KindAction || !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("err = %v", err)
	}
}

func TestEngineUnmetDependency(t *testing.T) {
	var log callLog
	reg := MustRegistry(returning("getUserInfo", &log, "jane"), func() Action {
		a := returning("sendEmail", &log, "sent")
		a.Config.DependsOn = []string{"getUserInfo"}
		return a
	}())

	t.Run("unmet", func(t *testing.T) {
		d := script(next("sendEmail"))
		_, err := newEngine(t, reg, d, Options{}).Run(context.Background(), Request{Query: "q"})
		var dispErr *DispatchError
		if !errors.As(err, &dispErr) || dispErr.Reason != ReasonUnmetDependency {
			t.Fatalf("err = %v", err)
		}
		if len(dispErr.Missing) != 1 || dispErr.Missing[0] != "getUserInfo" {
			t.Errorf("missing = %v", dispErr.Missing)
		}
		if len(log.get()) != 0 {
			t.Errorf("invoked %v", log.get())
		}
	})

	t.Run("satisfied in an earlier round", func(t *testing.T) {
		var seen map[string]any
		dep := MustRegistry(returning("getUserInfo", nil, "jane"), Action{
			Config: ActionConfig{ID: "sendEmail", DependsOn: []string{"getUserInfo"}},
			Run: func(_ context.Context, actx *ActionContext) (any, error) {
				seen = actx.Results
				return "sent", nil
			},
		})
		d := script(next("getUserInfo"), done("mailed", "sendEmail"))
		res, err := newEngine(t, dep, d, Options{}).Run(context.Background(), Request{Query: "q"})
		if err != nil {
			t.Fatal(err)
		}
		if res.Summary != "mailed" || seen["getUserInfo"] != "jane" {
			t.Errorf("summary = %q, dependency results = %v", res.Summary, seen)
		}
	})
}

func TestEngineActionContext(t *testing.T) {
	var got *ActionContext
	reg := MustRegistry(Action{
		Config: ActionConfig{ID: "inspect"},
		Run: func(_ context.Context, actx *ActionContext) (any, error) {
			got = actx
			actx.Input["query"] = "mutated"
			return nil, nil
		},
	}, act("other"))
	d := script(next("inspect"), done("ok", "inspect"))

	e := newEngine(t, reg, d, Options{NewRunID: func() string { return "run-fixed" }})
	_, err := e.Run(context.Background(), Request{Query: "original", Input: map[string]any{"userId": "jane"}})
	if err != nil {
		t.Fatal(err)
	}
	if got.Query() != "mutated" {
		t.Fatal("sanity: last context should be the mutated copy")
	}
	if got.RunID != "run-fixed" || got.Round != 2 || got.Attempt != 1 {
		t.Errorf("context = run %q round %d attempt %d", got.RunID, got.Round, got.Attempt)
	}
	if got.Input["userId"] != "jane" {
		t.Errorf("input = %v", got.Input)
	}
	if got.Actions.Len() != 2 {
		t.Errorf("available actions = %v", got.Actions.IDs())
	}
	if d.conversations[1][1].Content != "original" {
		t.Error("action mutated the run's query")
	}
}

func TestEngineDecisionError(t *testing.T) {
	cause := errors.New("backend down")
	d := DeciderFunc(func(context.Context, []provider.Message) (*Decision, error) { return nil, cause })
	reg := MustRegistry(act("a"))

	_, err := newEngine(t, reg, d, Options{}).Run(context.Background(), Request{Query: "q"})
	var decErr *DecisionError
	if !errors.As(err, &decErr) || decErr.Round != 1 || !errors.Is(err, cause) {
		t.Fatalf("err = %v", err)
	}
}

func TestEngineNilDecision(t *testing.T) {
	d := DeciderFunc(func(context.Context, []provider.Message) (*Decision, error) { return nil, nil })
	_, err := newEngine(t, MustRegistry(act("a")), d, Options{}).Run(context.Background(), Request{Query: "q"})
	if !errors.Is(err, ErrEmptyDecision) {
		t.Errorf("err = %v", err)
	}
}

func TestEngineWithLLMDecider(t *testing.T) {
	reg := MustRegistry(returning("getUserInfo", nil, map[string]any{"id": "jane"}))
	llm := &fakeLLM{responses: []string{
		`{"actions":["getUserInfo"],"isDone":false}`,
		"```json\n{\"actions\":[],\"isDone\":true,\"summary\":\"done\"}\n```",
	}}
	e := newEngine(t, reg, NewLLMDecider(llm, reg, LLMDeciderConfig{Model: "m"}), Options{Instructions: "be terse"})

	res, err := e.Run(context.Background(), Request{Query: "find jane"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary != "done" {
		t.Errorf("summary = %q", res.Summary)
	}
	if llm.requests[0].Messages[0].Content != e.SystemPrompt() {
		t.Error("decider should reuse the engine's system turn")
	}
	if len(llm.requests[1].Messages) != 3 {
		t.Errorf("second request has %d messages", len(llm.requests[1].Messages))
	}
}

func TestEngineMalformedDecisionFromLLM(t *testing.T) {
	reg := MustRegistry(act("a"))
	llm := &fakeLLM{responses: []string{"not json"}}
	e := newEngine(t, reg, NewLLMDecider(llm, reg, LLMDeciderConfig{}), Options{})

	_, err := e.Run(context.Background(), Request{Query: "q"})
	if ErrorKind(err) != KindDecision || !errors.Is(err, ErrInvalidDecision) {
		t.Errorf("err = %v", err)
	}
}

func TestEngineCancellationWaitsForInFlightAction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var finished, secondRan int32
	reg := MustRegistry(
		Action{
			Config: ActionConfig{ID: "slow"},
			Run: func(context.Context, *ActionContext) (any, error) {
				cancel()
				time.Sleep(20 * time.Millisecond)
				atomic.StoreInt32(&finished, 1)
				return "slow done", nil
			},
		},
		Action{
			Config: ActionConfig{ID: "after"},
			Run: func(context.Context, *ActionContext) (any, error) {
				atomic.StoreInt32(&secondRan, 1)
				return nil, nil
			},
		},
	)
	d := script(next("slow", "after"))

	_, err := newEngine(t, reg, d, Options{}).Run(ctx, Request{Query: "q"})
	var canErr *CanceledError
	if !errors.As(err, &canErr) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want *CanceledError", err)
	}
	if atomic.LoadInt32(&finished) != 1 {
		t.Error("in-flight action was abandoned")
	}
	if atomic.LoadInt32(&secondRan) != 0 {
		t.Error("action scheduled after cancellation")
	}
	if ErrorKind(err) != KindCanceled {
		t.Errorf("kind = %s", ErrorKind(err))
	}
}

func TestEngineActionTimeoutIsCooperative(t *testing.T) {
	reg := MustRegistry(Action{
		Config: ActionConfig{ID: "wait", Retries: 1},
		Run: func(ctx context.Context, _ *ActionContext) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	guard := NewGuard()
	guard.ActionTimeout = 10 * time.Millisecond

	_, err := newEngine(t, reg, script(next("wait")), Options{Guard: guard}).Run(context.Background(), Request{Query: "q"})
	var actErr *ActionError
	if !errors.As(err, &actErr) || actErr.Attempts != 2 || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestEngineEvents(t *testing.T) {
	reg := MustRegistry(returning("a", nil, "A"))
	d := script(next("a"), done("fin"))

	var kinds []string
	obs := ObserverFunc(func(_ context.Context, ev Event) {
		if ev.RunID != "r1" {
			t.Errorf("event run id = %q", ev.RunID)
		}
		kinds = append(kinds, fmt.Sprintf("%s@%d", ev.Kind, ev.Round))
	})
	e := newEngine(t, reg, d, Options{Observers: []Observer{obs}, NewRunID: func() string { return "r1" }})
	if _, err := e.Run(context.Background(), Request{Query: "q"}); err != nil {
		t.Fatal(err)
	}
	want := "run_started@0,decision@1,action_started@1,action_completed@1,decision@2,run_completed@2"
	if got := strings.Join(kinds, ","); got != want {
		t.Errorf("events = %s\nwant     %s", got, want)
	}
}

func TestEngineConcurrentRunsAreIsolated(t *testing.T) {
	reg := MustRegistry(Action{
		Config: ActionConfig{ID: "echo"},
		Run: func(_ context.Context, actx *ActionContext) (any, error) {
			return actx.Query(), nil
		},
	})
	d := DeciderFunc(func(_ context.Context, conv []provider.Message) (*Decision, error) {
		if len(conv) == 2 {
			return next("echo"), nil
		}
		return &Decision{Actions: []string{}, IsDone: true, Summary: conv[1].Content}, nil
	})
	e := newEngine(t, reg, d, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := fmt.Sprintf("query-%d", i)
			res, err := e.Run(context.Background(), Request{Query: q})
			if err != nil {
				t.Error(err)
				return
			}
			if res.Summary != q || res.Results != q {
				t.Errorf("run %d got summary %q results %v", i, res.Summary, res.Results)
			}
		}(i)
	}
	wg.Wait()
}

func TestNewEngineValidation(t *testing.T) {
	reg := MustRegistry(act("a"))
	d := script(done("x"))
	if _, err := NewEngine(nil, d, Options{}); err == nil {
		t.Error("nil registry accepted")
	}
	if _, err := NewEngine(reg, nil, Options{}); err == nil {
		t.Error("nil decider accepted")
	}
	if _, err := NewEngine(reg, d, Options{MaxRounds: -1}); err == nil {
		t.Error("negative max rounds accepted")
	}
	if _, err := NewEngine(reg, d, Options{ResultPolicy: "all"}); err == nil {
		t.Error("unknown result policy accepted")
	}
}
