package runstore

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/spinup/spinup/internal/orchestrator"
)

// Recorder is an orchestrator.Observer that writes every run to a Store: once
// when it starts and once when it reaches DONE or FAILED, with the full
// event trace.
type Recorder struct {
	store Store
	log   zerolog.Logger

	mu     sync.Mutex
	active map[string]*Run
}

func NewRecorder(store Store, log *zerolog.Logger) *Recorder {
	l := zerolog.Nop()
	if log != nil {
		l = log.With().Str("component", "runstore").Logger()
	}
	return &Recorder{store: store, log: l, active: make(map[string]*Run)}
}

func (r *Recorder) OnEvent(ctx context.Context, ev orchestrator.Event) {
	r.mu.Lock()
	run, ok := r.active[ev.RunID]
	if !ok {
		if ev.Kind != orchestrator.EventRunStarted {
			r.mu.Unlock()
			return
		}
		run = &Run{
			ID:        ev.RunID,
			Query:     ev.Query,
			Input:     ev.Input,
			Status:    StatusRunning,
			CreatedAt: ev.Time,
		}
		r.active[ev.RunID] = run
	}

	run.UpdatedAt = ev.Time
	run.Rounds = ev.Round
	run.Trace = append(run.Trace, ev)

	persist := false
	switch ev.Kind {
	case orchestrator.EventRunStarted:
		persist = true
	case orchestrator.EventRunCompleted:
		run.Status = StatusDone
		run.Summary = ev.Summary
		run.Results = ev.Result
		persist = true
		delete(r.active, ev.RunID)
	case orchestrator.EventRunFailed:
		run.Status = StatusFailed
		run.ErrorKind = ev.ErrKind
		run.Error = ev.Error
		persist = true
		delete(r.active, ev.RunID)
	}
	var snapshot Run
	if persist {
		snapshot = *run
		snapshot.Trace = append([]orchestrator.Event(nil), run.Trace...)
	}
	r.mu.Unlock()

	if !persist {
		return
	}
	// The run may have failed because ctx was canceled; the record must still
	// be written.
	if err := r.store.Save(context.WithoutCancel(ctx), &snapshot); err != nil {
		r.log.Error().Err(err).Str("run_id", ev.RunID).Str("event", string(ev.Kind)).Msg("save run")
	}
}
