// Package runstore persists run records: the request, the outcome and the
// event trace of every engine run.
package runstore

import (
	"context"
	"errors"
	"time"

	"github.com/spinup/spinup/internal/orchestrator"
)

var ErrNotFound = errors.New("run not found")

type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

const DefaultListLimit = 50

// Run is the stored record of one engine run.
type Run struct {
	ID        string               `json:"id"`
	Query     string               `json:"query"`
	Input     map[string]any       `json:"input,omitempty"`
	Status    Status               `json:"status"`
	Summary   string               `json:"summary,omitempty"`
	Results   any                  `json:"results"`
	ErrorKind orchestrator.Kind    `json:"errorKind,omitempty"`
	Error     string               `json:"error,omitempty"`
	Rounds    int                  `json:"rounds"`
	Trace     []orchestrator.Event `json:"trace,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// Store saves and loads runs. Save is an upsert keyed by Run.ID.
type Store interface {
	Save(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	// List returns the most recent runs first. limit <= 0 means DefaultListLimit.
	List(ctx context.Context, limit int) ([]*Run, error)
	Close() error
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
