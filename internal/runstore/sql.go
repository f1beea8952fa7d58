package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spinup/spinup/internal/orchestrator"
)

// SQLStore stores runs in the runs table of a SQLite or Postgres database.
type SQLStore struct {
	db *DB
}

func NewSQLStore(db *DB) *SQLStore {
	return &SQLStore{db: db}
}

const upsertRun = `INSERT INTO runs
	(id, query, input, status, summary, results, error_kind, error, rounds, trace, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
	status = excluded.status, summary = excluded.summary, results = excluded.results,
	error_kind = excluded.error_kind, error = excluded.error, rounds = excluded.rounds,
	trace = excluded.trace, updated_at = excluded.updated_at`

const selectRun = `SELECT id, query, input, status, summary, results, error_kind, error, rounds, trace, created_at, updated_at FROM runs`

func (s *SQLStore) Save(ctx context.Context, run *Run) error {
	input, err := marshalOr(run.Input, "{}")
	if err != nil {
		return fmt.Errorf("run store: marshal input: %w", err)
	}
	results, err := marshalOr(run.Results, "null")
	if err != nil {
		return fmt.Errorf("run store: marshal results: %w", err)
	}
	trace, err := marshalOr(run.Trace, "[]")
	if err != nil {
		return fmt.Errorf("run store: marshal trace: %w", err)
	}
	updated := run.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err = s.db.SQLDB().ExecContext(ctx, s.db.rebind(upsertRun),
		run.ID, run.Query, input, string(run.Status), run.Summary, results,
		string(run.ErrorKind), run.Error, run.Rounds, trace,
		formatTime(run.CreatedAt), formatTime(updated))
	if err != nil {
		return fmt.Errorf("run store: save %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.SQLDB().QueryRowContext(ctx, s.db.rebind(selectRun+" WHERE id = ?"), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("run store: get %s: %w", id, err)
	}
	return run, nil
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := s.db.SQLDB().QueryContext(ctx,
		s.db.rebind(selectRun+" ORDER BY created_at DESC, id DESC LIMIT ?"), listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("run store: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("run store: list: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run                   Run
		input, results, trace string
		status, errKind       string
		createdAt, updatedAt  string
	)
	if err := sc.Scan(&run.ID, &run.Query, &input, &status, &run.Summary, &results,
		&errKind, &run.Error, &run.Rounds, &trace, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	run.Status = Status(status)
	run.ErrorKind = orchestrator.Kind(errKind)
	if err := json.Unmarshal([]byte(input), &run.Input); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if err := json.Unmarshal([]byte(results), &run.Results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if err := json.Unmarshal([]byte(trace), &run.Trace); err != nil {
		return nil, fmt.Errorf("decode trace: %w", err)
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	run.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &run, nil
}

func marshalOr(v any, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

// formatTime uses a fixed-width layout so created_at sorts lexically.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
