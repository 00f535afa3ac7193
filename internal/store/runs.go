package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const selectRunCols = `id, loop_name, status, started_at, finished_at, findings_count, error_message`

// CreateRun inserts a new run. Status defaults to running.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *LoopRun) error {
	if run.ID == "" {
		run.ID = NewID()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loop_runs (id, loop_name, status, started_at, finished_at, findings_count, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.LoopName,
		string(run.Status),
		formatTime(run.StartedAt),
		formatTimePtr(run.FinishedAt),
		run.FindingsCount,
		nullString(run.ErrorMessage),
	)
	if err != nil {
		return goerr.Wrap(err, "insert loop run", goerr.V("loop", run.LoopName))
	}
	return nil
}

// FinishRun writes the terminal state of a run. It only succeeds once per run.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *LoopRun) error {
	if run.Status == RunStatusRunning || !run.Status.Valid() {
		return goerr.New("finish requires a terminal status", goerr.V("status", run.Status))
	}
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE loop_runs
		SET status = ?, finished_at = ?, findings_count = ?, error_message = ?
		WHERE id = ? AND status = ?`,
		string(run.Status),
		formatTimePtr(run.FinishedAt),
		run.FindingsCount,
		nullString(run.ErrorMessage),
		run.ID,
		string(RunStatusRunning),
	)
	if err != nil {
		return goerr.Wrap(err, "update loop run", goerr.V("run_id", run.ID))
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrRunNotRunning
	}
	return nil
}

func scanRun(row scanner) (*LoopRun, error) {
	var r LoopRun
	var status, startedAt string
	var finishedAt, errorMessage sql.NullString

	if err := row.Scan(
		&r.ID,
		&r.LoopName,
		&status,
		&startedAt,
		&finishedAt,
		&r.FindingsCount,
		&errorMessage,
	); err != nil {
		return nil, err
	}

	r.Status = RunStatus(status)
	var err error
	r.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	r.FinishedAt, err = parseTimePtr(finishedAt)
	if err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	if errorMessage.Valid {
		r.ErrorMessage = errorMessage.String
	}
	return &r, nil
}

// GetRun retrieves a single run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*LoopRun, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectRunCols+" FROM loop_runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, goerr.Wrap(err, "get loop run", goerr.V("run_id", id))
	}
	return run, nil
}

func runWhere(q RunQuery) *where {
	w := &where{}
	if q.LoopName != "" {
		w.add("loop_name = ?", q.LoopName)
	}
	if q.Status != "" {
		w.add("status = ?", string(q.Status))
	}
	if q.From != nil {
		w.add("started_at >= ?", formatTime(*q.From))
	}
	if q.To != nil {
		w.add("started_at <= ?", formatTime(*q.To))
	}
	return w
}

// ListRuns returns runs matching q ordered by started_at descending, along with
// the total number of matches ignoring Limit/Offset.
func (s *SQLiteStore) ListRuns(ctx context.Context, q RunQuery) ([]*LoopRun, int, error) {
	w := runWhere(q)

	total, err := s.count(ctx, "SELECT COUNT(*) FROM loop_runs"+w.String(), w.args...)
	if err != nil {
		return nil, 0, goerr.Wrap(err, "count loop runs")
	}

	query, args := paginate(
		"SELECT "+selectRunCols+" FROM loop_runs"+w.String()+" ORDER BY started_at DESC, id DESC",
		w.args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, goerr.Wrap(err, "list loop runs")
	}
	defer rows.Close()

	runs := make([]*LoopRun, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, r)
	}
	return runs, total, rows.Err()
}

// LatestRun returns the most recently started run of a loop, or nil if it never ran.
func (s *SQLiteStore) LatestRun(ctx context.Context, loopName string) (*LoopRun, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectRunCols+" FROM loop_runs WHERE loop_name = ? ORDER BY started_at DESC, id DESC LIMIT 1",
		loopName)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "get latest loop run", goerr.V("loop", loopName))
	}
	return run, nil
}

// CountRunsSince counts runs started at or after since.
func (s *SQLiteStore) CountRunsSince(ctx context.Context, since time.Time) (int, error) {
	n, err := s.count(ctx, "SELECT COUNT(*) FROM loop_runs WHERE started_at >= ?", formatTime(since))
	if err != nil {
		return 0, goerr.Wrap(err, "count loop runs")
	}
	return n, nil
}

// MarkStaleRunsAsFailed fails every run still marked running. It is called on
// startup, before any loop executes, to close runs interrupted by a restart.
func (s *SQLiteStore) MarkStaleRunsAsFailed(ctx context.Context, reason string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE loop_runs
		SET status = ?, error_message = ?, finished_at = ?
		WHERE status = ?`,
		string(RunStatusFailed), reason, formatTime(time.Now()), string(RunStatusRunning))
	if err != nil {
		return 0, goerr.Wrap(err, "mark stale loop runs")
	}
	return result.RowsAffected()
}
