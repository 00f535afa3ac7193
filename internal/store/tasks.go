package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const selectTaskCols = `id, title, description, priority, is_critical, status, archived, due_at,
	target_type, target_id, assignee_id, created_by, created_at`

// InsertTask inserts a task and sets its ID. It returns false without error when
// a task with the same title already exists for the same target.
func (s *SQLiteStore) InsertTask(ctx context.Context, t *Task) (bool, error) {
	if t.Status == "" {
		t.Status = TaskOpen
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			title, description, priority, is_critical, status, archived, due_at,
			target_type, target_id, assignee_id, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		t.Title,
		t.Description,
		string(t.Priority),
		boolInt(t.IsCritical),
		string(t.Status),
		boolInt(t.Archived),
		formatTimePtr(t.DueAt),
		t.TargetType,
		t.TargetID,
		t.AssigneeID,
		t.CreatedBy,
		formatTime(t.CreatedAt),
	)
	if err != nil {
		return false, goerr.Wrap(err, "insert task", goerr.V("title", t.Title))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return false, nil
	}
	t.ID, err = result.LastInsertId()
	return true, err
}

func scanTask(row scanner) (*Task, error) {
	var t Task
	var priority, status, createdAt string
	var critical, archived int
	var dueAt sql.NullString

	if err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&priority,
		&critical,
		&status,
		&archived,
		&dueAt,
		&t.TargetType,
		&t.TargetID,
		&t.AssigneeID,
		&t.CreatedBy,
		&createdAt,
	); err != nil {
		return nil, err
	}

	t.Priority = Priority(priority)
	t.Status = TaskStatus(status)
	t.IsCritical = critical != 0
	t.Archived = archived != 0

	var err error
	if t.DueAt, err = parseTimePtr(dueAt); err != nil {
		return nil, fmt.Errorf("parse due_at: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &t, nil
}

func (s *SQLiteStore) queryTasks(ctx context.Context, query string, args ...any) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "list tasks")
	}
	defer rows.Close()

	tasks := make([]*Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, id int64) (*Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, "SELECT "+selectTaskCols+" FROM tasks WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, goerr.Wrap(err, "get task", goerr.V("task_id", id))
	}
	return t, nil
}

// ListTasks returns all tasks, newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*Task, error) {
	return s.queryTasks(ctx, "SELECT "+selectTaskCols+" FROM tasks ORDER BY created_at DESC, id DESC")
}

// ListActiveTasksDueBy returns open or in-progress, non-archived tasks with a
// due time at or before by, earliest first.
func (s *SQLiteStore) ListActiveTasksDueBy(ctx context.Context, by time.Time) ([]*Task, error) {
	return s.queryTasks(ctx,
		"SELECT "+selectTaskCols+` FROM tasks
		WHERE status IN (?, ?) AND archived = 0 AND due_at IS NOT NULL AND due_at <= ?
		ORDER BY due_at, id`,
		string(TaskOpen), string(TaskInProgress), formatTime(by))
}
