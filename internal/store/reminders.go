package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const selectReminderCols = `id, target_type, target_id, remind_at, channel, message, recipient, status,
	sent_at, error, created_by, created_at`

// InsertReminder inserts a pending reminder and sets its ID. It returns false
// without error when a reminder for the same target, channel and time exists.
func (s *SQLiteStore) InsertReminder(ctx context.Context, r *Reminder) (bool, error) {
	if r.Status == "" {
		r.Status = ReminderPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (
			target_type, target_id, remind_at, channel, message, recipient, status,
			sent_at, error, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		r.TargetType,
		r.TargetID,
		formatTime(r.RemindAt),
		r.Channel,
		r.Message,
		r.Recipient,
		string(r.Status),
		formatTimePtr(r.SentAt),
		nullString(r.Error),
		r.CreatedBy,
		formatTime(r.CreatedAt),
	)
	if err != nil {
		return false, goerr.Wrap(err, "insert reminder",
			goerr.V("target_type", r.TargetType), goerr.V("target_id", r.TargetID))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return false, nil
	}
	r.ID, err = result.LastInsertId()
	return true, err
}

func scanReminder(row scanner) (*Reminder, error) {
	var r Reminder
	var remindAt, status, createdAt string
	var sentAt, errText sql.NullString

	if err := row.Scan(
		&r.ID,
		&r.TargetType,
		&r.TargetID,
		&remindAt,
		&r.Channel,
		&r.Message,
		&r.Recipient,
		&status,
		&sentAt,
		&errText,
		&r.CreatedBy,
		&createdAt,
	); err != nil {
		return nil, err
	}

	r.Status = ReminderStatus(status)
	if errText.Valid {
		r.Error = errText.String
	}

	var err error
	if r.RemindAt, err = parseTime(remindAt); err != nil {
		return nil, fmt.Errorf("parse remind_at: %w", err)
	}
	if r.SentAt, err = parseTimePtr(sentAt); err != nil {
		return nil, fmt.Errorf("parse sent_at: %w", err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &r, nil
}

func (s *SQLiteStore) queryReminders(ctx context.Context, query string, args ...any) ([]*Reminder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "list reminders")
	}
	defer rows.Close()

	reminders := make([]*Reminder, 0)
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// GetReminder retrieves a reminder by ID.
func (s *SQLiteStore) GetReminder(ctx context.Context, id int64) (*Reminder, error) {
	r, err := scanReminder(s.db.QueryRowContext(ctx, "SELECT "+selectReminderCols+" FROM reminders WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, goerr.Wrap(err, "get reminder", goerr.V("reminder_id", id))
	}
	return r, nil
}

// ListReminders returns reminders matching q ordered by remind_at.
func (s *SQLiteStore) ListReminders(ctx context.Context, q ReminderQuery) ([]*Reminder, error) {
	w := &where{}
	if q.Status != "" {
		w.add("status = ?", string(q.Status))
	}
	if q.TargetType != "" {
		w.add("target_type = ?", q.TargetType)
	}
	if q.TargetID != "" {
		w.add("target_id = ?", q.TargetID)
	}
	query, args := paginate(
		"SELECT "+selectReminderCols+" FROM reminders"+w.String()+" ORDER BY remind_at, id",
		w.args, q.Limit, 0)
	return s.queryReminders(ctx, query, args...)
}

// ListDueReminders returns up to limit pending reminders with remind_at at or
// before now, oldest first.
func (s *SQLiteStore) ListDueReminders(ctx context.Context, now time.Time, limit int) ([]*Reminder, error) {
	query, args := paginate(
		"SELECT "+selectReminderCols+" FROM reminders WHERE status = ? AND remind_at <= ? ORDER BY remind_at, id",
		[]any{string(ReminderPending), formatTime(now)}, limit, 0)
	return s.queryReminders(ctx, query, args...)
}

// MarkReminderSent moves a pending reminder to sent.
func (s *SQLiteStore) MarkReminderSent(ctx context.Context, id int64, at time.Time) error {
	return s.transitionReminder(ctx, id, ReminderSent, formatTimePtr(&at), sql.NullString{})
}

// MarkReminderFailed moves a pending reminder to failed with the cause.
func (s *SQLiteStore) MarkReminderFailed(ctx context.Context, id int64, cause string) error {
	return s.transitionReminder(ctx, id, ReminderFailed, sql.NullString{}, nullString(cause))
}

func (s *SQLiteStore) transitionReminder(ctx context.Context, id int64, to ReminderStatus, sentAt, errText sql.NullString) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET status = ?, sent_at = ?, error = ?
		WHERE id = ? AND status = ?`,
		string(to), sentAt, errText, id, string(ReminderPending))
	if err != nil {
		return goerr.Wrap(err, "update reminder", goerr.V("reminder_id", id), goerr.V("status", to))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return goerr.Wrap(ErrNotFound, "no pending reminder", goerr.V("reminder_id", id))
	}
	return nil
}
