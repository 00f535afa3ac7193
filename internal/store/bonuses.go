package store

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const selectBonusCols = `id, recipient, amount, status, due_on, created_at`

// CreateBonus inserts a bonus and sets its ID.
func (s *SQLiteStore) CreateBonus(ctx context.Context, b *Bonus) error {
	if b.Status == "" {
		b.Status = BonusUnpaid
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO bonuses (recipient, amount, status, due_on, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		b.Recipient, b.Amount, string(b.Status), FormatDate(b.DueOn), formatTime(b.CreatedAt))
	if err != nil {
		return goerr.Wrap(err, "insert bonus", goerr.V("recipient", b.Recipient))
	}
	b.ID, err = result.LastInsertId()
	return err
}

func (s *SQLiteStore) queryBonuses(ctx context.Context, query string, args ...any) ([]*Bonus, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "list bonuses")
	}
	defer rows.Close()

	bonuses := make([]*Bonus, 0)
	for rows.Next() {
		var b Bonus
		var status, dueOn, createdAt string
		if err := rows.Scan(&b.ID, &b.Recipient, &b.Amount, &status, &dueOn, &createdAt); err != nil {
			return nil, err
		}
		if b.DueOn, err = ParseDate(dueOn); err != nil {
			return nil, fmt.Errorf("parse due_on: %w", err)
		}
		if b.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		b.Status = BonusStatus(status)
		bonuses = append(bonuses, &b)
	}
	return bonuses, rows.Err()
}

// ListBonuses returns all bonuses ordered by due date.
func (s *SQLiteStore) ListBonuses(ctx context.Context) ([]*Bonus, error) {
	return s.queryBonuses(ctx, "SELECT "+selectBonusCols+" FROM bonuses ORDER BY due_on, id")
}

// ListOpenBonusesDueBy returns unpaid or partially paid bonuses due on or before day.
func (s *SQLiteStore) ListOpenBonusesDueBy(ctx context.Context, day time.Time) ([]*Bonus, error) {
	return s.queryBonuses(ctx,
		"SELECT "+selectBonusCols+" FROM bonuses WHERE status IN (?, ?) AND due_on <= ? ORDER BY due_on, id",
		string(BonusUnpaid), string(BonusPartial), FormatDate(day))
}
