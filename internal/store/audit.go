package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// InsertAudit appends an audit entry.
func (s *SQLiteStore) InsertAudit(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var details sql.NullString
	if len(e.Details) > 0 {
		data, err := json.Marshal(e.Details)
		if err != nil {
			return goerr.Wrap(err, "marshal audit details")
		}
		details = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor, object_type, object_id, action_type, summary, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Actor, e.ObjectType, e.ObjectID, e.ActionType, e.Summary, details, formatTime(e.CreatedAt))
	if err != nil {
		return goerr.Wrap(err, "insert audit entry", goerr.V("action_type", e.ActionType))
	}
	return nil
}

// ListAudit returns audit entries matching q, newest first.
func (s *SQLiteStore) ListAudit(ctx context.Context, q AuditQuery) ([]*AuditEntry, error) {
	w := &where{}
	if q.Actor != "" {
		w.add("actor = ?", q.Actor)
	}
	if q.ObjectType != "" {
		w.add("object_type = ?", q.ObjectType)
	}
	if q.ObjectID != "" {
		w.add("object_id = ?", q.ObjectID)
	}
	query, args := paginate(
		`SELECT id, actor, object_type, object_id, action_type, summary, details, created_at
		FROM audit_log`+w.String()+" ORDER BY created_at DESC, id",
		w.args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "list audit entries")
	}
	defer rows.Close()

	entries := make([]*AuditEntry, 0)
	for rows.Next() {
		var e AuditEntry
		var details sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Actor, &e.ObjectType, &e.ObjectID, &e.ActionType, &e.Summary, &details, &createdAt); err != nil {
			return nil, err
		}
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("parse audit details: %w", err)
			}
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
