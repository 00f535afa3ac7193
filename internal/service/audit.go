package service

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/patrickspencer/opstrack/internal/store"
)

// AuditRecord is the input to AuditLogger.Log.
type AuditRecord struct {
	Actor      string
	ObjectType string
	ObjectID   string
	ActionType string
	Summary    string
	Details    map[string]any
}

// AuditLogger writes audit entries.
type AuditLogger interface {
	Log(ctx context.Context, rec AuditRecord) error
}

type auditStore interface {
	InsertAudit(ctx context.Context, e *store.AuditEntry) error
}

// StoreAuditLogger persists audit entries in the store.
type StoreAuditLogger struct {
	store auditStore
}

// NewAuditLogger creates a StoreAuditLogger.
func NewAuditLogger(s auditStore) *StoreAuditLogger {
	return &StoreAuditLogger{store: s}
}

// Log appends an audit entry.
func (a *StoreAuditLogger) Log(ctx context.Context, rec AuditRecord) error {
	if rec.Actor == "" || rec.ObjectType == "" || rec.ActionType == "" {
		return goerr.Wrap(ErrInvalidInput, "audit record requires actor, object type and action type")
	}
	err := a.store.InsertAudit(ctx, &store.AuditEntry{
		Actor:      rec.Actor,
		ObjectType: rec.ObjectType,
		ObjectID:   rec.ObjectID,
		ActionType: rec.ActionType,
		Summary:    rec.Summary,
		Details:    rec.Details,
	})
	if err != nil {
		return goerr.Wrap(err, "write audit entry", goerr.V("object_type", rec.ObjectType), goerr.V("object_id", rec.ObjectID))
	}
	return nil
}
