package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/patrickspencer/opstrack/internal/service"
	"github.com/patrickspencer/opstrack/internal/store"
	"github.com/patrickspencer/opstrack/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestCreateReminder(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	ctx := context.Background()
	svc := service.NewReminderService(st, service.NewAuditLogger(st))

	in := service.NewReminder{
		TargetType: "document",
		TargetID:   "12",
		RemindAt:   time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC),
		Channel:    plugin.ChannelEmail,
		Message:    "Renew passport",
	}
	r, err := svc.CreateReminder(ctx, in, "tester")
	require.NoError(t, err)
	assert.Equal(t, store.ReminderPending, r.Status)
	assert.Equal(t, "tester", r.CreatedBy)

	_, err = svc.CreateReminder(ctx, in, "tester")
	require.ErrorIs(t, err, service.ErrAlreadyExists)

	entries, err := st.ListAudit(ctx, store.AuditQuery{ObjectType: "reminder"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCreateReminderValidation(t *testing.T) {
	t.Parallel()
	svc := service.NewReminderService(newStore(t), nil)

	tests := []struct {
		name string
		in   service.NewReminder
	}{
		{name: "missing target", in: service.NewReminder{Message: "m", RemindAt: time.Now()}},
		{name: "missing message", in: service.NewReminder{TargetType: "task", TargetID: "1", RemindAt: time.Now()}},
		{name: "missing time", in: service.NewReminder{TargetType: "task", TargetID: "1", Message: "m"}},
		{name: "bad channel", in: service.NewReminder{TargetType: "task", TargetID: "1", Message: "m", RemindAt: time.Now(), Channel: "pager"}},
	}
	for _, tt := range tests {
		_, err := svc.CreateReminder(context.Background(), tt.in, "tester")
		assert.ErrorIs(t, err, service.ErrInvalidInput, tt.name)
	}
}

func TestCreateTask(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	ctx := context.Background()
	svc := service.NewTaskService(st, service.NewAuditLogger(st))

	due := time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC)
	in := service.NewTask{
		Title:      "Renew contract",
		Priority:   store.PriorityHigh,
		IsCritical: true,
		DueAt:      &due,
		TargetType: "document",
		TargetID:   "5",
		AssigneeID: "u-1",
	}
	task, err := svc.CreateTask(ctx, in, "tester")
	require.NoError(t, err)
	assert.NotZero(t, task.ID)
	assert.Equal(t, store.TaskOpen, task.Status)

	_, err = svc.CreateTask(ctx, in, "tester")
	require.ErrorIs(t, err, service.ErrAlreadyExists)

	_, err = svc.CreateTask(ctx, service.NewTask{Title: "x", Priority: "urgent"}, "tester")
	require.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestAuditLoggerRequiresFields(t *testing.T) {
	t.Parallel()
	logger := service.NewAuditLogger(newStore(t))

	err := logger.Log(context.Background(), service.AuditRecord{Actor: "a"})
	require.ErrorIs(t, err, service.ErrInvalidInput)
}
