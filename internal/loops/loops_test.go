package loops_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/patrickspencer/opstrack/internal/config"
	"github.com/patrickspencer/opstrack/internal/loop"
	"github.com/patrickspencer/opstrack/internal/loops"
	"github.com/patrickspencer/opstrack/internal/service"
	"github.com/patrickspencer/opstrack/internal/store"
	"github.com/patrickspencer/opstrack/pkg/plugin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

type harness struct {
	store     *store.SQLiteStore
	exec      *loop.Executor
	reminders *service.ReminderService
	tasks     *service.TaskService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "loops.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	audit := service.NewAuditLogger(st)
	return &harness{
		store:     st,
		exec:      loop.NewExecutor(st, audit, loop.WithClock(func() time.Time { return now })),
		reminders: service.NewReminderService(st, audit),
		tasks:     service.NewTaskService(st, audit),
	}
}

func (h *harness) run(t *testing.T, l loop.Loop) *store.LoopRun {
	t.Helper()
	run, err := h.exec.Run(context.Background(), l)
	require.NoError(t, err)
	return run
}

func (h *harness) findings(t *testing.T, runID string) []*store.LoopFinding {
	t.Helper()
	out, err := h.store.ListFindingsByRun(context.Background(), runID)
	require.NoError(t, err)
	return out
}

func day(offset int) time.Time {
	return time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

type notifierFunc func(ctx context.Context, n plugin.Notification) error

func (f notifierFunc) Notify(ctx context.Context, n plugin.Notification) error { return f(ctx, n) }

type failingReminders struct{ err error }

func (f failingReminders) CreateReminder(context.Context, service.NewReminder, string) (*store.Reminder, error) {
	return nil, f.err
}

func TestDocsExpiryCriticalScenario(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	doc := &store.Document{Name: "Passport", DocType: "passport", OwnerID: "u-7", ExpiresOn: day(5)}
	require.NoError(t, h.store.CreateDocument(ctx, doc))

	l := loops.NewDocsExpiry(h.store, h.reminders, h.tasks)
	run := h.run(t, l)
	assert.Equal(t, store.RunStatusCompleted, run.Status)
	require.Equal(t, 1, run.FindingsCount)

	f := h.findings(t, run.ID)[0]
	assert.Equal(t, store.SeverityCritical, f.Severity)
	assert.Equal(t, "document", f.TargetType)
	assert.Equal(t, `Document "Passport" expires on 2026-10-22 (5 days)`, f.Message)

	reminders, err := h.store.ListReminders(ctx, store.ReminderQuery{TargetType: "document"})
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	// expiry-7d is already past, so the reminder goes out an hour from now.
	assert.Equal(t, now.Add(time.Hour), reminders[0].RemindAt)
	assert.Equal(t, plugin.ChannelEmail, reminders[0].Channel)
	assert.Equal(t, loop.Actor, reminders[0].CreatedBy)
	assert.Equal(t, "u-7", reminders[0].Recipient)

	tasks, err := h.store.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, store.PriorityHigh, tasks[0].Priority)
	assert.True(t, tasks[0].IsCritical)
	assert.Equal(t, "u-7", tasks[0].AssigneeID)
	require.NotNil(t, tasks[0].DueAt)
	assert.Equal(t, day(4), *tasks[0].DueAt)

	audit, err := h.store.ListAudit(ctx, store.AuditQuery{Actor: loop.Actor, ObjectType: "document"})
	require.NoError(t, err)
	assert.Len(t, audit, 1)

	// A second run within the window produces nothing new.
	again := h.run(t, l)
	assert.Equal(t, 0, again.FindingsCount)
	reminders, err = h.store.ListReminders(ctx, store.ReminderQuery{})
	require.NoError(t, err)
	assert.Len(t, reminders, 1)
	tasks, err = h.store.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestDocsExpiryBoundaries(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	for _, d := range []*store.Document{
		{Name: "Expired", OwnerID: "u", ExpiresOn: day(-2)},
		{Name: "Seven", OwnerID: "u", ExpiresOn: day(7)},
		{Name: "Eight", OwnerID: "u", ExpiresOn: day(8)},
		{Name: "Thirty", OwnerID: "u", ExpiresOn: day(30)},
		{Name: "ThirtyOne", OwnerID: "u", ExpiresOn: day(31)},
		{Name: "Archived", OwnerID: "u", ExpiresOn: day(3), Status: store.DocumentArchived},
	} {
		require.NoError(t, h.store.CreateDocument(ctx, d))
	}

	run := h.run(t, loops.NewDocsExpiry(h.store, h.reminders, h.tasks))
	require.Equal(t, 4, run.FindingsCount)

	got := map[string]store.Severity{}
	for _, f := range h.findings(t, run.ID) {
		got[f.Message] = f.Severity
	}
	assert.Equal(t, map[string]store.Severity{
		`Document "Expired" expired on 2026-10-15 (2 days ago)`: store.SeverityCritical,
		`Document "Seven" expires on 2026-10-24 (7 days)`:        store.SeverityCritical,
		`Document "Eight" expires on 2026-10-25 (8 days)`:        store.SeverityWarning,
		`Document "Thirty" expires on 2026-11-16 (30 days)`:      store.SeverityWarning,
	}, got)

	// Warnings only get a reminder, critical ones also get a task.
	reminders, err := h.store.ListReminders(ctx, store.ReminderQuery{})
	require.NoError(t, err)
	assert.Len(t, reminders, 4)
	tasks, err := h.store.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	remindAt := map[string]time.Time{}
	for _, r := range reminders {
		remindAt[r.Message] = r.RemindAt
	}
	assert.Equal(t, day(23).Add(9*time.Hour), remindAt[`Document "Thirty" expires on 2026-11-16`])
	assert.Equal(t, day(1).Add(9*time.Hour), remindAt[`Document "Eight" expires on 2026-10-25`])
}

func TestBonusDue(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	l := loops.NewBonusDue(h.store, h.reminders)

	require.NoError(t, h.store.CreateBonus(ctx, &store.Bonus{Recipient: "Far", Amount: 100, DueOn: day(45)}))
	run := h.run(t, l)
	assert.Equal(t, store.RunStatusCompleted, run.Status)
	assert.Equal(t, 0, run.FindingsCount)

	require.NoError(t, h.store.CreateBonus(ctx, &store.Bonus{Recipient: "Alice", Amount: 1500, DueOn: day(20), Status: store.BonusPartial}))
	require.NoError(t, h.store.CreateBonus(ctx, &store.Bonus{Recipient: "Bob", Amount: 250.5, DueOn: day(2)}))
	require.NoError(t, h.store.CreateBonus(ctx, &store.Bonus{Recipient: "Paid", Amount: 10, DueOn: day(1), Status: store.BonusPaid}))

	run = h.run(t, l)
	require.Equal(t, 2, run.FindingsCount)
	got := map[string]store.Severity{}
	for _, f := range h.findings(t, run.ID) {
		got[f.Message] = f.Severity
	}
	assert.Equal(t, map[string]store.Severity{
		`Bonus of 1500.00 for "Alice" is due on 2026-11-06 (20 days)`: store.SeverityWarning,
		`Bonus of 250.50 for "Bob" is due on 2026-10-19 (2 days)`:     store.SeverityCritical,
	}, got)

	reminders, err := h.store.ListReminders(ctx, store.ReminderQuery{TargetType: "bonus"})
	require.NoError(t, err)
	require.Len(t, reminders, 2)
	// Ordered by remind_at: Bob's due-3d is past, Alice's is due-3d at 09:00.
	assert.Equal(t, now.Add(time.Hour), reminders[0].RemindAt)
	assert.Equal(t, day(17).Add(9*time.Hour), reminders[1].RemindAt)
}

func TestTaskOverdue(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}
	for _, task := range []*store.Task{
		{Title: "Renew lease", IsCritical: true, DueAt: at(-2 * time.Hour)},
		{Title: "File report", DueAt: at(-time.Hour)},
		{Title: "Sign contract", IsCritical: true, DueAt: at(5 * time.Hour)},
		{Title: "Water plants", DueAt: at(5 * time.Hour)},
		{Title: "Next week", IsCritical: true, DueAt: at(72 * time.Hour)},
		{Title: "Finished", IsCritical: true, DueAt: at(-time.Hour), Status: store.TaskDone},
		{Title: "Shelved", IsCritical: true, DueAt: at(-time.Hour), Archived: true},
	} {
		_, err := h.store.InsertTask(ctx, task)
		require.NoError(t, err)
	}

	run := h.run(t, loops.NewTaskOverdue(h.store, h.reminders))
	require.Equal(t, 3, run.FindingsCount)

	got := map[string]store.Severity{}
	for _, f := range h.findings(t, run.ID) {
		got[f.Message] = f.Severity
	}
	assert.Equal(t, map[string]store.Severity{
		`Critical task "Renew lease" is overdue (due 2026-10-17T08:00Z)`:     store.SeverityCritical,
		`Task "File report" is overdue (due 2026-10-17T09:00Z)`:              store.SeverityWarning,
		`Critical task "Sign contract" is due soon (due 2026-10-17T15:00Z)`: store.SeverityWarning,
	}, got)

	reminders, err := h.store.ListReminders(ctx, store.ReminderQuery{TargetType: "task"})
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, plugin.ChannelInApp, reminders[0].Channel)
	assert.Equal(t, now.Add(2*time.Hour), reminders[0].RemindAt)
}

func TestReminderProcessing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	past := &store.Reminder{TargetType: "document", TargetID: "1", RemindAt: now.Add(-time.Hour), Channel: plugin.ChannelEmail, Message: "due", Recipient: "u-7"}
	future := &store.Reminder{TargetType: "document", TargetID: "2", RemindAt: now.Add(time.Hour), Channel: plugin.ChannelEmail, Message: "later"}
	broken := &store.Reminder{TargetType: "task", TargetID: "3", RemindAt: now.Add(-2 * time.Hour), Channel: plugin.ChannelInApp, Message: "escalate"}
	for _, r := range []*store.Reminder{past, future, broken} {
		_, err := h.store.InsertReminder(ctx, r)
		require.NoError(t, err)
	}

	var delivered []int64
	var recipients []string
	notifier := notifierFunc(func(_ context.Context, n plugin.Notification) error {
		if n.Channel == plugin.ChannelInApp {
			return errors.New("in-app gateway down")
		}
		delivered = append(delivered, n.ReminderID)
		recipients = append(recipients, n.Recipient)
		return nil
	})

	run := h.run(t, loops.NewReminderProcessing(h.store, notifier, 0))
	assert.Equal(t, store.RunStatusCompleted, run.Status)
	assert.Equal(t, []int64{past.ID}, delivered)
	assert.Equal(t, []string{"u-7"}, recipients)

	sent, err := h.store.GetReminder(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ReminderSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	assert.Equal(t, now, *sent.SentAt)

	pending, err := h.store.GetReminder(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ReminderPending, pending.Status)

	failed, err := h.store.GetReminder(ctx, broken.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ReminderFailed, failed.Status)
	assert.Equal(t, "in-app gateway down", failed.Error)

	findings := h.findings(t, run.ID)
	require.Len(t, findings, 1)
	assert.Equal(t, store.SeverityWarning, findings[0].Severity)
	assert.Equal(t, "reminder", findings[0].TargetType)
	assert.Contains(t, findings[0].Message, "in-app gateway down")
}

func TestReminderProcessingBatchSize(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.store.InsertReminder(ctx, &store.Reminder{
			TargetType: "task", TargetID: "1", Channel: plugin.ChannelEmail, Message: "m",
			RemindAt: now.Add(-time.Duration(i+1) * time.Minute),
		})
		require.NoError(t, err)
	}

	notifier := plugin.DefaultNotifiers(zerolog.Nop())
	l := loops.NewReminderProcessing(h.store, notifier, 2)
	h.run(t, l)

	pending, err := h.store.ListReminders(ctx, store.ReminderQuery{Status: store.ReminderPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	// Oldest first, so the newest one is left over.
	assert.Equal(t, now.Add(-time.Minute), pending[0].RemindAt)
}

func TestSideEffectErrors(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.CreateBonus(ctx, &store.Bonus{Recipient: "Alice", Amount: 1, DueOn: day(3)}))

	exists := h.run(t, loops.NewBonusDue(h.store, failingReminders{err: service.ErrAlreadyExists}))
	assert.Equal(t, store.RunStatusCompleted, exists.Status)
	assert.Equal(t, 1, exists.FindingsCount)

	require.NoError(t, h.store.CreateBonus(ctx, &store.Bonus{Recipient: "Bob", Amount: 2, DueOn: day(4)}))
	broken := h.run(t, loops.NewBonusDue(h.store, failingReminders{err: errors.New("mail queue full")}))
	assert.Equal(t, store.RunStatusFailed, broken.Status)
	assert.Contains(t, broken.ErrorMessage, "mail queue full")
}

func TestRegister(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	cfg, err := config.ParseConfig([]byte(`
loops:
  bonus_due:
    enabled: false
  task_overdue:
    interval_minutes: 5
`))
	require.NoError(t, err)

	reg := loop.NewRegistry(h.exec)
	loops.Register(reg, cfg, loops.Deps{
		Store:     h.store,
		Reminders: h.reminders,
		Tasks:     h.tasks,
		Notifier:  plugin.DefaultNotifiers(zerolog.Nop()),
	})

	all := reg.All()
	require.Len(t, all, 4)
	names := []string{all[0].Name(), all[1].Name(), all[2].Name(), all[3].Name()}
	assert.Equal(t, []string{loops.NameDocsExpiry, loops.NameBonusDue, loops.NameTaskOverdue, loops.NameReminderProcessing}, names)
	assert.Equal(t, 60, all[0].IntervalMinutes())
	assert.False(t, all[1].Enabled())
	assert.Equal(t, 5, all[2].IntervalMinutes())
	assert.Equal(t, 1, all[3].IntervalMinutes())

	runs, err := reg.RunAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}
