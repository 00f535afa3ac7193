package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	run := &LoopRun{LoopName: "docs_expiry", StartedAt: started}
	require.NoError(t, st.CreateRun(ctx, run))
	require.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	finished := started.Add(1500 * time.Millisecond)
	run.Status = RunStatusCompleted
	run.FinishedAt = &finished
	run.FindingsCount = 3
	require.NoError(t, st.FinishRun(ctx, run))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
	assert.Equal(t, 3, got.FindingsCount)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))
	assert.True(t, got.StartedAt.Equal(started))

	// The terminal transition is written exactly once.
	run.Status = RunStatusFailed
	run.ErrorMessage = "late failure"
	require.ErrorIs(t, st.FinishRun(ctx, run), ErrRunNotRunning)

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	_, err := st.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListRunsFiltersAndOrder(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		name := "bonus_due"
		if i%2 == 0 {
			name = "docs_expiry"
		}
		run := &LoopRun{LoopName: name, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, st.CreateRun(ctx, run))
	}

	runs, total, err := st.ListRuns(ctx, RunQuery{LoopName: "docs_expiry"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, runs, 3)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
	assert.True(t, runs[1].StartedAt.After(runs[2].StartedAt))

	from := base.Add(90 * time.Minute)
	runs, total, err = st.ListRuns(ctx, RunQuery{From: &from, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, runs, 2)

	latest, err := st.LatestRun(ctx, "bonus_due")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.StartedAt.Equal(base.Add(3*time.Hour)))

	none, err := st.LatestRun(ctx, "never_ran")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMarkStaleRunsAsFailed(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	run := &LoopRun{LoopName: "task_overdue"}
	require.NoError(t, st.CreateRun(ctx, run))

	n, err := st.MarkStaleRunsAsFailed(ctx, "interrupted")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "interrupted", got.ErrorMessage)
}

func TestFindingDedupIndex(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	run := &LoopRun{LoopName: "docs_expiry"}
	require.NoError(t, st.CreateRun(ctx, run))

	at := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	first := &LoopFinding{
		LoopRunID:  run.ID,
		Severity:   SeverityWarning,
		TargetType: "document",
		TargetID:   "1",
		Message:    "expiring",
		Signature:  "sig-1",
		CreatedAt:  at,
	}
	inserted, err := st.InsertFinding(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	same := *first
	same.ID = ""
	same.CreatedAt = at.Add(time.Hour)
	inserted, err = st.InsertFinding(ctx, &same)
	require.NoError(t, err)
	assert.False(t, inserted, "same signature in the same 24h bucket must be rejected")

	nextDay := *first
	nextDay.ID = ""
	nextDay.CreatedAt = at.Add(25 * time.Hour)
	inserted, err = st.InsertFinding(ctx, &nextDay)
	require.NoError(t, err)
	assert.True(t, inserted)

	found, err := st.HasFindingSince(ctx, "sig-1", at.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, found)

	found, err = st.HasFindingSince(ctx, "sig-1", at.Add(26*time.Hour))
	require.NoError(t, err)
	assert.False(t, found)

	findings, err := st.ListFindingsByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "docs_expiry", findings[0].LoopName)
	assert.True(t, findings[0].CreatedAt.After(findings[1].CreatedAt))
}

func TestFindingDedupBucketFollowsWindow(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	run := &LoopRun{LoopName: "task_overdue"}
	require.NoError(t, st.CreateRun(ctx, run))

	at := time.Date(2026, 10, 17, 10, 5, 0, 0, time.UTC)
	insert := func(created time.Time) bool {
		f := &LoopFinding{
			LoopRunID:   run.ID,
			Severity:    SeverityWarning,
			TargetType:  "task",
			TargetID:    "7",
			Message:     "overdue",
			Signature:   "sig-hour",
			DedupBucket: DedupBucket(created, time.Hour),
			CreatedAt:   created,
		}
		ok, err := st.InsertFinding(ctx, f)
		require.NoError(t, err)
		return ok
	}

	assert.True(t, insert(at))
	assert.False(t, insert(at.Add(20*time.Minute)), "same hour bucket")
	assert.True(t, insert(at.Add(3*time.Hour)), "later the same UTC day")

	assert.Equal(t, "2026-10-17T00:00:00.000000000Z/24h0m0s", DedupBucket(at, 24*time.Hour))
	assert.Equal(t, DedupBucket(at, 24*time.Hour), DedupBucket(at, 0))
}

func TestListFindingsJoinsLoopName(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	docsRun := &LoopRun{LoopName: "docs_expiry"}
	bonusRun := &LoopRun{LoopName: "bonus_due"}
	require.NoError(t, st.CreateRun(ctx, docsRun))
	require.NoError(t, st.CreateRun(ctx, bonusRun))

	at := time.Now().UTC()
	for i := 0; i < 4; i++ {
		runID, target, sev := docsRun.ID, "document", SeverityCritical
		if i%2 == 1 {
			runID, target, sev = bonusRun.ID, "bonus", SeverityWarning
		}
		_, err := st.InsertFinding(ctx, &LoopFinding{
			LoopRunID:  runID,
			Severity:   sev,
			TargetType: target,
			TargetID:   fmt.Sprint(i),
			Message:    "m",
			Signature:  fmt.Sprintf("sig-%d", i),
			CreatedAt:  at.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	findings, total, err := st.ListFindings(ctx, FindingQuery{LoopName: "bonus_due"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, f := range findings {
		assert.Equal(t, "bonus_due", f.LoopName)
		assert.Equal(t, "bonus", f.TargetType)
	}

	_, total, err = st.ListFindings(ctx, FindingQuery{Severity: SeverityCritical, TargetType: "document"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	n, err := st.CountFindingsSince(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestReminderUniquenessAndTransitions(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	remindAt := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	r := &Reminder{TargetType: "document", TargetID: "7", RemindAt: remindAt, Channel: "email", Message: "renew"}
	inserted, err := st.InsertReminder(ctx, r)
	require.NoError(t, err)
	require.True(t, inserted)
	require.NotZero(t, r.ID)

	dup := &Reminder{TargetType: "document", TargetID: "7", RemindAt: remindAt, Channel: "email", Message: "renew again"}
	inserted, err = st.InsertReminder(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	due, err := st.ListDueReminders(ctx, remindAt.Add(time.Minute), 100)
	require.NoError(t, err)
	require.Len(t, due, 1)

	sentAt := remindAt.Add(2 * time.Minute)
	require.NoError(t, st.MarkReminderSent(ctx, r.ID, sentAt))
	require.ErrorIs(t, st.MarkReminderFailed(ctx, r.ID, "boom"), ErrNotFound)

	got, err := st.GetReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ReminderSent, got.Status)
	require.NotNil(t, got.SentAt)
	assert.True(t, got.SentAt.Equal(sentAt))
}

func TestTaskUniquenessPerTarget(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	due := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	task := &Task{Title: "Renew", TargetType: "document", TargetID: "1", DueAt: &due, IsCritical: true}
	inserted, err := st.InsertTask(ctx, task)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = st.InsertTask(ctx, &Task{Title: "Renew", TargetType: "document", TargetID: "1"})
	require.NoError(t, err)
	assert.False(t, inserted)

	// Tasks without a target are never deduplicated.
	for i := 0; i < 2; i++ {
		inserted, err = st.InsertTask(ctx, &Task{Title: "Call back"})
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCritical)
	assert.Equal(t, TaskOpen, got.Status)
	assert.Equal(t, PriorityMedium, got.Priority)

	active, err := st.ListActiveTasksDueBy(ctx, due)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, task.ID, active[0].ID)
}

func TestDocumentsAndBonusesByDate(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	today := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.CreateDocument(ctx, &Document{Name: "soon", ExpiresOn: today.AddDate(0, 0, 5)}))
	require.NoError(t, st.CreateDocument(ctx, &Document{Name: "later", ExpiresOn: today.AddDate(0, 0, 40)}))
	require.NoError(t, st.CreateDocument(ctx, &Document{Name: "archived", ExpiresOn: today, Status: DocumentArchived}))

	docs, err := st.ListActiveDocumentsExpiringBy(ctx, today.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "soon", docs[0].Name)
	assert.True(t, docs[0].ExpiresOn.Equal(today.AddDate(0, 0, 5)))

	require.NoError(t, st.CreateBonus(ctx, &Bonus{Recipient: "a", Amount: 10, DueOn: today.AddDate(0, 0, 3)}))
	require.NoError(t, st.CreateBonus(ctx, &Bonus{Recipient: "b", Amount: 10, DueOn: today.AddDate(0, 0, 3), Status: BonusPaid}))
	require.NoError(t, st.CreateBonus(ctx, &Bonus{Recipient: "c", Amount: 10, DueOn: today.AddDate(0, 0, 3), Status: BonusPartial}))

	bonuses, err := st.ListOpenBonusesDueBy(ctx, today.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Len(t, bonuses, 2)
}

func TestAuditRoundTrip(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertAudit(ctx, &AuditEntry{
		Actor:      "loop_engine",
		ObjectType: "document",
		ObjectID:   "3",
		ActionType: "loop_finding",
		Summary:    "[docs_expiry] expiring",
		Details:    map[string]any{"severity": "critical"},
	}))

	entries, err := st.ListAudit(ctx, AuditQuery{ObjectType: "document"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.Equal(t, "critical", entries[0].Details["severity"])
}
