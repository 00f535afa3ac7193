package loops

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/patrickspencer/opstrack/internal/loop"
	"github.com/patrickspencer/opstrack/internal/service"
	"github.com/patrickspencer/opstrack/internal/store"
	"github.com/patrickspencer/opstrack/pkg/plugin"
)

const (
	dueSoonWindow   = 24 * time.Hour
	escalationDelay = 2 * time.Hour
	dueFormat       = "2006-01-02T15:04Z07:00"
)

type taskStore interface {
	ListActiveTasksDueBy(ctx context.Context, by time.Time) ([]*store.Task, error)
}

// TaskOverdue reports overdue tasks and critical tasks due within a day, and
// escalates critical tasks that are already overdue.
type TaskOverdue struct {
	loop.Base
	store     taskStore
	reminders ReminderCreator
}

// NewTaskOverdue creates the task_overdue loop.
func NewTaskOverdue(s taskStore, reminders ReminderCreator) *TaskOverdue {
	return &TaskOverdue{
		Base:      loop.NewBase(NameTaskOverdue, "Detects overdue tasks and critical tasks due soon", 15),
		store:     s,
		reminders: reminders,
	}
}

// Execute scans open tasks.
func (l *TaskOverdue) Execute(ctx context.Context, run *loop.Run) error {
	now := run.Now()
	tasks, err := l.store.ListActiveTasksDueBy(ctx, now.Add(dueSoonWindow))
	if err != nil {
		return err
	}

	for _, t := range tasks {
		overdue := t.DueAt.Before(now)
		if !overdue && !t.IsCritical {
			continue
		}

		due := t.DueAt.UTC().Format(dueFormat)
		f := loop.Finding{
			Severity:   store.SeverityWarning,
			TargetType: "task",
			TargetID:   strconv.FormatInt(t.ID, 10),
		}
		switch {
		case overdue && t.IsCritical:
			f.Severity = store.SeverityCritical
			f.Message = fmt.Sprintf("Critical task %q is overdue (due %s)", t.Title, due)
			f.RecommendedAction = "Escalate to the assignee"
		case overdue:
			f.Message = fmt.Sprintf("Task %q is overdue (due %s)", t.Title, due)
			f.RecommendedAction = "Complete or reschedule the task"
		default:
			f.Message = fmt.Sprintf("Critical task %q is due soon (due %s)", t.Title, due)
			f.RecommendedAction = "Make sure the task is on track"
		}

		finding, err := run.AddFinding(ctx, f)
		if err != nil {
			return err
		}
		if finding == nil || f.Severity != store.SeverityCritical {
			continue
		}

		_, err = l.reminders.CreateReminder(ctx, service.NewReminder{
			TargetType: "task",
			TargetID:   f.TargetID,
			RemindAt:   now.Add(escalationDelay),
			Channel:    plugin.ChannelInApp,
			Message:    fmt.Sprintf("Escalation: critical task %q is overdue", t.Title),
			Recipient:  t.AssigneeID,
		}, loop.Actor)
		if err := ignoreExisting(err); err != nil {
			return goerr.Wrap(err, "schedule escalation reminder", goerr.V("task_id", t.ID))
		}
	}
	return nil
}
