// Package loops holds the built-in monitoring loops.
package loops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickspencer/opstrack/internal/config"
	"github.com/patrickspencer/opstrack/internal/loop"
	"github.com/patrickspencer/opstrack/internal/service"
	"github.com/patrickspencer/opstrack/internal/store"
	"github.com/patrickspencer/opstrack/pkg/plugin"
)

// Loop names.
const (
	NameDocsExpiry         = "docs_expiry"
	NameBonusDue           = "bonus_due"
	NameTaskOverdue        = "task_overdue"
	NameReminderProcessing = "reminder_processing"
)

const (
	horizonDays  = 30
	criticalDays = 7
	reminderHour = 9
)

// Store is the persistence the built-in loops read from.
type Store interface {
	ListActiveDocumentsExpiringBy(ctx context.Context, day time.Time) ([]*store.Document, error)
	ListOpenBonusesDueBy(ctx context.Context, day time.Time) ([]*store.Bonus, error)
	ListActiveTasksDueBy(ctx context.Context, by time.Time) ([]*store.Task, error)
	ListDueReminders(ctx context.Context, now time.Time, limit int) ([]*store.Reminder, error)
	MarkReminderSent(ctx context.Context, id int64, at time.Time) error
	MarkReminderFailed(ctx context.Context, id int64, cause string) error
}

// ReminderCreator schedules reminders.
type ReminderCreator interface {
	CreateReminder(ctx context.Context, in service.NewReminder, actor string) (*store.Reminder, error)
}

// TaskCreator creates tasks.
type TaskCreator interface {
	CreateTask(ctx context.Context, in service.NewTask, actor string) (*store.Task, error)
}

// Notifier delivers a due reminder.
type Notifier interface {
	Notify(ctx context.Context, n plugin.Notification) error
}

// Deps are the collaborators of the built-in loops.
type Deps struct {
	Store     Store
	Reminders ReminderCreator
	Tasks     TaskCreator
	Notifier  Notifier
}

// Register configures the built-in loops from cfg and adds them to reg.
func Register(reg *loop.Registry, cfg *config.Config, d Deps) {
	if cfg == nil {
		cfg = config.Default()
	}

	docs := NewDocsExpiry(d.Store, d.Reminders, d.Tasks)
	bonus := NewBonusDue(d.Store, d.Reminders)
	tasks := NewTaskOverdue(d.Store, d.Reminders)
	reminders := NewReminderProcessing(d.Store, d.Notifier, cfg.Reminders.BatchSize)

	for _, l := range []interface {
		loop.Loop
		Configure(config.LoopConfig)
	}{docs, bonus, tasks, reminders} {
		l.Configure(cfg.Loop(l.Name()))
		reg.Register(l)
	}
}

// today returns UTC midnight of now.
func today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysUntil counts calendar days from now's date to day's date.
func daysUntil(now, day time.Time) int {
	y, m, d := day.UTC().Date()
	target := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(target.Sub(today(now)) / (24 * time.Hour))
}

func severityForDays(days int) store.Severity {
	if days <= criticalDays {
		return store.SeverityCritical
	}
	return store.SeverityWarning
}

// reminderTime is reminderHour UTC offsetDays before day, or an hour from now
// when that moment has already passed.
func reminderTime(now, day time.Time, offsetDays int) time.Time {
	at := today(day).AddDate(0, 0, -offsetDays).Add(reminderHour * time.Hour)
	return notBefore(at, now)
}

func notBefore(at, now time.Time) time.Time {
	if !at.After(now) {
		return now.Add(time.Hour)
	}
	return at
}

// ignoreExisting drops the error a side effect returns when its record is
// already in place.
func ignoreExisting(err error) error {
	if errors.Is(err, service.ErrAlreadyExists) {
		return nil
	}
	return err
}

func dayPhrase(days int) string {
	switch {
	case days == 0:
		return "today"
	case days == 1:
		return "1 day"
	case days == -1:
		return "1 day ago"
	case days < 0:
		return fmt.Sprintf("%d days ago", -days)
	}
	return fmt.Sprintf("%d days", days)
}
