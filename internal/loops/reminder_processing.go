package loops

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/patrickspencer/opstrack/internal/logging"
	"github.com/patrickspencer/opstrack/internal/loop"
	"github.com/patrickspencer/opstrack/internal/store"
	"github.com/patrickspencer/opstrack/pkg/plugin"
	"github.com/rs/zerolog"
)

// DefaultBatchSize is the number of due reminders handled per run.
const DefaultBatchSize = 100

type reminderStore interface {
	ListDueReminders(ctx context.Context, now time.Time, limit int) ([]*store.Reminder, error)
	MarkReminderSent(ctx context.Context, id int64, at time.Time) error
	MarkReminderFailed(ctx context.Context, id int64, cause string) error
}

// ReminderProcessing delivers due reminders. A reminder that cannot be
// delivered is marked failed and reported; the rest of the batch continues.
type ReminderProcessing struct {
	loop.Base
	store     reminderStore
	notifier  Notifier
	batchSize int
	logger    zerolog.Logger
}

// NewReminderProcessing creates the reminder_processing loop.
func NewReminderProcessing(s reminderStore, notifier Notifier, batchSize int) *ReminderProcessing {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ReminderProcessing{
		Base:      loop.NewBase(NameReminderProcessing, "Delivers due reminders", 1),
		store:     s,
		notifier:  notifier,
		batchSize: batchSize,
		logger:    logging.Component("reminders"),
	}
}

// Execute sends one batch of due reminders, oldest first.
func (l *ReminderProcessing) Execute(ctx context.Context, run *loop.Run) error {
	now := run.Now()
	due, err := l.store.ListDueReminders(ctx, now, l.batchSize)
	if err != nil {
		return err
	}

	for _, r := range due {
		sendErr := l.send(ctx, r, now)
		if sendErr == nil {
			continue
		}

		l.logger.Warn().Err(sendErr).Int64("reminder_id", r.ID).Str("channel", r.Channel).Msg("reminder delivery failed")
		if err := l.store.MarkReminderFailed(ctx, r.ID, sendErr.Error()); err != nil {
			return goerr.Wrap(err, "mark reminder failed", goerr.V("reminder_id", r.ID))
		}
		_, err := run.AddFinding(ctx, loop.Finding{
			Severity:          store.SeverityWarning,
			TargetType:        "reminder",
			TargetID:          strconv.FormatInt(r.ID, 10),
			Message:           fmt.Sprintf("Reminder for %s %s could not be sent via %s: %v", r.TargetType, r.TargetID, r.Channel, sendErr),
			RecommendedAction: "Check the notification channel and reschedule the reminder",
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *ReminderProcessing) send(ctx context.Context, r *store.Reminder, now time.Time) error {
	if l.notifier == nil {
		return goerr.Wrap(plugin.ErrUnknownChannel, "no notifier configured", goerr.V("channel", r.Channel))
	}
	err := l.notifier.Notify(ctx, plugin.Notification{
		ReminderID: r.ID,
		Channel:    r.Channel,
		TargetType: r.TargetType,
		TargetID:   r.TargetID,
		Message:    r.Message,
		RemindAt:   r.RemindAt,
		Recipient:  r.Recipient,
		Metadata:   map[string]any{"created_by": r.CreatedBy},
	})
	if err != nil {
		return err
	}
	return l.store.MarkReminderSent(ctx, r.ID, now)
}
