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

type bonusStore interface {
	ListOpenBonusesDueBy(ctx context.Context, day time.Time) ([]*store.Bonus, error)
}

// BonusDue reports unpaid or partially paid bonuses due within the horizon.
type BonusDue struct {
	loop.Base
	store     bonusStore
	reminders ReminderCreator
}

// NewBonusDue creates the bonus_due loop.
func NewBonusDue(s bonusStore, reminders ReminderCreator) *BonusDue {
	return &BonusDue{
		Base:      loop.NewBase(NameBonusDue, "Detects unpaid bonuses due within 30 days", 60),
		store:     s,
		reminders: reminders,
	}
}

// Execute scans for bonuses coming due.
func (l *BonusDue) Execute(ctx context.Context, run *loop.Run) error {
	now := run.Now()
	bonuses, err := l.store.ListOpenBonusesDueBy(ctx, today(now).AddDate(0, 0, horizonDays))
	if err != nil {
		return err
	}

	for _, b := range bonuses {
		days := daysUntil(now, b.DueOn)
		id := strconv.FormatInt(b.ID, 10)
		due := store.FormatDate(b.DueOn)

		verb := "is due on"
		if days < 0 {
			verb = "was due on"
		}
		finding, err := run.AddFinding(ctx, loop.Finding{
			Severity:          severityForDays(days),
			TargetType:        "bonus",
			TargetID:          id,
			Message:           fmt.Sprintf("Bonus of %.2f for %q %s %s (%s)", b.Amount, b.Recipient, verb, due, dayPhrase(days)),
			RecommendedAction: "Schedule the payout",
		})
		if err != nil {
			return err
		}
		if finding == nil {
			continue
		}

		_, err = l.reminders.CreateReminder(ctx, service.NewReminder{
			TargetType: "bonus",
			TargetID:   id,
			RemindAt:   reminderTime(now, b.DueOn, 3),
			Channel:    plugin.ChannelEmail,
			Message:    fmt.Sprintf("Bonus of %.2f for %q is due on %s", b.Amount, b.Recipient, due),
			Recipient:  b.Recipient,
		}, loop.Actor)
		if err := ignoreExisting(err); err != nil {
			return goerr.Wrap(err, "schedule bonus reminder", goerr.V("bonus_id", b.ID))
		}
	}
	return nil
}
