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

type documentStore interface {
	ListActiveDocumentsExpiringBy(ctx context.Context, day time.Time) ([]*store.Document, error)
}

// DocsExpiry reports active documents expiring within the horizon, schedules
// an email reminder for each and opens a renewal task for critical ones.
type DocsExpiry struct {
	loop.Base
	store     documentStore
	reminders ReminderCreator
	tasks     TaskCreator
}

// NewDocsExpiry creates the docs_expiry loop.
func NewDocsExpiry(s documentStore, reminders ReminderCreator, tasks TaskCreator) *DocsExpiry {
	return &DocsExpiry{
		Base:      loop.NewBase(NameDocsExpiry, "Detects documents expiring within 30 days", 60),
		store:     s,
		reminders: reminders,
		tasks:     tasks,
	}
}

// Execute scans for expiring documents.
func (l *DocsExpiry) Execute(ctx context.Context, run *loop.Run) error {
	now := run.Now()
	docs, err := l.store.ListActiveDocumentsExpiringBy(ctx, today(now).AddDate(0, 0, horizonDays))
	if err != nil {
		return err
	}

	for _, doc := range docs {
		days := daysUntil(now, doc.ExpiresOn)
		severity := severityForDays(days)
		id := strconv.FormatInt(doc.ID, 10)
		expiry := store.FormatDate(doc.ExpiresOn)

		verb := "expires on"
		if days < 0 {
			verb = "expired on"
		}
		action := "Start the renewal process"
		if severity == store.SeverityCritical {
			action = "Renew the document immediately"
		}

		finding, err := run.AddFinding(ctx, loop.Finding{
			Severity:          severity,
			TargetType:        "document",
			TargetID:          id,
			Message:           fmt.Sprintf("Document %q %s %s (%s)", doc.Name, verb, expiry, dayPhrase(days)),
			RecommendedAction: action,
		})
		if err != nil {
			return err
		}
		if finding == nil {
			continue
		}

		_, err = l.reminders.CreateReminder(ctx, service.NewReminder{
			TargetType: "document",
			TargetID:   id,
			RemindAt:   reminderTime(now, doc.ExpiresOn, 7),
			Channel:    plugin.ChannelEmail,
			Message:    fmt.Sprintf("Document %q expires on %s", doc.Name, expiry),
			Recipient:  doc.OwnerID,
		}, loop.Actor)
		if err := ignoreExisting(err); err != nil {
			return goerr.Wrap(err, "schedule document reminder", goerr.V("document_id", doc.ID))
		}

		if severity != store.SeverityCritical {
			continue
		}
		due := notBefore(today(doc.ExpiresOn).AddDate(0, 0, -1), now)
		_, err = l.tasks.CreateTask(ctx, service.NewTask{
			Title:       fmt.Sprintf("Renew document %q", doc.Name),
			Description: fmt.Sprintf("%s %q owned by %s expires on %s.", doc.DocType, doc.Name, doc.OwnerID, expiry),
			Priority:    store.PriorityHigh,
			IsCritical:  true,
			DueAt:       &due,
			TargetType:  "document",
			TargetID:    id,
			AssigneeID:  doc.OwnerID,
		}, loop.Actor)
		if err := ignoreExisting(err); err != nil {
			return goerr.Wrap(err, "create renewal task", goerr.V("document_id", doc.ID))
		}
	}
	return nil
}
