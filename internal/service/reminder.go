package service

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/patrickspencer/opstrack/internal/store"
	"github.com/patrickspencer/opstrack/pkg/plugin"
)

// NewReminder is the input to ReminderService.CreateReminder.
type NewReminder struct {
	TargetType string
	TargetID   string
	RemindAt   time.Time
	Channel    string
	Message    string
	Recipient  string
}

type reminderStore interface {
	InsertReminder(ctx context.Context, r *store.Reminder) (bool, error)
}

// ReminderService creates reminders.
type ReminderService struct {
	store reminderStore
	audit AuditLogger
}

// NewReminderService creates a ReminderService. audit may be nil.
func NewReminderService(s reminderStore, audit AuditLogger) *ReminderService {
	return &ReminderService{store: s, audit: audit}
}

// CreateReminder schedules a pending reminder. A reminder for the same target,
// channel and time yields an error wrapping ErrAlreadyExists.
func (s *ReminderService) CreateReminder(ctx context.Context, in NewReminder, actor string) (*store.Reminder, error) {
	in.TargetType = strings.TrimSpace(in.TargetType)
	in.TargetID = strings.TrimSpace(in.TargetID)
	in.Message = strings.TrimSpace(in.Message)
	in.Recipient = strings.TrimSpace(in.Recipient)
	if in.Channel == "" {
		in.Channel = plugin.ChannelEmail
	}

	switch {
	case in.TargetType == "" || in.TargetID == "":
		return nil, goerr.Wrap(ErrInvalidInput, "reminder target is required")
	case in.Message == "":
		return nil, goerr.Wrap(ErrInvalidInput, "reminder message is required")
	case in.RemindAt.IsZero():
		return nil, goerr.Wrap(ErrInvalidInput, "reminder time is required")
	case in.Channel != plugin.ChannelEmail && in.Channel != plugin.ChannelInApp:
		return nil, goerr.Wrap(ErrInvalidInput, "unsupported reminder channel", goerr.V("channel", in.Channel))
	}

	r := &store.Reminder{
		TargetType: in.TargetType,
		TargetID:   in.TargetID,
		RemindAt:   in.RemindAt.UTC(),
		Channel:    in.Channel,
		Message:    in.Message,
		Recipient:  in.Recipient,
		CreatedBy:  actor,
	}
	inserted, err := s.store.InsertReminder(ctx, r)
	if err != nil {
		return nil, goerr.Wrap(err, "create reminder")
	}
	if !inserted {
		return nil, goerr.Wrap(ErrAlreadyExists, "reminder already scheduled",
			goerr.V("target_type", in.TargetType),
			goerr.V("target_id", in.TargetID),
			goerr.V("remind_at", r.RemindAt))
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, AuditRecord{
			Actor:      actor,
			ObjectType: "reminder",
			ObjectID:   itoa(r.ID),
			ActionType: "create",
			Summary:    "reminder scheduled for " + in.TargetType + " " + in.TargetID,
			Details:    map[string]any{"remind_at": r.RemindAt, "channel": r.Channel},
		}); err != nil {
			return nil, err
		}
	}
	return r, nil
}
