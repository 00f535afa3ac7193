package plugin

import "time"

// Built-in delivery channels.
const (
	ChannelEmail = "email"
	ChannelInApp = "in_app"
)

// Notification is the payload handed to a Notifier when a reminder is due.
type Notification struct {
	ReminderID int64
	Channel    string
	TargetType string
	TargetID   string
	Message    string
	RemindAt   time.Time
	Recipient  string
	Metadata   map[string]any
}
