package plugin

import "context"

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	Name() string
	Init(config map[string]any) error
	Close() error
}

// Notifier delivers reminders over one channel.
type Notifier interface {
	Plugin
	Channel() string
	Notify(ctx context.Context, n Notification) error
}
