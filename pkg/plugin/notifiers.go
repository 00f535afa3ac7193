package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// ErrUnknownChannel is returned when no notifier is registered for a channel.
var ErrUnknownChannel = errors.New("no notifier for channel")

// Notifiers maps channels to their notifier.
type Notifiers struct {
	mu    sync.RWMutex
	byKey map[string]Notifier
}

// NewNotifiers creates a set holding the given notifiers.
func NewNotifiers(ns ...Notifier) *Notifiers {
	set := &Notifiers{byKey: make(map[string]Notifier, len(ns))}
	for _, n := range ns {
		set.Add(n)
	}
	return set
}

// Add registers n for its channel, replacing any previous notifier.
func (s *Notifiers) Add(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[n.Channel()] = n
}

// Channels lists the registered channels in sorted order.
func (s *Notifiers) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byKey))
	for ch := range s.byKey {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Has reports whether a notifier exists for channel.
func (s *Notifiers) Has(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byKey[channel]
	return ok
}

// Notify dispatches n to the notifier registered for n.Channel.
func (s *Notifiers) Notify(ctx context.Context, n Notification) error {
	s.mu.RLock()
	notifier, ok := s.byKey[n.Channel]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, n.Channel)
	}
	return notifier.Notify(ctx, n)
}

// Init initialises every notifier with the block configured for its channel.
// A block naming a channel with no notifier is an error.
func (s *Notifiers) Init(blocks map[string]map[string]any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range blocks {
		if _, ok := s.byKey[ch]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
		}
	}
	for ch, n := range s.byKey {
		if err := n.Init(blocks[ch]); err != nil {
			return fmt.Errorf("init %s notifier: %w", ch, err)
		}
	}
	return nil
}

// Close closes every notifier and returns the first error.
func (s *Notifiers) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, n := range s.byKey {
		if err := n.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LogNotifier is a Notifier that only writes the notification to the log.
// The built-in email and in-app channels use it until a real transport is configured.
type LogNotifier struct {
	channel          string
	defaultRecipient string
	logger           zerolog.Logger
}

// NewLogNotifier creates a LogNotifier for channel.
func NewLogNotifier(channel string, logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{channel: channel, logger: logger.With().Str("channel", channel).Logger()}
}

func (l *LogNotifier) Name() string    { return "log-" + l.channel }
func (l *LogNotifier) Close() error     { return nil }
func (l *LogNotifier) Channel() string { return l.channel }

// Init reads the optional default_recipient used when a notification has none.
func (l *LogNotifier) Init(config map[string]any) error {
	for key, v := range config {
		switch key {
		case "default_recipient":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("%s: default_recipient must be a string", l.Name())
			}
			l.defaultRecipient = s
		default:
			return fmt.Errorf("%s: unknown option %q", l.Name(), key)
		}
	}
	return nil
}

// Notify logs the notification.
func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	recipient := n.Recipient
	if recipient == "" {
		recipient = l.defaultRecipient
	}
	l.logger.Info().
		Str("recipient", recipient).
		Int64("reminder_id", n.ReminderID).
		Str("target_type", n.TargetType).
		Str("target_id", n.TargetID).
		Time("remind_at", n.RemindAt).
		Msg(n.Message)
	return nil
}

// DefaultNotifiers returns log-backed notifiers for the built-in channels.
func DefaultNotifiers(logger zerolog.Logger) *Notifiers {
	return NewNotifiers(
		NewLogNotifier(ChannelEmail, logger),
		NewLogNotifier(ChannelInApp, logger),
	)
}
