package config

import (
	"errors"
	"strings"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidInterval is returned for a negative interval override.
	ErrInvalidInterval = errors.New("interval_minutes must not be negative")
	// ErrInvalidDedupWindow is returned for a dedup window of zero or less.
	ErrInvalidDedupWindow = errors.New("dedup_window must be positive")
)

var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// LoopConfig overrides the built-in settings of a single loop.
type LoopConfig struct {
	Enabled         *bool  `yaml:"enabled" json:"enabled,omitempty"`
	IntervalMinutes int    `yaml:"interval_minutes" json:"interval_minutes,omitempty"`
	Schedule        string `yaml:"schedule" json:"schedule,omitempty"`
}

// EnabledOr returns the override when set, otherwise fallback.
func (l LoopConfig) EnabledOr(fallback bool) bool {
	if l.Enabled == nil {
		return fallback
	}
	return *l.Enabled
}

// IntervalOr returns the override when set, otherwise fallback.
func (l LoopConfig) IntervalOr(fallback int) int {
	if l.IntervalMinutes <= 0 {
		return fallback
	}
	return l.IntervalMinutes
}

// Validate checks the override values.
func (l LoopConfig) Validate() error {
	if l.IntervalMinutes < 0 {
		return ErrInvalidInterval
	}
	if s := strings.TrimSpace(l.Schedule); s != "" {
		if _, err := scheduleParser.Parse(s); err != nil {
			return err
		}
	}
	return nil
}
