// Package loop implements the loop engine: the Loop contract, the run wrapper
// that records every execution and deduplicates findings, the registry that
// triggers loops by name, and the read-side query service.
package loop

import (
	"context"
	"strings"

	"github.com/patrickspencer/opstrack/internal/config"
)

// Loop is one monitoring policy. Execute must be deterministic given the
// persisted state and run.Now(); it reports conditions through run.AddFinding.
type Loop interface {
	Name() string
	Description() string
	IntervalMinutes() int
	Enabled() bool
	Execute(ctx context.Context, run *Run) error
}

// Scheduled is implemented by loops that carry a cron expression overriding
// their interval.
type Scheduled interface {
	Schedule() string
}

// Base carries the fixed identity of a loop. Concrete loops embed it.
type Base struct {
	name            string
	description     string
	intervalMinutes int
	enabled         bool
	schedule        string
}

// NewBase returns an enabled Base.
func NewBase(name, description string, intervalMinutes int) Base {
	return Base{
		name:            name,
		description:     description,
		intervalMinutes: intervalMinutes,
		enabled:         true,
	}
}

func (b *Base) Name() string         { return b.name }
func (b *Base) Description() string  { return b.description }
func (b *Base) IntervalMinutes() int { return b.intervalMinutes }
func (b *Base) Enabled() bool        { return b.enabled }
func (b *Base) Schedule() string     { return b.schedule }

// Configure applies config overrides. Call before registering the loop.
func (b *Base) Configure(c config.LoopConfig) {
	b.enabled = c.EnabledOr(b.enabled)
	b.intervalMinutes = c.IntervalOr(b.intervalMinutes)
	b.schedule = strings.TrimSpace(c.Schedule)
}
