package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/patrickspencer/opstrack/internal/logging"
	"github.com/patrickspencer/opstrack/internal/loop"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// idleWait bounds how long Run sleeps when nothing is scheduled.
const idleWait = time.Minute

// slot is the scheduling state of one registered loop.
type slot struct {
	key      string
	schedule cron.Schedule
	next     time.Time
	running  bool
	skipped  int
}

// Scheduler fires the loops of a registry on their own schedules. Each due
// loop runs in its own goroutine; a loop still running when it comes due
// again is skipped for that tick rather than queued.
type Scheduler struct {
	reg    *loop.Registry
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	slots map[string]*slot
	wake  chan struct{}
	wg    sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used to compute fire times.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the scheduler logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a Scheduler for reg. Nothing is scheduled until Sync or Run.
func New(reg *loop.Registry, opts ...Option) *Scheduler {
	s := &Scheduler{
		reg:    reg,
		logger: logging.Component("scheduler"),
		now:    time.Now,
		slots:  make(map[string]*slot),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync reconciles the schedule with the registry. Disabled or unregistered
// loops are dropped; a loop whose schedule changed gets a fresh fire time.
func (s *Scheduler) Sync() error {
	now := s.now()
	var errs []error

	s.mu.Lock()
	seen := make(map[string]bool)
	for _, l := range s.reg.All() {
		name := l.Name()
		if !l.Enabled() {
			if _, ok := s.slots[name]; ok {
				s.logger.Info().Str("loop", name).Msg("loop disabled, unscheduled")
			}
			delete(s.slots, name)
			continue
		}
		seen[name] = true
		if err := s.refreshLocked(name, l, now); err != nil {
			errs = append(errs, err)
			delete(s.slots, name)
			seen[name] = false
		}
	}
	for name := range s.slots {
		if !seen[name] {
			delete(s.slots, name)
		}
	}
	s.mu.Unlock()

	s.signal()
	return errors.Join(errs...)
}

// refreshLocked re-reads the schedule of l. Caller must hold s.mu.
func (s *Scheduler) refreshLocked(name string, l loop.Loop, now time.Time) error {
	sched, err := ScheduleFor(l)
	if err != nil {
		return err
	}
	key := scheduleKey(l)
	sl, ok := s.slots[name]
	if !ok {
		sl = &slot{}
		s.slots[name] = sl
	}
	if !ok || sl.key != key {
		sl.key = key
		sl.schedule = sched
		sl.next = sched.Next(now)
		s.logger.Debug().Str("loop", name).Str("schedule", key).Time("next_run", sl.next).Msg("loop scheduled")
	}
	return nil
}

// NextRun returns when the named loop fires next.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[name]
	if !ok {
		return time.Time{}, false
	}
	return sl.next, true
}

// Skipped returns how many fires of the named loop were skipped because the
// previous run had not finished.
func (s *Scheduler) Skipped(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[name]; ok {
		return sl.skipped
	}
	return 0
}

// Run syncs with the registry and fires due loops until ctx is done. In-flight
// runs are waited for before it returns.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Sync(); err != nil {
		return err
	}

	timer := time.NewTimer(s.untilNext())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case <-s.wake:
		case <-timer.C:
			s.dispatch(ctx)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.untilNext())
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) untilNext() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var earliest time.Time
	for _, sl := range s.slots {
		if earliest.IsZero() || sl.next.Before(earliest) {
			earliest = sl.next
		}
	}
	if earliest.IsZero() {
		return idleWait
	}
	d := earliest.Sub(s.now())
	if d < 0 {
		return 0
	}
	return d
}

// dispatch starts every loop whose fire time has passed and advances its
// next fire time from the loop's current schedule.
func (s *Scheduler) dispatch(ctx context.Context) {
	now := s.now()
	var due []string

	s.mu.Lock()
	for name, sl := range s.slots {
		if sl.next.After(now) {
			continue
		}
		l, ok := s.reg.Get(name)
		if !ok {
			delete(s.slots, name)
			continue
		}
		if !l.Enabled() {
			s.logger.Info().Str("loop", name).Msg("loop disabled, unscheduled")
			delete(s.slots, name)
			continue
		}
		if err := s.refreshLocked(name, l, now); err != nil {
			s.logger.Error().Err(err).Str("loop", name).Msg("keeping previous schedule")
		}
		if !sl.next.After(now) {
			sl.next = sl.schedule.Next(now)
		}
		if sl.running {
			sl.skipped++
			s.logger.Warn().
				Str("loop", name).
				Int("skipped", sl.skipped).
				Time("next_run", sl.next).
				Msg("previous run still in progress, skipping")
			continue
		}
		sl.running = true
		due = append(due, name)
	}
	s.mu.Unlock()

	for _, name := range due {
		s.wg.Add(1)
		go s.fire(ctx, name)
	}
}

func (s *Scheduler) fire(ctx context.Context, name string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if sl, ok := s.slots[name]; ok {
			sl.running = false
		}
		s.mu.Unlock()
	}()

	run, err := s.reg.RunByName(ctx, name)
	switch {
	case errors.Is(err, loop.ErrLoopDisabled), errors.Is(err, loop.ErrLoopNotFound):
		s.logger.Info().Str("loop", name).Msg("loop no longer runnable")
	case err != nil:
		s.logger.Error().Err(err).Str("loop", name).Msg("scheduled run failed")
	default:
		s.logger.Debug().Str("loop", name).Str("run_id", run.ID).Str("status", string(run.Status)).Msg("scheduled run finished")
	}
}
