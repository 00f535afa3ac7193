package loop

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/patrickspencer/opstrack/internal/logging"
	"github.com/patrickspencer/opstrack/internal/realtime"
	"github.com/patrickspencer/opstrack/internal/service"
	"github.com/patrickspencer/opstrack/internal/store"
	"github.com/rs/zerolog"
)

// DefaultDedupWindow is how long a finding signature suppresses repeats.
const DefaultDedupWindow = 24 * time.Hour

// Executor wraps every loop execution in a persisted LoopRun.
type Executor struct {
	store  store.LoopStore
	audit  service.AuditLogger
	events *realtime.Broker
	logger zerolog.Logger
	now    func() time.Time
	window time.Duration

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock sets the clock used for run timestamps and finding dedup.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithDedupWindow overrides DefaultDedupWindow.
func WithDedupWindow(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithEvents publishes run and finding events to b.
func WithEvents(b *realtime.Broker) Option {
	return func(e *Executor) { e.events = b }
}

// WithLogger sets the executor logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an Executor. audit may be nil.
func NewExecutor(s store.LoopStore, audit service.AuditLogger, opts ...Option) *Executor {
	e := &Executor{
		store:  s,
		audit:  audit,
		logger: logging.Component("loop"),
		now:    time.Now,
		window: DefaultDedupWindow,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the executor clock in UTC.
func (e *Executor) Now() time.Time { return e.now().UTC() }

func (e *Executor) lockFor(name string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	mu, ok := e.locks[name]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[name] = mu
	}
	return mu
}

// Run executes l once. Failures inside the loop are recorded on the returned
// run; the error is non-nil only when the run record cannot be persisted.
func (e *Executor) Run(ctx context.Context, l Loop) (*store.LoopRun, error) {
	name := l.Name()
	mu := e.lockFor(name)
	mu.Lock()
	defer mu.Unlock()

	record := &store.LoopRun{
		ID:        store.NewID(),
		LoopName:  name,
		Status:    store.RunStatusRunning,
		StartedAt: e.now().UTC(),
	}
	if err := e.store.CreateRun(ctx, record); err != nil {
		return nil, goerr.Wrap(err, "create loop run", goerr.V("loop", name))
	}
	e.events.Publish(realtime.Event{
		Type:     realtime.EventRunStarted,
		LoopName: name,
		RunID:    record.ID,
		Status:   string(record.Status),
		At:       record.StartedAt,
	})

	run := &Run{exec: e, record: record}
	execErr := e.execute(ctx, l, run)
	count := run.close()

	finished := e.now().UTC()
	if finished.Before(record.StartedAt) {
		finished = record.StartedAt
	}
	record.FinishedAt = &finished
	record.FindingsCount = count
	if execErr != nil {
		record.Status = store.RunStatusFailed
		record.ErrorMessage = execErr.Error()
		if record.ErrorMessage == "" {
			record.ErrorMessage = "loop failed"
		}
	} else {
		record.Status = store.RunStatusCompleted
	}

	// The terminal write must land even when the caller gave up.
	if err := e.store.FinishRun(context.WithoutCancel(ctx), record); err != nil {
		return record, goerr.Wrap(err, "finish loop run", goerr.V("loop", name), goerr.V("run_id", record.ID))
	}

	evt := e.logger.Info()
	if execErr != nil {
		evt = e.logger.Warn().Err(execErr)
	}
	evt.Str("loop", name).
		Str("run_id", record.ID).
		Str("status", string(record.Status)).
		Int("findings", record.FindingsCount).
		Dur("duration", finished.Sub(record.StartedAt)).
		Msg("loop run finished")

	e.events.Publish(realtime.Event{
		Type:     realtime.EventRunCompleted,
		LoopName: name,
		RunID:    record.ID,
		Status:   string(record.Status),
		Message:  record.ErrorMessage,
		At:       finished,
	})
	return record, nil
}

func (e *Executor) execute(ctx context.Context, l Loop, run *Run) (err error) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error().
				Str("loop", l.Name()).
				Str("stack", string(debug.Stack())).
				Msgf("loop panicked: %v", p)
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return l.Execute(ctx, run)
}
