package loop

import (
	"context"
	"errors"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/patrickspencer/opstrack/internal/logging"
	"github.com/patrickspencer/opstrack/internal/store"
	"github.com/rs/zerolog"
)

// Registry holds the known loops in registration order and triggers them
// through an Executor.
type Registry struct {
	exec   *Executor
	logger zerolog.Logger

	mu    sync.RWMutex
	loops map[string]Loop
	order []string
}

// NewRegistry creates an empty Registry.
func NewRegistry(exec *Executor) *Registry {
	return &Registry{
		exec:   exec,
		logger: logging.Component("registry"),
		loops:  make(map[string]Loop),
	}
}

// Register adds l. Registering an existing name replaces that loop and keeps
// its position.
func (r *Registry) Register(l Loop) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := l.Name()
	if _, ok := r.loops[name]; ok {
		r.logger.Warn().Str("loop", name).Msg("loop registered twice, replacing previous registration")
	} else {
		r.order = append(r.order, name)
	}
	r.loops[name] = l
}

// Get returns the loop registered under name.
func (r *Registry) Get(name string) (Loop, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loops[name]
	return l, ok
}

// All returns every registered loop in registration order.
func (r *Registry) All() []Loop {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Loop, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.loops[name])
	}
	return out
}

// RunByName executes the named loop once.
func (r *Registry) RunByName(ctx context.Context, name string) (*store.LoopRun, error) {
	l, ok := r.Get(name)
	if !ok {
		return nil, goerr.Wrap(ErrLoopNotFound, "run loop", goerr.V("loop", name))
	}
	if !l.Enabled() {
		return nil, goerr.Wrap(ErrLoopDisabled, "run loop", goerr.V("loop", name))
	}
	return r.exec.Run(ctx, l)
}

// RunAll executes every enabled loop sequentially. A failing loop does not stop
// the others; only run persistence errors are returned.
func (r *Registry) RunAll(ctx context.Context) ([]*store.LoopRun, error) {
	runs := make([]*store.LoopRun, 0)
	var errs []error
	for _, l := range r.All() {
		if !l.Enabled() {
			continue
		}
		run, err := r.exec.Run(ctx, l)
		if err != nil {
			errs = append(errs, err)
		}
		if run != nil {
			runs = append(runs, run)
		}
	}
	return runs, errors.Join(errs...)
}
