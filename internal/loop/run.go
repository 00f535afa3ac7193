package loop

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/patrickspencer/opstrack/internal/realtime"
	"github.com/patrickspencer/opstrack/internal/service"
	"github.com/patrickspencer/opstrack/internal/store"
)

// Actor recorded on audit entries and side effects written by the engine.
const Actor = "loop_engine"

// Finding is the input to Run.AddFinding.
type Finding struct {
	Severity          store.Severity
	TargetType        string
	TargetID          string
	Message           string
	RecommendedAction string
}

func (f Finding) validate() error {
	if !f.Severity.Valid() {
		return goerr.Wrap(ErrInvalidFinding, "unknown severity", goerr.V("severity", f.Severity))
	}
	if strings.TrimSpace(f.TargetType) == "" {
		return goerr.Wrap(ErrInvalidFinding, "target type is required")
	}
	if strings.TrimSpace(f.Message) == "" {
		return goerr.Wrap(ErrInvalidFinding, "message is required")
	}
	return nil
}

// Run is the handle a loop receives for the duration of one execution. It is
// closed when Execute returns; later AddFinding calls fail with ErrRunClosed.
type Run struct {
	exec   *Executor
	record *store.LoopRun

	mu       sync.Mutex
	closed   bool
	findings []*store.LoopFinding
}

// ID returns the run ID.
func (r *Run) ID() string { return r.record.ID }

// LoopName returns the name of the loop being executed.
func (r *Run) LoopName() string { return r.record.LoopName }

// Now returns the engine clock in UTC. Loops must use it instead of time.Now.
func (r *Run) Now() time.Time { return r.exec.now().UTC() }

// Findings returns the findings emitted so far.
func (r *Run) Findings() []*store.LoopFinding {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*store.LoopFinding, len(r.findings))
	copy(out, r.findings)
	return out
}

// AddFinding records a finding unless the same condition was already reported
// within the dedup window. A suppressed duplicate returns nil, nil.
func (r *Run) AddFinding(ctx context.Context, f Finding) (*store.LoopFinding, error) {
	if r == nil {
		return nil, ErrRunClosed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, goerr.Wrap(ErrRunClosed, "add finding", goerr.V("run_id", r.record.ID))
	}
	if err := f.validate(); err != nil {
		return nil, err
	}

	e := r.exec
	loopName := r.record.LoopName
	now := e.now().UTC()
	sig := Signature(loopName, f.TargetType, f.TargetID, f.Message)

	seen, err := e.store.HasFindingSince(ctx, sig, now.Add(-e.window))
	if err != nil {
		return nil, goerr.Wrap(err, "check finding signature", goerr.V("loop", loopName))
	}
	if seen {
		return nil, nil
	}

	finding := &store.LoopFinding{
		ID:                store.NewID(),
		LoopRunID:         r.record.ID,
		LoopName:          loopName,
		Severity:          f.Severity,
		TargetType:        f.TargetType,
		TargetID:          f.TargetID,
		Message:           f.Message,
		RecommendedAction: f.RecommendedAction,
		Signature:         sig,
		DedupBucket:       store.DedupBucket(now, e.window),
		CreatedAt:         now,
	}
	inserted, err := e.store.InsertFinding(ctx, finding)
	if err != nil {
		return nil, goerr.Wrap(err, "insert finding", goerr.V("loop", loopName))
	}
	if !inserted {
		return nil, nil
	}
	r.findings = append(r.findings, finding)

	if f.Severity == store.SeverityCritical && e.audit != nil {
		err := e.audit.Log(ctx, service.AuditRecord{
			Actor:      Actor,
			ObjectType: f.TargetType,
			ObjectID:   f.TargetID,
			ActionType: "loop_finding",
			Summary:    fmt.Sprintf("[%s] %s", loopName, f.Message),
			Details: map[string]any{
				"severity":           string(f.Severity),
				"recommended_action": f.RecommendedAction,
			},
		})
		if err != nil {
			return nil, goerr.Wrap(err, "audit critical finding", goerr.V("finding_id", finding.ID))
		}
	}

	e.events.Publish(realtime.Event{
		Type:       realtime.EventFindingCreated,
		LoopName:   loopName,
		RunID:      r.record.ID,
		FindingID:  finding.ID,
		Severity:   string(finding.Severity),
		TargetType: finding.TargetType,
		TargetID:   finding.TargetID,
		Message:    finding.Message,
		At:         now,
	})
	return finding, nil
}

func (r *Run) close() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return len(r.findings)
}
