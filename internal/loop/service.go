package loop

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/patrickspencer/opstrack/internal/store"
)

// Pagination defaults.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// RunFilter selects loop runs.
type RunFilter struct {
	LoopName string
	Status   store.RunStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// FindingFilter selects loop findings.
type FindingFilter struct {
	LoopName   string
	Severity   store.Severity
	TargetType string
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}

// Page is one page of a listing. Total counts every match, not just Items.
type Page[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
	Pages    int
}

// RunDetail is a run with the findings it produced, newest first.
type RunDetail struct {
	Run      *store.LoopRun
	Findings []*store.LoopFinding
}

// LoopStatus describes one registered loop.
type LoopStatus struct {
	Name            string
	Description     string
	IntervalMinutes int
	LastRun         *store.LoopRun
	IsEnabled       bool
}

// Status is the overview of every loop plus today's totals.
type Status struct {
	Loops              []LoopStatus
	TotalRunsToday     int
	TotalFindingsToday int
}

// Service answers read-side questions about runs and findings.
type Service struct {
	store store.LoopStore
	now   func() time.Time
}

// NewService creates a Service. A nil now uses time.Now.
func NewService(s store.LoopStore, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: s, now: now}
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

func newPage[T any](items []T, total, page, size int) Page[T] {
	return Page[T]{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: size,
		Pages:    (total + size - 1) / size,
	}
}

// GetLoopRuns lists runs newest first.
func (s *Service) GetLoopRuns(ctx context.Context, f RunFilter) (Page[*store.LoopRun], error) {
	if f.Status != "" && !f.Status.Valid() {
		return Page[*store.LoopRun]{}, goerr.Wrap(ErrInvalidFilter, "unknown run status", goerr.V("status", f.Status))
	}
	page, size := normalizePage(f.Page, f.PageSize)
	runs, total, err := s.store.ListRuns(ctx, store.RunQuery{
		LoopName: f.LoopName,
		Status:   f.Status,
		From:     f.From,
		To:       f.To,
		Limit:    size,
		Offset:   (page - 1) * size,
	})
	if err != nil {
		return Page[*store.LoopRun]{}, goerr.Wrap(err, "list loop runs")
	}
	return newPage(runs, total, page, size), nil
}

// GetLoopRunByID returns a run and its findings.
func (s *Service) GetLoopRunByID(ctx context.Context, id string) (*RunDetail, error) {
	run, err := s.store.GetRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, goerr.Wrap(ErrRunNotFound, "get loop run", goerr.V("run_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "get loop run", goerr.V("run_id", id))
	}
	findings, err := s.store.ListFindingsByRun(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "list run findings", goerr.V("run_id", id))
	}
	return &RunDetail{Run: run, Findings: findings}, nil
}

// GetFindings lists findings newest first.
func (s *Service) GetFindings(ctx context.Context, f FindingFilter) (Page[*store.LoopFinding], error) {
	if f.Severity != "" && !f.Severity.Valid() {
		return Page[*store.LoopFinding]{}, goerr.Wrap(ErrInvalidFilter, "unknown severity", goerr.V("severity", f.Severity))
	}
	page, size := normalizePage(f.Page, f.PageSize)
	findings, total, err := s.store.ListFindings(ctx, store.FindingQuery{
		LoopName:   f.LoopName,
		Severity:   f.Severity,
		TargetType: f.TargetType,
		From:       f.From,
		To:         f.To,
		Limit:      size,
		Offset:     (page - 1) * size,
	})
	if err != nil {
		return Page[*store.LoopFinding]{}, goerr.Wrap(err, "list loop findings")
	}
	return newPage(findings, total, page, size), nil
}

// GetStatus reports every registered loop with its latest run, plus run and
// finding totals since the start of the current UTC day.
func (s *Service) GetStatus(ctx context.Context, reg *Registry) (*Status, error) {
	loops := reg.All()
	status := &Status{Loops: make([]LoopStatus, 0, len(loops))}
	for _, l := range loops {
		last, err := s.store.LatestRun(ctx, l.Name())
		if err != nil {
			return nil, goerr.Wrap(err, "latest loop run", goerr.V("loop", l.Name()))
		}
		status.Loops = append(status.Loops, LoopStatus{
			Name:            l.Name(),
			Description:     l.Description(),
			IntervalMinutes: l.IntervalMinutes(),
			LastRun:         last,
			IsEnabled:       l.Enabled(),
		})
	}

	midnight := s.now().UTC().Truncate(24 * time.Hour)
	var err error
	if status.TotalRunsToday, err = s.store.CountRunsSince(ctx, midnight); err != nil {
		return nil, goerr.Wrap(err, "count runs today")
	}
	if status.TotalFindingsToday, err = s.store.CountFindingsSince(ctx, midnight); err != nil {
		return nil, goerr.Wrap(err, "count findings today")
	}
	return status, nil
}
