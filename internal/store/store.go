package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrRunNotRunning is returned when finishing a run that already reached a terminal state.
var ErrRunNotRunning = errors.New("loop run is not running")

// RunStatus is the lifecycle state of a loop run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Valid reports whether s is a known run status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// Severity ranks a finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// LoopRun is one execution attempt of one loop.
type LoopRun struct {
	ID            string
	LoopName      string
	Status        RunStatus
	StartedAt     time.Time
	FinishedAt    *time.Time
	FindingsCount int
	ErrorMessage  string
}

// LoopFinding is a single detected condition emitted during a run.
type LoopFinding struct {
	ID                string
	LoopRunID         string
	LoopName          string // populated on reads through loop_runs
	Severity          Severity
	TargetType        string
	TargetID          string
	Message           string
	RecommendedAction string
	Signature         string
	DedupBucket       string // set on insert, not read back
	CreatedAt         time.Time
}

// RunQuery filters and pages loop runs.
type RunQuery struct {
	LoopName string
	Status   RunStatus
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// FindingQuery filters and pages loop findings.
type FindingQuery struct {
	LoopName   string
	Severity   Severity
	TargetType string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// LoopStore persists loop runs and their findings.
type LoopStore interface {
	CreateRun(ctx context.Context, run *LoopRun) error
	FinishRun(ctx context.Context, run *LoopRun) error
	GetRun(ctx context.Context, id string) (*LoopRun, error)
	ListRuns(ctx context.Context, q RunQuery) ([]*LoopRun, int, error)
	LatestRun(ctx context.Context, loopName string) (*LoopRun, error)
	CountRunsSince(ctx context.Context, since time.Time) (int, error)

	HasFindingSince(ctx context.Context, signature string, since time.Time) (bool, error)
	InsertFinding(ctx context.Context, f *LoopFinding) (bool, error)
	ListFindingsByRun(ctx context.Context, runID string) ([]*LoopFinding, error)
	ListFindings(ctx context.Context, q FindingQuery) ([]*LoopFinding, int, error)
	CountFindingsSince(ctx context.Context, since time.Time) (int, error)
}

// DocumentStatus is the state of a tracked document.
type DocumentStatus string

const (
	DocumentActive   DocumentStatus = "active"
	DocumentArchived DocumentStatus = "archived"
)

// Document is a tracked document with an expiry date (contract, licence, ID).
type Document struct {
	ID        int64
	Name      string
	DocType   string
	OwnerID   string
	ExpiresOn time.Time // date, UTC midnight
	Status    DocumentStatus
	CreatedAt time.Time
}

// BonusStatus is the payment state of a bonus.
type BonusStatus string

const (
	BonusUnpaid  BonusStatus = "unpaid"
	BonusPartial BonusStatus = "partial"
	BonusPaid    BonusStatus = "paid"
)

// Bonus is a payout owed to a recipient by a due date.
type Bonus struct {
	ID        int64
	Recipient string
	Amount    float64
	Status    BonusStatus
	DueOn     time.Time // date, UTC midnight
	CreatedAt time.Time
}

// TaskStatus is the workflow state of a task.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskCancelled  TaskStatus = "cancelled"
)

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Task is a unit of work, optionally attached to a target entity.
type Task struct {
	ID          int64
	Title       string
	Description string
	Priority    Priority
	IsCritical  bool
	Status      TaskStatus
	Archived    bool
	DueAt       *time.Time
	TargetType  string
	TargetID    string
	AssigneeID  string
	CreatedBy   string
	CreatedAt   time.Time
}

// ReminderStatus is the delivery state of a reminder.
type ReminderStatus string

const (
	ReminderPending ReminderStatus = "pending"
	ReminderSent    ReminderStatus = "sent"
	ReminderFailed  ReminderStatus = "failed"
)

// Reminder is a notification scheduled for a point in time.
type Reminder struct {
	ID         int64
	TargetType string
	TargetID   string
	RemindAt   time.Time
	Channel    string
	Message    string
	Recipient  string
	Status     ReminderStatus
	SentAt     *time.Time
	Error      string
	CreatedBy  string
	CreatedAt  time.Time
}

// ReminderQuery filters reminders.
type ReminderQuery struct {
	Status     ReminderStatus
	TargetType string
	TargetID   string
	Limit      int
}

// AuditEntry is an append-only record of a notable action.
type AuditEntry struct {
	ID         string
	Actor      string
	ObjectType string
	ObjectID   string
	ActionType string
	Summary    string
	Details    map[string]any
	CreatedAt  time.Time
}

// AuditQuery filters audit entries.
type AuditQuery struct {
	Actor      string
	ObjectType string
	ObjectID   string
	Limit      int
	Offset     int
}
