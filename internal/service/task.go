package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/patrickspencer/opstrack/internal/store"
)

// NewTask is the input to TaskService.CreateTask.
type NewTask struct {
	Title       string
	Description string
	Priority    store.Priority
	IsCritical  bool
	DueAt       *time.Time
	TargetType  string
	TargetID    string
	AssigneeID  string
}

type taskStore interface {
	InsertTask(ctx context.Context, t *store.Task) (bool, error)
}

// TaskService creates tasks.
type TaskService struct {
	store taskStore
	audit AuditLogger
}

// NewTaskService creates a TaskService. audit may be nil.
func NewTaskService(s taskStore, audit AuditLogger) *TaskService {
	return &TaskService{store: s, audit: audit}
}

// CreateTask creates an open task. A task with the same title for the same
// target yields an error wrapping ErrAlreadyExists.
func (s *TaskService) CreateTask(ctx context.Context, in NewTask, actor string) (*store.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, goerr.Wrap(ErrInvalidInput, "task title is required")
	}
	if in.Priority == "" {
		in.Priority = store.PriorityMedium
	}
	switch in.Priority {
	case store.PriorityLow, store.PriorityMedium, store.PriorityHigh:
	default:
		return nil, goerr.Wrap(ErrInvalidInput, "unsupported task priority", goerr.V("priority", in.Priority))
	}

	var dueAt *time.Time
	if in.DueAt != nil {
		d := in.DueAt.UTC()
		dueAt = &d
	}

	t := &store.Task{
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		IsCritical:  in.IsCritical,
		Status:      store.TaskOpen,
		DueAt:       dueAt,
		TargetType:  in.TargetType,
		TargetID:    in.TargetID,
		AssigneeID:  in.AssigneeID,
		CreatedBy:   actor,
	}
	inserted, err := s.store.InsertTask(ctx, t)
	if err != nil {
		return nil, goerr.Wrap(err, "create task")
	}
	if !inserted {
		return nil, goerr.Wrap(ErrAlreadyExists, "task already exists",
			goerr.V("title", in.Title),
			goerr.V("target_type", in.TargetType),
			goerr.V("target_id", in.TargetID))
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, AuditRecord{
			Actor:      actor,
			ObjectType: "task",
			ObjectID:   itoa(t.ID),
			ActionType: "create",
			Summary:    "task created: " + t.Title,
			Details:    map[string]any{"priority": string(t.Priority), "is_critical": t.IsCritical},
		}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
