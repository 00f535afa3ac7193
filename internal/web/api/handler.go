package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickspencer/opstrack/internal/config"
	"github.com/patrickspencer/opstrack/internal/logging"
	"github.com/patrickspencer/opstrack/internal/loop"
	"github.com/patrickspencer/opstrack/internal/realtime"
	"github.com/patrickspencer/opstrack/internal/service"
	"github.com/rs/zerolog"
)

// Actor recorded for records created through the API.
const Actor = "api"

// ScheduleInfo reports scheduler state for a loop. It is nil when the
// scheduler is not running.
type ScheduleInfo interface {
	NextRun(name string) (time.Time, bool)
	Skipped(name string) int
}

// API holds dependencies for all API handlers.
type API struct {
	Registry  *loop.Registry
	Loops     *loop.Service
	Store     RecordStore
	Reminders *service.ReminderService
	Tasks     *service.TaskService
	Audit     service.AuditLogger
	Events    *realtime.Broker
	Schedule  ScheduleInfo
	GetConfig func() *config.Config
	Logger    zerolog.Logger
}

// New creates an API with the component logger set.
func New() *API {
	return &API{Logger: logging.Component("api")}
}

// RegisterRoutes mounts every API route under /api/v1.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/config", a.handleConfig)
		r.Get("/events", a.handleEvents)

		r.Route("/loops", func(r chi.Router) {
			r.Get("/status", a.handleLoopStatus)
			r.Post("/run-all", a.handleRunAll)
			r.Post("/{name}/run", a.handleRunLoop)
			r.Get("/runs", a.handleListRuns)
			r.Get("/runs/{id}", a.handleGetRun)
			r.Get("/findings", a.handleListFindings)
		})

		r.Get("/documents", a.handleListDocuments)
		r.Post("/documents", a.handleCreateDocument)
		r.Get("/bonuses", a.handleListBonuses)
		r.Post("/bonuses", a.handleCreateBonus)
		r.Get("/tasks", a.handleListTasks)
		r.Post("/tasks", a.handleCreateTask)
		r.Get("/reminders", a.handleListReminders)
		r.Post("/reminders", a.handleCreateReminder)
		r.Get("/audit", a.handleListAudit)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger := logging.Component("api")
		logger.Error().Err(err).Msg("failed to write JSON response")
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors to a status code. Unexpected errors are logged
// and reported without detail.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, loop.ErrLoopNotFound):
		writeMessage(w, http.StatusNotFound, "loop not found")
	case errors.Is(err, loop.ErrLoopDisabled):
		writeMessage(w, http.StatusNotFound, "loop is disabled")
	case errors.Is(err, loop.ErrRunNotFound):
		writeMessage(w, http.StatusNotFound, "run not found")
	case errors.Is(err, loop.ErrInvalidFilter), errors.Is(err, service.ErrInvalidInput), errors.Is(err, errBadRequest):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAlreadyExists):
		writeMessage(w, http.StatusConflict, "already exists")
	default:
		a.Logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}
