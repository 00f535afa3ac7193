package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickspencer/opstrack/internal/service"
	"github.com/patrickspencer/opstrack/internal/store"
)

// RecordStore is the persistence behind the record endpoints.
type RecordStore interface {
	CreateDocument(ctx context.Context, d *store.Document) error
	ListDocuments(ctx context.Context) ([]*store.Document, error)
	CreateBonus(ctx context.Context, b *store.Bonus) error
	ListBonuses(ctx context.Context) ([]*store.Bonus, error)
	ListTasks(ctx context.Context) ([]*store.Task, error)
	ListReminders(ctx context.Context, q store.ReminderQuery) ([]*store.Reminder, error)
	ListAudit(ctx context.Context, q store.AuditQuery) ([]*store.AuditEntry, error)
}

type documentResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	DocType   string    `json:"doc_type"`
	OwnerID   string    `json:"owner_id"`
	ExpiresOn string    `json:"expires_on"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func documentToResponse(d *store.Document) documentResponse {
	return documentResponse{
		ID:        d.ID,
		Name:      d.Name,
		DocType:   d.DocType,
		OwnerID:   d.OwnerID,
		ExpiresOn: store.FormatDate(d.ExpiresOn),
		Status:    string(d.Status),
		CreatedAt: d.CreatedAt,
	}
}

type createDocumentRequest struct {
	Name      string `json:"name"`
	DocType   string `json:"doc_type"`
	OwnerID   string `json:"owner_id"`
	ExpiresOn string `json:"expires_on"`
}

func (a *API) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := a.Store.ListDocuments(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	result := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		result = append(result, documentToResponse(d))
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		a.writeError(w, r, badRequest("name is required"))
		return
	}
	expires, err := store.ParseDate(req.ExpiresOn)
	if err != nil {
		a.writeError(w, r, badRequest("expires_on must be YYYY-MM-DD"))
		return
	}

	doc := &store.Document{
		Name:      strings.TrimSpace(req.Name),
		DocType:   req.DocType,
		OwnerID:   req.OwnerID,
		ExpiresOn: expires,
	}
	if err := a.Store.CreateDocument(r.Context(), doc); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.audit(r, "document", doc.ID, "document created: "+doc.Name)
	writeJSON(w, http.StatusCreated, documentToResponse(doc))
}

type bonusResponse struct {
	ID        int64     `json:"id"`
	Recipient string    `json:"recipient"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	DueOn     string    `json:"due_on"`
	CreatedAt time.Time `json:"created_at"`
}

func bonusToResponse(b *store.Bonus) bonusResponse {
	return bonusResponse{
		ID:        b.ID,
		Recipient: b.Recipient,
		Amount:    b.Amount,
		Status:    string(b.Status),
		DueOn:     store.FormatDate(b.DueOn),
		CreatedAt: b.CreatedAt,
	}
}

type createBonusRequest struct {
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
	DueOn     string  `json:"due_on"`
}

func (a *API) handleListBonuses(w http.ResponseWriter, r *http.Request) {
	bonuses, err := a.Store.ListBonuses(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	result := make([]bonusResponse, 0, len(bonuses))
	for _, b := range bonuses {
		result = append(result, bonusToResponse(b))
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCreateBonus(w http.ResponseWriter, r *http.Request) {
	var req createBonusRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Recipient) == "" {
		a.writeError(w, r, badRequest("recipient is required"))
		return
	}
	if req.Amount <= 0 {
		a.writeError(w, r, badRequest("amount must be positive"))
		return
	}
	status := store.BonusStatus(req.Status)
	switch status {
	case "", store.BonusUnpaid, store.BonusPartial, store.BonusPaid:
	default:
		a.writeError(w, r, badRequest("unknown bonus status %q", req.Status))
		return
	}
	due, err := store.ParseDate(req.DueOn)
	if err != nil {
		a.writeError(w, r, badRequest("due_on must be YYYY-MM-DD"))
		return
	}

	b := &store.Bonus{
		Recipient: strings.TrimSpace(req.Recipient),
		Amount:    req.Amount,
		Status:    status,
		DueOn:     due,
	}
	if err := a.Store.CreateBonus(r.Context(), b); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.audit(r, "bonus", b.ID, "bonus created for "+b.Recipient)
	writeJSON(w, http.StatusCreated, bonusToResponse(b))
}

type taskResponse struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority"`
	IsCritical  bool       `json:"is_critical"`
	Status      string     `json:"status"`
	Archived    bool       `json:"archived"`
	DueAt       *time.Time `json:"due_at"`
	TargetType  string     `json:"target_type,omitempty"`
	TargetID    string     `json:"target_id,omitempty"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

func taskToResponse(t *store.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		IsCritical:  t.IsCritical,
		Status:      string(t.Status),
		Archived:    t.Archived,
		DueAt:       t.DueAt,
		TargetType:  t.TargetType,
		TargetID:    t.TargetID,
		AssigneeID:  t.AssigneeID,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
	}
}

type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	IsCritical  bool       `json:"is_critical"`
	DueAt       *time.Time `json:"due_at"`
	TargetType  string     `json:"target_type"`
	TargetID    string     `json:"target_id"`
	AssigneeID  string     `json:"assignee_id"`
}

func (a *API) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := a.Store.ListTasks(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	result := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		result = append(result, taskToResponse(t))
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	task, err := a.Tasks.CreateTask(r.Context(), service.NewTask{
		Title:       req.Title,
		Description: req.Description,
		Priority:    store.Priority(req.Priority),
		IsCritical:  req.IsCritical,
		DueAt:       req.DueAt,
		TargetType:  req.TargetType,
		TargetID:    req.TargetID,
		AssigneeID:  req.AssigneeID,
	}, Actor)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, taskToResponse(task))
}

type reminderResponse struct {
	ID         int64      `json:"id"`
	TargetType string     `json:"target_type"`
	TargetID   string     `json:"target_id"`
	RemindAt   time.Time  `json:"remind_at"`
	Channel    string     `json:"channel"`
	Message    string     `json:"message"`
	Recipient  string     `json:"recipient,omitempty"`
	Status     string     `json:"status"`
	SentAt     *time.Time `json:"sent_at"`
	Error      string     `json:"error,omitempty"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
}

func reminderToResponse(rm *store.Reminder) reminderResponse {
	return reminderResponse{
		ID:         rm.ID,
		TargetType: rm.TargetType,
		TargetID:   rm.TargetID,
		RemindAt:   rm.RemindAt,
		Channel:    rm.Channel,
		Message:    rm.Message,
		Recipient:  rm.Recipient,
		Status:     string(rm.Status),
		SentAt:     rm.SentAt,
		Error:      rm.Error,
		CreatedBy:  rm.CreatedBy,
		CreatedAt:  rm.CreatedAt,
	}
}

type createReminderRequest struct {
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	RemindAt   time.Time `json:"remind_at"`
	Channel    string    `json:"channel"`
	Message    string    `json:"message"`
	Recipient  string    `json:"recipient"`
}

func (a *API) handleListReminders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := store.ReminderStatus(q.Get("status"))
	switch status {
	case "", store.ReminderPending, store.ReminderSent, store.ReminderFailed:
	default:
		a.writeError(w, r, badRequest("unknown reminder status %q", status))
		return
	}
	limit, err := queryInt(q, "limit")
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	reminders, err := a.Store.ListReminders(r.Context(), store.ReminderQuery{
		Status:     status,
		TargetType: q.Get("target_type"),
		TargetID:   q.Get("target_id"),
		Limit:      limit,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	result := make([]reminderResponse, 0, len(reminders))
	for _, rm := range reminders {
		result = append(result, reminderToResponse(rm))
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var req createReminderRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	rm, err := a.Reminders.CreateReminder(r.Context(), service.NewReminder{
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		RemindAt:   req.RemindAt,
		Channel:    req.Channel,
		Message:    req.Message,
		Recipient:  req.Recipient,
	}, Actor)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reminderToResponse(rm))
}

type auditResponse struct {
	ID         string         `json:"id"`
	Actor      string         `json:"actor"`
	ObjectType string         `json:"object_type"`
	ObjectID   string         `json:"object_id"`
	ActionType string         `json:"action_type"`
	Summary    string         `json:"summary"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (a *API) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q, "limit")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	offset, err := queryOffset(q, "offset")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if limit == 0 {
		limit = 100
	}

	entries, err := a.Store.ListAudit(r.Context(), store.AuditQuery{
		Actor:      q.Get("actor"),
		ObjectType: q.Get("object_type"),
		ObjectID:   q.Get("object_id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	result := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, auditResponse{
			ID:         e.ID,
			Actor:      e.Actor,
			ObjectType: e.ObjectType,
			ObjectID:   e.ObjectID,
			ActionType: e.ActionType,
			Summary:    e.Summary,
			Details:    e.Details,
			CreatedAt:  e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

// audit records a create action. Failures are logged; the record already exists.
func (a *API) audit(r *http.Request, objectType string, id int64, summary string) {
	if a.Audit == nil {
		return
	}
	err := a.Audit.Log(r.Context(), service.AuditRecord{
		Actor:      Actor,
		ObjectType: objectType,
		ObjectID:   strconv.FormatInt(id, 10),
		ActionType: "create",
		Summary:    summary,
	})
	if err != nil {
		a.Logger.Warn().Err(err).Str("object_type", objectType).Int64("object_id", id).Msg("failed to write audit entry")
	}
}
