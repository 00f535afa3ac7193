package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickspencer/opstrack/internal/loop"
	"github.com/patrickspencer/opstrack/internal/store"
)

type runResponse struct {
	ID            string     `json:"id"`
	LoopName      string     `json:"loop_name"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	FindingsCount int        `json:"findings_count"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

func runToResponse(r *store.LoopRun) runResponse {
	resp := runResponse{
		ID:            r.ID,
		LoopName:      r.LoopName,
		Status:        string(r.Status),
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
		FindingsCount: r.FindingsCount,
		ErrorMessage:  r.ErrorMessage,
	}
	if r.FinishedAt != nil {
		resp.DurationMs = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
	}
	return resp
}

type findingResponse struct {
	ID                string    `json:"id"`
	LoopRunID         string    `json:"loop_run_id"`
	LoopName          string    `json:"loop_name"`
	Severity          string    `json:"severity"`
	TargetType        string    `json:"target_type"`
	TargetID          string    `json:"target_id"`
	Message           string    `json:"message"`
	RecommendedAction string    `json:"recommended_action,omitempty"`
	Signature         string    `json:"signature"`
	CreatedAt         time.Time `json:"created_at"`
}

func findingToResponse(f *store.LoopFinding) findingResponse {
	return findingResponse{
		ID:                f.ID,
		LoopRunID:         f.LoopRunID,
		LoopName:          f.LoopName,
		Severity:          string(f.Severity),
		TargetType:        f.TargetType,
		TargetID:          f.TargetID,
		Message:           f.Message,
		RecommendedAction: f.RecommendedAction,
		Signature:         f.Signature,
		CreatedAt:         f.CreatedAt,
	}
}

type pageResponse[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Pages    int `json:"pages"`
}

func toPageResponse[S, T any](p loop.Page[S], conv func(S) T) pageResponse[T] {
	items := make([]T, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, conv(it))
	}
	return pageResponse[T]{Items: items, Total: p.Total, Page: p.Page, PageSize: p.PageSize, Pages: p.Pages}
}

type loopStatusResponse struct {
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	IntervalMinutes int          `json:"interval_minutes"`
	IsEnabled       bool         `json:"is_enabled"`
	LastRun         *runResponse `json:"last_run"`
	NextRunAt       *time.Time   `json:"next_run_at,omitempty"`
	SkippedRuns     int          `json:"skipped_runs,omitempty"`
}

type statusResponse struct {
	Loops              []loopStatusResponse `json:"loops"`
	TotalRunsToday     int                  `json:"total_runs_today"`
	TotalFindingsToday int                  `json:"total_findings_today"`
}

func (a *API) handleLoopStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.Loops.GetStatus(r.Context(), a.Registry)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp := statusResponse{
		Loops:              make([]loopStatusResponse, 0, len(status.Loops)),
		TotalRunsToday:     status.TotalRunsToday,
		TotalFindingsToday: status.TotalFindingsToday,
	}
	for _, l := range status.Loops {
		item := loopStatusResponse{
			Name:            l.Name,
			Description:     l.Description,
			IntervalMinutes: l.IntervalMinutes,
			IsEnabled:       l.IsEnabled,
		}
		if l.LastRun != nil {
			last := runToResponse(l.LastRun)
			item.LastRun = &last
		}
		if a.Schedule != nil {
			if next, ok := a.Schedule.NextRun(l.Name); ok {
				item.NextRunAt = &next
			}
			item.SkippedRuns = a.Schedule.Skipped(l.Name)
		}
		resp.Loops = append(resp.Loops, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRunLoop(w http.ResponseWriter, r *http.Request) {
	run, err := a.Registry.RunByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runToResponse(run))
}

// handleRunAll reports every run that was recorded. A run that could not be
// persisted is logged; the others are still returned.
func (a *API) handleRunAll(w http.ResponseWriter, r *http.Request) {
	runs, err := a.Registry.RunAll(r.Context())
	if err != nil {
		if len(runs) == 0 {
			a.writeError(w, r, err)
			return
		}
		a.Logger.Error().Err(err).Int("recorded", len(runs)).Msg("run-all could not record every run")
	}
	result := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		result = append(result, runToResponse(run))
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := parsePageParams(q)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	page, err := a.Loops.GetLoopRuns(r.Context(), loop.RunFilter{
		LoopName: q.Get("loop_name"),
		Status:   store.RunStatus(q.Get("status")),
		From:     p.from,
		To:       p.to,
		Page:     p.page,
		PageSize: p.size,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(page, runToResponse))
}

type runDetailResponse struct {
	runResponse
	Findings []findingResponse `json:"findings"`
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	detail, err := a.Loops.GetLoopRunByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp := runDetailResponse{
		runResponse: runToResponse(detail.Run),
		Findings:    make([]findingResponse, 0, len(detail.Findings)),
	}
	for _, f := range detail.Findings {
		resp.Findings = append(resp.Findings, findingToResponse(f))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListFindings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := parsePageParams(q)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	page, err := a.Loops.GetFindings(r.Context(), loop.FindingFilter{
		LoopName:   q.Get("loop_name"),
		Severity:   store.Severity(q.Get("severity")),
		TargetType: q.Get("target_type"),
		From:       p.from,
		To:         p.to,
		Page:       p.page,
		PageSize:   p.size,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(page, findingToResponse))
}
