package httpapi

import (
	"net/http"

	"jobagent-engine/internal/domain"
	"jobagent-engine/internal/engine"
	"jobagent-engine/internal/tracker"
)

// TrackerHandler exposes Tracker reads and the Engine's single-job retry
// operation over HTTP, per the HTTP Surface.
type TrackerHandler struct {
	Tracker *tracker.Tracker
	Engine  *engine.Engine
}

func NewTrackerHandler(t *tracker.Tracker, e *engine.Engine) *TrackerHandler {
	return &TrackerHandler{Tracker: t, Engine: e}
}

type applicationsResponse struct {
	Summary      summary                    `json:"summary"`
	Applications []domain.ApplicationRecord `json:"applications"`
}

type summary struct {
	Total     int `json:"total"`
	Submitted int `json:"submitted"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// List handles GET /tracker/applications/{user_id}?status=...
func (h *TrackerHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	statusFilter := domain.ApplicationStatus(r.URL.Query().Get("status"))

	records, err := h.Tracker.List(r.Context(), userID, statusFilter)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "internal", "failed to list applications")
		return
	}

	resp := applicationsResponse{Applications: records}
	resp.Summary.Total = len(records)
	for _, rec := range records {
		switch rec.Status {
		case domain.StatusSubmitted:
			resp.Summary.Submitted++
		case domain.StatusFailed:
			resp.Summary.Failed++
		case domain.StatusSkipped:
			resp.Summary.Skipped++
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Retry handles POST /tracker/applications/{user_id}/{job_id}/retry,
// wired to Engine.RetryOne rather than a bare status flip (see
// SPEC_FULL's HTTP Surface supplement).
func (h *TrackerHandler) Retry(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	jobID := r.PathValue("job_id")

	result, err := h.Engine.RetryOne(r.Context(), userID, jobID)
	if err != nil {
		if err == engine.ErrAlreadyRunning {
			WriteError(w, r, http.StatusConflict, "already_running", "a run is already in progress for this user")
			return
		}
		WriteError(w, r, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	switch result {
	case engine.RetryOneAccepted:
		WriteJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
	case engine.RetryOneNotFailed:
		WriteError(w, r, http.StatusNotFound, "not_found", "no failed application for this job")
	default:
		WriteError(w, r, http.StatusNotFound, "not_found", "no application record for this job")
	}
}

// Clear handles DELETE /tracker/applications/{user_id}.
func (h *TrackerHandler) Clear(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	n, err := h.Tracker.Clear(r.Context(), userID)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "internal", "failed to clear applications")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int64{"cleared": n})
}
