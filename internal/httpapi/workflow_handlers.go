package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"jobagent-engine/internal/domain"
	"jobagent-engine/internal/engine"
)

// WorkflowHandler exposes the Engine's Start/Stop/Status/Subscribe
// operations over HTTP, per the HTTP Surface.
type WorkflowHandler struct {
	Engine   *engine.Engine
	validate *validator.Validate
}

func NewWorkflowHandler(e *engine.Engine) *WorkflowHandler {
	return &WorkflowHandler{Engine: e, validate: validator.New()}
}

type startRequest struct {
	UserID  string         `json:"user_id" validate:"required"`
	Profile domain.Profile `json:"profile" validate:"required"`
	Policy  domain.Policy  `json:"policy" validate:"required"`
}

// Start handles POST /workflow/start.
func (h *WorkflowHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "input_invalid", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "input_invalid", validationMessage(err))
		return
	}

	switch h.Engine.Start(req.UserID, req.Profile, req.Policy) {
	case engine.StartAlreadyRunning:
		WriteError(w, r, http.StatusConflict, "already_running", "a run is already in progress for this user")
	default:
		WriteJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
	}
}

// Kill handles POST /workflow/kill/{user_id}.
func (h *WorkflowHandler) Kill(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	switch h.Engine.Stop(userID) {
	case engine.StopStopped:
		WriteJSON(w, http.StatusOK, map[string]bool{"stopped": true})
	default:
		WriteError(w, r, http.StatusNotFound, "not_found", "no run in progress for this user")
	}
}

// Status handles GET /workflow/status/{user_id}.
func (h *WorkflowHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	run, ok := h.Engine.Status(userID)
	if !ok {
		WriteError(w, r, http.StatusNotFound, "not_found", "no run found for this user")
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// Stream handles GET /workflow/stream/{user_id} as SSE: a replay of the
// recent event history followed by live events until the subscription
// is torn down by the Event Bus (terminal event plus grace period) or
// the client disconnects.
func (h *WorkflowHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, r, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsubscribe := h.Engine.Subscribe(userID)
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
