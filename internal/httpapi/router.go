package httpapi

import "net/http"

// NewRouter wires every route in the HTTP Surface through the same
// middleware chain the teacher used for its handlers.
func NewRouter(deps Deps) http.Handler {
	workflow := NewWorkflowHandler(deps.Engine)
	trackerH := NewTrackerHandler(deps.Tracker, deps.Engine)
	health := HealthHandler{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Health)

	mux.HandleFunc("POST /workflow/start", workflow.Start)
	mux.HandleFunc("POST /workflow/kill/{user_id}", workflow.Kill)
	mux.HandleFunc("GET /workflow/status/{user_id}", workflow.Status)
	mux.HandleFunc("GET /workflow/stream/{user_id}", workflow.Stream)

	mux.HandleFunc("GET /tracker/applications/{user_id}", trackerH.List)
	mux.HandleFunc("POST /tracker/applications/{user_id}/{job_id}/retry", trackerH.Retry)
	mux.HandleFunc("DELETE /tracker/applications/{user_id}", trackerH.Clear)

	return Chain(mux, RequestID, Recover, AccessLog, Cors)
}
