package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobagent-engine/internal/domain"
	"jobagent-engine/internal/engine"
	"jobagent-engine/internal/events"
	"jobagent-engine/internal/retry"
	"jobagent-engine/internal/tracker"
)

type stubPortal struct{ jobs []domain.Posting }

func (s *stubPortal) ListJobs(ctx context.Context, filters map[string]string) ([]domain.Posting, error) {
	return s.jobs, nil
}
func (s *stubPortal) Submit(ctx context.Context, req engine.SubmitRequest) (retry.Outcome, error) {
	return retry.Outcome{Kind: retry.Submitted, ConfirmationID: "conf"}, nil
}

type stubPersonalizer struct{}

func (stubPersonalizer) Personalize(ctx context.Context, profile domain.Profile, job domain.Posting) (domain.Personalization, error) {
	return domain.Personalization{JobID: job.ID}, nil
}

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	db, err := tracker.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	trk := tracker.New(db)
	bus := events.NewBus(256, 128, 50*time.Millisecond)

	eng := engine.New(engine.Config{
		Portal:       &stubPortal{jobs: []domain.Posting{{ID: "J1", Requirements: []string{"go"}}}},
		Personalizer: stubPersonalizer{},
		Tracker:      trk,
		Bus:          bus,
		RetryCfg:     retry.Config{MaxAttempts: 1, Base: time.Millisecond, Cap: time.Millisecond},
		MaxParallel:  1,
	})
	return Deps{Engine: eng, Tracker: trk}
}

func TestRouter_HealthReturnsOK(t *testing.T) {
	router := NewRouter(newTestDeps(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_StartRejectsMissingUserID(t *testing.T) {
	router := NewRouter(newTestDeps(t))
	body, _ := json.Marshal(map[string]any{"profile": map[string]any{"name": "A"}, "policy": map[string]any{"enabled": true}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/workflow/start", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_StartThenStatusThenKill(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	startBody, _ := json.Marshal(map[string]any{
		"user_id": "u1",
		"profile": map[string]any{"name": "Ada", "summary": "go engineer", "skills": []string{"go"}},
		"policy":  map[string]any{"enabled": true},
	})
	recStart := httptest.NewRecorder()
	router.ServeHTTP(recStart, httptest.NewRequest(http.MethodPost, "/workflow/start", bytes.NewReader(startBody)))
	require.Equal(t, http.StatusAccepted, recStart.Code)

	recStatus := httptest.NewRecorder()
	router.ServeHTTP(recStatus, httptest.NewRequest(http.MethodGet, "/workflow/status/u1", nil))
	assert.Equal(t, http.StatusOK, recStatus.Code)
	var run domain.Run
	require.NoError(t, json.Unmarshal(recStatus.Body.Bytes(), &run))
	assert.Equal(t, "u1", run.UserID)

	recKill := httptest.NewRecorder()
	router.ServeHTTP(recKill, httptest.NewRequest(http.MethodPost, "/workflow/kill/u1", nil))
	assert.Contains(t, []int{http.StatusOK, http.StatusNotFound}, recKill.Code, "the run may already be terminal by the time kill arrives")
}

func TestRouter_StatusOnUnknownUserReturns404(t *testing.T) {
	router := NewRouter(newTestDeps(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/workflow/status/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_TrackerListAndClear(t *testing.T) {
	deps := newTestDeps(t)
	require.NoError(t, deps.Tracker.UpsertAttempt(context.Background(), domain.ApplicationRecord{
		UserID: "u1", JobID: "J1", Status: domain.StatusSubmitted,
	}))
	router := NewRouter(deps)

	recList := httptest.NewRecorder()
	router.ServeHTTP(recList, httptest.NewRequest(http.MethodGet, "/tracker/applications/u1", nil))
	require.Equal(t, http.StatusOK, recList.Code)
	var resp applicationsResponse
	require.NoError(t, json.Unmarshal(recList.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Summary.Total)
	assert.Equal(t, 1, resp.Summary.Submitted)

	recClear := httptest.NewRecorder()
	router.ServeHTTP(recClear, httptest.NewRequest(http.MethodDelete, "/tracker/applications/u1", nil))
	assert.Equal(t, http.StatusOK, recClear.Code)

	recList2 := httptest.NewRecorder()
	router.ServeHTTP(recList2, httptest.NewRequest(http.MethodGet, "/tracker/applications/u1", nil))
	var resp2 applicationsResponse
	require.NoError(t, json.Unmarshal(recList2.Body.Bytes(), &resp2))
	assert.Equal(t, 0, resp2.Summary.Total)
}

func TestRouter_TrackerRetryOnMissingRecordReturns404(t *testing.T) {
	router := NewRouter(newTestDeps(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tracker/applications/u1/J1/retry", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_RequestIDHeaderIsSet(t *testing.T) {
	router := NewRouter(newTestDeps(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
