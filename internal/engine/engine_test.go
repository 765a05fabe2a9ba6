package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobagent-engine/internal/domain"
	"jobagent-engine/internal/events"
	"jobagent-engine/internal/retry"
	"jobagent-engine/internal/tracker"
)

type fakePortal struct {
	jobs    []domain.Posting
	listErr error
	submit  func(req SubmitRequest) (retry.Outcome, error)
}

func (f *fakePortal) ListJobs(ctx context.Context, filters map[string]string) ([]domain.Posting, error) {
	return f.jobs, f.listErr
}

func (f *fakePortal) Submit(ctx context.Context, req SubmitRequest) (retry.Outcome, error) {
	if f.submit != nil {
		return f.submit(req)
	}
	return retry.Outcome{Kind: retry.Submitted, ConfirmationID: "conf"}, nil
}

type fakePersonalizer struct {
	result domain.Personalization
	err    error
}

func (f *fakePersonalizer) Personalize(ctx context.Context, profile domain.Profile, job domain.Posting) (domain.Personalization, error) {
	if f.err != nil {
		return domain.Personalization{}, f.err
	}
	out := f.result
	out.JobID = job.ID
	return out, nil
}

func newTestEngine(t *testing.T, portal PortalAdapter, personalizer *fakePersonalizer) (*Engine, *tracker.Tracker) {
	t.Helper()
	db, err := tracker.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	trk := tracker.New(db)
	bus := events.NewBus(256, 128, 50*time.Millisecond)

	eng := New(Config{
		Portal:        portal,
		Personalizer:  personalizer,
		Tracker:       trk,
		Bus:           bus,
		RetryCfg:      retry.Config{MaxAttempts: 1, Base: time.Millisecond, Cap: 5 * time.Millisecond},
		MaxParallel:   1,
		KillPollEvery: 10 * time.Millisecond,
	})
	return eng, trk
}

func waitTerminal(t *testing.T, eng *Engine, userID string) domain.Run {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		run, ok := eng.Status(userID)
		if ok && run.Status != domain.RunRunning {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run did not reach a terminal state in time")
	return domain.Run{}
}

func TestEngine_StartRejectsSecondConcurrentRunForSameUser(t *testing.T) {
	portal := &fakePortal{jobs: []domain.Posting{{ID: "J1", Requirements: []string{"go"}}}}
	eng, _ := newTestEngine(t, portal, &fakePersonalizer{})

	profile := domain.Profile{Summary: "go engineer", Skills: []string{"go"}}
	pol := domain.Policy{Enabled: true, MinMatchThreshold: 0}

	res1 := eng.Start("u1", profile, pol)
	res2 := eng.Start("u1", profile, pol)

	assert.Equal(t, StartAccepted, res1)
	assert.Equal(t, StartAlreadyRunning, res2)

	waitTerminal(t, eng, "u1")
}

func TestEngine_SuccessfulSubmitIncrementsSubmittedCount(t *testing.T) {
	portal := &fakePortal{jobs: []domain.Posting{{ID: "J1", Requirements: []string{"go"}}}}
	eng, trk := newTestEngine(t, portal, &fakePersonalizer{})

	profile := domain.Profile{Summary: "go engineer", Skills: []string{"go"}}
	pol := domain.Policy{Enabled: true, MinMatchThreshold: 0}

	res := eng.Start("u1", profile, pol)
	require.Equal(t, StartAccepted, res)

	run := waitTerminal(t, eng, "u1")
	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, 1, run.SubmittedCount)
	assert.NotEmpty(t, run.RunID)

	rec, found, err := trk.Get(context.Background(), "u1", "J1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.StatusSubmitted, rec.Status)
}

func TestEngine_RetryCountPersistsAfterTransientRetriesThenSuccess(t *testing.T) {
	attempts := 0
	portal := &fakePortal{
		jobs: []domain.Posting{{ID: "J1", Requirements: []string{"go"}}},
		submit: func(req SubmitRequest) (retry.Outcome, error) {
			attempts++
			if attempts < 3 {
				return retry.Outcome{Kind: retry.Transient5xx, Message: "server error"}, nil
			}
			return retry.Outcome{Kind: retry.Submitted, ConfirmationID: "conf"}, nil
		},
	}
	db, err := tracker.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	trk := tracker.New(db)
	bus := events.NewBus(256, 128, 50*time.Millisecond)

	eng := New(Config{
		Portal:        portal,
		Personalizer:  &fakePersonalizer{},
		Tracker:       trk,
		Bus:           bus,
		RetryCfg:      retry.Config{MaxAttempts: 3, Base: time.Millisecond, Cap: 5 * time.Millisecond},
		MaxParallel:   1,
		KillPollEvery: 10 * time.Millisecond,
	})

	profile := domain.Profile{Summary: "go engineer", Skills: []string{"go"}}
	pol := domain.Policy{Enabled: true, MinMatchThreshold: 0}

	eng.Start("u1", profile, pol)
	run := waitTerminal(t, eng, "u1")
	assert.Equal(t, 1, run.SubmittedCount)

	rec, found, err := trk.Get(context.Background(), "u1", "J1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.StatusSubmitted, rec.Status)
	assert.Equal(t, 2, rec.RetryCount, "two transient failures before the succeeding third attempt")
}

func TestEngine_UngroundedEvidenceMapSkipsSubmission(t *testing.T) {
	portal := &fakePortal{jobs: []domain.Posting{{ID: "J1", Requirements: []string{"go"}}}}
	personalizer := &fakePersonalizer{result: domain.Personalization{
		EvidenceMap: []domain.EvidenceMapEntry{{Requirement: "Go", EvidenceIDClaim: "nonexistent"}},
	}}
	eng, trk := newTestEngine(t, portal, personalizer)

	profile := domain.Profile{Summary: "go engineer", Skills: []string{"go"}}
	pol := domain.Policy{Enabled: true, MinMatchThreshold: 0}

	eng.Start("u1", profile, pol)
	run := waitTerminal(t, eng, "u1")

	assert.Equal(t, 0, run.SubmittedCount)
	assert.Equal(t, 1, run.SkippedCount)

	rec, found, err := trk.Get(context.Background(), "u1", "J1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.StatusSkipped, rec.Status)
	assert.Equal(t, "ungrounded_claim", rec.Error)
}

func TestEngine_StopMarksKillRequestedAndStopsRun(t *testing.T) {
	portal := &fakePortal{jobs: []domain.Posting{
		{ID: "J1", Requirements: []string{"go"}},
		{ID: "J2", Requirements: []string{"go"}},
	}}
	blocked := make(chan struct{})
	portal.submit = func(req SubmitRequest) (retry.Outcome, error) {
		<-blocked
		return retry.Outcome{Kind: retry.Submitted, ConfirmationID: "conf"}, nil
	}
	eng, _ := newTestEngine(t, portal, &fakePersonalizer{})

	profile := domain.Profile{Summary: "go engineer", Skills: []string{"go"}}
	pol := domain.Policy{Enabled: true, MinMatchThreshold: 0}

	eng.Start("u1", profile, pol)
	time.Sleep(20 * time.Millisecond)

	res := eng.Stop("u1")
	assert.Equal(t, StopStopped, res)

	close(blocked)
	run := waitTerminal(t, eng, "u1")
	assert.Equal(t, domain.RunStopped, run.Status)
}

func TestEngine_StopOnUnknownUserReturnsNotFound(t *testing.T) {
	eng, _ := newTestEngine(t, &fakePortal{}, &fakePersonalizer{})
	assert.Equal(t, StopNotFound, eng.Stop("ghost"))
}

func TestEngine_StatusOnUnknownUserReturnsFalse(t *testing.T) {
	eng, _ := newTestEngine(t, &fakePortal{}, &fakePersonalizer{})
	_, ok := eng.Status("ghost")
	assert.False(t, ok)
}

func TestEngine_ListJobsFailureFailsTheRun(t *testing.T) {
	portal := &fakePortal{listErr: assertError{"portal down"}}
	eng, _ := newTestEngine(t, portal, &fakePersonalizer{})

	eng.Start("u1", domain.Profile{}, domain.Policy{Enabled: true})
	run := waitTerminal(t, eng, "u1")

	assert.Equal(t, domain.RunFailed, run.Status)
	require.Len(t, run.Errors, 1)
}

func TestEngine_RetryOneResubmitsAPreviouslyFailedJob(t *testing.T) {
	attempts := 0
	portal := &fakePortal{jobs: []domain.Posting{{ID: "J1", Requirements: []string{"go"}}}}
	portal.submit = func(req SubmitRequest) (retry.Outcome, error) {
		attempts++
		if attempts == 1 {
			return retry.Outcome{Kind: retry.PermanentClient, Message: "rejected"}, nil
		}
		return retry.Outcome{Kind: retry.Submitted, ConfirmationID: "conf-2"}, nil
	}
	eng, trk := newTestEngine(t, portal, &fakePersonalizer{})

	profile := domain.Profile{Summary: "go engineer", Skills: []string{"go"}}
	pol := domain.Policy{Enabled: true, MinMatchThreshold: 0}

	eng.Start("u1", profile, pol)
	firstRun := waitTerminal(t, eng, "u1")
	require.Equal(t, 1, firstRun.FailedCount)

	rec, found, err := trk.Get(context.Background(), "u1", "J1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, domain.StatusFailed, rec.Status)

	res, err := eng.RetryOne(context.Background(), "u1", "J1")
	require.NoError(t, err)
	assert.Equal(t, RetryOneAccepted, res)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec2, _, err := trk.Get(context.Background(), "u1", "J1")
		require.NoError(t, err)
		if rec2.Status == domain.StatusSubmitted {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("retried job never reached submitted status")
}

func TestEngine_RetryOneOnNonFailedJobReturnsNotFailed(t *testing.T) {
	portal := &fakePortal{jobs: []domain.Posting{{ID: "J1", Requirements: []string{"go"}}}}
	eng, _ := newTestEngine(t, portal, &fakePersonalizer{})

	eng.Start("u1", domain.Profile{Summary: "go", Skills: []string{"go"}}, domain.Policy{Enabled: true, MinMatchThreshold: 0})
	waitTerminal(t, eng, "u1")

	res, err := eng.RetryOne(context.Background(), "u1", "J1")
	require.NoError(t, err)
	assert.Equal(t, RetryOneNotFailed, res, "J1 was submitted successfully, so it is not eligible for retry")
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
