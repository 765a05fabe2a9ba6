package engine

import (
	"context"
	"errors"
	"fmt"

	"jobagent-engine/internal/domain"
	"jobagent-engine/internal/rank"
)

// RetryOneResult is the outcome of a RetryOne call.
type RetryOneResult string

const (
	RetryOneAccepted  RetryOneResult = "accepted"
	RetryOneNotFound  RetryOneResult = "not_found"
	RetryOneNotFailed RetryOneResult = "not_failed"
)

// ErrAlreadyRunning is returned by RetryOne when user already has a
// running Run, mirroring Start's single-flight rule.
var ErrAlreadyRunning = errors.New("already_running")

// RetryOne re-runs a single failed job through the same stage pipeline
// as a one-job mini-Run, reusing the profile/policy snapshot from the
// user's most recent Run (Start's managedRun is kept in the registry
// after termination precisely so a later RetryOne has something to
// reuse). Requires no currently-running Run for user, the same
// single-flight rule Start enforces.
func (e *Engine) RetryOne(ctx context.Context, userID, jobID string) (RetryOneResult, error) {
	e.mu.Lock()
	mr, ok := e.runs[userID]
	e.mu.Unlock()
	if !ok {
		return RetryOneNotFound, nil
	}
	if mr.state.snapshot().Status == domain.RunRunning {
		return "", ErrAlreadyRunning
	}

	rec, found, err := e.tracker.Get(ctx, userID, jobID)
	if err != nil {
		return RetryOneNotFound, err
	}
	if !found || rec.Status != domain.StatusFailed {
		return RetryOneNotFailed, nil
	}

	jobs, err := e.portal.ListJobs(ctx, map[string]string{"job_id": jobID})
	if err != nil {
		return RetryOneNotFound, fmt.Errorf("list jobs: %w", err)
	}
	var job domain.Posting
	var jobFound bool
	for _, j := range jobs {
		if j.ID == jobID {
			job, jobFound = j, true
			break
		}
	}
	if !jobFound {
		return RetryOneNotFound, nil
	}

	semanticScores := e.semanticScores(ctx, mr.profile, []domain.Posting{job})
	matches := rank.Rank(mr.profile, []domain.Posting{job}, mr.policy, semanticScores)
	if len(matches) == 0 {
		// Hard-filtered by the policy snapshot (blocked company / remote
		// requirement); nothing to retry.
		return RetryOneNotFailed, nil
	}

	go func() {
		runCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		e.processOne(runCtx, userID, mr, job, matches[0], 1, 1)
	}()

	return RetryOneAccepted, nil
}
