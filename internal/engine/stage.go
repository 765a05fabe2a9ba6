package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"jobagent-engine/internal/domain"
	"jobagent-engine/internal/personalize"
	"jobagent-engine/internal/policy"
	"jobagent-engine/internal/portal"
	"jobagent-engine/internal/retry"
)

// processOne drives a single job through the stage machine:
//
//	queued -> policy_pre -> personalizing -> grounding -> policy_post
//	        -> submitting -> (submitted|failed) -> tracker_write -> next
//	        or -> skipped -> tracker_write -> next
//
// A per-job error never terminates the Run; it is recorded on the
// Application Record and the loop continues. Only a stop decision from
// the policy gate (kill switch or daily cap) finalizes the Run, handled
// by the caller observing run.KillRequested after this returns.
func (e *Engine) processOne(ctx context.Context, userID string, mr *managedRun, job domain.Posting, match domain.Match, index, total int) {
	e.publish(userID, domain.Event{
		Type:         domain.EventJobProcessing,
		StageMessage: "policy_pre",
		CurrentIndex: index,
		TotalJobs:    total,
		Job:          &job,
	})

	inFlight, err := e.tracker.CountSubmittedToday(ctx, userID)
	if err != nil {
		log.Printf("level=error msg=\"daily cap lookup failed\" user_id=%s err=%v", userID, err)
	}

	decision := policy.PrePersonalize(job, match, mr.policy, mr.state.killRequested(), inFlight)
	if decision.Stop {
		mr.state.mutate(func(r *domain.Run) { r.KillRequested = true })
		return
	}
	if decision.Skip {
		e.skip(ctx, userID, mr, job, match, decision.Reason, index, total)
		return
	}

	e.publish(userID, domain.Event{Type: domain.EventStageUpdate, StageMessage: "personalizing", CurrentIndex: index, TotalJobs: total, Job: &job})
	personalization, err := e.personalizer.Personalize(ctx, mr.profile, job)
	if err != nil {
		e.fail(ctx, userID, mr, job, match, "personalization_failed", index, total)
		return
	}

	e.publish(userID, domain.Event{Type: domain.EventStageUpdate, StageMessage: "grounding", CurrentIndex: index, TotalJobs: total, Job: &job})
	personalization = personalize.Ground(mr.profile, personalization)
	grounded, totalReqs := personalization.GroundedCount()
	e.publish(userID, domain.Event{
		Type:         domain.EventStageUpdate,
		StageMessage: fmt.Sprintf("grounded %d/%d requirements", grounded, totalReqs),
		CurrentIndex: index,
		TotalJobs:    total,
		Job:          &job,
	})

	if d := policy.PostGround(personalization); d.Skip {
		e.skip(ctx, userID, mr, job, match, d.Reason, index, total)
		return
	}

	e.submit(ctx, userID, mr, job, match, personalization, index, total)
}

// skip records a skipped Application Record and emits job_skipped.
func (e *Engine) skip(ctx context.Context, userID string, mr *managedRun, job domain.Posting, match domain.Match, reason string, index, total int) {
	score := match.Score
	rec := domain.ApplicationRecord{
		UserID:     userID,
		JobID:      job.ID,
		JobTitle:   job.Title,
		Company:    job.Company,
		Status:     domain.StatusSkipped,
		Error:      reason,
		MatchScore: &score,
	}
	if err := e.tracker.UpsertAttempt(ctx, rec); err != nil {
		log.Printf("level=error msg=\"tracker write failed\" user_id=%s job_id=%s err=%v", userID, job.ID, err)
	}
	mr.state.mutate(func(r *domain.Run) { r.SkippedCount++; r.Cursor = index })
	e.publish(userID, domain.Event{
		Type:         domain.EventJobSkipped,
		StageMessage: reason,
		CurrentIndex: index,
		TotalJobs:    total,
		Job:          &job,
		Application:  &rec,
	})
}

// fail records a failed Application Record (personalization failure or
// other permanent per-job error) and emits application_result.
func (e *Engine) fail(ctx context.Context, userID string, mr *managedRun, job domain.Posting, match domain.Match, reason string, index, total int) {
	score := match.Score
	rec := domain.ApplicationRecord{
		UserID:     userID,
		JobID:      job.ID,
		JobTitle:   job.Title,
		Company:    job.Company,
		Status:     domain.StatusFailed,
		Error:      reason,
		MatchScore: &score,
	}
	if err := e.tracker.UpsertAttempt(ctx, rec); err != nil {
		log.Printf("level=error msg=\"tracker write failed\" user_id=%s job_id=%s err=%v", userID, job.ID, err)
	}
	mr.state.mutate(func(r *domain.Run) { r.FailedCount++; r.Cursor = index })
	e.publish(userID, domain.Event{
		Type:         domain.EventApplicationResult,
		StageMessage: reason,
		CurrentIndex: index,
		TotalJobs:    total,
		Job:          &job,
		Application:  &rec,
	})
}

// submit drives the Retry Executor against the Portal Adapter and
// records the outcome.
func (e *Engine) submit(ctx context.Context, userID string, mr *managedRun, job domain.Posting, match domain.Match, p domain.Personalization, index, total int) {
	req := SubmitRequest{
		JobID:            job.ID,
		ApplicantName:    mr.profile.Name,
		ApplicantEmail:   mr.profile.Email,
		Resume:           portal.BuildResumeText(mr.profile, ""),
		CoverLetter:      p.CoverLetter,
		IdempotencyToken: fmt.Sprintf("%s:%s", userID, job.ID),
	}

	submitFn := func(ctx context.Context) (retry.Outcome, error) {
		return e.portal.Submit(ctx, req)
	}

	onAttempt := func(attempt int) {
		e.publish(userID, domain.Event{
			Type:         domain.EventStageUpdate,
			StageMessage: fmt.Sprintf("submitting attempt=%d", attempt),
			CurrentIndex: index,
			TotalJobs:    total,
			Job:          &job,
		})
	}

	outcome, err := retry.Execute(ctx, e.retryCfg, submitFn, onAttempt, mr.state.killRequested)

	score := match.Score
	rec := domain.ApplicationRecord{
		UserID:     userID,
		JobID:      job.ID,
		JobTitle:   job.Title,
		Company:    job.Company,
		MatchScore: &score,
	}
	if outcome.Attempts > 0 {
		rec.RetryCount = outcome.Attempts - 1
	}
	now := time.Now().UTC()

	switch {
	case err == retry.ErrCancelled:
		rec.Status = domain.StatusFailed
		rec.Error = "cancelled"
		mr.state.mutate(func(r *domain.Run) { r.FailedCount++; r.Cursor = index })
	case err != nil:
		rec.Status = domain.StatusFailed
		rec.Error = err.Error()
		mr.state.mutate(func(r *domain.Run) { r.FailedCount++; r.Cursor = index })
	default:
		switch outcome.Kind {
		case retry.Submitted:
			rec.Status = domain.StatusSubmitted
			rec.SubmittedAt = &now
			rec.ConfirmationID = outcome.ConfirmationID
			mr.state.mutate(func(r *domain.Run) { r.SubmittedCount++; r.Cursor = index })
		case retry.DuplicateAtPortal:
			if outcome.ConfirmationID != "" {
				rec.Status = domain.StatusSubmitted
				rec.SubmittedAt = &now
				rec.ConfirmationID = outcome.ConfirmationID
				mr.state.mutate(func(r *domain.Run) { r.SubmittedCount++; r.Cursor = index })
			} else {
				rec.Status = domain.StatusSkipped
				rec.Error = "duplicate"
				mr.state.mutate(func(r *domain.Run) { r.SkippedCount++; r.Cursor = index })
			}
		default:
			rec.Status = domain.StatusFailed
			rec.Error = outcome.Message
			if rec.Error == "" {
				rec.Error = "upstream_transient"
			}
			mr.state.mutate(func(r *domain.Run) { r.FailedCount++; r.Cursor = index })
		}
	}

	if err := e.tracker.UpsertAttempt(ctx, rec); err != nil {
		log.Printf("level=error msg=\"tracker write failed\" user_id=%s job_id=%s err=%v", userID, job.ID, err)
	}

	eventType := domain.EventApplicationResult
	if rec.Status == domain.StatusSkipped {
		eventType = domain.EventJobSkipped
	}
	e.publish(userID, domain.Event{
		Type:         eventType,
		StageMessage: string(rec.Status),
		CurrentIndex: index,
		TotalJobs:    total,
		Job:          &job,
		Application:  &rec,
	})
}
