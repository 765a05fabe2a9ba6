package main

import (
	"context"

	"jobagent-engine/internal/domain"
	"jobagent-engine/internal/engine"
	"jobagent-engine/internal/portal"
	"jobagent-engine/internal/retry"
)

// portalAdapter satisfies engine.PortalAdapter by converting between the
// Engine's narrow SubmitRequest shape and the portal package's wire
// SubmitRequest, so the engine package has no compile-time dependency on
// the concrete portal client.
type portalAdapter struct {
	client *portal.Client
}

func (a portalAdapter) ListJobs(ctx context.Context, filters map[string]string) ([]domain.Posting, error) {
	return a.client.ListJobs(ctx, filters)
}

func (a portalAdapter) Submit(ctx context.Context, req engine.SubmitRequest) (retry.Outcome, error) {
	return a.client.Submit(ctx, portal.SubmitRequest{
		JobID:            req.JobID,
		ApplicantName:    req.ApplicantName,
		ApplicantEmail:   req.ApplicantEmail,
		Resume:           req.Resume,
		CoverLetter:      req.CoverLetter,
		IdempotencyToken: req.IdempotencyToken,
	})
}
