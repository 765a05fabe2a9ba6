package domain

import "time"

// ApplicationStatus is the lifecycle state of an Application Record.
type ApplicationStatus string

const (
	StatusQueued    ApplicationStatus = "queued"
	StatusSubmitted ApplicationStatus = "submitted"
	StatusFailed    ApplicationStatus = "failed"
	StatusSkipped   ApplicationStatus = "skipped"
	StatusRetried   ApplicationStatus = "retried"
)

// ApplicationRecord is the Tracker's persisted row. At most one record
// exists per (UserID, JobID); retries mutate the row in place.
type ApplicationRecord struct {
	UserID         string            `json:"user_id"`
	JobID          string            `json:"job_id"`
	JobTitle       string            `json:"job_title"`
	Company        string            `json:"company"`
	Status         ApplicationStatus `json:"status"`
	SubmittedAt    *time.Time        `json:"submitted_at,omitempty"`
	ConfirmationID string            `json:"confirmation_id,omitempty"`
	Error          string            `json:"error,omitempty"`
	RetryCount     int               `json:"retry_count"`
	MatchScore     *int              `json:"match_score,omitempty"`
	MatchReasoning string            `json:"match_reasoning,omitempty"`
}
