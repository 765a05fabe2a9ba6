package domain

import "time"

// EventType is the tagged variant discriminator for Event.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow_started"
	EventStageUpdate       EventType = "stage_update"
	EventJobsFetched       EventType = "jobs_fetched"
	EventJobProcessing     EventType = "job_processing"
	EventApplicationResult EventType = "application_result"
	EventJobSkipped        EventType = "job_skipped"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventWorkflowFailed    EventType = "workflow_failed"
)

// Event is the SSE wire envelope and the Event Bus's unit of publish.
// Seq is assigned by the bus per user and is strictly increasing within
// a Run; it is the field subscribers use to detect gaps.
type Event struct {
	Seq          uint64             `json:"seq"`
	Ts           time.Time          `json:"ts"`
	Type         EventType          `json:"type"`
	StageMessage string             `json:"stage_message,omitempty"`
	CurrentIndex int                `json:"current_index,omitempty"`
	TotalJobs    int                `json:"total_jobs,omitempty"`
	Job          *Posting           `json:"job,omitempty"`
	Application  *ApplicationRecord `json:"application,omitempty"`
}
