package model

import "time"

// JobStatus is the lifecycle state of an asynchronous batch job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job tracks one orchestrator invocation submitted through the HTTP API.
// Jobs live in memory only and are removed by explicit delete.
type Job struct {
	ID        string             `json:"jobId"`
	Status    JobStatus          `json:"status"`
	Config    BatchConfig        `json:"config"`
	Wallet    string             `json:"wallet,omitempty"`
	Progress  int                `json:"progress"`
	Results   []SubmissionResult `json:"results,omitempty"`
	Failures  []FailureRecord    `json:"failures,omitempty"`
	Summary   *BatchRunSummary   `json:"summary,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// JobSummary is the list-view projection of a Job.
type JobSummary struct {
	ID        string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	Mode      Mode      `json:"mode"`
	Progress  int       `json:"progress"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
