package api

import (
	"encoding/json"
	"time"
)

// DaemonStatus reports daemon runtime information.
type DaemonStatus struct {
	Running       bool     `json:"running"`
	PID           int      `json:"pid"`
	ActiveJobs    int      `json:"active_jobs"`
	Instances     []string `json:"instances,omitempty"`
	JournalDBPath string   `json:"journal_db_path,omitempty"`
	LockFilePath  string   `json:"lock_file_path,omitempty"`
}

// Job is one in-flight job.
type Job struct {
	JobID        string    `json:"job_id"`
	Instance     string    `json:"instance"`
	EndpointID   string    `json:"endpoint_id"`
	Cancelled    bool      `json:"cancelled"`
	RegisteredAt time.Time `json:"registered_at"`
}

// JobListResponse wraps the active job listing.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// SubmitRequest asks the daemon to start a job. Input is forwarded to the
// worker untouched.
type SubmitRequest struct {
	Instance string          `json:"instance,omitempty"`
	Input    json.RawMessage `json:"input"`
}

// SubmitResponse acknowledges an accepted job.
type SubmitResponse struct {
	JobID    string `json:"job_id"`
	Instance string `json:"instance"`
}

// CancelResponse reports the result of a cancel request.
type CancelResponse struct {
	JobID     string `json:"job_id"`
	Cancelled bool   `json:"cancelled"`
}

// InstanceHealth is one endpoint's worker and queue gauges, or the probe
// error when the endpoint was unreachable.
type InstanceHealth struct {
	Instance       string `json:"instance"`
	EndpointID     string `json:"endpoint_id"`
	WorkersIdle    int    `json:"workers_idle"`
	WorkersRunning int    `json:"workers_running"`
	JobsInQueue    int    `json:"jobs_in_queue"`
	JobsInProgress int    `json:"jobs_in_progress"`
	JobsCompleted  int    `json:"jobs_completed"`
	JobsFailed     int    `json:"jobs_failed"`
	Error          string `json:"error,omitempty"`
}

// HealthResponse wraps per-instance endpoint health.
type HealthResponse struct {
	Instances []InstanceHealth `json:"instances"`
}

// Run is one journaled run.
type Run struct {
	JobID       string          `json:"job_id"`
	Instance    string          `json:"instance"`
	EndpointID  string          `json:"endpoint_id"`
	Outcome     string          `json:"outcome"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// RunListResponse wraps the journal listing plus outcome totals.
type RunListResponse struct {
	Runs  []Run    `json:"runs"`
	Stats RunStats `json:"stats"`
}

// RunStats aggregates journal contents by outcome.
type RunStats struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
	TimedOut  int64 `json:"timed_out"`
}
