package models

import (
	"math"
	"time"
)

// Job lifecycle statuses persisted in the record store. Transitions are
// strictly monotonic: queued -> running -> done | error.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusError   = "error"
)

// JobRecord is the durable status snapshot for one job. Exactly one record
// exists per job id; it is created at intake and never deleted. The record
// is always written as a complete snapshot, never patched in place.
type JobRecord struct {
	JobID     string `json:"job_id"`
	JobStatus string `json:"job_status"`
	// QueueID identifies the service instance that accepted the job. It is
	// constant for the lifetime of a process.
	QueueID string `json:"queue_id"`
	// ProcessID identifies the worker that last touched the record. Empty
	// while the job is still queued.
	ProcessID string `json:"process_id,omitempty"`
	// Response is nil while queued/running. On done it holds the task
	// result; on error it holds a human-readable failure description.
	Response any `json:"response"`
	// EchoID is an optional caller-supplied correlation id, returned
	// unchanged.
	EchoID string `json:"id,omitempty"`
	// WebhookURL is normalized at intake; empty string means no
	// notification was requested.
	WebhookURL string `json:"webhook_url"`

	// Timings in seconds, filled in on the terminal transition.
	QueueTime float64 `json:"queue_time,omitempty"`
	RunTime   float64 `json:"run_time,omitempty"`
	TotalTime float64 `json:"total_time,omitempty"`
}

// QueueEntry is the ephemeral unit of work handed from intake to a worker.
// It is consumed exactly once and never persisted by the record store. The
// executable task is resolved from the worker handler registry by Type.
type QueueEntry struct {
	JobID      string         `json:"job_id"`
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload"`
	WebhookURL string         `json:"webhook_url"`
	EchoID     string         `json:"id,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// Seconds converts a duration to the persisted seconds representation,
// rounded to millisecond precision.
func Seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
