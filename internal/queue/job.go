// Package queue implements the priority/delayed/retry job primitive (C8)
// and its health aggregation (C16), layered over a durable KV store.
package queue

import (
	"time"
)

// Backoff describes how a failed job's retry delay is computed.
type Backoff struct {
	Type    string // "exponential" or "fixed"
	DelayMs int
}

// DefaultBackoff matches spec §4.8: exponential, 1000ms base.
func DefaultBackoff() Backoff {
	return Backoff{Type: "exponential", DelayMs: 1000}
}

// Job is a queued execution attempt of a task.
type Job struct {
	JobID        string
	Queue        string
	Name         string
	Data         map[string]interface{}
	Priority     int // 1-10, 10 highest
	Attempts     int
	MaxAttempts  int
	Backoff      Backoff
	SubmitTime   time.Time
	ScheduledFor time.Time
	Status       JobStatus
	LastError    string
}

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobWaiting   JobStatus = "waiting"
	JobDelayed   JobStatus = "delayed"
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobCounts summarizes a queue's current job population.
type JobCounts struct {
	Waiting   int
	Active    int
	Completed int
	Failed    int
	Delayed   int
}

// AddJobOptions configures AddJob/AddDelayedJob/AddJobWithRetry.
type AddJobOptions struct {
	Priority int // 1-10; 0 means "use default" (5)
	DelayMs  int
	Attempts int
	Backoff  Backoff
}

func (o AddJobOptions) normalized() AddJobOptions {
	if o.Priority == 0 {
		o.Priority = 5
	}
	if o.Attempts == 0 {
		o.Attempts = 1
	}
	if o.Backoff.Type == "" {
		o.Backoff = DefaultBackoff()
	}
	return o
}
