package domain

import (
	"fmt"
	"time"
)

// JobType is the kind of sync execution.
type JobType string

const (
	JobFullSync    JobType = "full_sync"
	JobIncremental JobType = "incremental"
	JobPreview     JobType = "preview"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	return t == JobFullSync || t == JobIncremental || t == JobPreview
}

// JobState is the lifecycle state of a sync job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobDead      JobState = "dead"
)

// Active reports whether the state holds the connection's single-flight slot.
func (s JobState) Active() bool {
	return s == JobQueued || s == JobRunning
}

// Terminal reports whether no further transition is expected.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobDead
}

var allowedTransitions = map[JobState][]JobState{
	JobQueued:  {JobRunning, JobFailed},
	JobRunning: {JobSucceeded, JobFailed},
	JobFailed:  {JobDead},
}

// CanTransition reports whether from → to is a legal monotonic transition.
func CanTransition(from, to JobState) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// JobCounters are the durable progress counters of a job.
type JobCounters struct {
	Total     int `json:"total" bson:"total"`
	Completed int `json:"completed" bson:"completed"`
	Failed    int `json:"failed" bson:"failed"`
	Skipped   int `json:"skipped" bson:"skipped"`
	Retries   int `json:"retries" bson:"retries"`
}

// Remaining is the number of actionable items not yet applied.
func (c JobCounters) Remaining() int {
	r := c.Total - c.Completed - c.Failed
	if r < 0 {
		return 0
	}
	return r
}

// Processed is the number of actionable items applied either way.
func (c JobCounters) Processed() int {
	return c.Completed + c.Failed
}

// SyncJob is one execution attempt for a connection.
type SyncJob struct {
	ID              string        `json:"id"`
	ConnectionID    string        `json:"connection_id"`
	Type            JobType       `json:"type"`
	State           JobState      `json:"state"`
	Attempt         int           `json:"attempt"`
	RecoveredFrom   string        `json:"recovered_from,omitempty"`
	RetryOf         string        `json:"retry_of,omitempty"`
	Counters        JobCounters   `json:"counters"`
	LastError       string        `json:"last_error,omitempty"`
	CancelRequested bool          `json:"cancel_requested,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	HeartbeatAt     time.Time     `json:"heartbeat_at"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Transition moves the job to state to, stamping timestamps.
func (j *SyncJob) Transition(to JobState, now time.Time) error {
	if !CanTransition(j.State, to) {
		return fmt.Errorf("illegal job transition %s -> %s", j.State, to)
	}
	j.State = to
	j.HeartbeatAt = now
	switch to {
	case JobRunning:
		j.StartedAt = &now
	case JobSucceeded, JobFailed:
		j.FinishedAt = &now
		if j.StartedAt != nil {
			j.Duration = now.Sub(*j.StartedAt)
		}
	}
	return nil
}

// Progress is the derived live view of a job.
type Progress struct {
	ConnectionID              string     `json:"connection_id"`
	JobID                     string     `json:"job_id,omitempty"`
	State                     JobState   `json:"state,omitempty"`
	Active                    bool       `json:"active"`
	Total                     int        `json:"total"`
	Completed                 int        `json:"completed"`
	Failed                    int        `json:"failed"`
	Remaining                 int        `json:"remaining"`
	Percentage                float64    `json:"percentage"`
	ItemsPerMinute            float64    `json:"items_per_minute"`
	EstimatedMinutesRemaining *float64   `json:"estimated_minutes_remaining,omitempty"`
	StartedAt                 *time.Time `json:"started_at,omitempty"`
}

// ComputeProgress derives percentage, rate and ETA from counters at now.
func ComputeProgress(job *SyncJob, now time.Time) Progress {
	c := job.Counters
	p := Progress{
		ConnectionID: job.ConnectionID,
		JobID:        job.ID,
		State:        job.State,
		Active:       job.State.Active(),
		Total:        c.Total,
		Completed:    c.Completed,
		Failed:       c.Failed,
		Remaining:    c.Remaining(),
		StartedAt:    job.StartedAt,
	}
	if c.Total > 0 {
		p.Percentage = float64(c.Completed) / float64(c.Total) * 100
	}
	if job.StartedAt == nil {
		return p
	}
	end := now
	if job.FinishedAt != nil {
		end = *job.FinishedAt
	}
	elapsed := end.Sub(*job.StartedAt).Minutes()
	if elapsed <= 0 || c.Processed() == 0 {
		return p
	}
	p.ItemsPerMinute = float64(c.Processed()) / elapsed
	if p.ItemsPerMinute > 0 {
		eta := float64(p.Remaining) / p.ItemsPerMinute
		p.EstimatedMinutesRemaining = &eta
	}
	return p
}
