package ports

import (
	"context"
	"time"

	"archie-core-sync-layer/internal/domain"
)

// EncryptionService seals secrets at rest.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// ClaimStore holds the per-connection single-flight claim as a lease.
type ClaimStore interface {
	// Acquire takes the claim for key if free or expired.
	Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)
	// Refresh extends the lease if holder still owns it.
	Refresh(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)
	// Release drops the claim if holder still owns it.
	Release(ctx context.Context, key, holder string) error
	// Holder returns the current holder, or "" when free.
	Holder(ctx context.Context, key string) (string, error)
}

// MetricsRecorder receives sync telemetry.
type MetricsRecorder interface {
	JobFinished(jobType domain.JobType, state domain.JobState, duration time.Duration)
	ItemApplied(action domain.PlanAction, ok bool)
	ItemRetried()
	ActiveJobs(delta int)
}

// JobEvent is a live notification about a job.
type JobEvent struct {
	ConnectionID string             `json:"connection_id"`
	JobID        string             `json:"job_id"`
	State        domain.JobState    `json:"state"`
	Counters     domain.JobCounters `json:"counters"`
	Message      string             `json:"message,omitempty"`
	At           time.Time          `json:"at"`
}

// EventPublisher fans job events out to subscribers.
type EventPublisher interface {
	Publish(event *JobEvent)
}

// InviteClaims are the signed contents of an invite token.
type InviteClaims struct {
	InviteID        string
	InvitingShop    string
	DestinationShop string
	ExpiresAt       time.Time
}

// InviteTokenSigner issues and verifies invite tokens.
type InviteTokenSigner interface {
	Sign(claims InviteClaims) (string, error)
	Verify(token string) (InviteClaims, error)
}
