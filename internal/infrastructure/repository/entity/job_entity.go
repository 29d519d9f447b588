package entity

import (
	"time"

	"archie-core-sync-layer/internal/domain"
)

// MongoJobDoc represents a sync job in MongoDB. Counters are updated with
// $inc and never rewritten by state transitions.
type MongoJobDoc struct {
	ID              string             `bson:"_id"`
	ConnectionID    string             `bson:"connectionId"`
	Type            string             `bson:"type"`
	State           string             `bson:"state"`
	Attempt         int                `bson:"attempt"`
	RecoveredFrom   string             `bson:"recoveredFrom,omitempty"`
	RetryOf         string             `bson:"retryOf,omitempty"`
	Counters        domain.JobCounters `bson:"counters"`
	LastError       string             `bson:"lastError,omitempty"`
	CancelRequested bool               `bson:"cancelRequested"`
	CreatedAt       time.Time          `bson:"createdAt"`
	HeartbeatAt     time.Time          `bson:"heartbeatAt"`
	StartedAt       *time.Time         `bson:"startedAt,omitempty"`
	FinishedAt      *time.Time         `bson:"finishedAt,omitempty"`
	DurationMs      int64              `bson:"durationMs"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoJobDoc) ToDomain() *domain.SyncJob {
	return &domain.SyncJob{
		ID:              d.ID,
		ConnectionID:    d.ConnectionID,
		Type:            domain.JobType(d.Type),
		State:           domain.JobState(d.State),
		Attempt:         d.Attempt,
		RecoveredFrom:   d.RecoveredFrom,
		RetryOf:         d.RetryOf,
		Counters:        d.Counters,
		LastError:       d.LastError,
		CancelRequested: d.CancelRequested,
		CreatedAt:       d.CreatedAt,
		HeartbeatAt:     d.HeartbeatAt,
		StartedAt:       d.StartedAt,
		FinishedAt:      d.FinishedAt,
		Duration:        time.Duration(d.DurationMs) * time.Millisecond,
	}
}

// MongoJobDocFromDomain converts a domain entity to a MongoDB document
func MongoJobDocFromDomain(j *domain.SyncJob) *MongoJobDoc {
	return &MongoJobDoc{
		ID:              j.ID,
		ConnectionID:    j.ConnectionID,
		Type:            string(j.Type),
		State:           string(j.State),
		Attempt:         j.Attempt,
		RecoveredFrom:   j.RecoveredFrom,
		RetryOf:         j.RetryOf,
		Counters:        j.Counters,
		LastError:       j.LastError,
		CancelRequested: j.CancelRequested,
		CreatedAt:       j.CreatedAt,
		HeartbeatAt:     j.HeartbeatAt,
		StartedAt:       j.StartedAt,
		FinishedAt:      j.FinishedAt,
		DurationMs:      j.Duration.Milliseconds(),
	}
}
