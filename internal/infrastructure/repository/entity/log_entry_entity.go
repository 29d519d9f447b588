package entity

import (
	"time"

	"archie-core-sync-layer/internal/domain"
)

// MongoLogEntryDoc represents an activity log entry in MongoDB
type MongoLogEntryDoc struct {
	ID           string    `bson:"_id"`
	ConnectionID string    `bson:"connectionId"`
	JobID        string    `bson:"jobId,omitempty"`
	Severity     string    `bson:"severity"`
	Code         string    `bson:"code,omitempty"`
	SKU          string    `bson:"sku,omitempty"`
	Message      string    `bson:"message"`
	CreatedAt    time.Time `bson:"createdAt"`
}

func (d *MongoLogEntryDoc) ToDomain() *domain.LogEntry {
	return &domain.LogEntry{
		ID:           d.ID,
		ConnectionID: d.ConnectionID,
		JobID:        d.JobID,
		Severity:     domain.Severity(d.Severity),
		Code:         domain.Code(d.Code),
		SKU:          d.SKU,
		Message:      d.Message,
		CreatedAt:    d.CreatedAt,
	}
}

func MongoLogEntryDocFromDomain(e *domain.LogEntry) *MongoLogEntryDoc {
	return &MongoLogEntryDoc{
		ID:           e.ID,
		ConnectionID: e.ConnectionID,
		JobID:        e.JobID,
		Severity:     string(e.Severity),
		Code:         string(e.Code),
		SKU:          e.SKU,
		Message:      e.Message,
		CreatedAt:    e.CreatedAt,
	}
}
