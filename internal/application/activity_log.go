package application

import (
	"context"
	"fmt"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ActivityLog writes durable per-connection log entries and mirrors them to
// the operational log.
type ActivityLog struct {
	logs   ports.LogRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewActivityLog creates an activity log over logs.
func NewActivityLog(logs ports.LogRepository, logger zerolog.Logger) *ActivityLog {
	return &ActivityLog{logs: logs, logger: logger, now: time.Now}
}

// Record appends entry. Store failures are logged and swallowed so a
// logging outage never fails a sync.
func (a *ActivityLog) Record(ctx context.Context, entry domain.LogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.now()
	}

	var ev *zerolog.Event
	switch entry.Severity {
	case domain.SeverityError:
		ev = a.logger.Error()
	case domain.SeverityWarn:
		ev = a.logger.Warn()
	default:
		ev = a.logger.Info()
	}
	ev.Str("connectionId", entry.ConnectionID).
		Str("jobId", entry.JobID).
		Str("code", string(entry.Code)).
		Str("sku", entry.SKU).
		Msg(entry.Message)

	if err := a.logs.Append(ctx, &entry); err != nil {
		a.logger.Error().Err(err).Str("connectionId", entry.ConnectionID).Msg("Failed to append log entry")
	}
}

// Info records an informational entry.
func (a *ActivityLog) Info(ctx context.Context, connectionID, jobID, message string) {
	a.Record(ctx, domain.LogEntry{ConnectionID: connectionID, JobID: jobID, Severity: domain.SeverityInfo, Message: message})
}

// Warn records a warning entry.
func (a *ActivityLog) Warn(ctx context.Context, connectionID, jobID string, code domain.Code, sku, message string) {
	a.Record(ctx, domain.LogEntry{ConnectionID: connectionID, JobID: jobID, Severity: domain.SeverityWarn, Code: code, SKU: sku, Message: message})
}

// Error records an error entry classified by err.
func (a *ActivityLog) Error(ctx context.Context, connectionID, jobID, sku string, err error) {
	a.Record(ctx, domain.LogEntry{
		ConnectionID: connectionID,
		JobID:        jobID,
		Severity:     domain.SeverityError,
		Code:         domain.CodeOf(err),
		SKU:          sku,
		Message:      err.Error(),
	})
}

// PurgeBefore drops entries older than cutoff.
func (a *ActivityLog) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := a.logs.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge log entries: %w", err)
	}
	return n, nil
}
