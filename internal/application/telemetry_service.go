package application

import (
	"context"
	"fmt"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"

	"github.com/rs/zerolog"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
	defaultHealthWindow = 24
)

// TelemetryService derives progress, history and health from stored jobs
// and log entries. It never touches executor state.
type TelemetryService struct {
	connections   ports.ConnectionRepository
	jobs          ports.JobRepository
	logs          ports.LogRepository
	planner       *Planner
	activity      *ActivityLog
	logger        zerolog.Logger
	criticalRatio float64
	previewLimit  int
	now           func() time.Time
}

// NewTelemetryService creates a telemetry service.
func NewTelemetryService(
	connections ports.ConnectionRepository,
	jobs ports.JobRepository,
	logs ports.LogRepository,
	planner *Planner,
	activity *ActivityLog,
	logger zerolog.Logger,
	criticalRatio float64,
	previewLimit int,
) *TelemetryService {
	if criticalRatio <= 0 {
		criticalRatio = 0.1
	}
	if previewLimit <= 0 {
		previewLimit = 50
	}
	return &TelemetryService{
		connections:   connections,
		jobs:          jobs,
		logs:          logs,
		planner:       planner,
		activity:      activity,
		logger:        logger,
		criticalRatio: criticalRatio,
		previewLimit:  previewLimit,
		now:           time.Now,
	}
}

// GetProgress reports the active job, or the latest one when idle.
func (s *TelemetryService) GetProgress(ctx context.Context, shop, connectionID string) (*domain.Progress, error) {
	conn, err := loadOwnedConnection(ctx, s.connections, shop, connectionID)
	if err != nil {
		return nil, err
	}
	job, err := s.jobs.FindActive(ctx, conn.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active job: %w", err)
	}
	if job == nil {
		latest, err := s.jobs.ListByConnection(ctx, conn.ID, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to list jobs: %w", err)
		}
		if len(latest) == 0 {
			return &domain.Progress{ConnectionID: conn.ID}, nil
		}
		job = latest[0]
	}
	p := domain.ComputeProgress(job, s.now())
	return &p, nil
}

// GetHistory returns recent jobs newest first.
func (s *TelemetryService) GetHistory(ctx context.Context, shop, connectionID string, limit int) ([]*domain.SyncJob, error) {
	conn, err := loadOwnedConnection(ctx, s.connections, shop, connectionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	jobs, err := s.jobs.ListByConnection(ctx, conn.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// GetHealth classifies the log entries of the last windowHours.
func (s *TelemetryService) GetHealth(ctx context.Context, shop, connectionID string, windowHours int) (*domain.HealthReport, error) {
	conn, err := loadOwnedConnection(ctx, s.connections, shop, connectionID)
	if err != nil {
		return nil, err
	}
	if windowHours <= 0 {
		windowHours = defaultHealthWindow
	}
	since := s.now().Add(-time.Duration(windowHours) * time.Hour)

	entries, err := s.logs.ListSince(ctx, conn.ID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	jobs, err := s.jobs.ListSince(ctx, conn.ID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	ops := 0
	for _, j := range jobs {
		ops += j.Counters.Processed()
	}

	values := make([]domain.LogEntry, 0, len(entries))
	report := &domain.HealthReport{ConnectionID: conn.ID, WindowHours: windowHours}
	for _, e := range entries {
		values = append(values, *e)
		if e.Severity == domain.SeverityError && (report.LastErrorAt == nil || e.CreatedAt.After(*report.LastErrorAt)) {
			at := e.CreatedAt
			report.LastError = e.Message
			report.LastErrorAt = &at
		}
	}
	report.Counts = domain.CountEntries(values, ops)
	report.ErrorRatio = report.Counts.ErrorRatio()
	report.Status = domain.ClassifyHealth(report.Counts, s.criticalRatio)
	return report, nil
}

// Preview samples the plan for a connection without writing.
func (s *TelemetryService) Preview(ctx context.Context, shop, connectionID string, limit int) (*domain.Preview, error) {
	conn, err := loadOwnedConnection(ctx, s.connections, shop, connectionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.previewLimit {
		limit = s.previewLimit
	}
	preview, err := s.planner.Preview(ctx, conn, limit)
	if err != nil {
		s.activity.Error(ctx, conn.ID, "", "", fmt.Errorf("preview failed: %w", err))
		return nil, err
	}
	return preview, nil
}

// ExportLogs returns every log entry of a connection, oldest first.
func (s *TelemetryService) ExportLogs(ctx context.Context, shop, connectionID string) ([]*domain.LogEntry, error) {
	conn, err := loadOwnedConnection(ctx, s.connections, shop, connectionID)
	if err != nil {
		return nil, err
	}
	entries, err := s.logs.ListAll(ctx, conn.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	return entries, nil
}
