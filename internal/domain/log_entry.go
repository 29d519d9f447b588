package domain

import "time"

// Severity of a log entry.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// LogEntry is an append-only per-connection activity record.
type LogEntry struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connection_id"`
	JobID        string    `json:"job_id,omitempty"`
	Severity     Severity  `json:"severity"`
	Code         Code      `json:"code,omitempty"`
	SKU          string    `json:"sku,omitempty"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

// HealthStatus is the derived classification of recent activity.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// HealthCounts are the inputs of the health classification.
type HealthCounts struct {
	Info            int `json:"info"`
	Warn            int `json:"warn"`
	Error           int `json:"error"`
	TotalOperations int `json:"total_operations"`
	CriticalEvents  int `json:"critical_events"`
}

// CountEntries tallies entries by severity. Unauthorized and dead-job
// entries count as critical events.
func CountEntries(entries []LogEntry, totalOperations int) HealthCounts {
	c := HealthCounts{TotalOperations: totalOperations}
	for _, e := range entries {
		switch e.Severity {
		case SeverityInfo:
			c.Info++
		case SeverityWarn:
			c.Warn++
		case SeverityError:
			c.Error++
		}
		if e.Code == CodeUnauthorized || e.Code == CodeJobDead {
			c.CriticalEvents++
		}
	}
	return c
}

// ErrorRatio is errors relative to operations; entries stand in for
// operations when no job activity was recorded.
func (c HealthCounts) ErrorRatio() float64 {
	ops := c.TotalOperations
	if ops == 0 {
		ops = c.Info + c.Warn + c.Error
	}
	if ops == 0 {
		return 0
	}
	return float64(c.Error) / float64(ops)
}

// ClassifyHealth is a pure function of counted entries.
func ClassifyHealth(c HealthCounts, criticalRatio float64) HealthStatus {
	if c.CriticalEvents > 0 {
		return HealthCritical
	}
	if c.Error == 0 {
		return HealthHealthy
	}
	if c.ErrorRatio() >= criticalRatio {
		return HealthCritical
	}
	return HealthWarning
}

// HealthReport is the caller-facing error summary.
type HealthReport struct {
	ConnectionID string       `json:"connection_id"`
	WindowHours  int          `json:"window_hours"`
	Status       HealthStatus `json:"status"`
	Counts       HealthCounts `json:"counts"`
	ErrorRatio   float64      `json:"error_ratio"`
	LastError    string       `json:"last_error,omitempty"`
	LastErrorAt  *time.Time   `json:"last_error_at,omitempty"`
}
