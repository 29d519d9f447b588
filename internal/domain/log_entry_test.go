package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func entries(sev Severity, code Code, n int) []LogEntry {
	out := make([]LogEntry, n)
	for i := range out {
		out[i] = LogEntry{Severity: sev, Code: code}
	}
	return out
}

func TestClassifyHealth(t *testing.T) {
	tests := []struct {
		name    string
		entries []LogEntry
		ops     int
		want    HealthStatus
	}{
		{name: "no entries", ops: 0, want: HealthHealthy},
		{name: "info only", entries: entries(SeverityInfo, "", 5), ops: 100, want: HealthHealthy},
		{name: "few errors", entries: entries(SeverityError, CodeUpstream, 2), ops: 100, want: HealthWarning},
		{name: "many errors", entries: entries(SeverityError, CodeUpstream, 20), ops: 100, want: HealthCritical},
		{name: "unauthorized", entries: entries(SeverityError, CodeUnauthorized, 1), ops: 1000, want: HealthCritical},
		{name: "dead job", entries: entries(SeverityError, CodeJobDead, 1), ops: 1000, want: HealthCritical},
		{name: "warnings only", entries: entries(SeverityWarn, CodeRateLimited, 50), ops: 100, want: HealthHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counts := CountEntries(tt.entries, tt.ops)
			assert.Equal(t, tt.want, ClassifyHealth(counts, 0.1))
		})
	}
}

func TestErrorRatio_FallsBackToEntries(t *testing.T) {
	c := CountEntries(append(entries(SeverityInfo, "", 3), entries(SeverityError, CodeUpstream, 1)...), 0)

	assert.InDelta(t, 0.25, c.ErrorRatio(), 0.0001)
}
