package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(JobQueued, JobRunning))
	assert.True(t, CanTransition(JobRunning, JobSucceeded))
	assert.True(t, CanTransition(JobRunning, JobFailed))
	assert.True(t, CanTransition(JobFailed, JobDead))

	assert.False(t, CanTransition(JobSucceeded, JobRunning))
	assert.False(t, CanTransition(JobRunning, JobQueued))
	assert.False(t, CanTransition(JobDead, JobQueued))
	assert.False(t, CanTransition(JobQueued, JobSucceeded))
}

func TestSyncJobTransition_StampsTimes(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	job := &SyncJob{State: JobQueued}

	require.NoError(t, job.Transition(JobRunning, start))
	require.NoError(t, job.Transition(JobSucceeded, start.Add(90*time.Second)))

	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.FinishedAt)
	assert.Equal(t, 90*time.Second, job.Duration)
	assert.Error(t, job.Transition(JobRunning, start))
}

func TestComputeProgress_ZeroTotal(t *testing.T) {
	now := time.Now()
	started := now.Add(-time.Minute)
	job := &SyncJob{State: JobRunning, StartedAt: &started}

	p := ComputeProgress(job, now)

	assert.Equal(t, 0.0, p.Percentage)
	assert.Equal(t, 0.0, p.ItemsPerMinute)
	assert.Nil(t, p.EstimatedMinutesRemaining)
	assert.Equal(t, 0, p.Remaining)
}

func TestComputeProgress_RateAndETA(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 2, 0, 0, time.UTC)
	started := now.Add(-2 * time.Minute)
	job := &SyncJob{
		State:     JobRunning,
		StartedAt: &started,
		Counters:  JobCounters{Total: 100, Completed: 30, Failed: 10},
	}

	p := ComputeProgress(job, now)

	assert.InDelta(t, 30.0, p.Percentage, 0.0001)
	assert.InDelta(t, 20.0, p.ItemsPerMinute, 0.0001)
	require.NotNil(t, p.EstimatedMinutesRemaining)
	assert.InDelta(t, 3.0, *p.EstimatedMinutesRemaining, 0.0001)
	assert.True(t, p.Active)
}

func TestComputeProgress_NotStarted(t *testing.T) {
	job := &SyncJob{State: JobQueued, Counters: JobCounters{Total: 10}}

	p := ComputeProgress(job, time.Now())

	assert.Nil(t, p.EstimatedMinutesRemaining)
	assert.Equal(t, 10, p.Remaining)
}
