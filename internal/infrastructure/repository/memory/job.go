package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"
)

// JobRepository is an in-memory ports.JobRepository.
type JobRepository struct {
	mu   sync.RWMutex
	jobs map[string]domain.SyncJob
}

// NewJobRepository creates an empty repository.
func NewJobRepository() *JobRepository {
	return &JobRepository{jobs: make(map[string]domain.SyncJob)}
}

var _ ports.JobRepository = (*JobRepository)(nil)

func (r *JobRepository) Create(_ context.Context, job *domain.SyncJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *JobRepository) Get(_ context.Context, id string) (*domain.SyncJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	return &j, nil
}

func (r *JobRepository) FindActive(_ context.Context, connectionID string) (*domain.SyncJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *domain.SyncJob
	for _, j := range r.jobs {
		if j.ConnectionID == connectionID && j.State.Active() {
			if found == nil || j.CreatedAt.After(found.CreatedAt) {
				j := j
				found = &j
			}
		}
	}
	return found, nil
}

func (r *JobRepository) TransitionState(_ context.Context, id string, from, to domain.JobState, job *domain.SyncJob) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if stored.State != from {
		return false, nil
	}
	stored.State = to
	stored.LastError = job.LastError
	stored.StartedAt = job.StartedAt
	stored.FinishedAt = job.FinishedAt
	stored.Duration = job.Duration
	stored.HeartbeatAt = job.HeartbeatAt
	r.jobs[id] = stored
	return true, nil
}

func (r *JobRepository) SetTotal(_ context.Context, id string, total, skipped int) error {
	return r.mutate(id, func(j *domain.SyncJob) {
		j.Counters.Total = total
		j.Counters.Skipped = skipped
	})
}

func (r *JobRepository) IncrementCounters(_ context.Context, id string, delta domain.JobCounters, heartbeat time.Time) error {
	return r.mutate(id, func(j *domain.SyncJob) {
		j.Counters.Completed += delta.Completed
		j.Counters.Failed += delta.Failed
		j.Counters.Skipped += delta.Skipped
		j.Counters.Retries += delta.Retries
		j.HeartbeatAt = heartbeat
	})
}

func (r *JobRepository) Heartbeat(_ context.Context, id string, at time.Time) error {
	return r.mutate(id, func(j *domain.SyncJob) { j.HeartbeatAt = at })
}

func (r *JobRepository) RequestCancel(_ context.Context, id string) error {
	return r.mutate(id, func(j *domain.SyncJob) { j.CancelRequested = true })
}

func (r *JobRepository) mutate(id string, fn func(*domain.SyncJob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(&j)
	r.jobs[id] = j
	return nil
}

func (r *JobRepository) ListByConnection(_ context.Context, connectionID string, limit int) ([]*domain.SyncJob, error) {
	out := r.filter(func(j domain.SyncJob) bool { return j.ConnectionID == connectionID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *JobRepository) ListByState(_ context.Context, state domain.JobState, limit int) ([]*domain.SyncJob, error) {
	out := r.filter(func(j domain.SyncJob) bool { return j.State == state })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *JobRepository) ListStale(_ context.Context, heartbeatBefore time.Time) ([]*domain.SyncJob, error) {
	return r.filter(func(j domain.SyncJob) bool {
		return j.State.Active() && j.HeartbeatAt.Before(heartbeatBefore)
	}), nil
}

func (r *JobRepository) ListSince(_ context.Context, connectionID string, since time.Time) ([]*domain.SyncJob, error) {
	return r.filter(func(j domain.SyncJob) bool {
		return j.ConnectionID == connectionID && !j.CreatedAt.Before(since)
	}), nil
}

func (r *JobRepository) DeleteByConnection(_ context.Context, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, j := range r.jobs {
		if j.ConnectionID == connectionID {
			delete(r.jobs, id)
		}
	}
	return nil
}

// filter returns matching jobs newest first.
func (r *JobRepository) filter(keep func(domain.SyncJob) bool) []*domain.SyncJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.SyncJob, 0)
	for _, j := range r.jobs {
		if keep(j) {
			j := j
			out = append(out, &j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}
