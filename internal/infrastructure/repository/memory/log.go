package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"
)

// LogRepository is an in-memory append-only ports.LogRepository.
type LogRepository struct {
	mu      sync.RWMutex
	entries []domain.LogEntry
}

// NewLogRepository creates an empty repository.
func NewLogRepository() *LogRepository {
	return &LogRepository{}
}

var _ ports.LogRepository = (*LogRepository)(nil)

func (r *LogRepository) Append(_ context.Context, entry *domain.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *LogRepository) ListSince(_ context.Context, connectionID string, since time.Time) ([]*domain.LogEntry, error) {
	return r.filter(func(e domain.LogEntry) bool {
		return e.ConnectionID == connectionID && !e.CreatedAt.Before(since)
	}), nil
}

func (r *LogRepository) ListAll(_ context.Context, connectionID string) ([]*domain.LogEntry, error) {
	return r.filter(func(e domain.LogEntry) bool { return e.ConnectionID == connectionID }), nil
}

func (r *LogRepository) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	var purged int64
	for _, e := range r.entries {
		if e.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return purged, nil
}

// filter returns matching entries oldest first.
func (r *LogRepository) filter(keep func(domain.LogEntry) bool) []*domain.LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.LogEntry, 0)
	for _, e := range r.entries {
		if keep(e) {
			e := e
			out = append(out, &e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
