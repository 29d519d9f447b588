package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"
)

// ConnectionRepository is an in-memory ports.ConnectionRepository.
type ConnectionRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Connection
}

// NewConnectionRepository creates an empty repository.
func NewConnectionRepository() *ConnectionRepository {
	return &ConnectionRepository{items: make(map[string]domain.Connection)}
}

var _ ports.ConnectionRepository = (*ConnectionRepository)(nil)

func (r *ConnectionRepository) Create(_ context.Context, conn *domain.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[conn.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.items[conn.ID] = *conn
	return nil
}

func (r *ConnectionRepository) Get(_ context.Context, id string) (*domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *ConnectionRepository) ListByInstallation(_ context.Context, shop string) ([]*domain.Connection, error) {
	return r.filter(func(c domain.Connection) bool { return c.InstallationShop == shop }), nil
}

func (r *ConnectionRepository) ListActive(_ context.Context) ([]*domain.Connection, error) {
	return r.filter(func(c domain.Connection) bool { return c.Status == domain.ConnectionActive }), nil
}

func (r *ConnectionRepository) filter(keep func(domain.Connection) bool) []*domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Connection, 0)
	for _, c := range r.items {
		if keep(c) {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *ConnectionRepository) UpdateStatus(_ context.Context, id string, status domain.ConnectionStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Status = status
	c.StatusReason = reason
	c.UpdatedAt = time.Now()
	r.items[id] = c
	return nil
}

func (r *ConnectionRepository) RecordSync(_ context.Context, id string, syncedAt *time.Time, syncedItems int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if syncedAt != nil {
		at := *syncedAt
		c.LastSyncedAt = &at
	}
	c.SyncedItemCount += syncedItems
	c.UpdatedAt = time.Now()
	r.items[id] = c
	return nil
}

func (r *ConnectionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}
