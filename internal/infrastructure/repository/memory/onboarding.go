package memory

import (
	"context"
	"sort"
	"sync"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"
)

// TemplateRepository is an in-memory ports.TemplateRepository.
type TemplateRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Template
}

// NewTemplateRepository creates an empty repository.
func NewTemplateRepository() *TemplateRepository {
	return &TemplateRepository{items: make(map[string]domain.Template)}
}

var _ ports.TemplateRepository = (*TemplateRepository)(nil)

func (r *TemplateRepository) Create(_ context.Context, template *domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[template.ID] = *template
	return nil
}

func (r *TemplateRepository) Get(_ context.Context, id string) (*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *TemplateRepository) ListByInstallation(_ context.Context, shop string) ([]*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Template, 0)
	for _, t := range r.items {
		if t.InstallationShop == shop {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *TemplateRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

// InviteRepository is an in-memory ports.InviteRepository.
type InviteRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Invite
}

// NewInviteRepository creates an empty repository.
func NewInviteRepository() *InviteRepository {
	return &InviteRepository{items: make(map[string]domain.Invite)}
}

var _ ports.InviteRepository = (*InviteRepository)(nil)

func (r *InviteRepository) Create(_ context.Context, invite *domain.Invite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[invite.ID] = *invite
	return nil
}

func (r *InviteRepository) Get(_ context.Context, id string) (*domain.Invite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return &i, nil
}

func (r *InviteRepository) ListByInstallation(_ context.Context, shop string) ([]*domain.Invite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Invite, 0)
	for _, i := range r.items {
		if i.InstallationShop == shop {
			i := i
			out = append(out, &i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (r *InviteRepository) Update(_ context.Context, invite *domain.Invite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[invite.ID]; !ok {
		return domain.ErrNotFound
	}
	r.items[invite.ID] = *invite
	return nil
}
