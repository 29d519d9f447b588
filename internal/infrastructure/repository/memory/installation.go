// Package memory provides mutex-protected in-memory implementations of the
// repository ports.
package memory

import (
	"context"
	"sync"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"
)

// InstallationRepository is an in-memory ports.InstallationRepository.
type InstallationRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Installation
}

// NewInstallationRepository creates an empty repository.
func NewInstallationRepository() *InstallationRepository {
	return &InstallationRepository{items: make(map[string]domain.Installation)}
}

var _ ports.InstallationRepository = (*InstallationRepository)(nil)

func (r *InstallationRepository) Get(_ context.Context, shop string) (*domain.Installation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.items[shop]
	if !ok {
		return nil, nil
	}
	inst.Scopes = append([]string(nil), inst.Scopes...)
	return &inst, nil
}

func (r *InstallationRepository) Upsert(_ context.Context, installation *domain.Installation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst := *installation
	inst.Scopes = append([]string(nil), installation.Scopes...)
	r.items[inst.Shop] = inst
	return nil
}

func (r *InstallationRepository) MarkStale(_ context.Context, shop string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.items[shop]
	if !ok {
		return nil
	}
	inst.AccessToken = ""
	inst.Stale = true
	inst.UpdatedAt = at
	inst.UninstalledAt = &at
	r.items[shop] = inst
	return nil
}

// OAuthStateRepository is an in-memory ports.OAuthStateRepository.
type OAuthStateRepository struct {
	mu     sync.Mutex
	states map[string]domain.OAuthState
}

// NewOAuthStateRepository creates an empty repository.
func NewOAuthStateRepository() *OAuthStateRepository {
	return &OAuthStateRepository{states: make(map[string]domain.OAuthState)}
}

var _ ports.OAuthStateRepository = (*OAuthStateRepository)(nil)

func (r *OAuthStateRepository) Create(_ context.Context, state *domain.OAuthState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.states[state.State]; exists {
		return domain.ErrAlreadyExists
	}
	r.states[state.State] = *state
	return nil
}

func (r *OAuthStateRepository) Consume(_ context.Context, state string) (*domain.OAuthState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[state]
	if !ok {
		return nil, nil
	}
	delete(r.states, state)
	return &s, nil
}

func (r *OAuthStateRepository) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for key, s := range r.states {
		if s.Expired(now) {
			delete(r.states, key)
			n++
		}
	}
	return n, nil
}
