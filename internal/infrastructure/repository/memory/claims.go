package memory

import (
	"context"
	"sync"
	"time"

	"archie-core-sync-layer/internal/ports"
)

type lease struct {
	holder    string
	expiresAt time.Time
}

// ClaimStore is a process-local ports.ClaimStore with lease expiry.
type ClaimStore struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// NewClaimStore creates an empty claim store.
func NewClaimStore() *ClaimStore {
	return &ClaimStore{leases: make(map[string]lease), now: time.Now}
}

var _ ports.ClaimStore = (*ClaimStore)(nil)

func (s *ClaimStore) Acquire(_ context.Context, key, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if l, ok := s.leases[key]; ok && now.Before(l.expiresAt) {
		return false, nil
	}
	s.leases[key] = lease{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *ClaimStore) Refresh(_ context.Context, key, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	l, ok := s.leases[key]
	if !ok || l.holder != holder || !now.Before(l.expiresAt) {
		return false, nil
	}
	s.leases[key] = lease{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *ClaimStore) Release(_ context.Context, key, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leases[key]; ok && l.holder == holder {
		delete(s.leases, key)
	}
	return nil
}

func (s *ClaimStore) Holder(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leases[key]
	if !ok || !s.now().Before(l.expiresAt) {
		return "", nil
	}
	return l.holder, nil
}
