// Package tokenstore keeps the ids of revoked access tokens until they expire.
package tokenstore

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/darasa/core"
)

type memoryStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time // token id -> expiry
	now     func() time.Time
}

var _ core.TokenStore = (*memoryStore)(nil)

// NewMemoryStore returns a process-local TokenStore, for a single API instance.
func NewMemoryStore() *memoryStore {
	return &memoryStore{revoked: make(map[string]time.Time), now: time.Now}
}

func (s *memoryStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, exp := range s.revoked {
		if !exp.After(now) {
			delete(s.revoked, id)
		}
	}
	if expiresAt.After(now) {
		s.revoked[tokenID] = expiresAt
	}
	return nil
}

func (s *memoryStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.revoked[tokenID]
	return ok && exp.After(s.now()), nil
}
