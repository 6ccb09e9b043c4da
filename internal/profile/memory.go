package profile

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-memory profile store for tests and bot opponents.
type MemStore struct {
	mu      sync.Mutex
	ratings map[uuid.UUID]int
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory profile store.
func NewMemStore() *MemStore {
	return &MemStore{ratings: make(map[uuid.UUID]int)}
}

// Seed sets a user's rating directly. Test helper.
func (s *MemStore) Seed(userID uuid.UUID, mmr int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[userID] = mmr
}

// CurrentMMR returns nil for users without a rating yet.
func (s *MemStore) CurrentMMR(ctx context.Context, userID uuid.UUID) (*int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mmr, ok := s.ratings[userID]; ok {
		out := mmr
		return &out, nil
	}
	return nil, nil
}

// UpdateMMR stores the new rating.
func (s *MemStore) UpdateMMR(ctx context.Context, userID uuid.UUID, mmr int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[userID] = mmr
	return nil
}
