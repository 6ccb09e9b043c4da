package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type resultKey struct {
	sessionID uuid.UUID
	userID    uuid.UUID
}

// MemStore is an in-memory Store for tests and bot-only deployments.
type MemStore struct {
	mu      sync.Mutex
	results map[resultKey]MatchResult
	saves   int
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory history store.
func NewMemStore() *MemStore {
	return &MemStore{results: make(map[resultKey]MatchResult)}
}

// Save stores the result unless a row already exists for the key.
func (s *MemStore) Save(ctx context.Context, result MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := resultKey{sessionID: result.SessionID, userID: result.UserID}
	if _, exists := s.results[key]; exists {
		return nil
	}
	if result.RecordedAt.IsZero() {
		result.RecordedAt = time.Now()
	}
	s.results[key] = result
	s.saves++
	return nil
}

// Get returns the stored result or nil when absent.
func (s *MemStore) Get(ctx context.Context, sessionID, userID uuid.UUID) (*MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result, ok := s.results[resultKey{sessionID: sessionID, userID: userID}]; ok {
		out := result
		return &out, nil
	}
	return nil, nil
}

// ListByUser returns a user's results, most recent first.
func (s *MemStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []MatchResult
	for key, result := range s.results {
		if key.userID == userID {
			out = append(out, result)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WriteCount reports how many distinct rows were written. Test helper.
func (s *MemStore) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
