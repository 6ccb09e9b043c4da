package questionbank

import (
	"context"
	"math/rand"
	"sync"
)

// StaticSource serves questions from a fixed in-memory slice. Used by tests
// and bot-only matches where no database is wired.
type StaticSource struct {
	mu        sync.Mutex
	questions []Question
	shuffle   bool
}

var _ Source = (*StaticSource)(nil)

// NewStaticSource creates a static question source.
func NewStaticSource(questions []Question, shuffle bool) *StaticSource {
	return &StaticSource{questions: questions, shuffle: shuffle}
}

// Fetch returns the first count questions matching the difficulty.
func (s *StaticSource) Fetch(ctx context.Context, count int, difficulty string) ([]Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pool []Question
	for _, q := range s.questions {
		if difficulty == DifficultyAny || q.Difficulty == difficulty {
			pool = append(pool, q)
		}
	}
	if s.shuffle {
		rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	}

	if err := ValidateAll(pool, count); err != nil {
		return nil, err
	}
	out := make([]Question, count)
	copy(out, pool[:count])
	return out, nil
}
