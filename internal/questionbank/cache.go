package questionbank

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 5 * time.Minute

// Cache provides Redis-backed question pack caching to offload DB calls.
// It wraps another Source and is itself a Source.
type Cache struct {
	client *redis.Client
	next   Source
	ttl    time.Duration
}

var _ Source = (*Cache)(nil)

// NewCache wraps next with a Redis pack cache.
func NewCache(client *redis.Client, next Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, next: next, ttl: ttl}
}

func (c *Cache) key(count int, difficulty string) string {
	if difficulty == DifficultyAny {
		difficulty = "any"
	}
	return fmt.Sprintf("questionpack:%s:%d", difficulty, count)
}

// Fetch serves a cached pack when present, otherwise fills from the wrapped
// source. Cache faults fall through to the source rather than failing.
func (c *Cache) Fetch(ctx context.Context, count int, difficulty string) ([]Question, error) {
	key := c.key(count, difficulty)

	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var questions []Question
		if json.Unmarshal(data, &questions) == nil && ValidateAll(questions, count) == nil {
			return questions[:count], nil
		}
	}

	questions, err := c.next.Fetch(ctx, count, difficulty)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(questions); err == nil {
		c.client.Set(ctx, key, data, c.ttl)
	}
	return questions, nil
}
