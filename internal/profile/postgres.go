package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore reads and writes ratings on the profiles table.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore creates a Postgres-backed profile store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// CurrentMMR returns the user's rating, nil when unranked (NULL column or
// missing row).
func (s *PGStore) CurrentMMR(ctx context.Context, userID uuid.UUID) (*int, error) {
	var mmr *int
	err := s.pool.QueryRow(ctx, `SELECT mmr FROM profiles WHERE user_id = $1`, userID).Scan(&mmr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query mmr: %w", err)
	}
	return mmr, nil
}

// UpdateMMR upserts the user's rating.
func (s *PGStore) UpdateMMR(ctx context.Context, userID uuid.UUID, mmr int) error {
	const query = `
		INSERT INTO profiles (user_id, mmr, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET mmr = EXCLUDED.mmr, updated_at = now()`

	if _, err := s.pool.Exec(ctx, query, userID, mmr); err != nil {
		return fmt.Errorf("update mmr: %w", err)
	}
	return nil
}
