package questionbank

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSource loads questions from Postgres. Rows are sampled randomly so two
// consecutive matches do not replay the same pack.
type PGSource struct {
	pool *pgxpool.Pool
}

var _ Source = (*PGSource)(nil)

// NewPGSource creates a Postgres-backed question source.
func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

// Fetch samples count questions, optionally filtered by difficulty.
func (s *PGSource) Fetch(ctx context.Context, count int, difficulty string) ([]Question, error) {
	const base = `
		SELECT id, prompt, options, correct_index, difficulty
		FROM questions`

	var (
		rows pgx.Rows
		err  error
	)
	if difficulty == DifficultyAny {
		rows, err = s.pool.Query(ctx, base+` ORDER BY random() LIMIT $1`, count)
	} else {
		rows, err = s.pool.Query(ctx, base+` WHERE difficulty = $2 ORDER BY random() LIMIT $1`, count, difficulty)
	}
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.Prompt, &q.Options, &q.CorrectIndex, &q.Difficulty); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}

	if err := ValidateAll(questions, count); err != nil {
		return nil, err
	}
	return questions[:count], nil
}
