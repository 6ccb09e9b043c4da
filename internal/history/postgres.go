package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists match results in Postgres. Idempotency rides on the
// (session_id, user_id) primary key with ON CONFLICT DO NOTHING.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore creates a Postgres-backed history store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Save inserts the result row; a duplicate key is a silent no-op.
func (s *PGStore) Save(ctx context.Context, result MatchResult) error {
	if result.RecordedAt.IsZero() {
		result.RecordedAt = time.Now()
	}

	const query = `
		INSERT INTO match_results
			(session_id, user_id, opponent_id, room_id, result,
			 score_self, score_opponent, mode, mmr_change, round_scores, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id, user_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		result.SessionID, result.UserID, result.OpponentID, result.RoomID, result.Result,
		result.ScoreSelf, result.ScoreOpponent, result.Mode, result.MMRChange,
		toInt32s(result.RoundScores), result.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert match result: %w", err)
	}
	return nil
}

// Get fetches one participant's row, nil when absent.
func (s *PGStore) Get(ctx context.Context, sessionID, userID uuid.UUID) (*MatchResult, error) {
	const query = `
		SELECT session_id, user_id, opponent_id, room_id, result,
		       score_self, score_opponent, mode, mmr_change, round_scores, recorded_at
		FROM match_results
		WHERE session_id = $1 AND user_id = $2`

	rows, err := s.pool.Query(ctx, query, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("query match result: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	result, err := scanResult(rows.Scan)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListByUser returns a user's results, most recent first.
func (s *PGStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]MatchResult, error) {
	const query = `
		SELECT session_id, user_id, opponent_id, room_id, result,
		       score_self, score_opponent, mode, mmr_change, round_scores, recorded_at
		FROM match_results
		WHERE user_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query match results: %w", err)
	}
	defer rows.Close()

	var results []MatchResult
	for rows.Next() {
		result, err := scanResult(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func scanResult(scan func(dest ...any) error) (MatchResult, error) {
	var (
		result MatchResult
		scores []int32
	)
	err := scan(&result.SessionID, &result.UserID, &result.OpponentID, &result.RoomID,
		&result.Result, &result.ScoreSelf, &result.ScoreOpponent, &result.Mode,
		&result.MMRChange, &scores, &result.RecordedAt)
	if err != nil {
		return MatchResult{}, fmt.Errorf("scan match result: %w", err)
	}
	result.RoundScores = fromInt32s(scores)
	return result, nil
}

func toInt32s(in []int) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func fromInt32s(in []int32) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
