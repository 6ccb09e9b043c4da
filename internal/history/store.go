// Package history persists duel outcomes. Each participant writes only its
// own row, write-once per match.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Result values for a persisted match outcome.
const (
	ResultWin  = "win"
	ResultLoss = "loss"
	ResultDraw = "draw"
)

// Duel modes.
const (
	ModeRanked = "ranked_duel"
	ModeBot    = "bot_duel"
)

// MatchResult is the write-once outcome row for one participant.
// RoundScores is padded with trailing zeros to exactly maxRounds entries
// even when the match ended early.
type MatchResult struct {
	SessionID     uuid.UUID `json:"session_id"`
	UserID        uuid.UUID `json:"user_id"`
	OpponentID    uuid.UUID `json:"opponent_id"`
	RoomID        string    `json:"room_id"`
	Result        string    `json:"result"`
	ScoreSelf     int       `json:"score_self"`
	ScoreOpponent int       `json:"score_opponent"`
	Mode          string    `json:"mode"`
	MMRChange     int       `json:"mmr_change"`
	RoundScores   []int     `json:"round_scores"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// Store persists match results. Save must be idempotent on
// (SessionID, UserID): a second write for the same key is a silent no-op.
type Store interface {
	Save(ctx context.Context, result MatchResult) error
	Get(ctx context.Context, sessionID, userID uuid.UUID) (*MatchResult, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]MatchResult, error)
}
