// Package profile adapts the identity/profile collaborator: current MMR
// lookup and rating updates.
package profile

import (
	"context"

	"github.com/google/uuid"
)

// Store exposes the slice of the profile service the duel engine needs.
// A nil MMR means the participant is unranked.
type Store interface {
	CurrentMMR(ctx context.Context, userID uuid.UUID) (*int, error)
	UpdateMMR(ctx context.Context, userID uuid.UUID, mmr int) error
}
