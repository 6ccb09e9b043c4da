// Package lobby holds the room store: who is waiting to duel and under what
// format. Placement of strangers into rooms is owned elsewhere; this store
// only tracks rooms that already exist.
package lobby

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Room statuses.
const (
	StatusWaiting  = "waiting"
	StatusStarting = "starting"
	StatusActive   = "active"
)

// MaxDuelists is the fixed room capacity: duels are strictly 1v1.
const MaxDuelists = 2

// Room represents one duel room.
type Room struct {
	Code              string
	SessionID         *uuid.UUID // set when the duel starts
	HostID            uuid.UUID
	Format            int // best-of-N, N odd
	QuestionsPerRound int
	Participants      []Participant
	Status            string
	CreatedAt         time.Time
}

// Participant in a room.
type Participant struct {
	UserID      uuid.UUID
	DisplayName string
	IsBot       bool
	IsHost      bool
	JoinedAt    time.Time
}

// CreateRequest configures a new room.
type CreateRequest struct {
	HostID            uuid.UUID
	DisplayName       string
	Format            int
	QuestionsPerRound int
}

// Manager handles room creation, joining, and lifecycle.
type Manager struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	logger zerolog.Logger
}

// NewManager creates a room manager.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		rooms:  make(map[string]*Room),
		logger: logger,
	}
}

// Create generates a unique 6-digit code and initializes a room.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Room, error) {
	if req.Format < 1 || req.Format%2 == 0 {
		return nil, fmt.Errorf("format must be a positive odd number, got %d", req.Format)
	}
	if req.QuestionsPerRound < 1 {
		return nil, fmt.Errorf("questions per round must be positive, got %d", req.QuestionsPerRound)
	}

	code := m.generateCode()
	room := &Room{
		Code:              code,
		HostID:            req.HostID,
		Format:            req.Format,
		QuestionsPerRound: req.QuestionsPerRound,
		Participants: []Participant{
			{
				UserID:      req.HostID,
				DisplayName: req.DisplayName,
				IsHost:      true,
				JoinedAt:    time.Now(),
			},
		},
		Status:    StatusWaiting,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.rooms[code] = room
	m.mu.Unlock()

	m.logger.Info().
		Str("room_code", code).
		Str("host_id", req.HostID.String()).
		Int("format", req.Format).
		Msg("room created")

	return room, nil
}

// Join adds a participant to an existing room.
func (m *Manager) Join(ctx context.Context, code string, userID uuid.UUID, displayName string, isBot bool) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[code]
	if !exists {
		return nil, fmt.Errorf("room not found")
	}
	if room.Status != StatusWaiting {
		return nil, fmt.Errorf("room not accepting participants")
	}
	for _, p := range room.Participants {
		if p.UserID == userID {
			// Rejoining is a no-op so a client can retry a failed start.
			return room, nil
		}
	}
	if len(room.Participants) >= MaxDuelists {
		return nil, fmt.Errorf("room full")
	}

	room.Participants = append(room.Participants, Participant{
		UserID:      userID,
		DisplayName: displayName,
		IsBot:       isBot,
		JoinedAt:    time.Now(),
	})

	m.logger.Info().
		Str("room_code", code).
		Str("user_id", userID.String()).
		Int("participant_count", len(room.Participants)).
		Msg("participant joined room")

	return room, nil
}

// Get retrieves a room by code.
func (m *Manager) Get(code string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, exists := m.rooms[code]
	if !exists {
		return nil, fmt.Errorf("room not found")
	}
	return room, nil
}

// Start transitions a full room to starting and pins the session ID.
func (m *Manager) Start(ctx context.Context, code string, sessionID uuid.UUID) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[code]
	if !exists {
		return nil, fmt.Errorf("room not found")
	}
	if room.Status != StatusWaiting {
		return nil, fmt.Errorf("room cannot be started")
	}
	if len(room.Participants) < MaxDuelists {
		return nil, fmt.Errorf("need %d participants", MaxDuelists)
	}

	room.SessionID = &sessionID
	room.Status = StatusStarting

	m.logger.Info().
		Str("room_code", code).
		Str("session_id", sessionID.String()).
		Msg("room starting")

	return room, nil
}

// Abort reopens a room after a failed duel launch: the status reverts to
// waiting, the pinned session is dropped, and bot fills leave so their
// slot frees up for another attempt.
func (m *Manager) Abort(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[code]
	if !exists {
		return
	}
	room.SessionID = nil
	room.Status = StatusWaiting
	kept := room.Participants[:0]
	for _, p := range room.Participants {
		if !p.IsBot {
			kept = append(kept, p)
		}
	}
	room.Participants = kept

	m.logger.Info().Str("room_code", code).Msg("duel start aborted, room reopened")
}

// Remove deletes a room once its duel is over.
func (m *Manager) Remove(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, code)
}

// generateCode creates a unique 6-digit numeric code.
func (m *Manager) generateCode() string {
	for {
		num := 100000 + rand.Intn(900000)
		code := fmt.Sprintf("%06d", num)

		m.mu.RLock()
		_, exists := m.rooms[code]
		m.mu.RUnlock()
		if !exists {
			return code
		}
	}
}
