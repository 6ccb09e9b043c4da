package lobby

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_CreateAndJoin(t *testing.T) {
	mgr := NewManager(zerolog.Nop())
	ctx := context.Background()

	host := uuid.New()
	room, err := mgr.Create(ctx, CreateRequest{HostID: host, DisplayName: "host", Format: 3, QuestionsPerRound: 5})
	require.NoError(t, err)
	require.Len(t, room.Code, 6)
	assert.Equal(t, StatusWaiting, room.Status)

	guest := uuid.New()
	room, err = mgr.Join(ctx, room.Code, guest, "guest", false)
	require.NoError(t, err)
	assert.Len(t, room.Participants, 2)

	// Third duelist is rejected.
	_, err = mgr.Join(ctx, room.Code, uuid.New(), "third", false)
	assert.Error(t, err)

	// Rejoining is a no-op, not an error, so clients can retry.
	again, err := mgr.Join(ctx, room.Code, guest, "guest", false)
	require.NoError(t, err)
	assert.Len(t, again.Participants, 2)
}

func TestManager_AbortReopensRoomAndDropsBots(t *testing.T) {
	mgr := NewManager(zerolog.Nop())
	ctx := context.Background()

	host := uuid.New()
	room, err := mgr.Create(ctx, CreateRequest{HostID: host, DisplayName: "host", Format: 3, QuestionsPerRound: 5})
	require.NoError(t, err)
	_, err = mgr.Join(ctx, room.Code, uuid.New(), "bot", true)
	require.NoError(t, err)
	_, err = mgr.Start(ctx, room.Code, uuid.New())
	require.NoError(t, err)

	mgr.Abort(room.Code)

	got, err := mgr.Get(room.Code)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, got.Status)
	assert.Nil(t, got.SessionID)
	require.Len(t, got.Participants, 1)
	assert.Equal(t, host, got.Participants[0].UserID)

	// The freed slot accepts a new participant and the room starts again.
	_, err = mgr.Join(ctx, room.Code, uuid.New(), "guest", false)
	require.NoError(t, err)
	_, err = mgr.Start(ctx, room.Code, uuid.New())
	require.NoError(t, err)
}

func TestManager_CreateRejectsEvenFormat(t *testing.T) {
	mgr := NewManager(zerolog.Nop())

	_, err := mgr.Create(context.Background(), CreateRequest{HostID: uuid.New(), Format: 4, QuestionsPerRound: 5})
	assert.Error(t, err)
}

func TestManager_Start(t *testing.T) {
	mgr := NewManager(zerolog.Nop())
	ctx := context.Background()

	room, err := mgr.Create(ctx, CreateRequest{HostID: uuid.New(), DisplayName: "host", Format: 5, QuestionsPerRound: 3})
	require.NoError(t, err)

	// Cannot start a half-empty room.
	_, err = mgr.Start(ctx, room.Code, uuid.New())
	assert.Error(t, err)

	_, err = mgr.Join(ctx, room.Code, uuid.New(), "bot", true)
	require.NoError(t, err)

	sessionID := uuid.New()
	room, err = mgr.Start(ctx, room.Code, sessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusStarting, room.Status)
	require.NotNil(t, room.SessionID)
	assert.Equal(t, sessionID, *room.SessionID)

	// Starting twice is rejected.
	_, err = mgr.Start(ctx, room.Code, uuid.New())
	assert.Error(t, err)
}

func TestManager_Remove(t *testing.T) {
	mgr := NewManager(zerolog.Nop())

	room, err := mgr.Create(context.Background(), CreateRequest{HostID: uuid.New(), Format: 3, QuestionsPerRound: 5})
	require.NoError(t, err)

	mgr.Remove(room.Code)
	_, err = mgr.Get(room.Code)
	assert.Error(t, err)
}
