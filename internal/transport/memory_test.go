package transport

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitEvent(t *testing.T, ch <-chan Envelope) Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Envelope{}
	}
}

func waitPresence(t *testing.T, ch <-chan PresenceEvent) PresenceEvent {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for presence")
		return PresenceEvent{}
	}
}

func TestBroker_PublishReachesAllMembers(t *testing.T) {
	broker := NewBroker(zerolog.Nop())
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()

	chA, err := broker.Join(ctx, "room-1", alice)
	require.NoError(t, err)
	chB, err := broker.Join(ctx, "room-1", bob)
	require.NoError(t, err)

	env, err := NewEnvelope(EventQuestionSync, SyncEvent{ParticipantID: alice, QuestionIndex: 3})
	require.NoError(t, err)
	require.NoError(t, chA.Publish(ctx, env))

	// Both sides receive the broadcast, sender included.
	got := waitEvent(t, chB.Events())
	assert.Equal(t, EventQuestionSync, got.Type)
	sync, err := got.DecodeSync()
	require.NoError(t, err)
	assert.Equal(t, 3, sync.QuestionIndex)

	own := waitEvent(t, chA.Events())
	assert.Equal(t, EventQuestionSync, own.Type)
}

func TestBroker_OrderedPerSender(t *testing.T) {
	broker := NewBroker(zerolog.Nop())
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()

	chA, err := broker.Join(ctx, "room-1", alice)
	require.NoError(t, err)
	chB, err := broker.Join(ctx, "room-1", bob)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		env, err := NewEnvelope(EventQuestionSync, SyncEvent{ParticipantID: alice, QuestionIndex: i})
		require.NoError(t, err)
		require.NoError(t, chA.Publish(ctx, env))
	}

	for i := 0; i < 5; i++ {
		sync, err := waitEvent(t, chB.Events()).DecodeSync()
		require.NoError(t, err)
		assert.Equal(t, i, sync.QuestionIndex)
	}
}

func TestBroker_PresenceJoinLeave(t *testing.T) {
	broker := NewBroker(zerolog.Nop())
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()

	chA, err := broker.Join(ctx, "room-1", alice)
	require.NoError(t, err)
	chB, err := broker.Join(ctx, "room-1", bob)
	require.NoError(t, err)

	// A sees B join; B is told A was already present.
	evt := waitPresence(t, chA.Presence())
	assert.Equal(t, bob, evt.ParticipantID)
	assert.Equal(t, PresenceJoined, evt.Kind)

	evt = waitPresence(t, chB.Presence())
	assert.Equal(t, alice, evt.ParticipantID)
	assert.Equal(t, PresenceJoined, evt.Kind)

	require.NoError(t, chB.Close())

	evt = waitPresence(t, chA.Presence())
	assert.Equal(t, bob, evt.ParticipantID)
	assert.Equal(t, PresenceLeft, evt.Kind)
}

func TestBroker_DropHookSuppressesDelivery(t *testing.T) {
	broker := NewBroker(zerolog.Nop())
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()

	chA, err := broker.Join(ctx, "room-1", alice)
	require.NoError(t, err)
	chB, err := broker.Join(ctx, "room-1", bob)
	require.NoError(t, err)

	broker.SetDrop(func(to uuid.UUID, env Envelope) bool {
		return to == bob && env.Type == EventPlayerAnswer
	})

	answer, err := NewEnvelope(EventPlayerAnswer, AnswerEvent{ParticipantID: alice, QuestionIndex: 0, SelectedIndex: 1})
	require.NoError(t, err)
	require.NoError(t, chA.Publish(ctx, answer))

	heartbeat, err := NewEnvelope(EventQuestionSync, SyncEvent{ParticipantID: alice, QuestionIndex: 1})
	require.NoError(t, err)
	require.NoError(t, chA.Publish(ctx, heartbeat))

	// Bob only sees the heartbeat; the answer was dropped in flight.
	got := waitEvent(t, chB.Events())
	assert.Equal(t, EventQuestionSync, got.Type)

	select {
	case env := <-chB.Events():
		t.Fatalf("unexpected extra event %s", env.Type)
	case <-time.After(50 * time.Millisecond):
	}

	_ = chA
}

func TestBroker_PublishAfterCloseFails(t *testing.T) {
	broker := NewBroker(zerolog.Nop())
	ctx := context.Background()

	ch, err := broker.Join(ctx, "room-1", uuid.New())
	require.NoError(t, err)
	require.NoError(t, ch.Close())

	env, err := NewEnvelope(EventSurrender, SurrenderEvent{ParticipantID: uuid.New()})
	require.NoError(t, err)
	assert.ErrorIs(t, ch.Publish(ctx, env), ErrChannelClosed)

	select {
	case <-ch.Done():
	default:
		t.Fatal("done should be closed")
	}
	assert.NoError(t, ch.Err())
}
