package transport

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisTransport_PublishRoundtrip(t *testing.T) {
	client := newTestRedis(t)
	tr := NewRedisTransport(client, ReconnectConfig{Backoff: 10 * time.Millisecond, MaxAttempts: 2}, zerolog.Nop())
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()

	chA, err := tr.Join(ctx, "room-7", alice)
	require.NoError(t, err)
	defer chA.Close()
	chB, err := tr.Join(ctx, "room-7", bob)
	require.NoError(t, err)
	defer chB.Close()

	assert.Equal(t, StateConnected, chA.State())

	env, err := NewEnvelope(EventPlayerAnswer, AnswerEvent{
		ParticipantID: alice,
		QuestionIndex: 2,
		SelectedIndex: 1,
		IsCorrect:     true,
		Points:        1,
	})
	require.NoError(t, err)
	require.NoError(t, chA.Publish(ctx, env))

	got := waitEvent(t, chB.Events())
	require.Equal(t, EventPlayerAnswer, got.Type)
	answer, err := got.DecodeAnswer()
	require.NoError(t, err)
	assert.Equal(t, alice, answer.ParticipantID)
	assert.Equal(t, 2, answer.QuestionIndex)
	assert.True(t, answer.IsCorrect)
}

func TestRedisTransport_LateJoinerSeesExistingMember(t *testing.T) {
	client := newTestRedis(t)
	tr := NewRedisTransport(client, ReconnectConfig{Backoff: 10 * time.Millisecond, MaxAttempts: 2}, zerolog.Nop())
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()

	chA, err := tr.Join(ctx, "room-8", alice)
	require.NoError(t, err)
	defer chA.Close()

	chB, err := tr.Join(ctx, "room-8", bob)
	require.NoError(t, err)
	defer chB.Close()

	evt := waitPresence(t, chB.Presence())
	assert.Equal(t, alice, evt.ParticipantID)
	assert.Equal(t, PresenceJoined, evt.Kind)

	evt = waitPresence(t, chA.Presence())
	assert.Equal(t, bob, evt.ParticipantID)
	assert.Equal(t, PresenceJoined, evt.Kind)
}

func TestRedisTransport_CloseAnnouncesLeave(t *testing.T) {
	client := newTestRedis(t)
	tr := NewRedisTransport(client, ReconnectConfig{Backoff: 10 * time.Millisecond, MaxAttempts: 2}, zerolog.Nop())
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()

	chA, err := tr.Join(ctx, "room-9", alice)
	require.NoError(t, err)
	defer chA.Close()
	chB, err := tr.Join(ctx, "room-9", bob)
	require.NoError(t, err)

	// Drain B's join as seen by A.
	waitPresence(t, chA.Presence())

	require.NoError(t, chB.Close())

	evt := waitPresence(t, chA.Presence())
	assert.Equal(t, bob, evt.ParticipantID)
	assert.Equal(t, PresenceLeft, evt.Kind)

	members, err := client.SMembers(ctx, "duel:room:room-9:members").Result()
	require.NoError(t, err)
	assert.NotContains(t, members, bob.String())
}

func TestRedisTransport_ReconnectRestoresSubscription(t *testing.T) {
	client := newTestRedis(t)
	tr := NewRedisTransport(client, ReconnectConfig{Backoff: 10 * time.Millisecond, MaxAttempts: 3}, zerolog.Nop())
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()

	chA, err := tr.Join(ctx, "room-11", alice)
	require.NoError(t, err)
	defer chA.Close()
	chB, err := tr.Join(ctx, "room-11", bob)
	require.NoError(t, err)
	defer chB.Close()

	rc := chA.(*redisChannel)
	rc.mu.Lock()
	dropped := rc.sub
	rc.mu.Unlock()

	// Kill the subscription out from under the pump.
	require.NoError(t, dropped.Close())

	// The pump swaps in a fresh subscription and releases the dead handle.
	require.Eventually(t, func() bool {
		rc.mu.Lock()
		defer rc.mu.Unlock()
		return rc.state == StateConnected && rc.sub != dropped
	}, 2*time.Second, 10*time.Millisecond)

	env, err := NewEnvelope(EventQuestionSync, SyncEvent{ParticipantID: bob, QuestionIndex: 4})
	require.NoError(t, err)
	require.NoError(t, chB.Publish(ctx, env))

	got := waitEvent(t, chA.Events())
	require.Equal(t, EventQuestionSync, got.Type)
	evt, err := got.DecodeSync()
	require.NoError(t, err)
	assert.Equal(t, 4, evt.QuestionIndex)
}

func TestRedisTransport_MalformedPayloadIgnored(t *testing.T) {
	client := newTestRedis(t)
	tr := NewRedisTransport(client, ReconnectConfig{Backoff: 10 * time.Millisecond, MaxAttempts: 2}, zerolog.Nop())
	ctx := context.Background()

	ch, err := tr.Join(ctx, "room-10", uuid.New())
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, client.Publish(ctx, "duel:room:room-10:events", "{not json").Err())

	env, err := NewEnvelope(EventQuestionSync, SyncEvent{ParticipantID: uuid.New(), QuestionIndex: 1})
	require.NoError(t, err)
	require.NoError(t, ch.Publish(ctx, env))

	// Only the well-formed event comes through.
	got := waitEvent(t, ch.Events())
	assert.Equal(t, EventQuestionSync, got.Type)
}
