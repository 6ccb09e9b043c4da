package transport

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ConnState tracks the connection lifecycle of a channel, independent of
// match phase.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// PresenceKind distinguishes membership events.
type PresenceKind string

const (
	PresenceJoined PresenceKind = "joined"
	PresenceLeft   PresenceKind = "left"
)

// PresenceEvent reports a participant joining or leaving the room channel.
// Presence is delivered by the transport's membership tracking, not by
// application messages.
type PresenceEvent struct {
	ParticipantID uuid.UUID
	Kind          PresenceKind
}

// ErrChannelClosed is returned by Publish after a channel shut down.
var ErrChannelClosed = errors.New("transport: channel closed")

// ErrReconnectExhausted marks a channel that gave up reconnecting.
var ErrReconnectExhausted = errors.New("transport: reconnect attempts exhausted")

// Channel is one participant's attachment to a room's broadcast channel.
// Events are best-effort, ordered per sender; a sender receives its own
// broadcasts back and is expected to filter them by participant ID.
type Channel interface {
	// Publish broadcasts an envelope to every room member. Best effort:
	// delivery is not guaranteed.
	Publish(ctx context.Context, env Envelope) error

	// Events yields inbound application events.
	Events() <-chan Envelope

	// Presence yields membership join/leave events.
	Presence() <-chan PresenceEvent

	// State reports the current connection state.
	State() ConnState

	// Done is closed when the channel is permanently down, either via Close
	// or after reconnection gave up. Err reports the cause afterwards.
	Done() <-chan struct{}
	Err() error

	// Close detaches from the room, emitting a leave to remaining members.
	Close() error
}

// Transport hands out room channels. Implementations: Redis Pub/Sub for
// production, in-process broker for tests and bot opponents.
type Transport interface {
	Join(ctx context.Context, roomID string, participantID uuid.UUID) (Channel, error)
}
