package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const memBufferSize = 64

// Broker is an in-process Transport used by tests and bot matches. It keeps
// the production channel contract: fan-out to all members including the
// sender, ordered per sender, lossy when a receiver's buffer is full.
type Broker struct {
	mu     sync.Mutex
	rooms  map[string]map[uuid.UUID]*memChannel
	drop   func(to uuid.UUID, env Envelope) bool
	logger zerolog.Logger
}

var _ Transport = (*Broker)(nil)

// NewBroker creates an in-memory transport broker.
func NewBroker(logger zerolog.Logger) *Broker {
	return &Broker{
		rooms:  make(map[string]map[uuid.UUID]*memChannel),
		logger: logger,
	}
}

// SetDrop installs a loss-injection hook: returning true suppresses delivery
// of env to the given member. Test-only.
func (b *Broker) SetDrop(fn func(to uuid.UUID, env Envelope) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drop = fn
}

// Join attaches a participant to a room channel.
func (b *Broker) Join(ctx context.Context, roomID string, participantID uuid.UUID) (Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members := b.rooms[roomID]
	if members == nil {
		members = make(map[uuid.UUID]*memChannel)
		b.rooms[roomID] = members
	}

	ch := &memChannel{
		broker:        b,
		roomID:        roomID,
		participantID: participantID,
		events:        make(chan Envelope, memBufferSize),
		presence:      make(chan PresenceEvent, memBufferSize),
		done:          make(chan struct{}),
		state:         StateConnected,
	}

	// Tell the newcomer who is already here, then announce the join.
	for id := range members {
		ch.deliverPresence(PresenceEvent{ParticipantID: id, Kind: PresenceJoined})
	}
	for _, m := range members {
		m.deliverPresence(PresenceEvent{ParticipantID: participantID, Kind: PresenceJoined})
	}
	members[participantID] = ch

	return ch, nil
}

func (b *Broker) publish(from *memChannel, env Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, m := range b.rooms[from.roomID] {
		if b.drop != nil && b.drop(id, env) {
			continue
		}
		m.deliverEvent(env)
	}
}

func (b *Broker) leave(ch *memChannel) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members := b.rooms[ch.roomID]
	if _, ok := members[ch.participantID]; !ok {
		return
	}
	delete(members, ch.participantID)
	if len(members) == 0 {
		delete(b.rooms, ch.roomID)
		return
	}
	for _, m := range members {
		m.deliverPresence(PresenceEvent{ParticipantID: ch.participantID, Kind: PresenceLeft})
	}
}

type memChannel struct {
	broker        *Broker
	roomID        string
	participantID uuid.UUID

	mu       sync.Mutex
	closed   bool
	state    ConnState
	events   chan Envelope
	presence chan PresenceEvent
	done     chan struct{}
}

var _ Channel = (*memChannel)(nil)

func (c *memChannel) Publish(ctx context.Context, env Envelope) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.mu.Unlock()

	c.broker.publish(c, env)
	return nil
}

func (c *memChannel) Events() <-chan Envelope        { return c.events }
func (c *memChannel) Presence() <-chan PresenceEvent { return c.presence }
func (c *memChannel) Done() <-chan struct{}          { return c.done }
func (c *memChannel) Err() error                     { return nil }

func (c *memChannel) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *memChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateDisconnected
	close(c.done)
	c.mu.Unlock()

	c.broker.leave(c)
	return nil
}

// deliverEvent drops on a full buffer; the channel is best effort.
func (c *memChannel) deliverEvent(env Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- env:
	default:
	}
}

func (c *memChannel) deliverPresence(evt PresenceEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.presence <- evt:
	default:
	}
}
