package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	memberTTL      = 2 * time.Hour // generous for match completion + review
	redisBufSize   = 64
	defaultBackoff = 3 * time.Second
)

// ReconnectConfig bounds the channel reconnection loop.
type ReconnectConfig struct {
	Backoff     time.Duration
	MaxAttempts int
}

// RedisTransport implements Transport over Redis Pub/Sub. Each room gets an
// events channel and a presence channel plus a membership set; delivery is
// at most once and ordered per publisher.
type RedisTransport struct {
	client *redis.Client
	cfg    ReconnectConfig
	logger zerolog.Logger
}

var _ Transport = (*RedisTransport)(nil)

// NewRedisTransport creates a Redis-backed transport.
func NewRedisTransport(client *redis.Client, cfg ReconnectConfig, logger zerolog.Logger) *RedisTransport {
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &RedisTransport{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "redis_transport").Logger(),
	}
}

type presenceMsg struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	Kind          string    `json:"kind"`
}

// Join subscribes the participant to the room's channels and announces it to
// the membership set.
func (t *RedisTransport) Join(ctx context.Context, roomID string, participantID uuid.UUID) (Channel, error) {
	ch := &redisChannel{
		transport:     t,
		participantID: participantID,
		eventsKey:     fmt.Sprintf("duel:room:%s:events", roomID),
		presenceKey:   fmt.Sprintf("duel:room:%s:presence", roomID),
		membersKey:    fmt.Sprintf("duel:room:%s:members", roomID),
		events:        make(chan Envelope, redisBufSize),
		presence:      make(chan PresenceEvent, redisBufSize),
		done:          make(chan struct{}),
		closing:       make(chan struct{}),
		logger:        t.logger.With().Str("room_id", roomID).Str("participant_id", participantID.String()).Logger(),
	}

	sub := t.client.Subscribe(ctx, ch.eventsKey, ch.presenceKey)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe room %s: %w", roomID, err)
	}
	ch.sub = sub
	ch.state = StateConnected

	// Synthesize joins for members already in the room so a late (or
	// reconnecting) participant learns about its peer.
	existing, err := t.client.SMembers(ctx, ch.membersKey).Result()
	if err != nil {
		ch.logger.Warn().Err(err).Msg("read room members failed")
	}
	for _, raw := range existing {
		id, err := uuid.Parse(raw)
		if err != nil || id == participantID {
			continue
		}
		ch.presence <- PresenceEvent{ParticipantID: id, Kind: PresenceJoined}
	}

	if err := ch.announce(ctx); err != nil {
		ch.logger.Warn().Err(err).Msg("presence announce failed")
	}

	go ch.pump()

	return ch, nil
}

type redisChannel struct {
	transport     *RedisTransport
	participantID uuid.UUID
	eventsKey     string
	presenceKey   string
	membersKey    string

	mu     sync.Mutex
	sub    *redis.PubSub
	state  ConnState
	err    error
	closed bool

	events   chan Envelope
	presence chan PresenceEvent
	done     chan struct{}
	closing  chan struct{}
	logger   zerolog.Logger
}

var _ Channel = (*redisChannel)(nil)

func (c *redisChannel) Publish(ctx context.Context, env Envelope) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.mu.Unlock()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return c.transport.client.Publish(ctx, c.eventsKey, data).Err()
}

func (c *redisChannel) Events() <-chan Envelope        { return c.events }
func (c *redisChannel) Presence() <-chan PresenceEvent { return c.presence }
func (c *redisChannel) Done() <-chan struct{}          { return c.done }

func (c *redisChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *redisChannel) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *redisChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateDisconnected
	sub := c.sub
	c.mu.Unlock()

	close(c.closing)

	// Best-effort leave announcement; the pump exits via closing.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.transport.client.SRem(ctx, c.membersKey, c.participantID.String())
	if data, err := json.Marshal(presenceMsg{ParticipantID: c.participantID, Kind: string(PresenceLeft)}); err == nil {
		c.transport.client.Publish(ctx, c.presenceKey, data)
	}

	err := sub.Close()
	close(c.done)
	return err
}

// announce adds the participant to the membership set and broadcasts a join.
func (c *redisChannel) announce(ctx context.Context) error {
	pipe := c.transport.client.Pipeline()
	pipe.SAdd(ctx, c.membersKey, c.participantID.String())
	pipe.Expire(ctx, c.membersKey, memberTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(presenceMsg{ParticipantID: c.participantID, Kind: string(PresenceJoined)})
	if err != nil {
		return err
	}
	return c.transport.client.Publish(ctx, c.presenceKey, data).Err()
}

// pump converts Pub/Sub messages into typed events, reconnecting with fixed
// backoff when the subscription drops. Match state is untouched across
// reconnects; resynchronization rides on the next q_sync heartbeat.
func (c *redisChannel) pump() {
	c.mu.Lock()
	msgCh := c.sub.Channel()
	c.mu.Unlock()

	for {
		select {
		case <-c.closing:
			return
		case msg, ok := <-msgCh:
			if !ok {
				if !c.reconnect() {
					c.fail(ErrReconnectExhausted)
					return
				}
				c.mu.Lock()
				msgCh = c.sub.Channel()
				c.mu.Unlock()
				continue
			}
			c.dispatch(msg)
		}
	}
}

func (c *redisChannel) dispatch(msg *redis.Message) {
	switch msg.Channel {
	case c.eventsKey:
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			c.logger.Warn().Err(err).Msg("malformed event payload ignored")
			return
		}
		select {
		case c.events <- env:
		default:
			c.logger.Warn().Str("type", env.Type).Msg("event buffer full, dropping")
		}
	case c.presenceKey:
		var pm presenceMsg
		if err := json.Unmarshal([]byte(msg.Payload), &pm); err != nil {
			c.logger.Warn().Err(err).Msg("malformed presence payload ignored")
			return
		}
		select {
		case c.presence <- PresenceEvent{ParticipantID: pm.ParticipantID, Kind: PresenceKind(pm.Kind)}:
		default:
			c.logger.Warn().Msg("presence buffer full, dropping")
		}
	}
}

// reconnect re-establishes the subscription on a fixed backoff with a
// bounded attempt count. Returns false once attempts are exhausted.
func (c *redisChannel) reconnect() bool {
	c.setState(StateConnecting)
	cfg := c.transport.cfg

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-c.closing:
			return false
		case <-time.After(cfg.Backoff):
		}

		reconnectAttempts.Inc()
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Backoff)
		sub := c.transport.client.Subscribe(ctx, c.eventsKey, c.presenceKey)
		_, err := sub.Receive(ctx)
		cancel()
		if err != nil {
			sub.Close()
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
			continue
		}

		c.mu.Lock()
		old := c.sub
		c.sub = sub
		c.state = StateConnected
		c.mu.Unlock()
		if old != nil {
			old.Close() //nolint:errcheck // dead handle, released either way
		}

		reannounceCtx, cancelAnnounce := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.announce(reannounceCtx); err != nil {
			c.logger.Warn().Err(err).Msg("re-announce after reconnect failed")
		}
		cancelAnnounce()

		c.logger.Info().Int("attempt", attempt).Msg("channel reconnected")
		return true
	}
	return false
}

func (c *redisChannel) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *redisChannel) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateDisconnected
	c.err = err
	c.mu.Unlock()

	c.logger.Error().Err(err).Msg("channel permanently down")
	close(c.done)
}
