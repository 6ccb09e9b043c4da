// Package gateway is the client-facing edge: it upgrades WebSocket
// connections, runs the lobby flow, and spins up a duel engine per
// participant when a room fills.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizarena/arena/internal/config"
	"github.com/quizarena/arena/internal/duel"
	"github.com/quizarena/arena/internal/history"
	"github.com/quizarena/arena/internal/lobby"
	"github.com/quizarena/arena/internal/profile"
	"github.com/quizarena/arena/internal/questionbank"
	"github.com/quizarena/arena/internal/transport"
	"github.com/quizarena/arena/pkg/http/ws"
)

// match tracks the per-participant engines of one running duel.
type match struct {
	roomCode string
	sessions map[uuid.UUID]*duel.Session
	humans   int
}

// Gateway owns the client protocol and the lifecycle of duel sessions.
type Gateway struct {
	duelCfg   config.Duel
	timing    duel.Timing
	hub       *ws.Hub
	rooms     *lobby.Manager
	source    questionbank.Source
	transport transport.Transport
	hist      history.Store
	profiles  profile.Store
	logger    zerolog.Logger

	mu     sync.Mutex
	active map[uuid.UUID]*match    // session_id -> match
	byUser map[uuid.UUID]uuid.UUID // user_id -> session_id
}

// New wires a gateway.
func New(duelCfg config.Duel, hub *ws.Hub, rooms *lobby.Manager, source questionbank.Source, tp transport.Transport, hist history.Store, profiles profile.Store, logger zerolog.Logger) *Gateway {
	return &Gateway{
		duelCfg:   duelCfg,
		timing:    timingFrom(duelCfg),
		hub:       hub,
		rooms:     rooms,
		source:    source,
		transport: tp,
		hist:      hist,
		profiles:  profiles,
		logger:    logger.With().Str("component", "gateway").Logger(),
		active:    make(map[uuid.UUID]*match),
		byUser:    make(map[uuid.UUID]uuid.UUID),
	}
}

func timingFrom(cfg config.Duel) duel.Timing {
	t := duel.DefaultTiming()
	if cfg.PrepareDelay > 0 {
		t.PrepareDelay = cfg.PrepareDelay
	}
	if cfg.StartPulse > 0 {
		t.StartPulse = cfg.StartPulse
	}
	if cfg.QuestionCountdown > 0 {
		t.QuestionCountdown = cfg.QuestionCountdown
	}
	if cfg.RevealDelay > 0 {
		t.RevealDelay = cfg.RevealDelay
	}
	if cfg.TransitionWindow > 0 {
		t.TransitionWindow = cfg.TransitionWindow
	}
	if cfg.RoundIntroWindow > 0 {
		t.RoundIntroWindow = cfg.RoundIntroWindow
	}
	if cfg.SetResultWindow > 0 {
		t.SetResultWindow = cfg.SetResultWindow
	}
	if cfg.HeartbeatInterval > 0 {
		t.HeartbeatInterval = cfg.HeartbeatInterval
	}
	return t
}

// sessionFor returns the running engine for a user.
func (g *Gateway) sessionFor(userID uuid.UUID) (*duel.Session, uuid.UUID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sessionID, ok := g.byUser[userID]
	if !ok {
		return nil, uuid.Nil, false
	}
	m, ok := g.active[sessionID]
	if !ok {
		return nil, uuid.Nil, false
	}
	s, ok := m.sessions[userID]
	return s, sessionID, ok
}

// clientGone forfeits any active duel of a participant whose socket
// dropped. Presence on the room channel never fires for a client drop
// because both engines run server-side, so the forfeit has to come from
// here. A drop after GameOver is a no-op inside the session.
func (g *Gateway) clientGone(userID uuid.UUID) {
	sess, sessionID, ok := g.sessionFor(userID)
	if !ok {
		return
	}
	g.logger.Info().
		Str("user_id", userID.String()).
		Str("session_id", sessionID.String()).
		Msg("client dropped mid-duel")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Abandon(ctx); err != nil {
		g.logger.Error().Err(err).Str("user_id", userID.String()).Msg("forfeit after client drop failed")
	}
}

// startDuel fetches a shared question pack and launches one engine per
// participant over the session's broadcast channel.
func (g *Gateway) startDuel(ctx context.Context, room *lobby.Room) error {
	var channels []transport.Channel
	fail := func(err error) error {
		for _, ch := range channels {
			ch.Close()
		}
		// Reopen the room so the participants can retry.
		g.rooms.Abort(room.Code)
		return err
	}

	count := room.Format * room.QuestionsPerRound
	questions, err := g.source.Fetch(ctx, count, questionbank.DifficultyAny)
	if err != nil {
		return fail(fmt.Errorf("fetch questions: %w", err))
	}
	if err := questionbank.ValidateAll(questions, count); err != nil {
		return fail(fmt.Errorf("validate questions: %w", err))
	}

	sessionID := uuid.New()
	room, err = g.rooms.Start(ctx, room.Code, sessionID)
	if err != nil {
		return fail(err)
	}

	mode := history.ModeRanked
	for _, p := range room.Participants {
		if p.IsBot {
			mode = history.ModeBot
		}
	}

	participants := make([]duel.Participant, len(room.Participants))
	for i, p := range room.Participants {
		participants[i] = duel.Participant{
			ID:              p.UserID,
			DisplayName:     p.DisplayName,
			IsBot:           p.IsBot,
			ConnectionState: duel.ConnectionConnected,
		}
	}

	m := &match{roomCode: room.Code, sessions: make(map[uuid.UUID]*duel.Session)}

	for i, self := range participants {
		opponent := participants[1-i]

		ch, err := g.transport.Join(ctx, sessionID.String(), self.ID)
		if err != nil {
			return fail(fmt.Errorf("join channel: %w", err))
		}
		channels = append(channels, ch)

		cfg := duel.Config{
			SessionID:         sessionID,
			RoomID:            room.Code,
			Mode:              mode,
			Format:            room.Format,
			QuestionsPerRound: room.QuestionsPerRound,
			Self:              self,
			Opponent:          opponent,
			Questions:         questions,
			Timing:            g.timing,
		}

		var notifier duel.Notifier
		var bot *duel.Bot
		if self.IsBot {
			// Bot pacing scales with the countdown so practice matches
			// feel the same regardless of configured timing.
			bot = duel.NewBot(duel.BotProfile{
				Accuracy: duel.DefaultBotProfile().Accuracy,
				MinDelay: g.timing.QuestionCountdown / 8,
				MaxDelay: g.timing.QuestionCountdown / 2,
			}, g.logger)
			notifier = bot
		} else {
			notifier = &wsNotifier{
				gw:        g,
				userID:    self.ID,
				sessionID: sessionID,
				questions: questions,
				countdown: int(g.timing.QuestionCountdown.Seconds()),
				logger:    g.logger.With().Str("user_id", self.ID.String()).Logger(),
			}
		}

		sess, err := duel.NewSession(cfg, ch, g.hist, g.profiles, notifier, g.logger)
		if err != nil {
			return fail(fmt.Errorf("build session: %w", err))
		}
		if bot != nil {
			bot.Attach(sess)
		}
		m.sessions[self.ID] = sess
		if !self.IsBot {
			m.humans++
		}
	}

	g.mu.Lock()
	g.active[sessionID] = m
	for id := range m.sessions {
		g.byUser[id] = sessionID
	}
	g.mu.Unlock()

	// Announce before the engines start ticking.
	prepare := ws.DuelPreparePayload{
		SessionID:         sessionID.String(),
		Format:            room.Format,
		QuestionsPerRound: room.QuestionsPerRound,
		CountdownSeconds:  int(g.timing.PrepareDelay.Seconds()),
	}
	for _, p := range participants {
		prepare.Participants = append(prepare.Participants, ws.Participant{
			UserID:      p.ID.String(),
			DisplayName: p.DisplayName,
			IsBot:       p.IsBot,
		})
	}
	for _, p := range participants {
		if !p.IsBot {
			g.hub.JoinSession(sessionID, p.ID)
			g.sendTo(p.ID, ws.TypeDuelPrepare, prepare)
		}
	}

	for id, sess := range m.sessions {
		if err := sess.Start(context.Background()); err != nil {
			g.logger.Error().Err(err).Str("user_id", id.String()).Msg("session start failed")
		}
	}

	g.logger.Info().
		Str("session_id", sessionID.String()).
		Str("room_code", room.Code).
		Str("mode", mode).
		Msg("duel started")
	return nil
}

// sessionFinished detaches a finished participant and tears the match down
// once no human side remains.
func (g *Gateway) sessionFinished(sessionID, userID uuid.UUID) {
	g.hub.LeaveSession(sessionID, userID)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.byUser[userID] == sessionID {
		delete(g.byUser, userID)
	}
	m, ok := g.active[sessionID]
	if !ok {
		return
	}
	delete(m.sessions, userID)
	if m.humans > 0 {
		m.humans--
	}
	if m.humans == 0 {
		for id := range m.sessions {
			delete(g.byUser, id)
		}
		delete(g.active, sessionID)
		g.rooms.Remove(m.roomCode)
	}
}
