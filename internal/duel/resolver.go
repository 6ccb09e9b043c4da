package duel

import (
	"context"
	"time"

	"github.com/quizarena/arena/internal/duel/rating"
	"github.com/quizarena/arena/internal/history"
	"github.com/quizarena/arena/internal/transport"
)

// Termination reasons recorded on the outcome. Empty means the match ran
// to its natural end.
const (
	ReasonSurrendered         = "surrender"
	ReasonOpponentSurrendered = "opponent_surrendered"
	ReasonOpponentLeft        = "opponent_disconnected"
	ReasonAbandoned           = "abandoned"
)

const finishTimeout = 5 * time.Second

// Surrender concedes the match. The concession is broadcast to the
// opponent and the session terminates as a loss with no rating change.
// Calling it on an already finished session is a no-op.
func (s *Session) Surrender(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.terminal() {
		return nil
	}

	env, err := transport.NewEnvelope(transport.EventSurrender, transport.SurrenderEvent{
		ParticipantID: s.cfg.Self.ID,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("encode player_surrendered")
	} else {
		go s.publish(env)
	}

	s.setScore.Opponent = s.cfg.winsNeeded()
	s.log.Info().Msg("surrendered")
	s.finishLocked(history.ResultLoss, ReasonSurrendered, false)
	return nil
}

// Abandon forfeits the match without a concession broadcast: the local
// participant's client is gone for good, so nobody is left to play the
// remaining questions. The peer resolves the forfeit through channel
// presence once the session detaches. No-op on a finished session.
func (s *Session) Abandon(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.terminal() {
		return nil
	}
	s.setScore.Opponent = s.cfg.winsNeeded()
	s.log.Info().Msg("participant gone, abandoning match")
	s.finishLocked(history.ResultLoss, ReasonAbandoned, false)
	return nil
}

// handleRemoteSurrender resolves an opponent concession as a local win.
func (s *Session) handleRemoteSurrender() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.terminal() {
		return
	}
	s.oppState = ConnectionSurrendered
	s.setScore.Self = s.cfg.winsNeeded()
	s.log.Info().Msg("opponent surrendered")
	s.finishLocked(history.ResultWin, ReasonOpponentSurrendered, false)
}

// handlePresence tracks opponent membership. A leave is terminal: the
// transport only reports it once the peer detached for good, reconnect
// attempts never surface here.
func (s *Session) handlePresence(p transport.PresenceEvent) {
	if p.ParticipantID != s.cfg.Opponent.ID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch p.Kind {
	case transport.PresenceJoined:
		s.oppState = ConnectionConnected
		s.log.Debug().Msg("opponent present")
	case transport.PresenceLeft:
		if s.phase.terminal() {
			return
		}
		s.oppState = ConnectionDisconnected
		s.setScore.Self = s.cfg.winsNeeded()
		s.log.Info().Msg("opponent left the channel")
		s.finishLocked(history.ResultWin, ReasonOpponentLeft, false)
	}
}

// handleChannelDown fires when the own channel is permanently gone. A
// failed reconnect abandons the match as a loss; a deliberate Close (the
// session finishing) does nothing.
func (s *Session) handleChannelDown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.terminal() {
		return
	}
	if s.ch.Err() == nil {
		return
	}
	s.setScore.Opponent = s.cfg.winsNeeded()
	s.log.Warn().Err(s.ch.Err()).Msg("channel permanently down, abandoning match")
	s.finishLocked(history.ResultLoss, ReasonAbandoned, false)
}

// finishNormallyLocked closes a match that ran out of rounds or reached
// the needed set score. Equal set scores after the final round are a draw.
func (s *Session) finishNormallyLocked() {
	var result string
	switch {
	case s.setScore.Self > s.setScore.Opponent:
		result = history.ResultWin
	case s.setScore.Self < s.setScore.Opponent:
		result = history.ResultLoss
	default:
		result = history.ResultDraw
	}
	applyRating := s.cfg.Mode == history.ModeRanked && result != history.ResultDraw && !s.cfg.Self.IsBot
	s.finishLocked(result, "", applyRating)
}

// finishLocked is the only path into the terminal phases. The structural
// guard on phase makes every terminal trigger idempotent: surrender,
// disconnect, and normal completion can race and exactly one wins. The
// result row is persisted before GameOver is announced.
func (s *Session) finishLocked(result, reason string, applyRating bool) {
	if s.phase.terminal() {
		return
	}
	s.timer.Cancel()
	s.setPhaseLocked(PhaseMatchEnding)

	out := Outcome{
		Result:      result,
		SetScore:    s.setScore,
		RoundScores: s.paddedRoundScoresLocked(),
		Reason:      reason,
	}

	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()

	if applyRating {
		current, err := s.profiles.CurrentMMR(ctx, s.cfg.Self.ID)
		if err != nil {
			s.log.Error().Err(err).Msg("read rating")
		} else {
			next := rating.Adjust(current, result == history.ResultWin)
			if err := s.profiles.UpdateMMR(ctx, s.cfg.Self.ID, next); err != nil {
				s.log.Error().Err(err).Msg("write rating")
			} else {
				prev := 0
				if current != nil {
					prev = *current
				}
				out.MMRChange = next - prev
				out.NewMMR = &next
			}
		}
	}

	if !s.cfg.Self.IsBot {
		row := history.MatchResult{
			SessionID:     s.cfg.SessionID,
			UserID:        s.cfg.Self.ID,
			OpponentID:    s.cfg.Opponent.ID,
			RoomID:        s.cfg.RoomID,
			Result:        result,
			ScoreSelf:     s.setScore.Self,
			ScoreOpponent: s.setScore.Opponent,
			Mode:          s.cfg.Mode,
			MMRChange:     out.MMRChange,
			RoundScores:   out.RoundScores,
			RecordedAt:    time.Now().UTC(),
		}
		if err := s.history.Save(ctx, row); err != nil {
			historyWriteFailures.Inc()
			s.log.Error().Err(err).Msg("persist match result")
		}
	}

	s.outcome = &out
	s.setPhaseLocked(PhaseGameOver)
	sessionsFinished.WithLabelValues(result).Inc()
	s.notify.MatchFinished(out)
	s.log.Info().
		Str("result", result).
		Str("reason", reason).
		Int("set_self", s.setScore.Self).
		Int("set_opponent", s.setScore.Opponent).
		Int("mmr_change", out.MMRChange).
		Msg("session finished")

	s.stopOnce.Do(func() { close(s.done) })

	linger := s.cfg.Timing.CloseLinger
	if reason == ReasonAbandoned {
		// The local side is already gone; detach now so the peer turns
		// the leave into its win without waiting out the linger.
		linger = 0
	}
	go func() {
		if linger > 0 {
			time.Sleep(linger)
		}
		s.ch.Close()
	}()
}

// paddedRoundScoresLocked returns the self points of every round, padded
// with trailing zeros to exactly Format entries. An in-progress round at
// termination time is included with its partial points.
func (s *Session) paddedRoundScoresLocked() []int {
	scores := make([]int, 0, s.cfg.Format)
	for _, rp := range s.roundHistory {
		scores = append(scores, rp.Self)
	}
	if len(s.roundHistory) < s.roundOf(s.index) {
		scores = append(scores, s.roundPoints.Self)
	}
	for len(scores) < s.cfg.Format {
		scores = append(scores, 0)
	}
	return scores
}
