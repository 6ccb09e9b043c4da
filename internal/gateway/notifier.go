package gateway

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizarena/arena/internal/duel"
	"github.com/quizarena/arena/internal/duel/rating"
	"github.com/quizarena/arena/internal/questionbank"
	"github.com/quizarena/arena/internal/transport"
	"github.com/quizarena/arena/pkg/http/ws"
)

// wsNotifier translates session callbacks into client WebSocket messages
// for one participant. Callbacks run under the session lock, and the hub's
// per-connection send queue is non-blocking, so no callback can stall the
// engine.
type wsNotifier struct {
	gw        *Gateway
	userID    uuid.UUID
	sessionID uuid.UUID
	questions []questionbank.Question
	countdown int // seconds, for client display
	logger    zerolog.Logger
}

var _ duel.Notifier = (*wsNotifier)(nil)

func (n *wsNotifier) send(msgType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error().Err(err).Str("type", msgType).Msg("encode ws payload")
		return
	}
	if err := n.gw.hub.SendToUser(n.userID, ws.Message{Type: msgType, Payload: raw}); err != nil {
		n.logger.Debug().Err(err).Str("type", msgType).Msg("ws send skipped")
	}
}

func (n *wsNotifier) PhaseChanged(phase duel.Phase) {
	if phase == duel.PhaseStarting {
		n.send(ws.TypeDuelStart, ws.DuelStartPayload{SessionID: n.sessionID.String()})
	}
}

func (n *wsNotifier) QuestionShown(index, round int, q questionbank.Question) {
	n.send(ws.TypeQuestion, ws.QuestionPayload{
		SessionID:        n.sessionID.String(),
		QuestionIndex:    index,
		Round:            round,
		Prompt:           q.Prompt,
		Options:          q.Options,
		CountdownSeconds: n.countdown,
	})
}

func (n *wsNotifier) AnswerAccepted(index, selectedIndex int, correct bool) {
	n.send(ws.TypeAnswerAck, ws.AnswerAckPayload{
		SessionID:     n.sessionID.String(),
		QuestionIndex: index,
		Accepted:      true,
	})
}

func (n *wsNotifier) Revealed(index int, local, remote transport.AnswerEvent, points duel.ScorePair) {
	q := n.questions[index]
	n.send(ws.TypeReveal, ws.RevealPayload{
		SessionID:      n.sessionID.String(),
		QuestionIndex:  index,
		CorrectIndex:   q.CorrectIndex,
		SelfSelected:   local.SelectedIndex,
		SelfCorrect:    local.IsCorrect,
		PeerCorrect:    remote.IsCorrect,
		SelfRoundScore: points.Self,
		PeerRoundScore: points.Opponent,
	})
}

func (n *wsNotifier) RoundFinished(round int, points, setScore duel.ScorePair, draw bool) {
	n.send(ws.TypeRoundResult, ws.RoundResultPayload{
		SessionID:    n.sessionID.String(),
		Round:        round,
		SelfPoints:   points.Self,
		PeerPoints:   points.Opponent,
		Draw:         draw,
		SelfSetScore: setScore.Self,
		PeerSetScore: setScore.Opponent,
	})
}

func (n *wsNotifier) RoundStarted(round int) {
	if round == 1 {
		return // the duel_start pulse already covers the first round
	}
	n.send(ws.TypeRoundIntro, ws.RoundIntroPayload{
		SessionID: n.sessionID.String(),
		Round:     round,
	})
}

func (n *wsNotifier) MatchFinished(out duel.Outcome) {
	payload := ws.MatchOverPayload{
		SessionID:    n.sessionID.String(),
		Result:       out.Result,
		SelfSetScore: out.SetScore.Self,
		PeerSetScore: out.SetScore.Opponent,
		RoundScores:  out.RoundScores,
		MMRChange:    out.MMRChange,
		NewMMR:       out.NewMMR,
		Reason:       out.Reason,
	}
	if out.NewMMR != nil {
		payload.Tier = rating.TierOf(*out.NewMMR).Tier
	}
	n.send(ws.TypeMatchOver, payload)

	go n.gw.sessionFinished(n.sessionID, n.userID)
}
