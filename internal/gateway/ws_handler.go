package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quizarena/arena/internal/lobby"
	httperrors "github.com/quizarena/arena/pkg/http/errors"
	"github.com/quizarena/arena/pkg/http/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the connection and pumps the client protocol. Identity
// comes from query parameters; authentication is out of scope here.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "user_id must be a UUID")
		return
	}
	displayName := r.URL.Query().Get("display_name")
	if displayName == "" {
		displayName = "player"
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	wsConn := ws.NewConnection(conn, g.logger.With().Str("user_id", userID.String()).Logger())
	g.hub.RegisterConnection(userID, wsConn)

	go wsConn.WritePump()
	go func() {
		defer g.hub.UnregisterConnection(userID)
		wsConn.ReadPump(func(msg ws.Message) error {
			// The request context dies with the handler once the
			// connection is hijacked.
			g.dispatch(context.Background(), userID, displayName, msg)
			return nil
		})
		// The read pump only returns once the socket is gone. A drop
		// mid-duel forfeits the match.
		g.clientGone(userID)
	}()
}

func (g *Gateway) dispatch(ctx context.Context, userID uuid.UUID, displayName string, msg ws.Message) {
	switch msg.Type {
	case ws.TypeJoinRoom:
		g.handleJoinRoom(ctx, userID, displayName, msg)
	case ws.TypeSubmitAnswer:
		g.handleSubmitAnswer(ctx, userID, msg)
	case ws.TypeSurrender:
		g.handleSurrender(ctx, userID)
	case ws.TypeLeaveDuel:
		// Leaving mid-duel is a concession.
		g.handleSurrender(ctx, userID)
	case ws.TypePing:
		g.sendTo(userID, ws.TypePong, struct{}{})
	default:
		g.sendErrorTo(userID, httperrors.ErrCodeUnknownMessageType, "unknown message type: "+msg.Type)
	}
}

func (g *Gateway) handleJoinRoom(ctx context.Context, userID uuid.UUID, displayName string, msg ws.Message) {
	var payload ws.JoinRoomPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		g.sendErrorTo(userID, httperrors.ErrCodeInvalidPayload, "malformed join_room payload")
		return
	}

	room, err := g.rooms.Join(ctx, payload.RoomCode, userID, displayName, false)
	if err != nil {
		g.sendErrorTo(userID, httperrors.ErrCodeJoinFailed, err.Error())
		return
	}

	g.broadcastRoomUpdate(room)

	if len(room.Participants) == lobby.MaxDuelists {
		if err := g.startDuel(ctx, room); err != nil {
			g.logger.Error().Err(err).Str("room_code", room.Code).Msg("duel start failed")
			for _, p := range room.Participants {
				if !p.IsBot {
					g.sendErrorTo(p.UserID, httperrors.ErrCodeDuelStartFailed, "could not start the duel")
				}
			}
		}
	}
}

func (g *Gateway) handleSubmitAnswer(ctx context.Context, userID uuid.UUID, msg ws.Message) {
	var payload ws.SubmitAnswerPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		g.sendErrorTo(userID, httperrors.ErrCodeInvalidPayload, "malformed submit_answer payload")
		return
	}

	sess, sessionID, ok := g.sessionFor(userID)
	if !ok {
		g.sendErrorTo(userID, httperrors.ErrCodeInvalidSessionID, "no active duel")
		return
	}
	if payload.SessionID != "" && payload.SessionID != sessionID.String() {
		g.sendErrorTo(userID, httperrors.ErrCodeInvalidSessionID, "session mismatch")
		return
	}
	if payload.QuestionIndex != sess.QuestionIndex() {
		g.sendErrorTo(userID, httperrors.ErrCodeSubmitFailed, "stale question index")
		return
	}
	if err := sess.SubmitAnswer(ctx, payload.SelectedIndex); err != nil {
		g.sendErrorTo(userID, httperrors.ErrCodeSubmitFailed, err.Error())
	}
}

func (g *Gateway) handleSurrender(ctx context.Context, userID uuid.UUID) {
	sess, _, ok := g.sessionFor(userID)
	if !ok {
		g.sendErrorTo(userID, httperrors.ErrCodeInvalidSessionID, "no active duel")
		return
	}
	if err := sess.Surrender(ctx); err != nil {
		g.sendErrorTo(userID, httperrors.ErrCodeSurrenderFailed, err.Error())
	}
}

func (g *Gateway) broadcastRoomUpdate(room *lobby.Room) {
	payload := ws.RoomUpdatePayload{
		RoomCode:       room.Code,
		SlotsRemaining: lobby.MaxDuelists - len(room.Participants),
	}
	if room.SessionID != nil {
		payload.SessionID = room.SessionID.String()
	}
	for _, p := range room.Participants {
		payload.Participants = append(payload.Participants, ws.Participant{
			UserID:      p.UserID.String(),
			DisplayName: p.DisplayName,
			IsBot:       p.IsBot,
		})
	}
	for _, p := range room.Participants {
		if !p.IsBot {
			g.sendTo(p.UserID, ws.TypeRoomUpdate, payload)
		}
	}
}

func (g *Gateway) sendTo(userID uuid.UUID, msgType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		g.logger.Error().Err(err).Str("type", msgType).Msg("encode ws payload")
		return
	}
	if err := g.hub.SendToUser(userID, ws.Message{Type: msgType, Payload: raw}); err != nil {
		g.logger.Debug().Err(err).Str("type", msgType).Str("user_id", userID.String()).Msg("ws send skipped")
	}
}

func (g *Gateway) sendErrorTo(userID uuid.UUID, code, message string) {
	g.sendTo(userID, ws.TypeError, ws.ErrorPayload{Code: code, Message: message})
}
