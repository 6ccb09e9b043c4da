package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/quizarena/arena/internal/duel/rating"
	"github.com/quizarena/arena/internal/lobby"
	httperrors "github.com/quizarena/arena/pkg/http/errors"
)

type createRoomRequest struct {
	UserID            string `json:"user_id"`
	DisplayName       string `json:"display_name"`
	Format            int    `json:"format"`
	QuestionsPerRound int    `json:"questions_per_round"`
}

type roomResponse struct {
	Code              string            `json:"code"`
	SessionID         string            `json:"session_id,omitempty"`
	Status            string            `json:"status"`
	Format            int               `json:"format"`
	QuestionsPerRound int               `json:"questions_per_round"`
	Participants      []participantInfo `json:"participants"`
}

type participantInfo struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsBot       bool   `json:"is_bot,omitempty"`
	IsHost      bool   `json:"is_host,omitempty"`
}

func roomToResponse(room *lobby.Room) roomResponse {
	resp := roomResponse{
		Code:              room.Code,
		Status:            room.Status,
		Format:            room.Format,
		QuestionsPerRound: room.QuestionsPerRound,
	}
	if room.SessionID != nil {
		resp.SessionID = room.SessionID.String()
	}
	for _, p := range room.Participants {
		resp.Participants = append(resp.Participants, participantInfo{
			UserID:      p.UserID.String(),
			DisplayName: p.DisplayName,
			IsBot:       p.IsBot,
			IsHost:      p.IsHost,
		})
	}
	return resp
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload) //nolint:errcheck
}

// HandleCreateRoom creates a waiting room. Defaults come from the duel
// configuration when the request omits format fields.
func (g *Gateway) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "malformed request body")
		return
	}
	hostID, err := uuid.Parse(req.UserID)
	if err != nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "user_id must be a UUID", "user_id")
		return
	}
	if req.Format == 0 {
		req.Format = g.duelCfg.Format
	}
	if req.QuestionsPerRound == 0 {
		req.QuestionsPerRound = g.duelCfg.QuestionsPerRound
	}
	if req.DisplayName == "" {
		req.DisplayName = "player"
	}

	room, err := g.rooms.Create(r.Context(), lobby.CreateRequest{
		HostID:            hostID,
		DisplayName:       req.DisplayName,
		Format:            req.Format,
		QuestionsPerRound: req.QuestionsPerRound,
	})
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeRoomCreationFailed, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, roomToResponse(room))
}

// HandleGetRoom returns the room for a code.
func (g *Gateway) HandleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := g.rooms.Get(r.PathValue("code"))
	if err != nil {
		httperrors.RespondNotFound(w, httperrors.ErrCodeRoomNotFound, "room not found")
		return
	}
	respondJSON(w, http.StatusOK, roomToResponse(room))
}

// HandleAddBot fills the open slot with a scripted opponent and starts the
// practice duel.
func (g *Gateway) HandleAddBot(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	room, err := g.rooms.Join(r.Context(), code, uuid.New(), "QuizBot", true)
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeJoinFailed, err.Error())
		return
	}
	g.broadcastRoomUpdate(room)

	if err := g.startDuel(r.Context(), room); err != nil {
		g.logger.Error().Err(err).Str("room_code", code).Msg("bot duel start failed")
		httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeDuelStartFailed, "could not start the duel")
		return
	}
	respondJSON(w, http.StatusOK, roomToResponse(room))
}

// HandleHistory lists a user's recent match results.
func (g *Gateway) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "id must be a UUID")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	results, err := g.hist.ListByUser(r.Context(), userID, limit)
	if err != nil {
		g.logger.Error().Err(err).Msg("list history")
		httperrors.RespondInternalError(w, "could not load match history")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

type profileResponse struct {
	UserID          string `json:"user_id"`
	MMR             *int   `json:"mmr"` // null when unranked
	Tier            string `json:"tier,omitempty"`
	Division        int    `json:"division,omitempty"`
	ProgressPercent int    `json:"progress_percent,omitempty"`
}

// HandleProfile returns a user's rating and tier placement.
func (g *Gateway) HandleProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "id must be a UUID")
		return
	}

	mmr, err := g.profiles.CurrentMMR(r.Context(), userID)
	if err != nil {
		g.logger.Error().Err(err).Msg("read profile")
		httperrors.RespondInternalError(w, "could not load profile")
		return
	}

	resp := profileResponse{UserID: userID.String(), MMR: mmr}
	if mmr != nil {
		info := rating.TierOf(*mmr)
		resp.Tier = info.Tier
		resp.Division = info.Division
		resp.ProgressPercent = info.ProgressPercent
	}
	respondJSON(w, http.StatusOK, resp)
}
