package ws

import "encoding/json"

// MessageType constants for the client WebSocket protocol.
const (
	// Client -> Server
	TypeJoinRoom     = "join_room"
	TypeSubmitAnswer = "submit_answer"
	TypeSurrender    = "surrender"
	TypeLeaveDuel    = "leave_duel"

	// Server -> Client
	TypeRoomUpdate  = "room_update"
	TypeDuelPrepare = "duel_prepare"
	TypeDuelStart   = "duel_start"
	TypeQuestion    = "question"
	TypeAnswerAck   = "answer_ack"
	TypeReveal      = "reveal"
	TypeRoundResult = "round_result"
	TypeRoundIntro  = "round_intro"
	TypeMatchOver   = "match_over"
	TypeError       = "error"
	TypePing        = "ping"
	TypePong        = "pong"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
}

// Client Messages (incoming)

type JoinRoomPayload struct {
	RoomCode string `json:"room_code"`
}

type SubmitAnswerPayload struct {
	SessionID     string `json:"session_id"`
	QuestionIndex int    `json:"question_index"`
	SelectedIndex int    `json:"selected_index"`
}

type SurrenderPayload struct {
	SessionID string `json:"session_id"`
}

type LeaveDuelPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// Server Messages (outgoing)

type Participant struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsBot       bool   `json:"is_bot,omitempty"`
}

type RoomUpdatePayload struct {
	RoomCode       string        `json:"room_code"`
	SessionID      string        `json:"session_id,omitempty"`
	Participants   []Participant `json:"participants"`
	SlotsRemaining int           `json:"slots_remaining"`
}

type DuelPreparePayload struct {
	SessionID         string        `json:"session_id"`
	Format            int           `json:"format"`
	QuestionsPerRound int           `json:"questions_per_round"`
	CountdownSeconds  int           `json:"countdown_seconds"`
	Participants      []Participant `json:"participants"`
}

type DuelStartPayload struct {
	SessionID string `json:"session_id"`
}

type QuestionPayload struct {
	SessionID        string   `json:"session_id"`
	QuestionIndex    int      `json:"question_index"`
	Round            int      `json:"round"`
	Prompt           string   `json:"prompt"`
	Options          []string `json:"options"`
	CountdownSeconds int      `json:"countdown_seconds"`
}

type AnswerAckPayload struct {
	SessionID     string `json:"session_id"`
	QuestionIndex int    `json:"question_index"`
	Accepted      bool   `json:"accepted"`
}

type RevealPayload struct {
	SessionID      string `json:"session_id"`
	QuestionIndex  int    `json:"question_index"`
	CorrectIndex   int    `json:"correct_index"`
	SelfSelected   int    `json:"self_selected"`
	SelfCorrect    bool   `json:"self_correct"`
	PeerCorrect    bool   `json:"peer_correct"`
	SelfRoundScore int    `json:"self_round_score"`
	PeerRoundScore int    `json:"peer_round_score"`
}

type RoundResultPayload struct {
	SessionID    string `json:"session_id"`
	Round        int    `json:"round"`
	SelfPoints   int    `json:"self_points"`
	PeerPoints   int    `json:"peer_points"`
	Draw         bool   `json:"draw"`
	SelfSetScore int    `json:"self_set_score"`
	PeerSetScore int    `json:"peer_set_score"`
}

type RoundIntroPayload struct {
	SessionID string `json:"session_id"`
	Round     int    `json:"round"`
}

type MatchOverPayload struct {
	SessionID    string `json:"session_id"`
	Result       string `json:"result"` // win, loss, draw
	SelfSetScore int    `json:"self_set_score"`
	PeerSetScore int    `json:"peer_set_score"`
	RoundScores  []int  `json:"round_scores"`
	MMRChange    int    `json:"mmr_change"`
	NewMMR       *int   `json:"new_mmr,omitempty"`
	Tier         string `json:"tier,omitempty"`
	Reason       string `json:"reason,omitempty"` // surrender, disconnect, abandoned
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
