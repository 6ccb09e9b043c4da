package transport

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Event types carried on the duel broadcast channel. Delivery is at most
// once and ordered per sender only.
const (
	EventPlayerAnswer = "player_answer"
	EventQuestionSync = "q_sync"
	EventSurrender    = "player_surrendered"
)

// Envelope wraps every channel payload with its type, mirroring the client
// WebSocket protocol shape.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AnswerEvent is broadcast once per answered question.
// SelectedIndex -1 means the countdown elapsed without an answer.
type AnswerEvent struct {
	ParticipantID   uuid.UUID `json:"participant_id"`
	QuestionIndex   int       `json:"question_index"`
	SelectedIndex   int       `json:"selected_index"`
	IsCorrect       bool      `json:"is_correct"`
	Points          int       `json:"points"`
	CumulativeScore *int      `json:"cumulative_score,omitempty"`
}

// SyncEvent is the periodic q_sync heartbeat carrying the sender's current
// question index. Peers use it to detect missed answer broadcasts.
type SyncEvent struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	QuestionIndex int       `json:"question_index"`
}

// SurrenderEvent signals an explicit concession.
type SurrenderEvent struct {
	ParticipantID uuid.UUID `json:"participant_id"`
}

// NewEnvelope marshals a typed payload into an Envelope.
func NewEnvelope(eventType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{Type: eventType, Payload: raw}, nil
}

// DecodeAnswer unmarshals a player_answer payload.
func (e Envelope) DecodeAnswer() (AnswerEvent, error) {
	var evt AnswerEvent
	if err := json.Unmarshal(e.Payload, &evt); err != nil {
		return AnswerEvent{}, fmt.Errorf("decode player_answer: %w", err)
	}
	return evt, nil
}

// DecodeSync unmarshals a q_sync payload.
func (e Envelope) DecodeSync() (SyncEvent, error) {
	var evt SyncEvent
	if err := json.Unmarshal(e.Payload, &evt); err != nil {
		return SyncEvent{}, fmt.Errorf("decode q_sync: %w", err)
	}
	return evt, nil
}

// DecodeSurrender unmarshals a player_surrendered payload.
func (e Envelope) DecodeSurrender() (SurrenderEvent, error) {
	var evt SurrenderEvent
	if err := json.Unmarshal(e.Payload, &evt); err != nil {
		return SurrenderEvent{}, fmt.Errorf("decode player_surrendered: %w", err)
	}
	return evt, nil
}
