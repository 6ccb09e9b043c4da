package duel

import (
	"time"

	"github.com/google/uuid"

	"github.com/quizarena/arena/internal/questionbank"
	"github.com/quizarena/arena/internal/transport"
)

// Phase is the match phase of a session. Transitions are owned by the
// round/set state machine; a session that reached a terminal phase rejects
// any further mutation.
type Phase string

const (
	PhasePreparing    Phase = "preparing"
	PhaseStarting     Phase = "starting"
	PhasePlaying      Phase = "playing"
	PhaseAwaitingPeer Phase = "awaiting_peer"
	PhaseTransition   Phase = "transition"
	PhaseRoundIntro   Phase = "round_intro"
	PhaseSetResult    Phase = "set_result"
	PhaseMatchEnding  Phase = "match_ending"
	PhaseGameOver     Phase = "game_over"
)

func (p Phase) terminal() bool {
	return p == PhaseMatchEnding || p == PhaseGameOver
}

// Participant connection states.
const (
	ConnectionConnected    = "connected"
	ConnectionDisconnected = "disconnected"
	ConnectionSurrendered  = "surrendered"
)

// Participant is one side of a duel.
type Participant struct {
	ID              uuid.UUID
	DisplayName     string
	AvatarRef       string
	IsBot           bool
	ConnectionState string
}

// ScorePair tracks a self/opponent counter. Each side keeps its own pair;
// the local side is authoritative for Self only, Opponent is derived from
// validated buffered events.
type ScorePair struct {
	Self     int
	Opponent int
}

// Timing groups the cooperative delays of the state machine.
type Timing struct {
	PrepareDelay      time.Duration
	StartPulse        time.Duration
	QuestionCountdown time.Duration
	RevealDelay       time.Duration
	TransitionWindow  time.Duration
	RoundIntroWindow  time.Duration
	SetResultWindow   time.Duration
	HeartbeatInterval time.Duration

	// CloseLinger delays detaching the channel after GameOver so a peer
	// still resolving its final question does not read the detach as a
	// mid-match disconnect.
	CloseLinger time.Duration
}

// DefaultTiming returns gameplay defaults.
func DefaultTiming() Timing {
	return Timing{
		PrepareDelay:      5 * time.Second,
		StartPulse:        500 * time.Millisecond,
		QuestionCountdown: 10 * time.Second,
		RevealDelay:       time.Second,
		TransitionWindow:  4 * time.Second,
		RoundIntroWindow:  2 * time.Second,
		SetResultWindow:   2 * time.Second,
		HeartbeatInterval: 2 * time.Second,
		CloseLinger:       5 * time.Second,
	}
}

// Config describes one session instance.
type Config struct {
	SessionID         uuid.UUID
	RoomID            string
	Mode              string // history.ModeRanked or history.ModeBot
	Format            int    // best-of-N, N odd
	QuestionsPerRound int
	Self              Participant
	Opponent          Participant
	Questions         []questionbank.Question // immutable for the session
	Timing            Timing
}

// winsNeeded is the set score that decides the match.
func (c Config) winsNeeded() int {
	return (c.Format + 1) / 2
}

// totalQuestions is the maximum number of questions a full match consumes.
func (c Config) totalQuestions() int {
	return c.Format * c.QuestionsPerRound
}

// Outcome is the terminal result of a session, mirrored into the history
// store before GameOver is entered.
type Outcome struct {
	Result      string // history.ResultWin / ResultLoss / ResultDraw
	SetScore    ScorePair
	RoundScores []int // padded with trailing zeros to Format entries
	MMRChange   int
	NewMMR      *int
	Reason      string // empty for a normally finished match
}

// Notifier receives session callbacks to drive a presentation layer.
// Callbacks run with the session lock held: implementations must not call
// back into the session synchronously.
type Notifier interface {
	PhaseChanged(phase Phase)
	QuestionShown(index, round int, question questionbank.Question)
	AnswerAccepted(index, selectedIndex int, correct bool)
	Revealed(index int, local, remote transport.AnswerEvent, roundPoints ScorePair)
	RoundFinished(round int, points ScorePair, setScore ScorePair, draw bool)
	RoundStarted(round int)
	MatchFinished(outcome Outcome)
}

// NopNotifier discards all callbacks.
type NopNotifier struct{}

func (NopNotifier) PhaseChanged(Phase)                                                    {}
func (NopNotifier) QuestionShown(int, int, questionbank.Question)                         {}
func (NopNotifier) AnswerAccepted(int, int, bool)                                         {}
func (NopNotifier) Revealed(int, transport.AnswerEvent, transport.AnswerEvent, ScorePair) {}
func (NopNotifier) RoundFinished(int, ScorePair, ScorePair, bool)                         {}
func (NopNotifier) RoundStarted(int)                                                      {}
func (NopNotifier) MatchFinished(Outcome)                                                 {}
