// Package duel runs the realtime 1v1 match engine. Each participant runs
// its own Session over a shared room channel; there is no referee process.
// A session is authoritative for its own score and derives the opponent's
// from validated broadcast events.
package duel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quizarena/arena/internal/history"
	"github.com/quizarena/arena/internal/profile"
	"github.com/quizarena/arena/internal/transport"
)

const publishTimeout = 2 * time.Second

// Session coordinates one participant's side of a duel: question flow,
// answer reconciliation, scoring, and terminal resolution.
type Session struct {
	cfg      Config
	log      zerolog.Logger
	ch       transport.Channel
	history  history.Store
	profiles profile.Store
	notify   Notifier

	mu               sync.Mutex
	phase            Phase
	index            int // current question index, monotonically increasing
	setScore         ScorePair
	roundPoints      ScorePair
	cumulative       ScorePair
	roundHistory     []ScorePair // completed rounds, in order
	countdownElapsed bool
	oppState         string
	outcome          *Outcome
	recon            *reconciler
	timer            phaseTimer

	done     chan struct{}
	stopOnce sync.Once
}

// NewSession validates the config and builds a session. Timing defaults are
// applied when the zero value is passed.
func NewSession(cfg Config, ch transport.Channel, hist history.Store, profiles profile.Store, notify Notifier, logger zerolog.Logger) (*Session, error) {
	if cfg.Format < 1 || cfg.Format%2 == 0 {
		return nil, fmt.Errorf("format must be a positive odd number, got %d", cfg.Format)
	}
	if cfg.QuestionsPerRound < 1 {
		return nil, fmt.Errorf("questions per round must be positive, got %d", cfg.QuestionsPerRound)
	}
	if len(cfg.Questions) < cfg.totalQuestions() {
		return nil, fmt.Errorf("need %d questions, got %d", cfg.totalQuestions(), len(cfg.Questions))
	}
	if cfg.Self.ID == cfg.Opponent.ID {
		return nil, errors.New("participants must be distinct")
	}
	if ch == nil || hist == nil || profiles == nil {
		return nil, errors.New("channel, history store and profile store are required")
	}
	if cfg.Timing == (Timing{}) {
		cfg.Timing = DefaultTiming()
	}
	if notify == nil {
		notify = NopNotifier{}
	}

	return &Session{
		cfg:      cfg,
		log:      logger.With().Str("component", "duel_session").Str("session_id", cfg.SessionID.String()).Logger(),
		ch:       ch,
		history:  hist,
		profiles: profiles,
		notify:   notify,
		oppState: ConnectionConnected,
		recon:    newReconciler(),
		done:     make(chan struct{}),
	}, nil
}

// Start enters Preparing and launches the event pumps. ctx bounds the
// background goroutines, not the match itself.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != "" {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	s.setPhaseLocked(PhasePreparing)
	s.timer.Schedule(s.cfg.Timing.PrepareDelay, s.enterStarting)
	s.mu.Unlock()

	sessionsStarted.Inc()
	s.log.Info().
		Str("room_id", s.cfg.RoomID).
		Str("mode", s.cfg.Mode).
		Int("format", s.cfg.Format).
		Msg("session starting")

	go s.pump(ctx)
	go s.heartbeat(ctx)
	return nil
}

// Done is closed once the session reached GameOver.
func (s *Session) Done() <-chan struct{} { return s.done }

// Phase returns the current match phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// QuestionIndex returns the current question index.
func (s *Session) QuestionIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// SetScore returns the current set score.
func (s *Session) SetScore() ScorePair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setScore
}

// Outcome returns the terminal outcome, nil before GameOver.
func (s *Session) Outcome() *Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return nil
	}
	out := *s.outcome
	return &out
}

// setPhaseLocked transitions the phase and notifies. Caller holds the lock.
func (s *Session) setPhaseLocked(p Phase) {
	s.phase = p
	s.notify.PhaseChanged(p)
}

func (s *Session) roundOf(index int) int {
	return index/s.cfg.QuestionsPerRound + 1
}

// pump dispatches channel events until the channel or session goes down.
func (s *Session) pump(ctx context.Context) {
	for {
		select {
		case env, ok := <-s.ch.Events():
			if !ok {
				return
			}
			s.handleEnvelope(env)
		case p, ok := <-s.ch.Presence():
			if !ok {
				return
			}
			s.handlePresence(p)
		case <-s.ch.Done():
			s.handleChannelDown()
			return
		case <-ctx.Done():
			return
		}
	}
}

// heartbeat broadcasts q_sync at a fixed interval so a peer that missed an
// answer event can detect it and catch up.
func (s *Session) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Timing.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.publishSync()
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) publishSync() {
	s.mu.Lock()
	phase, idx := s.phase, s.index
	s.mu.Unlock()

	switch phase {
	case PhasePlaying, PhaseAwaitingPeer, PhaseTransition, PhaseSetResult, PhaseRoundIntro:
	default:
		return
	}

	env, err := transport.NewEnvelope(transport.EventQuestionSync, transport.SyncEvent{
		ParticipantID: s.cfg.Self.ID,
		QuestionIndex: idx,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("encode q_sync")
		return
	}
	s.publish(env)
}

// publish broadcasts best effort. The reconciliation protocol tolerates
// lost events, so failures are only logged.
func (s *Session) publish(env transport.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.ch.Publish(ctx, env); err != nil && !errors.Is(err, transport.ErrChannelClosed) {
		s.log.Warn().Err(err).Str("event_type", env.Type).Msg("publish failed")
	}
}

func (s *Session) enterStarting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhasePreparing {
		return
	}
	s.setPhaseLocked(PhaseStarting)
	s.timer.Schedule(s.cfg.Timing.StartPulse, s.firstQuestion)
}

func (s *Session) firstQuestion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseStarting {
		return
	}
	s.notify.RoundStarted(1)
	s.beginQuestionLocked()
}

// beginQuestionLocked presents s.index and arms the countdown.
func (s *Session) beginQuestionLocked() {
	s.countdownElapsed = false
	s.setPhaseLocked(PhasePlaying)

	q := s.cfg.Questions[s.index]
	s.notify.QuestionShown(s.index, s.roundOf(s.index), q)
	s.timer.Schedule(s.cfg.Timing.QuestionCountdown, s.onCountdownZero)

	env, err := transport.NewEnvelope(transport.EventQuestionSync, transport.SyncEvent{
		ParticipantID: s.cfg.Self.ID,
		QuestionIndex: s.index,
	})
	if err == nil {
		go s.publish(env)
	}
}

// SubmitAnswer records the local participant's answer for the current
// question. Exactly one answer per question is accepted.
func (s *Session) SubmitAnswer(ctx context.Context, selectedIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying {
		return fmt.Errorf("no question accepting answers in phase %s", s.phase)
	}
	if s.recon.LocalConfirmed(s.index) {
		return fmt.Errorf("question %d already answered", s.index)
	}
	q := s.cfg.Questions[s.index]
	if selectedIndex < 0 || selectedIndex >= len(q.Options) {
		return fmt.Errorf("selected index %d out of range", selectedIndex)
	}

	s.submitLocalLocked(selectedIndex)
	return nil
}

// submitLocalLocked scores the answer, confirms it with the reconciler and
// broadcasts it. selected -1 means the countdown elapsed unanswered.
func (s *Session) submitLocalLocked(selected int) {
	q := s.cfg.Questions[s.index]
	correct := selected >= 0 && selected == q.CorrectIndex
	points := 0
	if correct {
		points = 1
	}

	s.cumulative.Self += points
	s.roundPoints.Self += points
	cum := s.cumulative.Self

	evt := transport.AnswerEvent{
		ParticipantID:   s.cfg.Self.ID,
		QuestionIndex:   s.index,
		SelectedIndex:   selected,
		IsCorrect:       correct,
		Points:          points,
		CumulativeScore: &cum,
	}
	s.recon.ConfirmLocal(evt)
	s.notify.AnswerAccepted(s.index, selected, correct)

	env, err := transport.NewEnvelope(transport.EventPlayerAnswer, evt)
	if err != nil {
		s.log.Error().Err(err).Msg("encode player_answer")
	} else {
		go s.publish(env)
	}

	if !s.maybeStartRevealLocked() && s.phase == PhasePlaying {
		s.setPhaseLocked(PhaseAwaitingPeer)
	}
}

// onCountdownZero fires when the question countdown runs out. An unanswered
// local side is auto-submitted as a timeout; a missing remote answer stops
// blocking resolution.
func (s *Session) onCountdownZero() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying && s.phase != PhaseAwaitingPeer {
		return
	}
	if s.recon.IsResolved(s.index) {
		return
	}

	s.countdownElapsed = true
	if !s.recon.LocalConfirmed(s.index) {
		s.submitLocalLocked(-1)
		return
	}
	s.maybeStartRevealLocked()
}

// maybeStartRevealLocked arms the reveal delay once the question is ready.
// Returns true when the reveal is running (newly or already).
func (s *Session) maybeStartRevealLocked() bool {
	if !s.recon.Ready(s.index, s.countdownElapsed) {
		return false
	}
	if !s.recon.StartReveal(s.index) {
		return true
	}
	s.timer.Schedule(s.cfg.Timing.RevealDelay, s.onReveal)
	return true
}

// onReveal resolves the current question: both answers are final, the
// opponent's contribution is validated against the question itself, and
// the transition window starts.
func (s *Session) onReveal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.terminal() {
		return
	}
	idx := s.index
	if s.recon.IsResolved(idx) {
		return
	}
	local, ok := s.recon.Local(idx)
	if !ok {
		return
	}

	remote, ok := s.recon.Remote(idx)
	if !ok {
		// No answer event arrived before the countdown: score the opponent
		// as a timeout.
		remote = transport.AnswerEvent{
			ParticipantID: s.cfg.Opponent.ID,
			QuestionIndex: idx,
			SelectedIndex: -1,
		}
	}

	// Derive the opponent's points from the question rather than trusting
	// the event's own scoring fields.
	q := s.cfg.Questions[idx]
	remotePoints := 0
	if remote.SelectedIndex >= 0 && remote.SelectedIndex == q.CorrectIndex {
		remotePoints = 1
	}
	remote.IsCorrect = remotePoints == 1
	remote.Points = remotePoints

	expected := s.cumulative.Opponent + remotePoints
	if remote.CumulativeScore != nil && *remote.CumulativeScore != expected {
		scoreDrift.Inc()
		s.log.Warn().
			Int("question_index", idx).
			Int("expected", expected).
			Int("broadcast", *remote.CumulativeScore).
			Msg("opponent cumulative score drifted, adopting broadcast value")
		s.cumulative.Opponent = *remote.CumulativeScore
	} else {
		s.cumulative.Opponent = expected
	}
	s.roundPoints.Opponent += remotePoints

	s.recon.MarkResolved(idx)
	s.notify.Revealed(idx, local, remote, s.roundPoints)

	s.setPhaseLocked(PhaseTransition)
	s.timer.Schedule(s.cfg.Timing.TransitionWindow, s.onTransition)
}

// onTransition advances to the next question or closes the round.
func (s *Session) onTransition() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseTransition {
		return
	}
	if (s.index+1)%s.cfg.QuestionsPerRound == 0 {
		s.finishRoundLocked()
		return
	}
	s.index++
	s.beginQuestionLocked()
}

// finishRoundLocked applies the round result to the set score. A drawn
// round moves neither score.
func (s *Session) finishRoundLocked() {
	round := s.roundOf(s.index)
	pts := s.roundPoints
	draw := pts.Self == pts.Opponent
	switch {
	case pts.Self > pts.Opponent:
		s.setScore.Self++
	case pts.Self < pts.Opponent:
		s.setScore.Opponent++
	}
	s.roundHistory = append(s.roundHistory, pts)
	s.notify.RoundFinished(round, pts, s.setScore, draw)

	s.log.Info().
		Int("round", round).
		Int("points_self", pts.Self).
		Int("points_opponent", pts.Opponent).
		Int("set_self", s.setScore.Self).
		Int("set_opponent", s.setScore.Opponent).
		Msg("round finished")

	needed := s.cfg.winsNeeded()
	if s.setScore.Self >= needed || s.setScore.Opponent >= needed || round >= s.cfg.Format {
		s.finishNormallyLocked()
		return
	}

	s.setPhaseLocked(PhaseSetResult)
	s.timer.Schedule(s.cfg.Timing.SetResultWindow, s.onSetResultOver)
}

func (s *Session) onSetResultOver() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseSetResult {
		return
	}
	s.setPhaseLocked(PhaseRoundIntro)
	s.notify.RoundStarted(len(s.roundHistory) + 1)
	s.timer.Schedule(s.cfg.Timing.RoundIntroWindow, s.onRoundIntroOver)
}

func (s *Session) onRoundIntroOver() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseRoundIntro {
		return
	}
	s.roundPoints = ScorePair{}
	s.index++
	s.beginQuestionLocked()
}

// handleEnvelope dispatches one inbound channel event. Malformed or
// out-of-protocol events are dropped.
func (s *Session) handleEnvelope(env transport.Envelope) {
	switch env.Type {
	case transport.EventPlayerAnswer:
		evt, err := env.DecodeAnswer()
		if err != nil {
			s.log.Debug().Err(err).Msg("dropping malformed answer event")
			return
		}
		s.handleAnswer(evt)
	case transport.EventQuestionSync:
		evt, err := env.DecodeSync()
		if err != nil {
			s.log.Debug().Err(err).Msg("dropping malformed sync event")
			return
		}
		s.handleSync(evt)
	case transport.EventSurrender:
		evt, err := env.DecodeSurrender()
		if err != nil {
			s.log.Debug().Err(err).Msg("dropping malformed surrender event")
			return
		}
		if evt.ParticipantID == s.cfg.Opponent.ID {
			s.handleRemoteSurrender()
		}
	default:
		s.log.Debug().Str("event_type", env.Type).Msg("ignoring unknown event type")
	}
}

func (s *Session) handleAnswer(evt transport.AnswerEvent) {
	if evt.ParticipantID != s.cfg.Opponent.ID {
		return // own echo or a stranger
	}
	if evt.QuestionIndex < 0 || evt.QuestionIndex >= s.cfg.totalQuestions() {
		s.log.Debug().Int("question_index", evt.QuestionIndex).Msg("dropping answer with out-of-range index")
		return
	}
	if evt.SelectedIndex < -1 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.terminal() {
		return
	}
	if !s.recon.BufferRemote(evt) {
		s.log.Debug().Int("question_index", evt.QuestionIndex).Msg("duplicate answer event ignored")
		return
	}
	if evt.QuestionIndex == s.index {
		s.maybeStartRevealLocked()
	}
}

// handleSync performs heartbeat catch-up: when the opponent reports an
// index past ours and our answer is already in, the missing answer event
// was lost. A zero-point stand-in unblocks resolution.
func (s *Session) handleSync(evt transport.SyncEvent) {
	if evt.ParticipantID != s.cfg.Opponent.ID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.terminal() {
		return
	}
	if evt.QuestionIndex <= s.index {
		return
	}
	if !s.recon.LocalConfirmed(s.index) || s.recon.IsResolved(s.index) {
		return
	}

	if _, ok := s.recon.Remote(s.index); !ok {
		s.recon.BufferRemote(transport.AnswerEvent{
			ParticipantID: s.cfg.Opponent.ID,
			QuestionIndex: s.index,
			SelectedIndex: -1,
		})
		catchUpResolutions.Inc()
		s.log.Info().
			Int("question_index", s.index).
			Int("opponent_index", evt.QuestionIndex).
			Msg("missed answer event, resolving via catch-up")
	}
	s.maybeStartRevealLocked()
}
