package duel

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quizarena/arena/internal/questionbank"
	"github.com/quizarena/arena/internal/transport"
)

// BotProfile tunes a scripted opponent.
type BotProfile struct {
	Accuracy float64 // probability of answering correctly, 0..1
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultBotProfile answers most questions correctly after a human-ish
// pause.
func DefaultBotProfile() BotProfile {
	return BotProfile{
		Accuracy: 0.7,
		MinDelay: 1500 * time.Millisecond,
		MaxDelay: 6 * time.Second,
	}
}

// Bot drives a session as a scripted opponent. It observes the session
// through the Notifier callbacks and submits answers on its own clock, so
// the engine treats it exactly like a human peer on the channel.
type Bot struct {
	profile BotProfile
	log     zerolog.Logger

	mu      sync.Mutex
	session *Session
	rng     *rand.Rand
}

var _ Notifier = (*Bot)(nil)

// NewBot creates a bot. Attach returns it as the notifier for the bot's
// own session.
func NewBot(profile BotProfile, logger zerolog.Logger) *Bot {
	if profile.MaxDelay < profile.MinDelay {
		profile.MaxDelay = profile.MinDelay
	}
	return &Bot{
		profile: profile,
		log:     logger.With().Str("component", "duel_bot").Logger(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Attach binds the bot to the session it plays.
func (b *Bot) Attach(s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = s
}

// QuestionShown schedules the bot's answer. Runs under the session lock,
// so the answer itself is submitted from a separate goroutine.
func (b *Bot) QuestionShown(index, round int, q questionbank.Question) {
	go b.answer(index, q)
}

func (b *Bot) answer(index int, q questionbank.Question) {
	b.mu.Lock()
	s := b.session
	delay := b.profile.MinDelay
	if span := b.profile.MaxDelay - b.profile.MinDelay; span > 0 {
		delay += time.Duration(b.rng.Int63n(int64(span)))
	}
	correct := b.rng.Float64() < b.profile.Accuracy
	b.mu.Unlock()
	if s == nil {
		return
	}

	time.Sleep(delay)

	choice := q.CorrectIndex
	if !correct {
		b.mu.Lock()
		choice = b.rng.Intn(len(q.Options))
		b.mu.Unlock()
		if choice == q.CorrectIndex {
			choice = (choice + 1) % len(q.Options)
		}
	}

	if err := s.SubmitAnswer(context.Background(), choice); err != nil {
		b.log.Debug().Err(err).Int("question_index", index).Msg("bot answer rejected")
	}
}

func (b *Bot) PhaseChanged(Phase)                                                    {}
func (b *Bot) AnswerAccepted(int, int, bool)                                         {}
func (b *Bot) RoundStarted(int)                                                      {}
func (b *Bot) RoundFinished(int, ScorePair, ScorePair, bool)                         {}
func (b *Bot) Revealed(int, transport.AnswerEvent, transport.AnswerEvent, ScorePair) {}

func (b *Bot) MatchFinished(out Outcome) {
	b.log.Info().Str("result", out.Result).Msg("bot match finished")
}
