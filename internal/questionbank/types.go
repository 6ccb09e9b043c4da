package questionbank

import (
	"context"
	"errors"
)

// Difficulty constants for readability.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
	DifficultyAny    = ""
)

// OptionCount is fixed: every question carries exactly four options.
const OptionCount = 4

// ErrEmptyBank is returned when the bank cannot supply the requested
// questions. Fatal to starting a session, retry-eligible for the caller.
var ErrEmptyBank = errors.New("questionbank: not enough questions available")

// ErrMalformed flags a question that fails validation.
var ErrMalformed = errors.New("questionbank: malformed question")

// Question is the immutable per-match quiz item.
type Question struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Difficulty   string   `json:"difficulty,omitempty"`
}

// Validate checks the fixed shape of a question.
func (q Question) Validate() error {
	if q.Prompt == "" || len(q.Options) != OptionCount {
		return ErrMalformed
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= OptionCount {
		return ErrMalformed
	}
	return nil
}

// Source supplies an ordered, fixed-length question sequence for a match.
type Source interface {
	Fetch(ctx context.Context, count int, difficulty string) ([]Question, error)
}

// ValidateAll rejects a pack unless every question is well formed and the
// count matches the request exactly.
func ValidateAll(questions []Question, count int) error {
	if len(questions) < count {
		return ErrEmptyBank
	}
	for _, q := range questions[:count] {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}
