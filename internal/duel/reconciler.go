package duel

import "github.com/quizarena/arena/internal/transport"

// reconciler pairs the local answer with the opponent's for each question
// index. Remote answers may arrive early (opponent is ahead), late, or not
// at all; they are buffered by index until the local side is ready to
// resolve. The reconciler is not safe for concurrent use, the owning
// session's lock guards it.
type reconciler struct {
	local         map[int]transport.AnswerEvent
	remote        map[int]transport.AnswerEvent
	revealStarted map[int]bool
	resolved      map[int]bool
}

func newReconciler() *reconciler {
	return &reconciler{
		local:         make(map[int]transport.AnswerEvent),
		remote:        make(map[int]transport.AnswerEvent),
		revealStarted: make(map[int]bool),
		resolved:      make(map[int]bool),
	}
}

// BufferRemote records the opponent's answer for its question index.
// Duplicates and answers for already-resolved questions are dropped, so a
// re-delivered event can never double count.
func (r *reconciler) BufferRemote(evt transport.AnswerEvent) bool {
	idx := evt.QuestionIndex
	if r.resolved[idx] {
		return false
	}
	if _, ok := r.remote[idx]; ok {
		return false
	}
	r.remote[idx] = evt
	return true
}

// ConfirmLocal records the local answer. A question accepts exactly one.
func (r *reconciler) ConfirmLocal(evt transport.AnswerEvent) bool {
	idx := evt.QuestionIndex
	if r.resolved[idx] {
		return false
	}
	if _, ok := r.local[idx]; ok {
		return false
	}
	r.local[idx] = evt
	return true
}

func (r *reconciler) LocalConfirmed(idx int) bool {
	_, ok := r.local[idx]
	return ok
}

func (r *reconciler) Local(idx int) (transport.AnswerEvent, bool) {
	evt, ok := r.local[idx]
	return evt, ok
}

func (r *reconciler) Remote(idx int) (transport.AnswerEvent, bool) {
	evt, ok := r.remote[idx]
	return evt, ok
}

// Ready reports whether the question can be resolved: the local answer is
// in, and either the opponent's answer is buffered or the countdown already
// ran out (the opponent is then treated as having not answered).
func (r *reconciler) Ready(idx int, countdownElapsed bool) bool {
	if !r.LocalConfirmed(idx) {
		return false
	}
	if _, ok := r.remote[idx]; ok {
		return true
	}
	return countdownElapsed
}

// StartReveal marks the reveal window open for the index. It fires at most
// once per question regardless of how many events arrive after readiness.
func (r *reconciler) StartReveal(idx int) bool {
	if r.revealStarted[idx] || r.resolved[idx] {
		return false
	}
	r.revealStarted[idx] = true
	return true
}

// MarkResolved freezes the question. Further events for it are ignored.
func (r *reconciler) MarkResolved(idx int) {
	r.resolved[idx] = true
}

func (r *reconciler) IsResolved(idx int) bool {
	return r.resolved[idx]
}
