package duel

import (
	"sync"
	"time"
)

// phaseTimer keeps at most one pending callback. Scheduling replaces the
// previous callback; a callback that lost the race against Schedule or
// Cancel observes a stale generation and does nothing.
type phaseTimer struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func (t *phaseTimer) Schedule(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		stale := t.gen != gen
		t.mu.Unlock()
		if stale {
			return
		}
		fn()
	})
}

func (t *phaseTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
