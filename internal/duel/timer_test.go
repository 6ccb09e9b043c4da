package duel

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPhaseTimer_ScheduleReplacesPending(t *testing.T) {
	var timer phaseTimer
	var first, second atomic.Int32

	timer.Schedule(50*time.Millisecond, func() { first.Add(1) })
	timer.Schedule(5*time.Millisecond, func() { second.Add(1) })

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, first.Load(), "replaced callback must not fire")
	assert.Equal(t, int32(1), second.Load())
}

func TestPhaseTimer_CancelStopsPending(t *testing.T) {
	var timer phaseTimer
	var fired atomic.Int32

	timer.Schedule(5*time.Millisecond, func() { fired.Add(1) })
	timer.Cancel()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fired.Load())

	// Cancel on an idle timer is a no-op.
	timer.Cancel()
}
