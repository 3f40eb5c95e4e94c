package discovery

import (
	"sync"
	"time"
)

// DeadlineTimer runs a callback once after a delay, through the same
// delivery path as daemon replies.
//
// Every Arm starts a new generation. A fire is only acted on when its
// generation is still current, so a timer that fires after Cancel or after
// being re-armed for a newer attempt is a no-op.
type DeadlineTimer struct {
	deliver func(func()) error

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

// NewDeadlineTimer creates a timer that hands expirations to deliver.
func NewDeadlineTimer(deliver func(func()) error) *DeadlineTimer {
	return &DeadlineTimer{deliver: deliver}
}

// Arm cancels any pending deadline and schedules onExpire after d.
// It returns the generation onExpire will be called with.
func (t *DeadlineTimer) Arm(d time.Duration, onExpire func(gen uint64)) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(d, func() {
		if !t.Active(gen) {
			return
		}
		_ = t.deliver(func() { onExpire(gen) })
	})
	return gen
}

// Cancel invalidates the current generation and stops the timer.
func (t *DeadlineTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Active reports whether gen is the armed, uncancelled generation.
func (t *DeadlineTimer) Active(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil && gen == t.gen
}
