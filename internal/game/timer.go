package game

import (
	"sync"
	"time"
)

// TurnTimer counts the current turn down and fires a skip when it reaches
// zero. Timer state is local to this process and never persisted; every
// observer runs its own countdown against the shared deadline it last saw.
// Because several processes may watch the same session, the expire callback
// carries the observed turn index and deadline so the machine's idempotency
// guard can reject duplicate skips.
type TurnTimer struct {
	mu        sync.Mutex
	limit     time.Duration
	remaining time.Duration
	paused    bool
	armed     bool
	fired     bool
	turn      int
	deadline  time.Time

	expire func(turn int, deadline time.Time)
	done   chan struct{}
	once   sync.Once
}

// NewTurnTimer starts a timer ticking once per second. The expire callback
// runs off the timer goroutine once per observed (turn, deadline) pair.
func NewTurnTimer(limit time.Duration, expire func(turn int, deadline time.Time)) *TurnTimer {
	if limit <= 0 {
		limit = DefaultTurnLimit
	}
	t := &TurnTimer{
		limit:     limit,
		remaining: limit,
		expire:    expire,
		done:      make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *TurnTimer) run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

// tick consumes one second of the countdown and fires the expiry once.
func (t *TurnTimer) tick() {
	t.mu.Lock()
	if !t.armed || t.paused || t.fired {
		t.mu.Unlock()
		return
	}
	t.remaining -= time.Second
	if t.remaining > 0 {
		t.mu.Unlock()
		return
	}
	t.fired = true
	turn, deadline, expire := t.turn, t.deadline, t.expire
	t.mu.Unlock()

	if expire != nil {
		expire(turn, deadline)
	}
}

// Observe feeds the timer a fresh snapshot. A changed turn index or deadline
// resets the countdown to the full limit; a session that is not started or
// has no deadline disarms it.
func (t *TurnTimer) Observe(s Session) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !s.Started || s.TurnDeadline == nil {
		t.armed = false
		return
	}
	if t.armed && s.TurnIndex == t.turn && s.TurnDeadline.Equal(t.deadline) {
		return
	}
	t.armed = true
	t.fired = false
	t.turn = s.TurnIndex
	t.deadline = *s.TurnDeadline
	t.remaining = t.limit
}

// Extend adds time to the countdown, capped at the configured limit. An
// extension never pushes past the original turn budget.
func (t *TurnTimer) Extend(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d <= 0 {
		return
	}
	t.remaining += d
	if t.remaining > t.limit {
		t.remaining = t.limit
	}
}

// Pause freezes the countdown. No skip fires while paused.
func (t *TurnTimer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = true
}

// Resume restarts a paused countdown.
func (t *TurnTimer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = false
}

// Remaining reports the seconds left on the current turn.
func (t *TurnTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Paused reports whether the countdown is frozen.
func (t *TurnTimer) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Close stops the timer goroutine. Safe to call more than once.
func (t *TurnTimer) Close() {
	t.once.Do(func() { close(t.done) })
}
