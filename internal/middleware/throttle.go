package middleware

import (
	"sync"
	"time"
)

// sweepThreshold bounds the window map: once it grows past this many keys,
// expired windows are dropped on the next attempt.
const sweepThreshold = 1024

// Throttle limits login attempts per client key over a fixed window, so the
// challenge endpoint cannot be brute-forced from one address. Denials report
// how long the caller must wait before the window resets.
type Throttle struct {
	mu      sync.Mutex
	windows map[string]*attemptWindow
	limit   int
	span    time.Duration
	now     func() time.Time
}

type attemptWindow struct {
	count   int
	resetAt time.Time
}

func NewThrottle(limit int, span time.Duration) *Throttle {
	return newThrottleWithClock(limit, span, time.Now)
}

func newThrottleWithClock(limit int, span time.Duration, now func() time.Time) *Throttle {
	return &Throttle{
		windows: make(map[string]*attemptWindow),
		limit:   limit,
		span:    span,
		now:     now,
	}
}

// Allow records an attempt for key. It reports whether the attempt may
// proceed and, when denied, the remaining wait.
func (t *Throttle) Allow(key string) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if len(t.windows) > sweepThreshold {
		t.dropExpired(now)
	}

	w, ok := t.windows[key]
	if !ok || now.After(w.resetAt) {
		t.windows[key] = &attemptWindow{count: 1, resetAt: now.Add(t.span)}
		return true, 0
	}
	if w.count >= t.limit {
		return false, w.resetAt.Sub(now)
	}
	w.count++
	return true, 0
}

func (t *Throttle) dropExpired(now time.Time) {
	for key, w := range t.windows {
		if now.After(w.resetAt) {
			delete(t.windows, key)
		}
	}
}
