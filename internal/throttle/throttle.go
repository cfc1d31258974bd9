// Package throttle provides the per-key cooldown gate used to rate-limit
// progress updates.
//
// A Throttle never buffers suppressed values: callers that are told "not
// free" simply drop the update and rely on a later one (or a terminal event)
// to carry the final state.
package throttle

import (
	"sync"
	"time"
)

// Clock reports the current time. Tests inject a manual clock.
type Clock func() time.Time

// Option configures a Throttle.
type Option func(*Throttle)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(t *Throttle) {
		if clock != nil {
			t.now = clock
		}
	}
}

// Throttle answers whether enough time has passed since the last admitted
// update for a key.
type Throttle struct {
	delay time.Duration
	now   Clock

	mu       sync.Mutex
	last     map[string]time.Time
	global   time.Time
	hasPrior bool
}

// New constructs a Throttle with the given minimum spacing. A non-positive
// delay admits every call.
func New(delay time.Duration, opts ...Option) *Throttle {
	t := &Throttle{
		delay: delay,
		now:   time.Now,
		last:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Delay returns the configured spacing.
func (t *Throttle) Delay() time.Duration {
	return t.delay
}

// IsFree reports whether an update for key may be applied now. The first call
// for a key is always free. A true answer records the current time.
func (t *Throttle) IsFree(key string) bool {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	last, seen := t.last[key]
	if seen && now.Sub(last) < t.delay {
		return false
	}
	t.last[key] = now
	return true
}

// IsFreeGlobal is the keyless form of IsFree. The gate starts open.
func (t *Throttle) IsFreeGlobal() bool {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hasPrior && now.Sub(t.global) < t.delay {
		return false
	}
	t.global = now
	t.hasPrior = true
	return true
}

// Forget drops the recorded time for key so its next update is admitted.
func (t *Throttle) Forget(key string) {
	t.mu.Lock()
	delete(t.last, key)
	t.mu.Unlock()
}

// Reset drops all per-key and global state.
func (t *Throttle) Reset() {
	t.mu.Lock()
	t.last = make(map[string]time.Time)
	t.global = time.Time{}
	t.hasPrior = false
	t.mu.Unlock()
}
