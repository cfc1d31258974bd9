package throttle_test

import (
	"sync"
	"testing"
	"time"

	"sendit/internal/throttle"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestIsFreePerKey(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	th := throttle.New(time.Second, throttle.WithClock(clock.Now))

	steps := []struct {
		advance time.Duration
		key     string
		want    bool
	}{
		{0, "a.txt", true},
		{0, "a.txt", false},
		{0, "b.txt", true},
		{500 * time.Millisecond, "a.txt", false},
		{499 * time.Millisecond, "a.txt", false},
		{1 * time.Millisecond, "a.txt", true},
		{0, "b.txt", true},
		{0, "b.txt", false},
	}
	for i, step := range steps {
		clock.Advance(step.advance)
		if got := th.IsFree(step.key); got != step.want {
			t.Fatalf("step %d: IsFree(%q) = %v, want %v", i, step.key, got, step.want)
		}
	}
}

// At most one admitted update per key per window.
func TestIsFreeAdmitsOncePerWindow(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	th := throttle.New(time.Second, throttle.WithClock(clock.Now))

	admitted := 0
	for i := 0; i < 100; i++ {
		if th.IsFree("movie.mkv") {
			admitted++
		}
		clock.Advance(10 * time.Millisecond)
	}
	if admitted != 1 {
		t.Fatalf("expected exactly 1 admitted update in a 1s window, got %d", admitted)
	}
}

func TestIsFreeGlobalStartsOpen(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	th := throttle.New(time.Second, throttle.WithClock(clock.Now))

	if !th.IsFreeGlobal() {
		t.Fatal("expected global gate to start open")
	}
	if th.IsFreeGlobal() {
		t.Fatal("expected global gate closed immediately after admission")
	}
	clock.Advance(time.Second)
	if !th.IsFreeGlobal() {
		t.Fatal("expected global gate open after delay")
	}
}

func TestForgetAndReset(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	th := throttle.New(time.Minute, throttle.WithClock(clock.Now))

	th.IsFree("a")
	th.IsFree("b")
	th.Forget("a")
	if !th.IsFree("a") {
		t.Fatal("expected forgotten key to be free")
	}
	if th.IsFree("b") {
		t.Fatal("expected other keys to keep their state")
	}
	th.Reset()
	if !th.IsFree("b") {
		t.Fatal("expected reset to clear all keys")
	}
}

func TestZeroDelayAlwaysFree(t *testing.T) {
	th := throttle.New(0)
	for i := 0; i < 5; i++ {
		if !th.IsFree("a") {
			t.Fatalf("call %d: expected zero-delay throttle to admit", i)
		}
	}
}
