package client

import (
	"sync"
	"testing"
	"time"
)

// counter is a concurrency-safe call counter for callback assertions.
type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestNotifierCoalescesRapidKeystrokes(t *testing.T) {
	var starts, stops counter
	n := NewNotifier(starts.inc, stops.inc)
	n.idle = 30 * time.Millisecond

	// Five rapid keystrokes within the idle window.
	for i := 0; i < 5; i++ {
		n.Keystroke()
		time.Sleep(5 * time.Millisecond)
	}

	if got := starts.value(); got != 1 {
		t.Errorf("expected exactly 1 start, got %d", got)
	}
	if got := stops.value(); got != 0 {
		t.Errorf("stop must not fire while typing, got %d", got)
	}

	// After the idle window, exactly one terminal stop.
	time.Sleep(60 * time.Millisecond)
	if got := stops.value(); got != 1 {
		t.Errorf("expected exactly 1 stop after idle, got %d", got)
	}

	// A fresh keystroke starts a new cycle.
	n.Keystroke()
	if got := starts.value(); got != 2 {
		t.Errorf("expected a new start after idle, got %d", got)
	}
}

func TestNotifierFlushEmitsPendingStop(t *testing.T) {
	var starts, stops counter
	n := NewNotifier(starts.inc, stops.inc)
	n.idle = time.Hour // never expires on its own

	n.Keystroke()
	n.Flush()

	if got := stops.value(); got != 1 {
		t.Errorf("flush must emit the pending stop, got %d", got)
	}

	// Flushing while idle is a no-op.
	n.Flush()
	if got := stops.value(); got != 1 {
		t.Errorf("idle flush must not emit, got %d", got)
	}
}

func TestIndicatorExpiresStaleTyping(t *testing.T) {
	ind := NewIndicator()
	ind.expiry = 30 * time.Millisecond

	ind.Set("u1", true)
	if got := ind.Active(); len(got) != 1 || got[0] != "u1" {
		t.Fatalf("expected [u1], got %v", got)
	}

	// Refresh keeps the user active past the original expiry.
	time.Sleep(20 * time.Millisecond)
	ind.Set("u1", true)
	time.Sleep(20 * time.Millisecond)
	if got := ind.Active(); len(got) != 1 {
		t.Fatalf("refresh must extend the expiry, got %v", got)
	}

	// Without refresh the lost typing_stop self-heals.
	time.Sleep(30 * time.Millisecond)
	if got := ind.Active(); len(got) != 0 {
		t.Errorf("stale indicator must expire, got %v", got)
	}
}

func TestIndicatorExplicitStopClears(t *testing.T) {
	ind := NewIndicator()
	ind.expiry = time.Hour

	var last []string
	ind.OnChange = func(userIDs []string) { last = userIDs }

	ind.Set("u1", true)
	ind.Set("u2", true)
	if got := ind.Active(); len(got) != 2 {
		t.Fatalf("expected 2 typing users, got %v", got)
	}

	ind.Set("u1", false)
	if got := ind.Active(); len(got) != 1 || got[0] != "u2" {
		t.Errorf("expected [u2], got %v", got)
	}
	if len(last) != 1 || last[0] != "u2" {
		t.Errorf("OnChange must carry the remaining set, got %v", last)
	}

	// Stopping an unknown user is a no-op and fires no callback.
	last = nil
	ind.Set("u3", false)
	if got := ind.Active(); len(got) != 1 {
		t.Errorf("unknown stop must not change state, got %v", got)
	}
	if last != nil {
		t.Errorf("no-op stop must not invoke OnChange, got %v", last)
	}

	// Refreshing an already-typing user is likewise silent.
	ind.Set("u2", true)
	if last != nil {
		t.Errorf("refresh must not invoke OnChange, got %v", last)
	}
}
