package client

import (
	"sort"
	"sync"
	"time"
)

const (
	// notifierIdle is how long after the last keystroke the single terminal
	// typing_stop fires.
	notifierIdle = 1200 * time.Millisecond

	// indicatorExpiry is how long a received typing=true stays visible
	// without a refresh. Slightly longer than the sender's idle window, so a
	// continuously typing user never flickers.
	indicatorExpiry = 2500 * time.Millisecond
)

// Notifier debounces the local user's typing signals: the first keystroke
// emits typing_start immediately, every keystroke re-arms the idle timer, and
// exactly one typing_stop fires once the user has been idle. Rapid typing
// therefore coalesces into a single start/stop pair.
type Notifier struct {
	mu     sync.Mutex
	start  func()
	stop   func()
	idle   time.Duration
	timer  *time.Timer
	active bool
}

// NewNotifier creates a Notifier that calls start/stop on the transitions.
func NewNotifier(start, stop func()) *Notifier {
	return &Notifier{start: start, stop: stop, idle: notifierIdle}
}

// Keystroke records input activity.
func (n *Notifier) Keystroke() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.active {
		n.active = true
		n.start()
	}
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.idle, n.expire)
}

func (n *Notifier) expire() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.active {
		n.active = false
		n.stop()
	}
}

// Flush emits the pending stop immediately, used when a message is sent: the
// send supersedes the typing indicator.
func (n *Notifier) Flush() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.timer != nil {
		n.timer.Stop()
	}
	if n.active {
		n.active = false
		n.stop()
	}
}

// Indicator tracks which other members are currently typing, from the
// receiver's side. typing=true arms (or re-arms) a per-user expiry timer;
// typing=false or the expiry clears the user. The expiry covers the lost
// typing_stop case: stale indicators clean themselves up.
type Indicator struct {
	mu     sync.Mutex
	expiry time.Duration
	timers map[string]*time.Timer

	// OnChange receives the sorted set of typing users after every change.
	OnChange func(userIDs []string)
}

// NewIndicator creates an empty Indicator.
func NewIndicator() *Indicator {
	return &Indicator{
		expiry: indicatorExpiry,
		timers: make(map[string]*time.Timer),
	}
}

// Set applies a typing delta for a user. OnChange fires only when the active
// set actually changed: refreshing an already-typing user or stopping an
// unknown one is silent.
func (i *Indicator) Set(userID string, typing bool) {
	i.mu.Lock()
	changed := false
	if typing {
		timer, known := i.timers[userID]
		if known {
			timer.Stop()
		}
		i.timers[userID] = time.AfterFunc(i.expiry, func() { i.clear(userID) })
		changed = !known
	} else {
		if timer, known := i.timers[userID]; known {
			timer.Stop()
			delete(i.timers, userID)
			changed = true
		}
	}
	active := i.activeLocked()
	i.mu.Unlock()

	if changed && i.OnChange != nil {
		i.OnChange(active)
	}
}

func (i *Indicator) clear(userID string) {
	i.mu.Lock()
	if _, ok := i.timers[userID]; !ok {
		i.mu.Unlock()
		return
	}
	delete(i.timers, userID)
	active := i.activeLocked()
	i.mu.Unlock()

	if i.OnChange != nil {
		i.OnChange(active)
	}
}

// Active returns the sorted ids of currently typing users.
func (i *Indicator) Active() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.activeLocked()
}

func (i *Indicator) activeLocked() []string {
	out := make([]string, 0, len(i.timers))
	for id := range i.timers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
