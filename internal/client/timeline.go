package client

import (
	"sync"

	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/protocol"
)

// Timeline is the ordered, append-only sequence of messages visible in a
// conversation. History pages and the live stream both funnel through it;
// a live frame is appended only when nothing in the sequence matches it by
// id or client key, so the echo of the user's own send lands on top of the
// optimistic copy instead of next to it.
type Timeline struct {
	mu      sync.Mutex
	selfID  string
	entries []protocol.MessageView
	byID    map[string]int
	byKey   map[string]int

	// OnChange fires after the visible sequence grows (scroll-to-latest).
	OnChange func()

	// OnRead receives the ids of newly visible messages authored by others,
	// for the read-receipt sweep.
	OnRead func(messageIDs []string)
}

// NewTimeline creates an empty timeline for the given viewer. selfID
// excludes the viewer's own messages from read sweeps.
func NewTimeline(selfID string) *Timeline {
	return &Timeline{
		selfID: selfID,
		byID:   make(map[string]int),
		byKey:  make(map[string]int),
	}
}

// Merge folds a batch of messages (a history page, or buffered live frames)
// into the sequence. Duplicates update in place; genuinely new messages
// append. One OnChange and one read sweep cover the whole batch.
func (t *Timeline) Merge(msgs []protocol.MessageView) {
	t.mu.Lock()
	var toRead []string
	grew := false
	for _, m := range msgs {
		if t.applyLocked(m) {
			grew = true
			if m.Author.ID != t.selfID {
				toRead = append(toRead, m.ID)
			}
		}
	}
	t.mu.Unlock()

	t.notify(grew, toRead)
}

// Apply folds a single live message into the sequence and reports whether it
// was new.
func (t *Timeline) Apply(m protocol.MessageView) bool {
	t.mu.Lock()
	appended := t.applyLocked(m)
	t.mu.Unlock()

	var toRead []string
	if appended && m.Author.ID != t.selfID {
		toRead = []string{m.ID}
	}
	t.notify(appended, toRead)
	return appended
}

// Update replaces an existing entry (reaction or read-state change on a
// message already on screen). Unknown ids are ignored: a delta for a message
// outside the loaded window is not worth a fetch.
func (t *Timeline) Update(m protocol.MessageView) {
	t.mu.Lock()
	if i, ok := t.byID[m.ID]; ok {
		t.entries[i] = m
	}
	t.mu.Unlock()
}

// applyLocked returns true when the message was appended. A client-key match
// means this is the authoritative echo of an optimistic local copy: the entry
// is replaced in place, keeping its position, and the id index is updated.
func (t *Timeline) applyLocked(m protocol.MessageView) bool {
	if i, ok := t.byID[m.ID]; ok {
		t.entries[i] = m
		return false
	}
	if m.ClientKey != "" {
		if i, ok := t.byKey[m.ClientKey]; ok {
			old := t.entries[i]
			if old.ID != "" && old.ID != m.ID {
				delete(t.byID, old.ID)
			}
			t.entries[i] = m
			t.byID[m.ID] = i
			return false
		}
	}

	t.entries = append(t.entries, m)
	i := len(t.entries) - 1
	if m.ID != "" {
		t.byID[m.ID] = i
	}
	if m.ClientKey != "" {
		t.byKey[m.ClientKey] = i
	}
	return true
}

func (t *Timeline) notify(grew bool, toRead []string) {
	if !grew {
		return
	}
	if t.OnChange != nil {
		t.OnChange()
	}
	if len(toRead) > 0 && t.OnRead != nil {
		t.OnRead(toRead)
	}
}

// Messages returns a copy of the visible sequence in order.
func (t *Timeline) Messages() []protocol.MessageView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]protocol.MessageView(nil), t.entries...)
}

// Len returns the number of visible messages.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
