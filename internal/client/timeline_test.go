package client

import (
	"testing"

	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/protocol"
)

func msgView(id, author, body string) protocol.MessageView {
	return protocol.MessageView{
		ID:     id,
		Author: protocol.UserRef{ID: author},
		Kind:   protocol.KindText,
		Body:   body,
	}
}

func ids(msgs []protocol.MessageView) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestTimelineMergeDeduplicatesHistoryAndLive(t *testing.T) {
	tl := NewTimeline("self")

	// History loads A and B, then the live stream replays A (overlap with the
	// history window) and delivers a genuinely new C.
	tl.Merge([]protocol.MessageView{
		msgView("a", "u1", "first"),
		msgView("b", "u2", "second"),
	})
	tl.Apply(msgView("a", "u1", "first"))
	tl.Apply(msgView("c", "u1", "third"))

	got := ids(tl.Messages())
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestTimelineEchoReplacesOptimisticCopy(t *testing.T) {
	tl := NewTimeline("self")

	// Optimistic local copy has no server id yet, only the client key.
	optimistic := protocol.MessageView{
		Author:    protocol.UserRef{ID: "self"},
		Kind:      protocol.KindText,
		Body:      "on my way",
		ClientKey: "ck-1",
	}
	tl.Apply(optimistic)

	echo := msgView("srv-1", "self", "on my way")
	echo.ClientKey = "ck-1"
	if appended := tl.Apply(echo); appended {
		t.Error("echo must replace the optimistic copy, not append")
	}

	msgs := tl.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ID != "srv-1" {
		t.Errorf("expected authoritative copy, got id %q", msgs[0].ID)
	}

	// The server id is now addressable for later updates.
	updated := echo
	updated.Body = "on my way"
	updated.Reactions = []protocol.ReactionView{{Emoji: "👍", User: protocol.UserRef{ID: "u2"}}}
	tl.Update(updated)
	if got := len(tl.Messages()[0].Reactions); got != 1 {
		t.Errorf("update by server id must reach the replaced entry, got %d reactions", got)
	}
}

func TestTimelineReadSweepSkipsOwnMessages(t *testing.T) {
	tl := NewTimeline("self")

	var swept []string
	tl.OnRead = func(messageIDs []string) {
		swept = append(swept, messageIDs...)
	}

	tl.Merge([]protocol.MessageView{
		msgView("a", "other", "hi"),
		msgView("b", "self", "hey"),
		msgView("c", "other", "photo"),
	})

	if len(swept) != 2 || swept[0] != "a" || swept[1] != "c" {
		t.Errorf("read sweep must cover only others' messages, got %v", swept)
	}

	// A duplicate triggers no second sweep.
	swept = nil
	tl.Apply(msgView("a", "other", "hi"))
	if len(swept) != 0 {
		t.Errorf("duplicate must not re-sweep, got %v", swept)
	}
}

func TestTimelineOnChangeFiresOnlyOnGrowth(t *testing.T) {
	tl := NewTimeline("self")

	changes := 0
	tl.OnChange = func() { changes++ }

	tl.Apply(msgView("a", "other", "hi"))
	tl.Apply(msgView("a", "other", "hi"))
	tl.Update(msgView("a", "other", "hi edited shape"))

	if changes != 1 {
		t.Errorf("expected 1 change notification, got %d", changes)
	}
}
