package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseClientMessageJoin(t *testing.T) {
	data := []byte(`{"type":"join","req_id":"r1","group_id":"g-1"}`)

	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeJoin {
		t.Errorf("expected type %q, got %q", TypeJoin, msgType)
	}

	join, ok := msg.(JoinMsg)
	if !ok {
		t.Fatalf("expected JoinMsg, got %T", msg)
	}
	if join.GroupID != "g-1" {
		t.Errorf("expected group_id 'g-1', got %q", join.GroupID)
	}
	if join.ReqID != "r1" {
		t.Errorf("expected req_id 'r1', got %q", join.ReqID)
	}
}

func TestParseClientMessageSend(t *testing.T) {
	data := []byte(`{
		"type": "send",
		"group_id": "g-1",
		"text": "hello from the trail",
		"reply_to": "m-9",
		"client_key": "ck-42"
	}`)

	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSend {
		t.Errorf("expected type %q, got %q", TypeSend, msgType)
	}

	send, ok := msg.(SendMsg)
	if !ok {
		t.Fatalf("expected SendMsg, got %T", msg)
	}
	if send.Text != "hello from the trail" {
		t.Errorf("unexpected text: %q", send.Text)
	}
	if send.ReplyTo != "m-9" {
		t.Errorf("unexpected reply_to: %q", send.ReplyTo)
	}
	if send.ClientKey != "ck-42" {
		t.Errorf("unexpected client_key: %q", send.ClientKey)
	}
}

func TestParseClientMessageTypingVariants(t *testing.T) {
	for _, typ := range []string{TypeTypingStart, TypeTypingStop} {
		data := []byte(`{"type":"` + typ + `","group_id":"g-1"}`)
		msgType, msg, err := ParseClientMessage(data)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", typ, err)
		}
		if msgType != typ {
			t.Errorf("expected type %q, got %q", typ, msgType)
		}
		if _, ok := msg.(TypingMsg); !ok {
			t.Errorf("%s: expected TypingMsg, got %T", typ, msg)
		}
	}
}

func TestParseClientMessageMarkRead(t *testing.T) {
	data := []byte(`{"type":"mark_read","group_id":"g-1","message_ids":["a","b","a"]}`)

	_, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mr, ok := msg.(MarkReadMsg)
	if !ok {
		t.Fatalf("expected MarkReadMsg, got %T", msg)
	}
	if len(mr.MessageIDs) != 3 {
		t.Errorf("expected 3 ids (dedup is the store's job), got %d", len(mr.MessageIDs))
	}
}

func TestParseClientMessageUnknownType(t *testing.T) {
	data := []byte(`{"type":"presence_snapshot","group_id":"g-1"}`)

	msgType, _, err := ParseClientMessage(data)
	if err == nil {
		t.Fatal("expected error for server-only message type")
	}
	if msgType != TypePresenceSnapshot {
		t.Errorf("expected type to be returned even on error, got %q", msgType)
	}
}

func TestParseClientMessageMissingType(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"group_id":"g-1"}`)); err == nil {
		t.Fatal("expected error for missing type field")
	}
	if _, _, err := ParseClientMessage([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestNewServerMessageInjectsType(t *testing.T) {
	data, err := NewServerMessage(TypeAck, AckMsg{
		ReqID: "r7",
		Op:    TypeSend,
		OK:    false,
		Error: &ErrorInfo{Code: CodeForbidden, Message: "not a member"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["type"] != TypeAck {
		t.Errorf("expected injected type %q, got %v", TypeAck, decoded["type"])
	}
	if decoded["req_id"] != "r7" {
		t.Errorf("expected req_id 'r7', got %v", decoded["req_id"])
	}
	if !strings.Contains(string(data), CodeForbidden) {
		t.Errorf("expected error code in payload: %s", data)
	}
}

func TestMessageViewRoundTrip(t *testing.T) {
	view := MessageView{
		ID:      "m-1",
		GroupID: "g-1",
		Author:  UserRef{ID: "u-1", DisplayName: "Ana"},
		Kind:    KindFile,
		Body:    "https://cdn.example.com/itinerary.pdf",
		FileName: "itinerary.pdf",
		ReplyTo: &ReplyView{ID: "m-0", Author: UserRef{ID: "u-2", DisplayName: "Ben"}},
		Reactions: []ReactionView{
			{Emoji: "🔥", User: UserRef{ID: "u-2", DisplayName: "Ben"}, Ts: 100},
		},
		ReadBy:      []string{"u-1"},
		DeliveredTo: []string{},
		CreatedAt:   123,
	}

	data, err := NewServerMessage(TypeNewMessage, NewMessageMsg{Message: view})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out NewMessageMsg
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Message.ID != "m-1" || out.Message.Kind != KindFile {
		t.Errorf("unexpected message: %+v", out.Message)
	}
	if out.Message.ReplyTo == nil || out.Message.ReplyTo.ID != "m-0" {
		t.Errorf("reply projection lost in round trip: %+v", out.Message.ReplyTo)
	}
	if len(out.Message.Reactions) != 1 || out.Message.Reactions[0].Emoji != "🔥" {
		t.Errorf("reactions lost in round trip: %+v", out.Message.Reactions)
	}
}
