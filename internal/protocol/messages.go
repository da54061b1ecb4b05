// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
// Requests that expect an acknowledgment carry a client-chosen req_id which is
// echoed back on the matching ack.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeJoin        = "join"
	TypeLeave       = "leave"
	TypeSend        = "send"
	TypeReact       = "react"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
	TypeMarkRead    = "mark_read"
	TypePing        = "ping"
)

// Server -> Client message types.
const (
	TypeAck              = "ack"
	TypeNewMessage       = "new_message"
	TypeReactionDelta    = "reaction_delta"
	TypePresenceSnapshot = "presence_snapshot"
	TypeTypingDelta      = "typing_delta"
	TypeReadDelta        = "read_delta"
	TypeError            = "error"
	TypePong             = "pong"
)

// Error codes carried in acks. Unauthorized never appears here: credential
// failures reject the connection at upgrade time, before any event exists.
const (
	CodeForbidden   = "forbidden"
	CodeNotFound    = "not_found"
	CodeBadRequest  = "bad_request"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal"
)

// Reaction toggle outcomes.
const (
	ActionAdded   = "added"
	ActionRemoved = "removed"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Display projections
// ---------------------------------------------------------------------------

// UserRef is the small display projection of a user embedded in outbound
// messages. Internal logic never consumes these; it operates on plain ids and
// expands them once, on the way out.
type UserRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// ReactionView is one (emoji, user) fact on a message, with the user expanded.
type ReactionView struct {
	Emoji string  `json:"emoji"`
	User  UserRef `json:"user"`
	Ts    int64   `json:"ts"`
}

// ReplyView is the projection of the message a message replies to.
type ReplyView struct {
	ID      string  `json:"id"`
	Author  UserRef `json:"author"`
	Preview string  `json:"preview,omitempty"`
}

// Message content kinds. Exactly one kind applies to a message; handlers
// switch on Kind instead of probing which URL field happens to be set.
const (
	KindText  = "text"
	KindImage = "image"
	KindVideo = "video"
	KindAudio = "audio"
	KindFile  = "file"
)

// MessageView is the enriched message shape sent to clients, both on the live
// stream and by the history endpoint. Body holds the text for KindText and the
// media URL for every other kind.
type MessageView struct {
	ID          string         `json:"id"`
	GroupID     string         `json:"group_id"`
	Author      UserRef        `json:"author"`
	Kind        string         `json:"kind"`
	Body        string         `json:"body"`
	FileName    string         `json:"file_name,omitempty"`
	ReplyTo     *ReplyView     `json:"reply_to,omitempty"`
	Reactions   []ReactionView `json:"reactions"`
	ReadBy      []string       `json:"read_by"`
	DeliveredTo []string       `json:"delivered_to"`
	ClientKey   string         `json:"client_key,omitempty"`
	CreatedAt   int64          `json:"created_at"`
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// JoinMsg asks to join a group room. Acked.
type JoinMsg struct {
	Type    string `json:"type"`
	ReqID   string `json:"req_id,omitempty"`
	GroupID string `json:"group_id"`
}

// LeaveMsg detaches the connection from a room. Not acked; presence is left
// untouched until disconnect.
type LeaveMsg struct {
	Type    string `json:"type"`
	GroupID string `json:"group_id"`
}

// SendMsg creates a message in a group. Acked. The author is always the
// connection's authenticated identity; the payload has no author field at all.
type SendMsg struct {
	Type      string `json:"type"`
	ReqID     string `json:"req_id,omitempty"`
	GroupID   string `json:"group_id"`
	Text      string `json:"text,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	VideoURL  string `json:"video_url,omitempty"`
	AudioURL  string `json:"audio_url,omitempty"`
	FileURL   string `json:"file_url,omitempty"`
	FileName  string `json:"file_name,omitempty"`
	ReplyTo   string `json:"reply_to,omitempty"`
	ClientKey string `json:"client_key,omitempty"`
}

// ReactMsg toggles a (message, emoji, caller) reaction. Acked.
type ReactMsg struct {
	Type      string `json:"type"`
	ReqID     string `json:"req_id,omitempty"`
	GroupID   string `json:"group_id"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// TypingMsg signals typing start/stop for the sender. Broadcast only, no ack.
type TypingMsg struct {
	Type    string `json:"type"`
	GroupID string `json:"group_id"`
}

// MarkReadMsg marks the listed messages as read by the caller. Broadcast
// only, no ack; safe to repeat with overlapping id sets.
type MarkReadMsg struct {
	Type       string   `json:"type"`
	GroupID    string   `json:"group_id"`
	MessageIDs []string `json:"message_ids"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// ErrorInfo is the typed error carried inside a failed ack.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AckMsg resolves a join/send/react request. Every acked request terminates
// in exactly one AckMsg; OK=false carries the error, OK=true may carry the
// resulting message (send/react) and the toggle action (react).
type AckMsg struct {
	Type    string       `json:"type"`
	ReqID   string       `json:"req_id,omitempty"`
	Op      string       `json:"op"`
	OK      bool         `json:"ok"`
	Error   *ErrorInfo   `json:"error,omitempty"`
	Action  string       `json:"action,omitempty"`
	Message *MessageView `json:"message,omitempty"`
}

// NewMessageMsg broadcasts a freshly persisted message to the whole room,
// sender included. Senders reconcile their optimistic copy against this echo
// by id or client_key.
type NewMessageMsg struct {
	Type    string      `json:"type"`
	Message MessageView `json:"message"`
}

// ReactionDeltaMsg is the incremental companion to the full enriched message
// broadcast after a reaction toggle.
type ReactionDeltaMsg struct {
	Type      string      `json:"type"`
	GroupID   string      `json:"group_id"`
	MessageID string      `json:"message_id"`
	Emoji     string      `json:"emoji"`
	UserID    string      `json:"user_id"`
	Action    string      `json:"action"`
	Message   MessageView `json:"message"`
}

// PresenceSnapshotMsg carries the full set of online user ids for a group.
// Snapshots always follow a mutation; clients replace, never merge.
type PresenceSnapshotMsg struct {
	Type    string   `json:"type"`
	GroupID string   `json:"group_id"`
	UserIDs []string `json:"user_ids"`
}

// TypingDeltaMsg relays one member's typing state to the rest of the room.
type TypingDeltaMsg struct {
	Type    string `json:"type"`
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
	Typing  bool   `json:"typing"`
}

// ReadDeltaMsg announces which messages a user newly marked as read. Compact
// by design: ids only, no message bodies.
type ReadDeltaMsg struct {
	Type       string   `json:"type"`
	GroupID    string   `json:"group_id"`
	UserID     string   `json:"user_id"`
	MessageIDs []string `json:"message_ids"`
}

// ErrorMsg reports a connection-level error outside any request/ack pair
// (parse failures, unsupported types).
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeJoin:
		var m JoinMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeave:
		var m LeaveMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSend:
		var m SendMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReact:
		var m ReactMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTypingStart, TypeTypingStop:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMarkRead:
		var m MarkReadMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
