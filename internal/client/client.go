// Package client is the product-side counterpart of the chat server: a
// WebSocket client with request/ack correlation, plus the reconciliation
// pieces the app composes around it (timeline merge, typing debounce, read
// sweeps, voice recording).
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/protocol"
)

// ackTimeout bounds how long an acked request may stay pending before the
// caller gets an error instead of blocking forever on a lost frame.
const ackTimeout = 10 * time.Second

// Handlers carries the push-frame callbacks. Nil fields are skipped. All
// callbacks run on the read loop goroutine, so they must not block.
type Handlers struct {
	OnNewMessage    func(protocol.MessageView)
	OnReactionDelta func(protocol.ReactionDeltaMsg)
	OnPresence      func(protocol.PresenceSnapshotMsg)
	OnTyping        func(protocol.TypingDeltaMsg)
	OnReadDelta     func(protocol.ReadDeltaMsg)
	OnError         func(protocol.ErrorMsg)
	OnDisconnect    func(error)
}

// Client is a connected chat session. Acked operations (Join, Send, React)
// block until the matching ack arrives; fire-and-forget operations return as
// soon as the frame is written.
type Client struct {
	conn     net.Conn
	handlers Handlers

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan protocol.AckMsg

	done     chan struct{}
	closeErr error
	closeMu  sync.Mutex
}

// Dial connects and authenticates in the upgrade request: the token travels
// as a query parameter because the server validates credentials before the
// first frame.
func Dial(ctx context.Context, serverURL, token string, handlers Handlers) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	q := u.Query()
	q.Set("auth", token)
	u.RawQuery = q.Encode()

	conn, _, _, err := ws.Dial(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", u.Host, err)
	}

	c := &Client{
		conn:     conn,
		handlers: handlers,
		pending:  make(map[string]chan protocol.AckMsg),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close terminates the session. Pending requests fail with the close error.
func (c *Client) Close() error {
	c.shutdown(nil)
	return c.conn.Close()
}

func (c *Client) shutdown(err error) {
	c.closeMu.Lock()
	select {
	case <-c.done:
		c.closeMu.Unlock()
		return
	default:
	}
	c.closeErr = err
	close(c.done)
	c.closeMu.Unlock()

	if err != nil && c.handlers.OnDisconnect != nil {
		c.handlers.OnDisconnect(err)
	}
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Join subscribes the session to a group room and waits for the ack.
func (c *Client) Join(ctx context.Context, groupID string) error {
	ack, err := c.request(ctx, func(reqID string) interface{} {
		return protocol.JoinMsg{Type: protocol.TypeJoin, ReqID: reqID, GroupID: groupID}
	})
	if err != nil {
		return err
	}
	return ackErr(protocol.TypeJoin, ack)
}

// Leave detaches from a room. Fire-and-forget.
func (c *Client) Leave(groupID string) error {
	return c.writeJSON(protocol.LeaveMsg{Type: protocol.TypeLeave, GroupID: groupID})
}

// Send creates a message and waits for the ack carrying the stored copy.
// Callers supply a stable ClientKey so a retry after a lost ack resolves to
// the same message instead of duplicating it.
func (c *Client) Send(ctx context.Context, msg protocol.SendMsg) (*protocol.MessageView, error) {
	ack, err := c.request(ctx, func(reqID string) interface{} {
		msg.Type = protocol.TypeSend
		msg.ReqID = reqID
		return msg
	})
	if err != nil {
		return nil, err
	}
	if err := ackErr(protocol.TypeSend, ack); err != nil {
		return nil, err
	}
	return ack.Message, nil
}

// React toggles an emoji reaction and returns the outcome ("added" or
// "removed") with the re-enriched message.
func (c *Client) React(ctx context.Context, groupID, messageID, emoji string) (string, *protocol.MessageView, error) {
	ack, err := c.request(ctx, func(reqID string) interface{} {
		return protocol.ReactMsg{
			Type: protocol.TypeReact, ReqID: reqID,
			GroupID: groupID, MessageID: messageID, Emoji: emoji,
		}
	})
	if err != nil {
		return "", nil, err
	}
	if err := ackErr(protocol.TypeReact, ack); err != nil {
		return "", nil, err
	}
	return ack.Action, ack.Message, nil
}

// TypingStart signals the start of typing. Fire-and-forget; pair with a
// Notifier so rapid keystrokes coalesce.
func (c *Client) TypingStart(groupID string) error {
	return c.writeJSON(protocol.TypingMsg{Type: protocol.TypeTypingStart, GroupID: groupID})
}

// TypingStop signals the end of typing.
func (c *Client) TypingStop(groupID string) error {
	return c.writeJSON(protocol.TypingMsg{Type: protocol.TypeTypingStop, GroupID: groupID})
}

// MarkRead reports read receipts. Safe to repeat with overlapping ids.
func (c *Client) MarkRead(groupID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return c.writeJSON(protocol.MarkReadMsg{
		Type: protocol.TypeMarkRead, GroupID: groupID, MessageIDs: messageIDs,
	})
}

// Ping sends an application-level keepalive.
func (c *Client) Ping() error {
	return c.writeJSON(protocol.PingMsg{Type: protocol.TypePing})
}

// ---------------------------------------------------------------------------
// Request/ack correlation
// ---------------------------------------------------------------------------

func (c *Client) request(ctx context.Context, build func(reqID string) interface{}) (protocol.AckMsg, error) {
	reqID := uuid.NewString()
	ch := make(chan protocol.AckMsg, 1)

	c.pendingMu.Lock()
	c.pending[reqID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	if err := c.writeJSON(build(reqID)); err != nil {
		return protocol.AckMsg{}, err
	}

	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()
	select {
	case ack := <-ch:
		return ack, nil
	case <-ctx.Done():
		return protocol.AckMsg{}, ctx.Err()
	case <-timer.C:
		return protocol.AckMsg{}, fmt.Errorf("client: request %s timed out", reqID)
	case <-c.done:
		return protocol.AckMsg{}, fmt.Errorf("client: connection closed: %w", c.closeErr)
	}
}

func ackErr(op string, ack protocol.AckMsg) error {
	if ack.OK {
		return nil
	}
	if ack.Error != nil {
		return fmt.Errorf("client: %s rejected: %s: %s", op, ack.Error.Code, ack.Error.Message)
	}
	return fmt.Errorf("client: %s rejected", op)
}

func (c *Client) writeJSON(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("client: marshal: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsutil.WriteClientMessage(c.conn, ws.OpText, data); err != nil {
		return fmt.Errorf("client: write: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Read loop
// ---------------------------------------------------------------------------

func (c *Client) readLoop() {
	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			c.shutdown(err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("client: bad server frame: %v", err)
		return
	}

	switch env.Type {
	case protocol.TypeAck:
		var ack protocol.AckMsg
		if err := json.Unmarshal(env.Raw, &ack); err != nil {
			log.Printf("client: bad ack: %v", err)
			return
		}
		c.pendingMu.Lock()
		ch := c.pending[ack.ReqID]
		c.pendingMu.Unlock()
		if ch != nil {
			// Non-blocking: a duplicate ack for the same req_id must not wedge
			// the read loop; the waiter only ever consumes the first.
			select {
			case ch <- ack:
			default:
			}
		}
	case protocol.TypeNewMessage:
		var m protocol.NewMessageMsg
		if err := json.Unmarshal(env.Raw, &m); err == nil && c.handlers.OnNewMessage != nil {
			c.handlers.OnNewMessage(m.Message)
		}
	case protocol.TypeReactionDelta:
		var m protocol.ReactionDeltaMsg
		if err := json.Unmarshal(env.Raw, &m); err == nil && c.handlers.OnReactionDelta != nil {
			c.handlers.OnReactionDelta(m)
		}
	case protocol.TypePresenceSnapshot:
		var m protocol.PresenceSnapshotMsg
		if err := json.Unmarshal(env.Raw, &m); err == nil && c.handlers.OnPresence != nil {
			c.handlers.OnPresence(m)
		}
	case protocol.TypeTypingDelta:
		var m protocol.TypingDeltaMsg
		if err := json.Unmarshal(env.Raw, &m); err == nil && c.handlers.OnTyping != nil {
			c.handlers.OnTyping(m)
		}
	case protocol.TypeReadDelta:
		var m protocol.ReadDeltaMsg
		if err := json.Unmarshal(env.Raw, &m); err == nil && c.handlers.OnReadDelta != nil {
			c.handlers.OnReadDelta(m)
		}
	case protocol.TypeError:
		var m protocol.ErrorMsg
		if err := json.Unmarshal(env.Raw, &m); err == nil && c.handlers.OnError != nil {
			c.handlers.OnError(m)
		}
	case protocol.TypePong:
		// Keepalive echo, nothing to do.
	default:
		log.Printf("client: unknown server frame type=%q", env.Type)
	}
}
