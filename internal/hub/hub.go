// Package hub implements the group-messaging coordinator: the membership
// gate every group-scoped event passes through, and the engines behind it
// (message store dispatch, reaction toggles, presence, typing relay, read
// receipts). Handlers for one connection run strictly in arrival order;
// handlers across connections interleave freely, so everything shared lives
// behind the store's atomic statements or the presence registry's lock.
package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/metrics"
	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/presence"
	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/protocol"
	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/ratelimit"
	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/store"
	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/ws"
)

// Store is the persistence surface the hub depends on, implemented by
// *store.Store. Narrowed to an interface so handler tests run against an
// in-memory fake.
type Store interface {
	GetGroup(ctx context.Context, groupID string) (*store.Group, error)
	GetUsers(ctx context.Context, userIDs []string) (map[string]*store.User, error)
	CreateMessage(ctx context.Context, m *store.Message) (*store.Message, bool, error)
	GetGroupMessage(ctx context.Context, groupID, messageID string) (*store.Message, error)
	ToggleReaction(ctx context.Context, messageID, emoji, userID string) (bool, error)
	ReactionsByMessage(ctx context.Context, messageID string) ([]store.Reaction, error)
	MarkRead(ctx context.Context, groupID, userID string, messageIDs []string) ([]string, error)
	ReadersByMessage(ctx context.Context, messageID string) ([]string, error)
	MarkDelivered(ctx context.Context, messageID string, userIDs []string) error
	DeliveredByMessage(ctx context.Context, messageID string) ([]string, error)
}

// Fanout publishes frames to a group's room and manages per-connection room
// subscriptions. Implemented by *messaging.Client.
type Fanout interface {
	PublishRoom(groupID string, payload []byte) error
	PublishRoomExcept(groupID, excludeConn string, payload []byte) error
	SubscribeRoom(groupID, connID string, handler func(payload []byte)) error
	UnsubscribeRoom(groupID, connID string)
}

// Sender writes a frame to a local connection. Implemented by *ws.Server.
type Sender interface {
	SendMessage(connID string, data []byte) error
}

// Limiter throttles per-user actions. Implemented by *ratelimit.Limiter; nil
// disables throttling.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// opTimeout bounds every persistence call a handler makes, so no request can
// hang unacknowledged on a stuck database.
const opTimeout = 5 * time.Second

// Hub owns the per-connection room state and the presence registry, and
// carries the stores the event handlers dispatch to.
type Hub struct {
	store    Store
	fanout   Fanout
	sender   Sender
	presence *presence.Registry
	limiter  Limiter

	mu    sync.Mutex
	rooms map[string]map[string]struct{} // connID -> subscribed groupIDs
	held  map[string]map[string]struct{} // connID -> groups this conn counts toward in presence
}

// New creates a Hub. The presence registry is constructed here: it lives
// exactly as long as the connection-handling component that owns it.
func New(st Store, fanout Fanout, sender Sender, limiter Limiter) *Hub {
	return &Hub{
		store:    st,
		fanout:   fanout,
		sender:   sender,
		presence: presence.NewRegistry(),
		limiter:  limiter,
		rooms:    make(map[string]map[string]struct{}),
		held:     make(map[string]map[string]struct{}),
	}
}

// Presence exposes the registry (read-only use: snapshots in tests/health).
func (h *Hub) Presence() *presence.Registry {
	return h.presence
}

// Register wires the hub's handlers into the dispatcher and the disconnect
// callback into the server.
func (h *Hub) Register(d *ws.MessageDispatcher, server *ws.Server) {
	d.Register(protocol.TypeJoin, func(c *ws.Connection, m interface{}) {
		if msg, ok := m.(protocol.JoinMsg); ok {
			h.Join(c.ID, c.UserID, msg)
		}
	})
	d.Register(protocol.TypeLeave, func(c *ws.Connection, m interface{}) {
		if msg, ok := m.(protocol.LeaveMsg); ok {
			h.Leave(c.ID, msg)
		}
	})
	d.Register(protocol.TypeSend, func(c *ws.Connection, m interface{}) {
		if msg, ok := m.(protocol.SendMsg); ok {
			h.Send(c.ID, c.UserID, msg)
		}
	})
	d.Register(protocol.TypeReact, func(c *ws.Connection, m interface{}) {
		if msg, ok := m.(protocol.ReactMsg); ok {
			h.React(c.ID, c.UserID, msg)
		}
	})
	d.Register(protocol.TypeTypingStart, func(c *ws.Connection, m interface{}) {
		if msg, ok := m.(protocol.TypingMsg); ok {
			h.Typing(c.ID, c.UserID, msg.GroupID, true)
		}
	})
	d.Register(protocol.TypeTypingStop, func(c *ws.Connection, m interface{}) {
		if msg, ok := m.(protocol.TypingMsg); ok {
			h.Typing(c.ID, c.UserID, msg.GroupID, false)
		}
	})
	d.Register(protocol.TypeMarkRead, func(c *ws.Connection, m interface{}) {
		if msg, ok := m.(protocol.MarkReadMsg); ok {
			h.MarkRead(c.ID, c.UserID, msg)
		}
	})

	server.SetOnDisconnect(func(c *ws.Connection) {
		h.Disconnect(c.ID, c.UserID)
	})
}

// ---------------------------------------------------------------------------
// Room membership gate
// ---------------------------------------------------------------------------

// gate re-validates current membership for a group-scoped request. Always a
// fresh load: membership can change mid-session, and a cached join-time check
// would let a removed member keep acting.
func (h *Hub) gate(ctx context.Context, groupID, userID string) (*store.Group, *protocol.ErrorInfo) {
	if !isUUID(groupID) {
		return nil, &protocol.ErrorInfo{Code: protocol.CodeBadRequest, Message: "malformed group id"}
	}

	start := time.Now()
	group, err := h.store.GetGroup(ctx, groupID)
	metrics.PersistLatency.Observe(time.Since(start).Seconds())
	if err == store.ErrNotFound {
		return nil, &protocol.ErrorInfo{Code: protocol.CodeNotFound, Message: "group not found"}
	}
	if err != nil {
		log.Printf("hub: load group=%s: %v", groupID, err)
		return nil, &protocol.ErrorInfo{Code: protocol.CodeInternal, Message: "internal error"}
	}
	if !group.IsMember(userID) {
		return nil, &protocol.ErrorInfo{Code: protocol.CodeForbidden, Message: "not a group member"}
	}
	return group, nil
}

// Join attaches the connection to the group's room, adds the user to the
// presence set, and broadcasts a fresh snapshot before acknowledging.
func (h *Hub) Join(connID, userID string, msg protocol.JoinMsg) {
	defer h.recoverAck(connID, msg.ReqID, protocol.TypeJoin)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, errInfo := h.gate(ctx, msg.GroupID, userID); errInfo != nil {
		h.nack(connID, msg.ReqID, protocol.TypeJoin, errInfo)
		return
	}

	if err := h.fanout.SubscribeRoom(msg.GroupID, connID, func(payload []byte) {
		// Delivery failures are left to the heartbeat: a dead socket will be
		// evicted and cleaned up there.
		_ = h.sender.SendMessage(connID, payload)
	}); err != nil {
		log.Printf("hub: subscribe room=%s conn=%s: %v", msg.GroupID, connID, err)
		h.nack(connID, msg.ReqID, protocol.TypeJoin, &protocol.ErrorInfo{
			Code: protocol.CodeInternal, Message: "internal error",
		})
		return
	}

	h.mu.Lock()
	joined, ok := h.rooms[connID]
	if !ok {
		joined = make(map[string]struct{})
		h.rooms[connID] = joined
	}
	joined[msg.GroupID] = struct{}{}

	// A connection counts toward a group's presence at most once, no matter
	// how many times it joins. The contribution outlives a leave (presence is
	// deliberately untouched there) and is released only on disconnect, so
	// join/leave/re-join cycles must not stack refcounts.
	held, ok := h.held[connID]
	if !ok {
		held = make(map[string]struct{})
		h.held[connID] = held
	}
	_, counted := held[msg.GroupID]
	if !counted {
		held[msg.GroupID] = struct{}{}
	}
	h.mu.Unlock()

	var snapshot []string
	if counted {
		snapshot = h.presence.Snapshot(msg.GroupID)
	} else {
		snapshot = h.presence.Add(msg.GroupID, userID)
	}
	metrics.PresenceRooms.Set(float64(h.presence.Rooms()))
	h.broadcastPresence(msg.GroupID, snapshot)

	h.ack(connID, protocol.AckMsg{ReqID: msg.ReqID, Op: protocol.TypeJoin, OK: true})
	metrics.EventsTotal.WithLabelValues(protocol.TypeJoin, "ok").Inc()
	log.Printf("hub: join group=%s user=%s conn=%s", msg.GroupID, userID, connID)
}

// Leave detaches the connection from the room only. Presence is deliberately
// not updated here: a user who leaves without disconnecting still shows
// online until the socket goes away. That is a product decision, not an
// oversight; full cleanup happens in Disconnect.
func (h *Hub) Leave(connID string, msg protocol.LeaveMsg) {
	if !isUUID(msg.GroupID) {
		return
	}

	h.mu.Lock()
	if joined, ok := h.rooms[connID]; ok {
		delete(joined, msg.GroupID)
	}
	h.mu.Unlock()

	h.fanout.UnsubscribeRoom(msg.GroupID, connID)
	metrics.EventsTotal.WithLabelValues(protocol.TypeLeave, "ok").Inc()
	log.Printf("hub: leave group=%s conn=%s", msg.GroupID, connID)
}

// Disconnect runs the exactly-once cleanup for a closed connection: every
// room the socket is still subscribed to is unsubscribed, and every presence
// contribution it holds is released with a fresh snapshot broadcast. The two
// sets differ after a leave (subscription gone, contribution kept), so they
// are walked independently. The connection manager guarantees a single
// invocation per connection.
func (h *Hub) Disconnect(connID, userID string) {
	h.mu.Lock()
	joined := h.rooms[connID]
	delete(h.rooms, connID)
	held := h.held[connID]
	delete(h.held, connID)
	h.mu.Unlock()

	for groupID := range joined {
		h.fanout.UnsubscribeRoom(groupID, connID)
	}
	for groupID := range held {
		snapshot := h.presence.Remove(groupID, userID)
		h.broadcastPresence(groupID, snapshot)
	}
	metrics.PresenceRooms.Set(float64(h.presence.Rooms()))
	if len(held) > 0 || len(joined) > 0 {
		log.Printf("hub: disconnect cleanup conn=%s user=%s rooms=%d presence=%d",
			connID, userID, len(joined), len(held))
	}
}

// ---------------------------------------------------------------------------
// Ack plumbing
// ---------------------------------------------------------------------------

func (h *Hub) ack(connID string, ack protocol.AckMsg) {
	data, err := protocol.NewServerMessage(protocol.TypeAck, ack)
	if err != nil {
		log.Printf("hub: build ack op=%s: %v", ack.Op, err)
		return
	}
	if err := h.sender.SendMessage(connID, data); err != nil {
		log.Printf("hub: send ack op=%s conn=%s: %v", ack.Op, connID, err)
	}
}

func (h *Hub) nack(connID, reqID, op string, errInfo *protocol.ErrorInfo) {
	metrics.EventsTotal.WithLabelValues(op, errInfo.Code).Inc()
	h.ack(connID, protocol.AckMsg{ReqID: reqID, Op: op, OK: false, Error: errInfo})
}

// recoverAck converts a handler panic into an Internal ack so the request
// still resolves and the event loop keeps running.
func (h *Hub) recoverAck(connID, reqID, op string) {
	if r := recover(); r != nil {
		log.Printf("hub: panic in %s conn=%s: %v", op, connID, r)
		h.nack(connID, reqID, op, &protocol.ErrorInfo{
			Code: protocol.CodeInternal, Message: "internal error",
		})
	}
}

func (h *Hub) broadcastPresence(groupID string, userIDs []string) {
	data, err := protocol.NewServerMessage(protocol.TypePresenceSnapshot, protocol.PresenceSnapshotMsg{
		GroupID: groupID,
		UserIDs: userIDs,
	})
	if err != nil {
		log.Printf("hub: build presence snapshot group=%s: %v", groupID, err)
		return
	}
	if err := h.fanout.PublishRoom(groupID, data); err != nil {
		log.Printf("hub: publish presence group=%s: %v", groupID, err)
		return
	}
	metrics.BroadcastsTotal.WithLabelValues(protocol.TypePresenceSnapshot).Inc()
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
