// Package messaging provides a NATS client wrapper for room fanout. Every
// broadcast to a group's members goes through a room.<group_id> subject; each
// server instance holds one subscription per (connection, group) pair and
// writes incoming frames to its local connections. Frames can carry an
// exclusion so a sender's own connection is skipped (typing relays).
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectRoom is the subject prefix for room broadcasts: room.<group_id>.
const SubjectRoom = "room"

// roomFrame is the wire envelope on room subjects. ExcludeConn names a
// connection that must not receive the payload (the sender of a typing
// relay); empty means deliver to the whole room, sender included.
type roomFrame struct {
	ExcludeConn string          `json:"exclude_conn,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// Client wraps the NATS connection with room pub/sub helpers.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription // "<connID>/<groupID>" -> subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "tripcast-chat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// PublishRoom broadcasts payload to every subscriber of the group's room.
func (c *Client) PublishRoom(groupID string, payload []byte) error {
	return c.publishFrame(groupID, roomFrame{Payload: payload})
}

// PublishRoomExcept broadcasts payload to the room, skipping the named
// connection on whichever instance hosts it.
func (c *Client) PublishRoomExcept(groupID, excludeConn string, payload []byte) error {
	return c.publishFrame(groupID, roomFrame{ExcludeConn: excludeConn, Payload: payload})
}

func (c *Client) publishFrame(groupID string, frame roomFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("nats marshal frame: %w", err)
	}
	subject := SubjectRoom + "." + groupID
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// SubscribeRoom attaches a connection to a group's room. The handler receives
// the inner payload of every frame not excluding this connection. Subscribing
// the same (connection, group) pair twice replaces the previous subscription.
func (c *Client) SubscribeRoom(groupID, connID string, handler func(payload []byte)) error {
	subject := SubjectRoom + "." + groupID
	key := subKey(connID, groupID)

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		var frame roomFrame
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			log.Printf("[nats] bad room frame on %s: %v", subject, err)
			return
		}
		if frame.ExcludeConn == connID {
			return
		}
		handler(frame.Payload)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	if old, ok := c.subs[key]; ok {
		_ = old.Unsubscribe()
	}
	c.subs[key] = sub
	c.mu.Unlock()
	return nil
}

// UnsubscribeRoom detaches a connection from a group's room. Unknown pairs
// are a no-op so leave and disconnect cleanup can both call it safely.
func (c *Client) UnsubscribeRoom(groupID, connID string) {
	key := subKey(connID, groupID)

	c.mu.Lock()
	sub, ok := c.subs[key]
	if ok {
		delete(c.subs, key)
	}
	c.mu.Unlock()

	if ok {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("[nats] unsubscribe %s: %v", key, err)
		}
	}
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", key, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

func subKey(connID, groupID string) string {
	return connID + "/" + groupID
}
