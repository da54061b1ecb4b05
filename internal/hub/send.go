package hub

import (
	"context"
	"log"
	"time"

	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/metrics"
	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/protocol"
	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/ratelimit"
	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/store"
)

// Send persists a message and broadcasts it to the room. The write is
// idempotent on (group, client_key): a retry after a lost ack resolves to the
// already-stored message, acks ok, and broadcasts nothing.
func (h *Hub) Send(connID, userID string, msg protocol.SendMsg) {
	defer h.recoverAck(connID, msg.ReqID, protocol.TypeSend)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if h.limiter != nil {
		allowed, _ := h.limiter.Allow(ctx, userID, ratelimit.RuleSend)
		if !allowed {
			h.nack(connID, msg.ReqID, protocol.TypeSend, &protocol.ErrorInfo{
				Code: protocol.CodeRateLimited, Message: "too many messages, slow down",
			})
			return
		}
	}

	if _, errInfo := h.gate(ctx, msg.GroupID, userID); errInfo != nil {
		h.nack(connID, msg.ReqID, protocol.TypeSend, errInfo)
		return
	}

	kind, body, fileName := messageContent(msg)
	if kind == "" {
		h.nack(connID, msg.ReqID, protocol.TypeSend, &protocol.ErrorInfo{
			Code: protocol.CodeBadRequest, Message: "message has no content",
		})
		return
	}

	record := &store.Message{
		GroupID:   msg.GroupID,
		AuthorID:  userID,
		Kind:      kind,
		Body:      body,
		FileName:  fileName,
		ReplyTo:   h.resolveReply(ctx, msg.GroupID, msg.ReplyTo),
		ClientKey: msg.ClientKey,
	}

	start := time.Now()
	saved, created, err := h.store.CreateMessage(ctx, record)
	metrics.PersistLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("hub: create message group=%s user=%s: %v", msg.GroupID, userID, err)
		h.nack(connID, msg.ReqID, protocol.TypeSend, &protocol.ErrorInfo{
			Code: protocol.CodeInternal, Message: "could not store message",
		})
		return
	}

	view, err := h.enrichMessage(ctx, saved)
	if err != nil {
		log.Printf("hub: enrich message=%s: %v", saved.ID, err)
		h.nack(connID, msg.ReqID, protocol.TypeSend, &protocol.ErrorInfo{
			Code: protocol.CodeInternal, Message: "could not load message",
		})
		return
	}

	h.ack(connID, protocol.AckMsg{
		ReqID:   msg.ReqID,
		Op:      protocol.TypeSend,
		OK:      true,
		Message: view,
	})
	metrics.EventsTotal.WithLabelValues(protocol.TypeSend, "ok").Inc()

	// A dedup hit means the original request already broadcast this message;
	// echoing it again would duplicate it on every client's timeline.
	if !created {
		log.Printf("hub: send dedup group=%s client_key=%s", msg.GroupID, saved.ClientKey)
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeNewMessage, protocol.NewMessageMsg{Message: *view})
	if err != nil {
		log.Printf("hub: build new_message id=%s: %v", saved.ID, err)
		return
	}
	if err := h.fanout.PublishRoom(msg.GroupID, data); err != nil {
		log.Printf("hub: publish new_message group=%s: %v", msg.GroupID, err)
		return
	}
	metrics.BroadcastsTotal.WithLabelValues(protocol.TypeNewMessage).Inc()

	h.markDelivered(ctx, saved, userID)
}

// resolveReply validates a reply target against the message's own group. Any
// reference that does not resolve — malformed id, unknown message, message in
// another group — is dropped silently and the send proceeds as a non-reply.
func (h *Hub) resolveReply(ctx context.Context, groupID, replyTo string) string {
	if replyTo == "" {
		return ""
	}
	if !isUUID(replyTo) {
		return ""
	}
	if _, err := h.store.GetGroupMessage(ctx, groupID, replyTo); err != nil {
		if err != store.ErrNotFound {
			log.Printf("hub: resolve reply=%s group=%s: %v", replyTo, groupID, err)
		}
		return ""
	}
	return replyTo
}

// markDelivered records best-effort delivery facts for the members who were
// present in the room when the message was broadcast. The author is included:
// their own devices received the echo too. Failures are logged and ignored;
// delivery state is advisory, not part of the send contract.
func (h *Hub) markDelivered(ctx context.Context, saved *store.Message, authorID string) {
	online := h.presence.Snapshot(saved.GroupID)
	if len(online) == 0 {
		online = []string{authorID}
	}
	if err := h.store.MarkDelivered(ctx, saved.ID, online); err != nil {
		log.Printf("hub: mark delivered message=%s: %v", saved.ID, err)
	}
}
