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

// React toggles the caller's (message, emoji) reaction. The toggle is a
// single atomic statement in the store, so two racing toggles from the same
// user's devices converge instead of double-applying.
func (h *Hub) React(connID, userID string, msg protocol.ReactMsg) {
	defer h.recoverAck(connID, msg.ReqID, protocol.TypeReact)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if h.limiter != nil {
		allowed, _ := h.limiter.Allow(ctx, userID, ratelimit.RuleReact)
		if !allowed {
			h.nack(connID, msg.ReqID, protocol.TypeReact, &protocol.ErrorInfo{
				Code: protocol.CodeRateLimited, Message: "too many reactions, slow down",
			})
			return
		}
	}

	if _, errInfo := h.gate(ctx, msg.GroupID, userID); errInfo != nil {
		h.nack(connID, msg.ReqID, protocol.TypeReact, errInfo)
		return
	}

	emoji, ok := normalizeEmoji(msg.Emoji)
	if !ok {
		h.nack(connID, msg.ReqID, protocol.TypeReact, &protocol.ErrorInfo{
			Code: protocol.CodeBadRequest, Message: "invalid emoji",
		})
		return
	}
	if !isUUID(msg.MessageID) {
		h.nack(connID, msg.ReqID, protocol.TypeReact, &protocol.ErrorInfo{
			Code: protocol.CodeBadRequest, Message: "malformed message id",
		})
		return
	}

	// Scoped lookup: a message id from another group reads as nonexistent, so
	// callers cannot probe messages outside their rooms.
	target, err := h.store.GetGroupMessage(ctx, msg.GroupID, msg.MessageID)
	if err == store.ErrNotFound {
		h.nack(connID, msg.ReqID, protocol.TypeReact, &protocol.ErrorInfo{
			Code: protocol.CodeNotFound, Message: "message not found",
		})
		return
	}
	if err != nil {
		log.Printf("hub: load message=%s: %v", msg.MessageID, err)
		h.nack(connID, msg.ReqID, protocol.TypeReact, &protocol.ErrorInfo{
			Code: protocol.CodeInternal, Message: "internal error",
		})
		return
	}

	start := time.Now()
	added, err := h.store.ToggleReaction(ctx, target.ID, emoji, userID)
	metrics.PersistLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("hub: toggle reaction message=%s user=%s: %v", target.ID, userID, err)
		h.nack(connID, msg.ReqID, protocol.TypeReact, &protocol.ErrorInfo{
			Code: protocol.CodeInternal, Message: "could not update reaction",
		})
		return
	}

	action := protocol.ActionRemoved
	if added {
		action = protocol.ActionAdded
	}

	view, err := h.enrichMessage(ctx, target)
	if err != nil {
		log.Printf("hub: enrich message=%s: %v", target.ID, err)
		h.nack(connID, msg.ReqID, protocol.TypeReact, &protocol.ErrorInfo{
			Code: protocol.CodeInternal, Message: "could not load message",
		})
		return
	}

	h.ack(connID, protocol.AckMsg{
		ReqID:   msg.ReqID,
		Op:      protocol.TypeReact,
		OK:      true,
		Action:  action,
		Message: view,
	})
	metrics.EventsTotal.WithLabelValues(protocol.TypeReact, "ok").Inc()

	data, err := protocol.NewServerMessage(protocol.TypeReactionDelta, protocol.ReactionDeltaMsg{
		GroupID:   msg.GroupID,
		MessageID: target.ID,
		Emoji:     emoji,
		UserID:    userID,
		Action:    action,
		Message:   *view,
	})
	if err != nil {
		log.Printf("hub: build reaction_delta message=%s: %v", target.ID, err)
		return
	}
	if err := h.fanout.PublishRoom(msg.GroupID, data); err != nil {
		log.Printf("hub: publish reaction_delta group=%s: %v", msg.GroupID, err)
		return
	}
	metrics.BroadcastsTotal.WithLabelValues(protocol.TypeReactionDelta).Inc()
}
