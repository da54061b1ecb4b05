package hub

import (
	"context"
	"log"
	"time"

	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/metrics"
	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/protocol"
)

// Typing relays a typing start/stop to the rest of the room, excluding the
// sender's own connection. Not acked; the signal is fire-and-forget and a
// lost frame self-heals through the receiver-side expiry.
func (h *Hub) Typing(connID, userID, groupID string, typing bool) {
	event := protocol.TypeTypingStop
	if typing {
		event = protocol.TypeTypingStart
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, errInfo := h.gate(ctx, groupID, userID); errInfo != nil {
		// Unauthorized typing noise is dropped without a response frame.
		metrics.EventsTotal.WithLabelValues(event, errInfo.Code).Inc()
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeTypingDelta, protocol.TypingDeltaMsg{
		GroupID: groupID,
		UserID:  userID,
		Typing:  typing,
	})
	if err != nil {
		log.Printf("hub: build typing_delta group=%s: %v", groupID, err)
		return
	}
	if err := h.fanout.PublishRoomExcept(groupID, connID, data); err != nil {
		log.Printf("hub: publish typing_delta group=%s: %v", groupID, err)
		return
	}
	metrics.BroadcastsTotal.WithLabelValues(protocol.TypeTypingDelta).Inc()
	metrics.EventsTotal.WithLabelValues(event, "ok").Inc()
}

// MarkRead records the caller's read receipts for the listed messages and
// broadcasts only the ids that were newly marked. Re-sending an overlapping
// id set is harmless: already-read ids produce no delta. Not acked.
func (h *Hub) MarkRead(connID, userID string, msg protocol.MarkReadMsg) {
	if len(msg.MessageIDs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, errInfo := h.gate(ctx, msg.GroupID, userID); errInfo != nil {
		metrics.EventsTotal.WithLabelValues(protocol.TypeMarkRead, errInfo.Code).Inc()
		return
	}

	ids := make([]string, 0, len(msg.MessageIDs))
	for _, id := range msg.MessageIDs {
		if isUUID(id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}

	start := time.Now()
	newly, err := h.store.MarkRead(ctx, msg.GroupID, userID, ids)
	metrics.PersistLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("hub: mark read group=%s user=%s: %v", msg.GroupID, userID, err)
		return
	}
	if len(newly) == 0 {
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeReadDelta, protocol.ReadDeltaMsg{
		GroupID:    msg.GroupID,
		UserID:     userID,
		MessageIDs: newly,
	})
	if err != nil {
		log.Printf("hub: build read_delta group=%s: %v", msg.GroupID, err)
		return
	}
	if err := h.fanout.PublishRoom(msg.GroupID, data); err != nil {
		log.Printf("hub: publish read_delta group=%s: %v", msg.GroupID, err)
		return
	}
	metrics.BroadcastsTotal.WithLabelValues(protocol.TypeReadDelta).Inc()
	metrics.EventsTotal.WithLabelValues(protocol.TypeMarkRead, "ok").Inc()
}
