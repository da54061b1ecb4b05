package hub

import (
	"context"
	"fmt"

	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/protocol"
	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/store"
)

// replyPreviewRunes bounds the reply preview embedded in an enriched message.
const replyPreviewRunes = 80

// enrichMessage expands a stored message into the outbound MessageView:
// author and reaction users become display projections, the reply target is
// summarized, and the read/delivered sets are attached. All id-to-user
// expansion happens here, in one batch load, so internal logic stays on
// plain ids.
func (h *Hub) enrichMessage(ctx context.Context, m *store.Message) (*protocol.MessageView, error) {
	reactions, err := h.store.ReactionsByMessage(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("hub: load reactions for %s: %w", m.ID, err)
	}
	readBy, err := h.store.ReadersByMessage(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("hub: load readers for %s: %w", m.ID, err)
	}
	deliveredTo, err := h.store.DeliveredByMessage(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("hub: load deliveries for %s: %w", m.ID, err)
	}

	var reply *store.Message
	if m.ReplyTo != "" {
		reply, err = h.store.GetGroupMessage(ctx, m.GroupID, m.ReplyTo)
		if err != nil && err != store.ErrNotFound {
			return nil, fmt.Errorf("hub: load reply %s: %w", m.ReplyTo, err)
		}
	}

	userIDs := []string{m.AuthorID}
	if reply != nil {
		userIDs = append(userIDs, reply.AuthorID)
	}
	for _, r := range reactions {
		userIDs = append(userIDs, r.UserID)
	}
	users, err := h.store.GetUsers(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("hub: load users for %s: %w", m.ID, err)
	}

	view := &protocol.MessageView{
		ID:          m.ID,
		GroupID:     m.GroupID,
		Author:      userRef(users, m.AuthorID),
		Kind:        m.Kind,
		Body:        m.Body,
		FileName:    m.FileName,
		Reactions:   make([]protocol.ReactionView, 0, len(reactions)),
		ReadBy:      readBy,
		DeliveredTo: deliveredTo,
		ClientKey:   m.ClientKey,
		CreatedAt:   m.CreatedAt.UnixMilli(),
	}
	for _, r := range reactions {
		view.Reactions = append(view.Reactions, protocol.ReactionView{
			Emoji: r.Emoji,
			User:  userRef(users, r.UserID),
			Ts:    r.CreatedAt.UnixMilli(),
		})
	}
	if reply != nil {
		view.ReplyTo = &protocol.ReplyView{
			ID:      reply.ID,
			Author:  userRef(users, reply.AuthorID),
			Preview: replyPreview(reply),
		}
	}
	return view, nil
}

// userRef resolves a user id to its display projection. Deleted or unknown
// users degrade to a bare id rather than failing the whole enrichment.
func userRef(users map[string]*store.User, id string) protocol.UserRef {
	if u, ok := users[id]; ok {
		return protocol.UserRef{ID: u.ID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
	}
	return protocol.UserRef{ID: id}
}

// replyPreview summarizes the replied-to message. Text bodies are truncated;
// media messages preview as their kind tag.
func replyPreview(reply *store.Message) string {
	if reply.Kind == protocol.KindText {
		return truncateRunes(reply.Body, replyPreviewRunes)
	}
	if reply.Kind == protocol.KindFile && reply.FileName != "" {
		return reply.FileName
	}
	return reply.Kind
}
