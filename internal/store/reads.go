package store

import (
	"context"
	"fmt"

	"github.com/lib/pq"
)

// MarkRead adds the user to the read set of every listed message that belongs
// to the group. Set-union semantics: already-read messages are skipped by the
// primary key, and only the ids actually newly marked are returned, so the
// caller broadcasts nothing on a fully redundant call. Safe and cheap to
// invoke repeatedly.
func (s *Store) MarkRead(ctx context.Context, groupID, userID string, messageIDs []string) ([]string, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	const query = `
		INSERT INTO message_reads (message_id, user_id)
		SELECT m.id, $2
		FROM messages m
		WHERE m.group_id = $1 AND m.id = ANY($3::uuid[])
		ON CONFLICT DO NOTHING
		RETURNING message_id`

	rows, err := s.db.QueryContext(ctx, query, groupID, userID, pq.Array(messageIDs))
	if err != nil {
		return nil, fmt.Errorf("store: mark read: %w", err)
	}
	defer rows.Close()

	var marked []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan marked id: %w", err)
		}
		marked = append(marked, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate marked ids: %w", err)
	}
	return marked, nil
}

// ReadersByMessage returns the user ids that have read a message.
func (s *Store) ReadersByMessage(ctx context.Context, messageID string) ([]string, error) {
	return s.userSet(ctx, `SELECT user_id FROM message_reads WHERE message_id = $1 ORDER BY user_id`, messageID)
}

// MarkDelivered records best-effort delivery of a message to the given users.
// Idempotent; called with the room's online set after a broadcast.
func (s *Store) MarkDelivered(ctx context.Context, messageID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO message_deliveries (message_id, user_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, messageID, pq.Array(userIDs)); err != nil {
		return fmt.Errorf("store: mark delivered: %w", err)
	}
	return nil
}

// DeliveredByMessage returns the user ids a message was delivered to.
func (s *Store) DeliveredByMessage(ctx context.Context, messageID string) ([]string, error) {
	return s.userSet(ctx, `SELECT user_id FROM message_deliveries WHERE message_id = $1 ORDER BY user_id`, messageID)
}

func (s *Store) userSet(ctx context.Context, query, messageID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("store: user set: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan user id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate user ids: %w", err)
	}
	return out, nil
}
