package store

import (
	"context"
	"fmt"
)

// ToggleReaction flips the (message, emoji, user) fact in one SQL statement.
// The delete and the conditional insert execute atomically, so two
// connections racing on the same triple converge: exactly one row exists or
// none does, never a doubled state. Returns added=true when the triple exists
// after the statement.
func (s *Store) ToggleReaction(ctx context.Context, messageID, emoji, userID string) (added bool, err error) {
	const query = `
		WITH removed AS (
			DELETE FROM message_reactions
			WHERE message_id = $1 AND emoji = $2 AND user_id = $3
			RETURNING 1
		), inserted AS (
			INSERT INTO message_reactions (message_id, emoji, user_id, created_at)
			SELECT $1, $2, $3, NOW()
			WHERE NOT EXISTS (SELECT 1 FROM removed)
			ON CONFLICT DO NOTHING
			RETURNING 1
		)
		SELECT (SELECT COUNT(*) FROM removed)`

	var removed int
	if err := s.db.QueryRowContext(ctx, query, messageID, emoji, userID).Scan(&removed); err != nil {
		return false, fmt.Errorf("store: toggle reaction: %w", err)
	}

	// removed=0 covers both the plain add and the race where a concurrent
	// toggle inserted first (the ON CONFLICT arm): either way the triple is
	// present afterwards.
	return removed == 0, nil
}

// ReactionsByMessage lists a message's reactions in insertion order.
func (s *Store) ReactionsByMessage(ctx context.Context, messageID string) ([]Reaction, error) {
	const query = `
		SELECT message_id, emoji, user_id, created_at
		FROM message_reactions
		WHERE message_id = $1
		ORDER BY created_at, emoji, user_id`

	rows, err := s.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("store: reactions: %w", err)
	}
	defer rows.Close()

	var out []Reaction
	for rows.Next() {
		var r Reaction
		if err := rows.Scan(&r.MessageID, &r.Emoji, &r.UserID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan reaction: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate reactions: %w", err)
	}
	return out, nil
}
