package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// GetGroup loads a group with its member and admin id sets. Returns
// ErrNotFound when no such group exists. Callers re-check membership on every
// event; nothing here is cached.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*Group, error) {
	const query = `
		SELECT id, name, member_ids::text[], admin_ids::text[],
		       COALESCE(last_message_id::text, '')
		FROM groups
		WHERE id = $1`

	var g Group
	var members, admins pq.StringArray
	err := s.db.QueryRowContext(ctx, query, groupID).Scan(
		&g.ID, &g.Name, &members, &admins, &g.LastMessageID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get group: %w", err)
	}

	g.MemberIDs = members
	g.AdminIDs = admins
	return &g, nil
}
