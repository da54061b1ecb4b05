package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// UserIDByEmail resolves an email to a user id. Implements auth.UserDirectory
// for the token secondary-claim fallback.
func (s *Store) UserIDByEmail(ctx context.Context, email string) (string, error) {
	const query = `SELECT id FROM users WHERE email = $1`

	var id string
	err := s.db.QueryRowContext(ctx, query, email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: user by email: %w", err)
	}
	return id, nil
}

// GetUsers batch-loads user profiles for enrichment. Unknown ids are simply
// absent from the result map.
func (s *Store) GetUsers(ctx context.Context, userIDs []string) (map[string]*User, error) {
	out := make(map[string]*User, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	const query = `
		SELECT id, email, display_name, COALESCE(avatar_url, '')
		FROM users
		WHERE id = ANY($1)`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("store: get users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL); err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		out[u.ID] = &u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate users: %w", err)
	}
	return out, nil
}
