package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const messageColumns = `
	id, group_id, author_id, kind, body, COALESCE(file_name, ''),
	COALESCE(reply_to::text, ''), COALESCE(client_key, ''), created_at`

// CreateMessage persists a message. When clientKey is non-empty and a message
// with the same (group, key) already exists, the existing message is returned
// with created=false: the partial unique index arbitrates the race, there is
// no lookup-then-insert window. On a fresh insert the author is seeded into
// the read set and the group's last-message pointer is advanced, all in one
// transaction.
func (s *Store) CreateMessage(ctx context.Context, m *Message) (*Message, bool, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("store: create message begin: %w", err)
	}
	defer tx.Rollback()

	const insert = `
		INSERT INTO messages (id, group_id, author_id, kind, body, file_name, reply_to, client_key, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, '')::uuid, NULLIF($8, ''), $9)
		ON CONFLICT (group_id, client_key) WHERE client_key IS NOT NULL DO NOTHING`

	res, err := tx.ExecContext(ctx, insert,
		m.ID, m.GroupID, m.AuthorID, m.Kind, m.Body,
		m.FileName, m.ReplyTo, m.ClientKey, m.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("store: insert message: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("store: insert message rows: %w", err)
	}
	if n == 0 {
		// Duplicate client key: the earlier send won. Return it unchanged.
		existing, err := s.messageByClientKey(ctx, m.GroupID, m.ClientKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	const seedRead = `
		INSERT INTO message_reads (message_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	if _, err := tx.ExecContext(ctx, seedRead, m.ID, m.AuthorID); err != nil {
		return nil, false, fmt.Errorf("store: seed read: %w", err)
	}

	const bumpLast = `UPDATE groups SET last_message_id = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, bumpLast, m.GroupID, m.ID); err != nil {
		return nil, false, fmt.Errorf("store: bump last message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("store: create message commit: %w", err)
	}
	return m, true, nil
}

// GetMessage loads a message by id. Returns ErrNotFound when absent.
func (s *Store) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	return s.scanMessage(s.db.QueryRowContext(ctx, query, messageID))
}

// GetGroupMessage loads a message only if it belongs to the given group.
// Reply resolution and reactions use this so cross-group references never
// pass the gate.
func (s *Store) GetGroupMessage(ctx context.Context, groupID, messageID string) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1 AND group_id = $2`
	return s.scanMessage(s.db.QueryRowContext(ctx, query, messageID, groupID))
}

func (s *Store) messageByClientKey(ctx context.Context, groupID, clientKey string) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE group_id = $1 AND client_key = $2`
	return s.scanMessage(s.db.QueryRowContext(ctx, query, groupID, clientKey))
}

func (s *Store) scanMessage(row *sql.Row) (*Message, error) {
	var m Message
	err := row.Scan(
		&m.ID, &m.GroupID, &m.AuthorID, &m.Kind, &m.Body,
		&m.FileName, &m.ReplyTo, &m.ClientKey, &m.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan message: %w", err)
	}
	return &m, nil
}
