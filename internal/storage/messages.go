package storage

import (
	"context"
	"database/sql"

	"github.com/shaharia-lab/octave-core/internal/octaveerr"
)

// GetMessage returns a single message by id.
func (s *ConversationStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, role, content, metadata, timestamp
		FROM messages WHERE id = ?`, id,
	).Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Metadata, &m.Timestamp)
	if err == sql.ErrNoRows {
		return nil, octaveerr.New("get_message", octaveerr.KindNotFound, nil)
	}
	if err != nil {
		return nil, octaveerr.Wrap("get_message", octaveerr.KindDbError, err)
	}
	m.Role = Role(role)
	return &m, nil
}

// ListMessages returns every message of conversationID ordered by timestamp.
func (s *ConversationStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, metadata, timestamp
		FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC`, conversationID)
	if err != nil {
		return nil, octaveerr.Wrap("list_messages", octaveerr.KindDbError, err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Metadata, &m.Timestamp); err != nil {
			return nil, octaveerr.Wrap("list_messages", octaveerr.KindDbError, err)
		}
		m.Role = Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, octaveerr.Wrap("list_messages", octaveerr.KindDbError, err)
	}
	return out, nil
}

// SaveMessageWithBlocks is the only sanctioned way to write an assistant
// message's body. In one transaction it (1) UPSERTs the message by id,
// updating content/metadata/timestamp on conflict, (2) deletes all of the
// message's existing blocks keyed by message_id (never by any id the caller
// supplies, which is what makes a retry safe), and (3) inserts the supplied
// blocks in order, under the ids the caller gives them. Nothing from the
// replaced blocks is carried over to the new ones. The owning conversation
// is touched inside the same transaction.
func (s *ConversationStore) SaveMessageWithBlocks(ctx context.Context, msg Message, blocks []Block) error {
	if msg.Metadata == "" {
		msg.Metadata = "{}"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return octaveerr.Wrap("save_message_with_blocks", octaveerr.KindDbError, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			timestamp = excluded.timestamp`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.Metadata, msg.Timestamp)
	if err != nil {
		return octaveerr.Wrap("save_message_with_blocks", octaveerr.KindDbConstraint, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE message_id = ?`, msg.ID); err != nil {
		return octaveerr.Wrap("save_message_with_blocks", octaveerr.KindDbError, err)
	}

	for _, b := range blocks {
		if b.Metadata == "" {
			b.Metadata = "{}"
		}
		if b.CreatedAt == "" {
			b.CreatedAt = isoNow()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO blocks (id, message_id, type, content, metadata, block_order, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.ID, msg.ID, string(b.Type), b.Content, b.Metadata, b.Order, b.CreatedAt)
		if err != nil {
			return octaveerr.Wrap("save_message_with_blocks", octaveerr.KindDbConstraint, err)
		}
	}

	if err := s.touchTx(ctx, tx, msg.ConversationID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return octaveerr.Wrap("save_message_with_blocks", octaveerr.KindDbError, err)
	}
	return nil
}

// DeleteMessage removes a single message by id, cascading to its blocks and
// todos. Used by the compaction sweep to drop messages folded into a
// generated summary; the retry flow uses DeleteMessagesAfter instead.
func (s *ConversationStore) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return octaveerr.Wrap("delete_message", octaveerr.KindDbError, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return octaveerr.Wrap("delete_message", octaveerr.KindDbError, err)
	}
	if n == 0 {
		return octaveerr.New("delete_message", octaveerr.KindNotFound, nil)
	}
	return nil
}

// DeleteMessagesAfter implements the retry flow: removes every message in
// conversationID whose timestamp is strictly greater than the pivot
// message's, cascading to their blocks and todos.
func (s *ConversationStore) DeleteMessagesAfter(ctx context.Context, conversationID, pivotMessageID string) error {
	var pivotTimestamp int64
	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp FROM messages WHERE id = ? AND conversation_id = ?`,
		pivotMessageID, conversationID,
	).Scan(&pivotTimestamp)
	if err == sql.ErrNoRows {
		return octaveerr.New("delete_messages_after", octaveerr.KindNotFound, nil)
	}
	if err != nil {
		return octaveerr.Wrap("delete_messages_after", octaveerr.KindDbError, err)
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ? AND timestamp > ?`,
		conversationID, pivotTimestamp)
	if err != nil {
		return octaveerr.Wrap("delete_messages_after", octaveerr.KindDbError, err)
	}
	return nil
}
