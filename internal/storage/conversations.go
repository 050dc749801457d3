package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/shaharia-lab/octave-core/internal/octaveerr"
)

// ConversationStore owns the conversations.db connection and implements the
// PL contracts over Conversation, Message, Block, Todo, Plan, and
// WorkspaceMetadata rows. All writes that touch more than one table go
// through a single transaction so readers never observe a partial write.
type ConversationStore struct {
	db *sql.DB
}

// NewConversationStore wraps an already-opened, already-migrated db handle.
func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func isoNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func epochMillisNow() int64 {
	return time.Now().UTC().UnixMilli()
}

// ListConversations returns every conversation in workspaceID ordered by
// most-recently-updated first.
func (s *ConversationStore) ListConversations(ctx context.Context, workspaceID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, title, active, created_at, updated_at
		FROM conversations WHERE workspace_id = ? ORDER BY updated_at DESC`, workspaceID)
	if err != nil {
		return nil, octaveerr.Wrap("list_conversations", octaveerr.KindDbError, err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var active int
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.Title, &active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, octaveerr.Wrap("list_conversations", octaveerr.KindDbError, err)
		}
		c.Active = active != 0
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, octaveerr.Wrap("list_conversations", octaveerr.KindDbError, err)
	}
	return out, nil
}

// ListActiveConversations returns the active conversation of every
// workspace, process-wide. The compaction sweep uses this to find every
// conversation it should check token usage for without needing a workspace
// list of its own.
func (s *ConversationStore) ListActiveConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, title, active, created_at, updated_at
		FROM conversations WHERE active = 1`)
	if err != nil {
		return nil, octaveerr.Wrap("list_active_conversations", octaveerr.KindDbError, err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var active int
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.Title, &active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, octaveerr.Wrap("list_active_conversations", octaveerr.KindDbError, err)
		}
		c.Active = active != 0
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, octaveerr.Wrap("list_active_conversations", octaveerr.KindDbError, err)
	}
	return out, nil
}

// GetActiveConversation returns the active conversation for workspaceID, or
// nil if none is active.
func (s *ConversationStore) GetActiveConversation(ctx context.Context, workspaceID string) (*Conversation, error) {
	var c Conversation
	var active int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, title, active, created_at, updated_at
		FROM conversations WHERE workspace_id = ? AND active = 1 LIMIT 1`, workspaceID,
	).Scan(&c.ID, &c.WorkspaceID, &c.Title, &active, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, octaveerr.Wrap("get_active_conversation", octaveerr.KindDbError, err)
	}
	c.Active = active != 0
	return &c, nil
}

// GetConversation returns a single conversation by id.
func (s *ConversationStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	var active int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, title, active, created_at, updated_at
		FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.WorkspaceID, &c.Title, &active, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, octaveerr.New("get_conversation", octaveerr.KindNotFound, nil)
	}
	if err != nil {
		return nil, octaveerr.Wrap("get_conversation", octaveerr.KindDbError, err)
	}
	c.Active = active != 0
	return &c, nil
}

// CreateConversation creates a new conversation marked active. It does not
// deactivate any sibling conversation — that is SetActive's job.
func (s *ConversationStore) CreateConversation(ctx context.Context, workspaceID, title string) (*Conversation, error) {
	now := isoNow()
	c := Conversation{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Title:       title,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, workspace_id, title, active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`,
		c.ID, c.WorkspaceID, c.Title, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, octaveerr.Wrap("create_conversation", octaveerr.KindDbError, err)
	}
	return &c, nil
}

// SetActive deactivates every conversation in workspaceID, then activates
// conversationID, in a single transaction so readers never observe two
// active conversations at once.
func (s *ConversationStore) SetActive(ctx context.Context, workspaceID, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return octaveerr.Wrap("set_active", octaveerr.KindDbError, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET active = 0, updated_at = updated_at WHERE workspace_id = ?`, workspaceID,
	); err != nil {
		return octaveerr.Wrap("set_active", octaveerr.KindDbError, err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET active = 1 WHERE id = ? AND workspace_id = ?`, conversationID, workspaceID)
	if err != nil {
		return octaveerr.Wrap("set_active", octaveerr.KindDbError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return octaveerr.New("set_active", octaveerr.KindNotFound, nil)
	}

	if err := tx.Commit(); err != nil {
		return octaveerr.Wrap("set_active", octaveerr.KindDbError, err)
	}
	return nil
}

// Touch sets conversationID's updated_at to now. Called from message writes.
func (s *ConversationStore) Touch(ctx context.Context, conversationID string) error {
	return s.touchTx(ctx, s.db, conversationID)
}

func (s *ConversationStore) touchTx(ctx context.Context, execer execer, conversationID string) error {
	_, err := execer.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, isoNow(), conversationID)
	if err != nil {
		return octaveerr.Wrap("touch", octaveerr.KindDbError, err)
	}
	return nil
}

// DeleteConversation removes a conversation and, via ON DELETE CASCADE, all
// of its messages, blocks, and todos.
func (s *ConversationStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return octaveerr.Wrap("delete_conversation", octaveerr.KindDbError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return octaveerr.New("delete_conversation", octaveerr.KindNotFound, nil)
	}
	return nil
}

// execer is the subset of *sql.DB / *sql.Tx used for statements run either
// standalone or inside a caller-managed transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
