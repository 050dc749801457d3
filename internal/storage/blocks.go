package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/shaharia-lab/octave-core/internal/octaveerr"
)

// GetBlocks returns every block of messageID ordered by block_order
// ascending, matching the invariant that save_message_with_blocks's
// replacement semantics mean readers never observe a mixed old/new set.
func (s *ConversationStore) GetBlocks(ctx context.Context, messageID string) ([]Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, type, content, metadata, block_order, created_at
		FROM blocks WHERE message_id = ? ORDER BY block_order ASC`, messageID)
	if err != nil {
		return nil, octaveerr.Wrap("get_blocks", octaveerr.KindDbError, err)
	}
	defer rows.Close()

	var out []Block
	for rows.Next() {
		var b Block
		var typ string
		if err := rows.Scan(&b.ID, &b.MessageID, &typ, &b.Content, &b.Metadata, &b.Order, &b.CreatedAt); err != nil {
			return nil, octaveerr.Wrap("get_blocks", octaveerr.KindDbError, err)
		}
		b.Type = BlockType(typ)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, octaveerr.Wrap("get_blocks", octaveerr.KindDbError, err)
	}
	return out, nil
}

// CreateBookmark adds a bookmark to blockID.
func (s *ConversationStore) CreateBookmark(ctx context.Context, blockID, title, note string, tags []string) (*BlockBookmark, error) {
	tagsJSON, err := encodeJSONList(tags)
	if err != nil {
		return nil, octaveerr.Wrap("create_bookmark", octaveerr.KindInvalidArgument, err)
	}
	bm := BlockBookmark{
		ID:        uuid.NewString(),
		BlockID:   blockID,
		Title:     title,
		Note:      note,
		Tags:      tags,
		CreatedAt: isoNow(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO block_bookmarks (id, block_id, title, note, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		bm.ID, bm.BlockID, bm.Title, bm.Note, tagsJSON, bm.CreatedAt)
	if err != nil {
		return nil, octaveerr.Wrap("create_bookmark", octaveerr.KindDbConstraint, err)
	}
	return &bm, nil
}

// ListBookmarks returns every bookmark attached to blockID.
func (s *ConversationStore) ListBookmarks(ctx context.Context, blockID string) ([]BlockBookmark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, block_id, title, note, tags, created_at
		FROM block_bookmarks WHERE block_id = ? ORDER BY created_at ASC`, blockID)
	if err != nil {
		return nil, octaveerr.Wrap("list_bookmarks", octaveerr.KindDbError, err)
	}
	defer rows.Close()

	var out []BlockBookmark
	for rows.Next() {
		var bm BlockBookmark
		var tagsJSON string
		if err := rows.Scan(&bm.ID, &bm.BlockID, &bm.Title, &bm.Note, &tagsJSON, &bm.CreatedAt); err != nil {
			return nil, octaveerr.Wrap("list_bookmarks", octaveerr.KindDbError, err)
		}
		tags, err := decodeJSONList(tagsJSON)
		if err != nil {
			return nil, octaveerr.Wrap("list_bookmarks", octaveerr.KindDbError, err)
		}
		bm.Tags = tags
		out = append(out, bm)
	}
	if err := rows.Err(); err != nil {
		return nil, octaveerr.Wrap("list_bookmarks", octaveerr.KindDbError, err)
	}
	return out, nil
}

// DeleteBookmark removes a bookmark by id.
func (s *ConversationStore) DeleteBookmark(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM block_bookmarks WHERE id = ?`, id)
	if err != nil {
		return octaveerr.Wrap("delete_bookmark", octaveerr.KindDbError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return octaveerr.New("delete_bookmark", octaveerr.KindNotFound, nil)
	}
	return nil
}

// truncateOutput caps an execution's captured output at MaxExecutionOutputBytes.
func truncateOutput(output string) string {
	if len(output) <= MaxExecutionOutputBytes {
		return output
	}
	return output[:MaxExecutionOutputBytes]
}

// CreateExecution appends an execution record for blockID. Executions are
// never updated or deleted programmatically.
func (s *ConversationStore) CreateExecution(ctx context.Context, blockID string, exitCode int, output string, durationMs int64) (*BlockExecution, error) {
	ex := BlockExecution{
		ID:         uuid.NewString(),
		BlockID:    blockID,
		ExecutedAt: isoNow(),
		ExitCode:   exitCode,
		Output:     truncateOutput(output),
		DurationMs: durationMs,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO block_executions (id, block_id, executed_at, exit_code, output, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.BlockID, ex.ExecutedAt, ex.ExitCode, ex.Output, ex.DurationMs)
	if err != nil {
		return nil, octaveerr.Wrap("create_execution", octaveerr.KindDbConstraint, err)
	}
	return &ex, nil
}

// ListExecutions returns blockID's executions, most recent first.
func (s *ConversationStore) ListExecutions(ctx context.Context, blockID string) ([]BlockExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, block_id, executed_at, exit_code, output, duration_ms
		FROM block_executions WHERE block_id = ? ORDER BY executed_at DESC`, blockID)
	if err != nil {
		return nil, octaveerr.Wrap("list_executions", octaveerr.KindDbError, err)
	}
	defer rows.Close()

	var out []BlockExecution
	for rows.Next() {
		var ex BlockExecution
		if err := rows.Scan(&ex.ID, &ex.BlockID, &ex.ExecutedAt, &ex.ExitCode, &ex.Output, &ex.DurationMs); err != nil {
			return nil, octaveerr.Wrap("list_executions", octaveerr.KindDbError, err)
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, octaveerr.Wrap("list_executions", octaveerr.KindDbError, err)
	}
	return out, nil
}
