package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/shaharia-lab/octave-core/internal/octaveerr"
)

// SaveTodo UPSERTs a single todo, JSON-encoding its list-valued fields.
// If t.ID is empty, a new id is generated and CreatedAt/UpdatedAt are set to now.
func (s *ConversationStore) SaveTodo(ctx context.Context, t Todo) (*Todo, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
		t.CreatedAt = epochMillisNow()
	}
	t.UpdatedAt = epochMillisNow()
	if t.Status == "" {
		t.Status = TodoPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Complexity == "" {
		t.Complexity = ComplexityMedium
	}

	thinkingJSON, err := encodeJSONList(t.ThinkingStepIDs)
	if err != nil {
		return nil, octaveerr.Wrap("save_todo", octaveerr.KindInvalidArgument, err)
	}
	blockIDsJSON, err := encodeJSONList(t.BlockIDs)
	if err != nil {
		return nil, octaveerr.Wrap("save_todo", octaveerr.KindInvalidArgument, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO todos (
			id, conversation_id, message_id, parent_id, todo_order, depth, content, active_form,
			status, progress, priority, complexity, thinking_step_ids, block_ids,
			estimated_duration_seconds, actual_duration_seconds, started_at, completed_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			todo_order = excluded.todo_order,
			depth = excluded.depth,
			content = excluded.content,
			active_form = excluded.active_form,
			status = excluded.status,
			progress = excluded.progress,
			priority = excluded.priority,
			complexity = excluded.complexity,
			thinking_step_ids = excluded.thinking_step_ids,
			block_ids = excluded.block_ids,
			estimated_duration_seconds = excluded.estimated_duration_seconds,
			actual_duration_seconds = excluded.actual_duration_seconds,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at`,
		t.ID, t.ConversationID, t.MessageID, t.ParentID, t.Order, t.Depth, t.Content, t.ActiveForm,
		string(t.Status), t.Progress, string(t.Priority), string(t.Complexity), thinkingJSON, blockIDsJSON,
		t.EstimatedDurationSeconds, t.ActualDurationSeconds, t.StartedAt, t.CompletedAt,
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, octaveerr.Wrap("save_todo", octaveerr.KindDbConstraint, err)
	}
	return &t, nil
}

// SaveTodos saves todos one at a time through SaveTodo, in input order. The
// writes do not share a transaction: when one fails, the todos before it
// stay saved.
func (s *ConversationStore) SaveTodos(ctx context.Context, todos []Todo) ([]Todo, error) {
	out := make([]Todo, 0, len(todos))
	for _, t := range todos {
		saved, err := s.SaveTodo(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, *saved)
	}
	return out, nil
}

// UpdateTodoStatus sets a todo's status and progress (a nil progress clears it).
func (s *ConversationStore) UpdateTodoStatus(ctx context.Context, id string, status TodoStatus, progress *int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE todos SET status = ?, progress = ?, updated_at = ? WHERE id = ?`,
		string(status), progress, epochMillisNow(), id)
	if err != nil {
		return octaveerr.Wrap("update_status", octaveerr.KindDbError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return octaveerr.New("update_status", octaveerr.KindNotFound, nil)
	}
	return nil
}

// UpdateTodoTiming updates a todo's started/completed timestamps and actual duration.
func (s *ConversationStore) UpdateTodoTiming(ctx context.Context, id string, startedAt, completedAt *int64, actualDurationSeconds *int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE todos SET started_at = ?, completed_at = ?, actual_duration_seconds = ?, updated_at = ?
		WHERE id = ?`,
		startedAt, completedAt, actualDurationSeconds, epochMillisNow(), id)
	if err != nil {
		return octaveerr.Wrap("update_timing", octaveerr.KindDbError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return octaveerr.New("update_timing", octaveerr.KindNotFound, nil)
	}
	return nil
}

// DeleteTodo removes a todo and, via ON DELETE CASCADE, its descendants.
func (s *ConversationStore) DeleteTodo(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return octaveerr.Wrap("delete_todo", octaveerr.KindDbError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return octaveerr.New("delete_todo", octaveerr.KindNotFound, nil)
	}
	return nil
}

// ListTodos returns every todo in conversationID ordered for forest display
// (order, then depth).
func (s *ConversationStore) ListTodos(ctx context.Context, conversationID string) ([]Todo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, message_id, parent_id, todo_order, depth, content, active_form,
			status, progress, priority, complexity, thinking_step_ids, block_ids,
			estimated_duration_seconds, actual_duration_seconds, started_at, completed_at,
			created_at, updated_at
		FROM todos WHERE conversation_id = ? ORDER BY todo_order ASC, depth ASC`, conversationID)
	if err != nil {
		return nil, octaveerr.Wrap("list_todos", octaveerr.KindDbError, err)
	}
	defer rows.Close()

	var out []Todo
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, octaveerr.Wrap("list_todos", octaveerr.KindDbError, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(rows rowScanner) (*Todo, error) {
	var t Todo
	var status, priority, complexity, thinkingJSON, blockIDsJSON string
	if err := rows.Scan(
		&t.ID, &t.ConversationID, &t.MessageID, &t.ParentID, &t.Order, &t.Depth, &t.Content, &t.ActiveForm,
		&status, &t.Progress, &priority, &complexity, &thinkingJSON, &blockIDsJSON,
		&t.EstimatedDurationSeconds, &t.ActualDurationSeconds, &t.StartedAt, &t.CompletedAt,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, octaveerr.Wrap("scan_todo", octaveerr.KindDbError, err)
	}
	t.Status = TodoStatus(status)
	t.Priority = TodoPriority(priority)
	t.Complexity = TodoComplexity(complexity)

	thinkingIDs, err := decodeJSONList(thinkingJSON)
	if err != nil {
		return nil, octaveerr.Wrap("scan_todo", octaveerr.KindDbError, err)
	}
	t.ThinkingStepIDs = thinkingIDs

	blockIDs, err := decodeJSONList(blockIDsJSON)
	if err != nil {
		return nil, octaveerr.Wrap("scan_todo", octaveerr.KindDbError, err)
	}
	t.BlockIDs = blockIDs

	return &t, nil
}
