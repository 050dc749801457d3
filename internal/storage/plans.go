package storage

import (
	"database/sql"
	"encoding/json"

	"context"

	"github.com/google/uuid"

	"github.com/shaharia-lab/octave-core/internal/octaveerr"
)

// CreatePlan inserts a new plan, JSON-encoding its embedded flat todo list.
func (s *ConversationStore) CreatePlan(ctx context.Context, workspaceID, goal, planDocument string, todos []PlanTodo) (*Plan, error) {
	todosJSON, err := json.Marshal(todos)
	if err != nil {
		return nil, octaveerr.Wrap("create_plan", octaveerr.KindInvalidArgument, err)
	}
	now := epochMillisNow()
	p := Plan{
		ID:           uuid.NewString(),
		WorkspaceID:  workspaceID,
		Goal:         goal,
		PlanDocument: planDocument,
		Todos:        todos,
		TodoCount:    len(todos),
		Status:       PlanPending,
		AIAnalysis:   "{}",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (id, workspace_id, goal, plan_document, todos, todo_count,
			estimated_duration_seconds, status, ai_analysis, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.WorkspaceID, p.Goal, p.PlanDocument, string(todosJSON), p.TodoCount,
		p.EstimatedDurationSeconds, string(p.Status), p.AIAnalysis, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, octaveerr.Wrap("create_plan", octaveerr.KindDbConstraint, err)
	}
	return &p, nil
}

// UpdatePlan updates a plan's status and AI analysis; the plan document is
// left unchanged.
func (s *ConversationStore) UpdatePlan(ctx context.Context, id string, status PlanStatus, aiAnalysis string) error {
	if aiAnalysis == "" {
		aiAnalysis = "{}"
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE plans SET status = ?, ai_analysis = ?, updated_at = ? WHERE id = ?`,
		string(status), aiAnalysis, epochMillisNow(), id)
	if err != nil {
		return octaveerr.Wrap("update_plan", octaveerr.KindDbError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return octaveerr.New("update_plan", octaveerr.KindNotFound, nil)
	}
	return nil
}

// GetPlan returns a single plan by id.
func (s *ConversationStore) GetPlan(ctx context.Context, id string) (*Plan, error) {
	var p Plan
	var status, todosJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, goal, plan_document, todos, todo_count,
			estimated_duration_seconds, status, ai_analysis, created_at, updated_at
		FROM plans WHERE id = ?`, id,
	).Scan(&p.ID, &p.WorkspaceID, &p.Goal, &p.PlanDocument, &todosJSON, &p.TodoCount,
		&p.EstimatedDurationSeconds, &status, &p.AIAnalysis, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, octaveerr.New("get_plan", octaveerr.KindNotFound, nil)
	}
	if err != nil {
		return nil, octaveerr.Wrap("get_plan", octaveerr.KindDbError, err)
	}
	p.Status = PlanStatus(status)
	if err := json.Unmarshal([]byte(todosJSON), &p.Todos); err != nil {
		return nil, octaveerr.Wrap("get_plan", octaveerr.KindDbError, err)
	}
	return &p, nil
}

// ExecutePlan materializes a plan's flat todo list into Todo rows attached
// to conversationID/messageID, and marks the plan active, all in one
// transaction.
func (s *ConversationStore) ExecutePlan(ctx context.Context, planID, conversationID, messageID string) ([]Todo, error) {
	plan, err := s.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, octaveerr.Wrap("plan_execute", octaveerr.KindDbError, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	ids := make([]string, len(plan.Todos))
	now := epochMillisNow()
	materialized := make([]Todo, 0, len(plan.Todos))

	for i, pt := range plan.Todos {
		id := uuid.NewString()
		ids[i] = id

		var parentID *string
		depth := 0
		if pt.ParentIndex != nil && *pt.ParentIndex >= 0 && *pt.ParentIndex < i {
			parentID = &ids[*pt.ParentIndex]
			depth = 1
		}

		t := Todo{
			ID:              id,
			ConversationID:  conversationID,
			MessageID:       messageID,
			ParentID:        parentID,
			Order:           i,
			Depth:           depth,
			Content:         pt.Content,
			ActiveForm:      pt.ActiveForm,
			Status:          TodoPending,
			Priority:        TodoPriority(pt.Priority),
			Complexity:      TodoComplexity(pt.Complexity),
			ThinkingStepIDs: []string{},
			BlockIDs:        []string{},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if t.Priority == "" {
			t.Priority = PriorityMedium
		}
		if t.Complexity == "" {
			t.Complexity = ComplexityMedium
		}

		thinkingJSON, _ := encodeJSONList(t.ThinkingStepIDs)
		blockIDsJSON, _ := encodeJSONList(t.BlockIDs)

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO todos (
				id, conversation_id, message_id, parent_id, todo_order, depth, content, active_form,
				status, progress, priority, complexity, thinking_step_ids, block_ids,
				estimated_duration_seconds, actual_duration_seconds, started_at, completed_at,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, NULL, NULL, NULL, NULL, ?, ?)`,
			t.ID, t.ConversationID, t.MessageID, t.ParentID, t.Order, t.Depth, t.Content, t.ActiveForm,
			string(t.Status), string(t.Priority), string(t.Complexity), thinkingJSON, blockIDsJSON,
			t.CreatedAt, t.UpdatedAt,
		); err != nil {
			return nil, octaveerr.Wrap("plan_execute", octaveerr.KindDbConstraint, err)
		}
		materialized = append(materialized, t)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE plans SET status = ?, updated_at = ? WHERE id = ?`, string(PlanActive), now, planID,
	); err != nil {
		return nil, octaveerr.Wrap("plan_execute", octaveerr.KindDbError, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, octaveerr.Wrap("plan_execute", octaveerr.KindDbError, err)
	}
	return materialized, nil
}
