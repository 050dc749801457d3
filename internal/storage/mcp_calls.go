package storage

import (
	"context"

	"github.com/shaharia-lab/octave-core/internal/octaveerr"
)

// RecordMCPCallPending inserts a new MCPCall row in pending state. TSP calls
// this before dispatching a request, then calls CompleteMCPCall once the
// call resolves. Rows are never deleted.
func (s *ConversationStore) RecordMCPCallPending(ctx context.Context, callID, serverID, serverName, method, toolName, requestParams string) (int64, error) {
	if requestParams == "" {
		requestParams = "{}"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO mcp_calls (call_id, timestamp, server_id, server_name, method, tool_name, request_params, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending')`,
		callID, epochMillisNow(), serverID, serverName, method, toolName, requestParams)
	if err != nil {
		return 0, octaveerr.Wrap("mcp_call_pending", octaveerr.KindDbConstraint, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, octaveerr.Wrap("mcp_call_pending", octaveerr.KindDbError, err)
	}
	return id, nil
}

// CompleteMCPCall transitions a pending call to a terminal status, recording
// its duration and either a result or an error string.
func (s *ConversationStore) CompleteMCPCall(ctx context.Context, callID string, status MCPCallStatus, durationMs int64, result, callErr *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mcp_calls SET status = ?, duration_ms = ?, response_result = ?, response_error = ?
		WHERE call_id = ?`,
		string(status), durationMs, result, callErr, callID)
	if err != nil {
		return octaveerr.Wrap("mcp_call_complete", octaveerr.KindDbError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return octaveerr.New("mcp_call_complete", octaveerr.KindNotFound, nil)
	}
	return nil
}

// ListMCPCalls returns the most recent MCP calls, optionally filtered by
// serverID, newest first, capped at limit.
func (s *ConversationStore) ListMCPCalls(ctx context.Context, serverID string, limit int) ([]MCPCall, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, call_id, timestamp, duration_ms, server_id, server_name, method, tool_name,
			request_params, response_result, response_error, status
		FROM mcp_calls`
	args := []any{}
	if serverID != "" {
		query += ` WHERE server_id = ?`
		args = append(args, serverID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, octaveerr.Wrap("mcp_call_list", octaveerr.KindDbError, err)
	}
	defer rows.Close()

	var out []MCPCall
	for rows.Next() {
		var c MCPCall
		var status string
		if err := rows.Scan(&c.ID, &c.CallID, &c.Timestamp, &c.DurationMs, &c.ServerID, &c.ServerName,
			&c.Method, &c.ToolName, &c.RequestParams, &c.ResponseResult, &c.ResponseError, &status); err != nil {
			return nil, octaveerr.Wrap("mcp_call_list", octaveerr.KindDbError, err)
		}
		c.Status = MCPCallStatus(status)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, octaveerr.Wrap("mcp_call_list", octaveerr.KindDbError, err)
	}
	return out, nil
}
