package tsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaharia-lab/octave-core/internal/storage"
)

// Dispatch routes one JSON-RPC request from the AI CLI across the proxy's
// supervised tool servers and the in-process shell_execute tool. It never
// returns a Go error: every failure is encoded as a JSON-RPC error response,
// matching the "never leak internal error text" rule for tools/call.
func (p *Proxy) Dispatch(ctx context.Context, req Request) Response {
	switch req.Method {
	case "initialize":
		return p.handleInitialize(req)
	case "notifications/initialized":
		return Response{} // no response for notifications
	case "tools/list":
		return p.handleToolsList(req)
	case "tools/call":
		return p.handleToolsCall(ctx, req)
	case "prompts/list":
		return resultResponse(req.ID, map[string]any{"prompts": []any{}})
	case "resources/list":
		return resultResponse(req.ID, map[string]any{"resources": []any{}})
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (p *Proxy) handleInitialize(req Request) Response {
	return resultResponse(req.ID, map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo":      map[string]string{"name": "octave-tsp", "version": "1"},
	})
}

func (p *Proxy) handleToolsList(req Request) Response {
	tools := p.AllTools()
	if p.shell != nil {
		tools = append(tools, ToolInfo{
			ServerID:    "local",
			ServerName:  "local-tools",
			Name:        LocalShellToolName,
			Description: "Execute a shell command, subject to a dangerous-command deny-list.",
		})
	}
	return resultResponse(req.ID, map[string]any{"tools": tools})
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (p *Proxy) handleToolsCall(ctx context.Context, req Request) Response {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	if params.Name == LocalShellToolName {
		return p.callShell(ctx, req.ID, params.Arguments)
	}

	return p.callRemoteTool(ctx, req.ID, params.Name, params.Arguments)
}

func (p *Proxy) callShell(ctx context.Context, id json.RawMessage, argsRaw json.RawMessage) Response {
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(argsRaw, &args); err != nil {
		return errorResponse(id, CodeInvalidParams, "invalid params")
	}

	callID := uuid.NewString()
	start := time.Now()
	if p.calls != nil {
		_, _ = p.calls.RecordMCPCallPending(ctx, callID, "local", "local-tools", "tools/call", LocalShellToolName, string(argsRaw))
	}

	result, err := p.shell.Run(ctx, args.Command)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		callsTotal.WithLabelValues("local", "error").Inc()
		errMsg := err.Error()
		if p.calls != nil {
			_ = p.calls.CompleteMCPCall(ctx, callID, storage.MCPCallError, duration, nil, &errMsg)
		}
		return errorResponse(id, CodeInternalError, "tool call failed")
	}

	callsTotal.WithLabelValues("local", "success").Inc()
	resultJSON, _ := json.Marshal(result)
	resultStr := string(resultJSON)
	if p.calls != nil {
		_ = p.calls.CompleteMCPCall(ctx, callID, storage.MCPCallSuccess, duration, &resultStr, nil)
	}
	return resultResponse(id, result)
}

func (p *Proxy) callRemoteTool(ctx context.Context, id json.RawMessage, toolName string, argsRaw json.RawMessage) Response {
	srv, err := p.serverForTool(toolName)
	if err != nil {
		return errorResponse(id, CodeMethodNotFound, "unknown tool")
	}

	callID := uuid.NewString()
	start := time.Now()
	if p.calls != nil {
		_, _ = p.calls.RecordMCPCallPending(ctx, callID, srv.ID(), srv.name, "tools/call", toolName, string(argsRaw))
	}

	var args any
	if len(argsRaw) > 0 {
		_ = json.Unmarshal(argsRaw, &args)
	}

	resp, err := srv.call(ctx, "tools/call", map[string]any{"name": toolName, "arguments": args})
	duration := time.Since(start).Milliseconds()

	status := storage.MCPCallSuccess
	var respErr *string

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = storage.MCPCallTimeout
		msg := "tool call timed out"
		respErr = &msg
	case err != nil:
		status = storage.MCPCallError
		msg := err.Error()
		respErr = &msg
	case resp.Error != nil:
		status = storage.MCPCallError
		respErr = &resp.Error.Message
	}

	var resultStr *string
	if status == storage.MCPCallSuccess {
		s := string(resp.Result)
		resultStr = &s
	}

	if p.calls != nil {
		_ = p.calls.CompleteMCPCall(ctx, callID, status, duration, resultStr, respErr)
	}
	callsTotal.WithLabelValues(srv.ID(), string(status)).Inc()

	if status != storage.MCPCallSuccess {
		return errorResponse(id, CodeInternalError, "tool call failed")
	}
	return Response{JSONRPC: "2.0", ID: id, Result: resp.Result}
}
