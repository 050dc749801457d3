package tsp_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/octave-core/internal/tsp"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newShellOnlyProxy() *tsp.Proxy {
	shell := tsp.NewShellExecutor([]string{"rm -rf"}, 5*time.Second)
	return tsp.NewProxy(discardLogger(), nil, shell, 1000, 10)
}

func TestDispatch_UnknownMethod(t *testing.T) {
	p := newShellOnlyProxy()
	resp := p.Dispatch(context.Background(), tsp.Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "bogus"})

	require.NotNil(t, resp.Error)
	assert.Equal(t, tsp.CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "Method not found: bogus", resp.Error.Message)
}

func TestDispatch_Notification_NoResponse(t *testing.T) {
	p := newShellOnlyProxy()
	resp := p.Dispatch(context.Background(), tsp.Request{JSONRPC: "2.0", Method: "notifications/initialized"})

	assert.Empty(t, resp.JSONRPC)
	assert.Nil(t, resp.Result)
	assert.Nil(t, resp.Error)
}

func TestDispatch_ToolsList_IncludesShellTool(t *testing.T) {
	p := newShellOnlyProxy()
	resp := p.Dispatch(context.Background(), tsp.Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "tools/list"})

	require.Nil(t, resp.Error)
	var out struct {
		Tools []tsp.ToolInfo `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &out))
	require.Len(t, out.Tools, 1)
	assert.Equal(t, tsp.LocalShellToolName, out.Tools[0].Name)
	assert.Equal(t, "local-tools", out.Tools[0].ServerName)
}

func TestDispatch_ToolsCall_ShellSuccess(t *testing.T) {
	p := newShellOnlyProxy()
	params, _ := json.Marshal(map[string]any{
		"name":      tsp.LocalShellToolName,
		"arguments": map[string]string{"command": "echo hi"},
	})
	resp := p.Dispatch(context.Background(), tsp.Request{
		JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "tools/call", Params: params,
	})

	require.Nil(t, resp.Error)
	var result tsp.ShellResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "hi\n", result.Stdout)
	assert.Equal(t, 0, result.ExitCode)
}

func TestDispatch_ToolsCall_ShellDangerousRefused(t *testing.T) {
	p := newShellOnlyProxy()
	params, _ := json.Marshal(map[string]any{
		"name":      tsp.LocalShellToolName,
		"arguments": map[string]string{"command": "rm -rf /"},
	})
	resp := p.Dispatch(context.Background(), tsp.Request{
		JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "tools/call", Params: params,
	})

	require.NotNil(t, resp.Error)
	assert.Equal(t, tsp.CodeInternalError, resp.Error.Code)
}

func TestDispatch_ToolsCall_UnknownTool(t *testing.T) {
	p := newShellOnlyProxy()
	params, _ := json.Marshal(map[string]any{"name": "nonexistent_tool", "arguments": map[string]string{}})
	resp := p.Dispatch(context.Background(), tsp.Request{
		JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "tools/call", Params: params,
	})

	require.NotNil(t, resp.Error)
	assert.Equal(t, tsp.CodeMethodNotFound, resp.Error.Code)
}

func TestDispatch_ToolsCall_InvalidParams(t *testing.T) {
	p := newShellOnlyProxy()
	resp := p.Dispatch(context.Background(), tsp.Request{
		JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "tools/call", Params: json.RawMessage(`not json`),
	})

	require.NotNil(t, resp.Error)
	assert.Equal(t, tsp.CodeInvalidParams, resp.Error.Code)
}

func TestDispatch_Initialize(t *testing.T) {
	p := newShellOnlyProxy()
	resp := p.Dispatch(context.Background(), tsp.Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "initialize"})

	require.Nil(t, resp.Error)
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Result, &out))
	assert.Equal(t, "2024-11-05", out["protocolVersion"])
}
