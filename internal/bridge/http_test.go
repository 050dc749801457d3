package bridge_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/octave-core/internal/bridge"
	"github.com/shaharia-lab/octave-core/internal/tsp"
)

type fakeDispatcher struct {
	tools   []tsp.ToolInfo
	details map[string]tsp.ServerDetail
	handle  func(req tsp.Request) tsp.Response
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req tsp.Request) tsp.Response {
	if f.handle != nil {
		return f.handle(req)
	}
	return tsp.Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{}`)}
}

func (f *fakeDispatcher) AllTools() []tsp.ToolInfo { return f.tools }

func (f *fakeDispatcher) ServerDetails() map[string]tsp.ServerDetail { return f.details }

func TestNewServer_RefusesNonLoopback(t *testing.T) {
	_, err := bridge.NewServer(&fakeDispatcher{}, t.TempDir(), "0.0.0.0", 3737)
	require.Error(t, err)
}

func TestNewServer_AcceptsLoopback(t *testing.T) {
	_, err := bridge.NewServer(&fakeDispatcher{}, t.TempDir(), "127.0.0.1", 0)
	require.NoError(t, err)

	_, err = bridge.NewServer(&fakeDispatcher{}, t.TempDir(), "localhost", 0)
	require.NoError(t, err)
}

// buildTestServer constructs a Server and returns an httptest server driving
// its handler directly, sidestepping the loopback bind check's net.Listen.
func buildTestServer(t *testing.T, d *fakeDispatcher) *httptest.Server {
	t.Helper()
	s, err := bridge.NewServer(d, t.TempDir(), "127.0.0.1", 0)
	require.NoError(t, err)
	return httptest.NewServer(s.Handler())
}

func TestHandleHealth(t *testing.T) {
	srv := buildTestServer(t, &fakeDispatcher{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestHandleMCPTools(t *testing.T) {
	d := &fakeDispatcher{tools: []tsp.ToolInfo{{ServerID: "s1", ServerName: "server-one", Name: "echo"}}}
	srv := buildTestServer(t, d)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/mcp/tools")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Tools []map[string]any `json:"tools"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Tools, 1)
	assert.Equal(t, "s1", body.Tools[0]["_serverId"])
	assert.Equal(t, "server-one", body.Tools[0]["_serverName"])
}

func TestHandleMCPCall_NotFound(t *testing.T) {
	d := &fakeDispatcher{handle: func(req tsp.Request) tsp.Response {
		return tsp.Response{JSONRPC: "2.0", ID: req.ID, Error: &tsp.RPCError{Code: tsp.CodeMethodNotFound, Message: "unknown tool"}}
	}}
	srv := buildTestServer(t, d)
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"toolName": "nope"})
	resp, err := http.Post(srv.URL+"/mcp/call", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleMCPCall_Success(t *testing.T) {
	d := &fakeDispatcher{handle: func(req tsp.Request) tsp.Response {
		return tsp.Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"ok":true}`)}
	}}
	srv := buildTestServer(t, d)
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"toolName": "echo", "arguments": map[string]any{"x": 1}})
	resp, err := http.Post(srv.URL+"/mcp/call", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
}

func TestHandleMCPStatus(t *testing.T) {
	d := &fakeDispatcher{details: map[string]tsp.ServerDetail{
		"s1": {ServerID: "s1", Name: "server-one", Status: tsp.StatusRunning, ToolCount: 2},
	}}
	srv := buildTestServer(t, d)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/mcp/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]tsp.ServerDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body["s1"].ToolCount)
}

func TestHandleMCPLogs_EmptyWhenNoFile(t *testing.T) {
	srv := buildTestServer(t, &fakeDispatcher{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/mcp/logs/unknown-server")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Logs []string `json:"logs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Empty(t, body.Logs)
}
