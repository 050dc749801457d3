package bridge_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/octave-core/internal/bridge"
	"github.com/shaharia-lab/octave-core/internal/tsp"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStdioProxy_UnknownMethod(t *testing.T) {
	d := &fakeDispatcher{handle: func(req tsp.Request) tsp.Response {
		return tsp.Response{JSONRPC: "2.0", ID: req.ID, Error: &tsp.RPCError{Code: tsp.CodeMethodNotFound, Message: "Method not found: bogus"}}
	}}

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"bogus"}` + "\n")
	var out strings.Builder
	p := bridge.NewStdioProxy(d, discardLogger(), in, &out)

	require.NoError(t, p.Run(context.Background()))

	var resp tsp.Response
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, tsp.CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "Method not found: bogus", resp.Error.Message)
}

func TestStdioProxy_MalformedLineDropped(t *testing.T) {
	d := &fakeDispatcher{}
	in := strings.NewReader("not json\n" + `{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n")
	var out strings.Builder
	p := bridge.NewStdioProxy(d, discardLogger(), in, &out)

	require.NoError(t, p.Run(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
}

func TestStdioProxy_Notification(t *testing.T) {
	d := &fakeDispatcher{handle: func(_ tsp.Request) tsp.Response {
		return tsp.Response{}
	}}
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	var out strings.Builder
	p := bridge.NewStdioProxy(d, discardLogger(), in, &out)

	require.NoError(t, p.Run(context.Background()))
	assert.Empty(t, strings.TrimSpace(out.String()))
}
