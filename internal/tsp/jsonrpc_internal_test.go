package tsp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorResponse_Shape(t *testing.T) {
	id := json.RawMessage(`1`)
	resp := errorResponse(id, CodeMethodNotFound, "Method not found: bogus")

	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, id, resp.ID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "Method not found: bogus", resp.Error.Message)
	assert.Nil(t, resp.Result)
}

func TestResultResponse_MarshalsResult(t *testing.T) {
	id := json.RawMessage(`"abc"`)
	resp := resultResponse(id, map[string]string{"ok": "yes"})

	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Nil(t, resp.Error)

	var out map[string]string
	require.NoError(t, json.Unmarshal(resp.Result, &out))
	assert.Equal(t, "yes", out["ok"])
}

func TestResultResponse_UnmarshalableFallsBackToInternalError(t *testing.T) {
	resp := resultResponse(json.RawMessage(`1`), make(chan int))

	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInternalError, resp.Error.Code)
}
