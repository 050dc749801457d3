package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadToolServerDefaults_MissingFile(t *testing.T) {
	d, err := LoadToolServerDefaults("/nonexistent/tool-server-defaults.yaml")
	require.NoError(t, err)
	assert.Equal(t, 30, d.CallTimeoutSeconds)
	assert.Equal(t, 5, d.MaxRestartAttempts)
	assert.ElementsMatch(t, DefaultDangerousSubstrings, d.DangerousSubstrings)
}

func TestLoadToolServerDefaults_Override(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "tool-server-defaults.yaml")
	require.NoError(t, os.WriteFile(fp, []byte(`
call_timeout_seconds: 45
max_restart_attempts: 2
dangerous_substrings:
  - "curl | sh"
`), 0o600))

	d, err := LoadToolServerDefaults(fp)
	require.NoError(t, err)
	assert.Equal(t, 45, d.CallTimeoutSeconds)
	assert.Equal(t, 2, d.MaxRestartAttempts)

	// Overrides add to, never remove from, the literal deny-list.
	assert.Contains(t, d.DangerousSubstrings, "curl | sh")
	for _, s := range DefaultDangerousSubstrings {
		assert.Contains(t, d.DangerousSubstrings, s)
	}
}
