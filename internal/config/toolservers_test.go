package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolServerRegistry_Has(t *testing.T) {
	r := &ToolServerRegistry{servers: map[string]ToolServerSpec{
		"server1": {Name: "server1", Transport: TransportStdio},
	}}
	assert.True(t, r.Has("server1"))
	assert.False(t, r.Has("missing"))
}

func TestToolServerRegistry_All(t *testing.T) {
	r := &ToolServerRegistry{servers: map[string]ToolServerSpec{
		"a": {Name: "a", Transport: TransportStdio},
		"b": {Name: "b", Transport: TransportHTTP},
	}}
	all := r.All()
	assert.Len(t, all, 2)
	all["c"] = ToolServerSpec{}
	assert.False(t, r.Has("c"))
}

func TestLoadToolServerRegistry(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		check   func(t *testing.T, r *ToolServerRegistry)
		wantErr string
	}{
		{
			name: "stdio server",
			yaml: `
server1:
  transport: stdio
  command: node
  args: ["--flag"]
  auto_restart: true
`,
			check: func(t *testing.T, r *ToolServerRegistry) {
				assert.True(t, r.Has("server1"))
				spec, ok := r.Get("server1")
				require.True(t, ok)
				assert.Equal(t, TransportStdio, spec.Transport)
				assert.Equal(t, "node", spec.Command)
				assert.Equal(t, []string{"--flag"}, spec.Args)
				assert.True(t, spec.AutoRestart)
			},
		},
		{
			name: "http server",
			yaml: `
httpserver:
  transport: streamable_http
  url: http://localhost:3000
`,
			check: func(t *testing.T, r *ToolServerRegistry) {
				spec, ok := r.Get("httpserver")
				require.True(t, ok)
				assert.Equal(t, TransportHTTP, spec.Transport)
				assert.Equal(t, "http://localhost:3000", spec.URL)
			},
		},
		{
			name: "sse server",
			yaml: `
sseserver:
  transport: sse
  url: http://localhost:4000/sse
`,
			check: func(t *testing.T, r *ToolServerRegistry) {
				spec, ok := r.Get("sseserver")
				require.True(t, ok)
				assert.Equal(t, TransportSSE, spec.Transport)
			},
		},
		{
			name:    "unknown transport",
			yaml:    "bad:\n  transport: grpc\n",
			wantErr: "unknown transport",
		},
		{
			name:    "invalid yaml",
			yaml:    "{{invalid",
			wantErr: "parsing tool-server registry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			fp := filepath.Join(dir, "tool-servers.yaml")
			require.NoError(t, os.WriteFile(fp, []byte(tt.yaml), 0o600))

			r, err := LoadToolServerRegistry(fp)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, r)
		})
	}
}

func TestLoadToolServerRegistry_FileNotExist(t *testing.T) {
	r, err := LoadToolServerRegistry("/nonexistent/tool-servers.yaml")
	require.NoError(t, err)
	assert.NotNil(t, r)
	assert.Empty(t, r.All())
}

func TestInterpolateEnv(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		envVars map[string]string
		want    string
		wantErr string
	}{
		{
			name:  "no interpolation",
			input: "plain value",
			want:  "plain value",
		},
		{
			name:    "single var",
			input:   "${ENV:MY_VAR}",
			envVars: map[string]string{"MY_VAR": "hello"},
			want:    "hello",
		},
		{
			name:    "multiple vars",
			input:   "${ENV:A}:${ENV:B}",
			envVars: map[string]string{"A": "x", "B": "y"},
			want:    "x:y",
		},
		{
			name:    "missing env var",
			input:   "${ENV:MISSING_VAR}",
			wantErr: "required env var",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			got, err := interpolateEnv(tt.input)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadToolServerRegistry_WithEnvInterpolation(t *testing.T) {
	t.Setenv("TEST_API_KEY", "secret123")

	dir := t.TempDir()
	fp := filepath.Join(dir, "tool-servers.yaml")
	yamlBody := `
server:
  transport: stdio
  command: test
  env:
    API_KEY: "${ENV:TEST_API_KEY}"
`
	require.NoError(t, os.WriteFile(fp, []byte(yamlBody), 0o600))

	r, err := LoadToolServerRegistry(fp)
	require.NoError(t, err)

	spec, ok := r.Get("server")
	require.True(t, ok)
	assert.Equal(t, "secret123", spec.Env["API_KEY"])
}
