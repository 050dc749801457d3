package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawToolServerEntry is used for initial YAML parsing before transport-specific typing.
type rawToolServerEntry struct {
	Transport   string            `yaml:"transport"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	URL         string            `yaml:"url"`
	Headers     map[string]string `yaml:"headers"`
	AutoRestart bool              `yaml:"auto_restart"`
}

// ToolServerTransport distinguishes how TSP talks to a configured server.
type ToolServerTransport string

const (
	// TransportStdio servers are child processes TSP spawns and supervises
	// directly, speaking line-delimited JSON-RPC over stdio.
	TransportStdio ToolServerTransport = "stdio"
	// TransportHTTP and TransportSSE servers are remote MCP servers TSP
	// fronts without spawning a child process.
	TransportHTTP ToolServerTransport = "streamable_http"
	TransportSSE  ToolServerTransport = "sse"
)

// ToolServerSpec describes one configured tool server.
type ToolServerSpec struct {
	Name        string
	Transport   ToolServerTransport
	Command     string
	Args        []string
	Env         map[string]string
	URL         string
	Headers     map[string]string
	AutoRestart bool
}

// ToolServerRegistry holds the parsed tool-server configurations, keyed by
// the raw name given in the YAML file (before id normalization — see
// tsp.NormalizeServerID).
type ToolServerRegistry struct {
	servers map[string]ToolServerSpec
}

// Has reports whether the registry contains a server with the given name.
func (r *ToolServerRegistry) Has(name string) bool {
	_, ok := r.servers[name]
	return ok
}

// Get returns the spec for name, or false if not found.
func (r *ToolServerRegistry) Get(name string) (ToolServerSpec, bool) {
	s, ok := r.servers[name]
	return s, ok
}

// All returns a copy of the full name → spec map.
func (r *ToolServerRegistry) All() map[string]ToolServerSpec {
	out := make(map[string]ToolServerSpec, len(r.servers))
	for k, v := range r.servers {
		out[k] = v
	}
	return out
}

// LoadToolServerRegistry reads the tool-server registry YAML file at filePath
// and returns a populated ToolServerRegistry. If the file does not exist, an
// empty registry is returned (not an error).
func LoadToolServerRegistry(filePath string) (*ToolServerRegistry, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // path is from admin-configured data dir
	if err != nil {
		if os.IsNotExist(err) {
			return &ToolServerRegistry{servers: make(map[string]ToolServerSpec)}, nil
		}
		return nil, fmt.Errorf("reading tool-server registry %q: %w", filePath, err)
	}

	var raw map[string]rawToolServerEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing tool-server registry %q: %w", filePath, err)
	}

	registry := &ToolServerRegistry{servers: make(map[string]ToolServerSpec)}

	for name, entry := range raw {
		switch ToolServerTransport(entry.Transport) {
		case TransportStdio:
			env, err := interpolateEnvMap(name, entry.Env)
			if err != nil {
				return nil, err
			}
			registry.servers[name] = ToolServerSpec{
				Name:        name,
				Transport:   TransportStdio,
				Command:     entry.Command,
				Args:        entry.Args,
				Env:         env,
				AutoRestart: entry.AutoRestart,
			}

		case TransportHTTP:
			headers, err := interpolateEnvMap(name, entry.Headers)
			if err != nil {
				return nil, err
			}
			registry.servers[name] = ToolServerSpec{
				Name:      name,
				Transport: TransportHTTP,
				URL:       entry.URL,
				Headers:   headers,
			}

		case TransportSSE:
			headers, err := interpolateEnvMap(name, entry.Headers)
			if err != nil {
				return nil, err
			}
			registry.servers[name] = ToolServerSpec{
				Name:      name,
				Transport: TransportSSE,
				URL:       entry.URL,
				Headers:   headers,
			}

		default:
			return nil, fmt.Errorf("tool server %q: unknown transport %q (must be stdio, streamable_http, or sse)", name, entry.Transport)
		}
	}

	return registry, nil
}

// interpolateEnvMap applies ${ENV:VAR_NAME} substitution to all values in m.
func interpolateEnvMap(serverName string, m map[string]string) (map[string]string, error) {
	if len(m) == 0 {
		return m, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		interpolated, err := interpolateEnv(v)
		if err != nil {
			return nil, fmt.Errorf("tool server %q key %q: %w", serverName, k, err)
		}
		out[k] = interpolated
	}
	return out, nil
}

// interpolateEnv replaces all ${ENV:VAR_NAME} patterns in s with the corresponding
// environment variable values. Returns an error if a referenced variable is not set.
func interpolateEnv(s string) (string, error) {
	result := s
	for {
		start := strings.Index(result, "${ENV:")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start
		varName := result[start+6 : end]
		value := os.Getenv(varName)
		if value == "" {
			return "", fmt.Errorf("required env var %q is not set", varName)
		}
		result = result[:start] + value + result[end+1:]
	}
	return result, nil
}
