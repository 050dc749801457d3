package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig holds all application-level configuration loaded from environment variables.
type AppConfig struct {
	// AnthropicAPIKey is forwarded to the AI CLI child process when set.
	// Optional — the AI CLI uses its own stored credentials if not provided.
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`

	// DataDir is the root data directory. Defaults to ~/.octave.
	DataDir string `envconfig:"OCTAVE_DATA_DIR"`

	// LogLevel sets the minimum log level (debug, info, warn, error). Defaults to info.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// BridgeHost is the bind address for the loopback HTTP bridge. Must stay
	// a loopback address; bridge.NewServer refuses anything else at runtime.
	BridgeHost string `envconfig:"OCTAVE_BRIDGE_HOST" default:"127.0.0.1"`

	// BridgePort is the loopback HTTP bridge port.
	BridgePort int `envconfig:"OCTAVE_BRIDGE_PORT" default:"3737"`

	// ToolCallTimeoutSeconds bounds a single shell_execute call. Calls that
	// TSP forwards to tool servers are bounded only by the caller's context.
	ToolCallTimeoutSeconds int `envconfig:"OCTAVE_TOOL_CALL_TIMEOUT_SECONDS" default:"30"`

	// ContextWindowTokens is loaded but not read by CCE, which accounts
	// against its fixed cce.TokenLimit (200000).
	ContextWindowTokens int `envconfig:"OCTAVE_CONTEXT_WINDOW_TOKENS" default:"200000"`

	// CompactThresholdPercent is loaded but not read by CCE: shouldCompact
	// uses the fixed cce.CompactThresholdPercent (true at or above 80).
	CompactThresholdPercent int `envconfig:"OCTAVE_COMPACT_THRESHOLD_PERCENT" default:"80"`

	// CompactionSweepInterval is how often the background scheduler checks
	// active conversations' token usage.
	CompactionSweepInterval time.Duration `envconfig:"OCTAVE_COMPACTION_SWEEP_INTERVAL" default:"2m"`

	// EventBusWorkers sizes the in-memory event bus worker pool.
	EventBusWorkers int `envconfig:"OCTAVE_EVENT_BUS_WORKERS" default:"3"`
}

// Load reads AppConfig from environment variables using envconfig.
// DataDir defaults to ~/.octave if not set.
func Load() (*AppConfig, error) {
	var c AppConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".octave")
	}
	return &c, nil
}

// SlogLevel converts the LogLevel string to a slog.Level.
// Unknown values default to slog.LevelInfo.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// octaveDataDir returns <data_dir>/octave-data, the on-disk layout root
// described in the external interfaces contract.
func (c *AppConfig) octaveDataDir() string {
	return filepath.Join(c.DataDir, "octave-data")
}

// LegacyDataDir returns the pre-existing circuit-data/ directory, if any,
// that the startup migration copies from.
func (c *AppConfig) LegacyDataDir() string {
	return filepath.Join(c.DataDir, "circuit-data")
}

// LogDir returns the path to the log directory (<octave-data>/logs).
func (c *AppConfig) LogDir() string {
	return filepath.Join(c.octaveDataDir(), "logs")
}

// ServerLogDir returns the directory holding per-tool-server log files.
func (c *AppConfig) ServerLogDir() string {
	return filepath.Join(c.LogDir(), "servers")
}

// ConversationsDBPath returns the path to the conversations database.
func (c *AppConfig) ConversationsDBPath() string {
	return filepath.Join(c.octaveDataDir(), "conversations.db")
}

// MemoryDBPath returns the path to the project-memory database.
func (c *AppConfig) MemoryDBPath() string {
	return filepath.Join(c.octaveDataDir(), "memory.db")
}

// BackupsDir returns the directory where timestamped database backups are written.
func (c *AppConfig) BackupsDir() string {
	return filepath.Join(c.octaveDataDir(), "backups")
}

// MigrationLogPath returns the path to the migration report JSON file.
func (c *AppConfig) MigrationLogPath() string {
	return filepath.Join(c.octaveDataDir(), "migration.log.json")
}

// ToolServersFile returns the path to the tool-server registry YAML file.
func (c *AppConfig) ToolServersFile() string {
	return filepath.Join(c.DataDir, "tool-servers.yaml")
}

// DenyListFile returns the path to the optional layered deny-list/defaults
// override file consumed by viper alongside built-in defaults.
func (c *AppConfig) DenyListFile() string {
	return filepath.Join(c.DataDir, "tool-server-defaults.yaml")
}
