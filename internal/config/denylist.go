package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// DefaultDangerousSubstrings is the literal deny-list the error handling
// design names for user-initiated shell execution. It is always active,
// even if the override file is absent or empty.
var DefaultDangerousSubstrings = []string{
	"rm -rf /",
	"sudo",
	":(){",
	"mkfs",
	"dd if=",
}

// ToolServerDefaults are the layered (file + env) tool-server defaults,
// composed the way SettingsManager layers over AppConfig in the teacher.
// Only DangerousSubstrings is used (as the shell_execute deny-list); the
// timeout and restart fields are loaded but no tool server applies them.
type ToolServerDefaults struct {
	CallTimeoutSeconds   int      `mapstructure:"call_timeout_seconds"`
	MaxRestartAttempts   int      `mapstructure:"max_restart_attempts"`
	RestartBackoffSeconds int     `mapstructure:"restart_backoff_seconds"`
	DangerousSubstrings  []string `mapstructure:"dangerous_substrings"`
}

// LoadToolServerDefaults reads layered defaults from overridePath (if it
// exists) over built-in defaults using viper, and from the OCTAVE_TSP_*
// environment variables. A missing override file is not an error.
func LoadToolServerDefaults(overridePath string) (*ToolServerDefaults, error) {
	v := viper.New()
	v.SetConfigFile(overridePath)
	v.SetConfigType("yaml")

	v.SetDefault("call_timeout_seconds", 30)
	v.SetDefault("max_restart_attempts", 5)
	v.SetDefault("restart_backoff_seconds", 2)
	v.SetDefault("dangerous_substrings", DefaultDangerousSubstrings)

	v.SetEnvPrefix("OCTAVE_TSP")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading tool-server defaults %q: %w", overridePath, err)
		}
	}

	var d ToolServerDefaults
	if err := v.Unmarshal(&d); err != nil {
		return nil, fmt.Errorf("parsing tool-server defaults: %w", err)
	}

	// The literal deny-list substrings are always enforced regardless of an
	// override file shrinking the list; an override may only add to it.
	d.DangerousSubstrings = mergeUnique(DefaultDangerousSubstrings, d.DangerousSubstrings)

	return &d, nil
}

func mergeUnique(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, s := range append(append([]string{}, base...), extra...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
