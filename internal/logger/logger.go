// Package logger provides structured slog loggers for system-wide and
// per-tool-server logging. All logs are written in JSON format.
//
// Log files are organized as:
//
//	<logDir>/system.log           — application-level events
//	<logDir>/servers/<id>.log     — per-tool-server lifecycle and call events
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// NewSystemLogger creates a JSON slog.Logger that writes to <logDir>/system.log.
// The directory is created if it does not exist.
func NewSystemLogger(logDir string, level slog.Level) (*slog.Logger, error) {
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return nil, fmt.Errorf("creating log directory %q: %w", logDir, err)
	}

	f, err := openLogFile(filepath.Join(logDir, "system.log"))
	if err != nil {
		return nil, err
	}

	handler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}

// NewServerLogger creates a JSON slog.Logger that writes to
// <logDir>/servers/<serverID>.log. The servers sub-directory is created if
// it does not exist. TailLines (see tail.go) reads the same file back
// for the /mcp/logs/:serverId bridge endpoint.
func NewServerLogger(logDir string, serverID string, level slog.Level) (*slog.Logger, error) {
	serversDir := filepath.Join(logDir, "servers")
	if err := os.MkdirAll(serversDir, 0750); err != nil {
		return nil, fmt.Errorf("creating servers log directory %q: %w", serversDir, err)
	}

	f, err := openLogFile(ServerLogPath(logDir, serverID))
	if err != nil {
		return nil, err
	}

	handler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("server_id", serverID), nil
}

// ServerLogPath returns the path to a tool server's log file without opening it.
func ServerLogPath(logDir, serverID string) string {
	return filepath.Join(logDir, "servers", serverID+".log")
}

// openLogFile opens (or creates) a log file with append semantics.
func openLogFile(path string) (*os.File, error) {
	//nolint:gosec // path is constructed from admin-configured log dir
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening log file %q: %w", path, err)
	}
	return f, nil
}
