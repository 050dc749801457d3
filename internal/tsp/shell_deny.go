package tsp

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/shaharia-lab/octave-core/internal/octaveerr"
)

// LocalShellToolName is the fully-qualified local tool TSP exposes alongside
// its proxied child-process tools.
const LocalShellToolName = "shell_execute"

// ShellExecutor runs ad-hoc shell commands for the shell_execute local
// tool, refusing anything matching a configured dangerous substring.
type ShellExecutor struct {
	dangerousSubstrings []string
	timeout             time.Duration
}

// NewShellExecutor builds a ShellExecutor enforcing dangerousSubstrings.
func NewShellExecutor(dangerousSubstrings []string, timeout time.Duration) *ShellExecutor {
	return &ShellExecutor{dangerousSubstrings: dangerousSubstrings, timeout: timeout}
}

// IsDangerous reports whether command contains any configured dangerous
// substring, matched case-sensitively and literally (no shell parsing).
func (e *ShellExecutor) IsDangerous(command string) bool {
	for _, s := range e.dangerousSubstrings {
		if strings.Contains(command, s) {
			return true
		}
	}
	return false
}

// ShellResult is shell_execute's successful tool output.
type ShellResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Run executes command via "sh -c", refusing it up front if it matches the
// deny-list. The deny-list check happens before any process is spawned.
func (e *ShellExecutor) Run(ctx context.Context, command string) (*ShellResult, error) {
	if e.IsDangerous(command) {
		return nil, octaveerr.New("shell_execute", octaveerr.KindDangerousCommand, nil)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command) //nolint:gosec // deny-listed, user-initiated
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, octaveerr.Wrap("shell_execute", octaveerr.KindModelError, err)
		}
	}

	return &ShellResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
}
