package tsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/shaharia-lab/octave-core/internal/config"
)

// Status is one state in a tool server's supervision lifecycle.
type Status string

const (
	StatusInstalled Status = "installed"
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusStopped   Status = "stopped"
	StatusError     Status = "error"
)

// ToolInfo is one tool a server advertised via initialize/tools/list.
type ToolInfo struct {
	ServerID    string          `json:"serverId"`
	ServerName  string          `json:"serverName"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// maxRestartAttempts bounds exponential backoff before a crashed server is
// left in StatusError for good.
const maxRestartAttempts = 5

// Server supervises one stdio child process implementing the MCP protocol.
// Its zero value is not usable; construct with newServer.
type Server struct {
	id     string
	name   string
	spec   config.ToolServerSpec
	logger *slog.Logger

	mu            sync.Mutex
	status        Status
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	pending       map[string]chan Response
	tools         []ToolInfo
	restartCount  int
	lastError     error
	startedAt     time.Time
	limiter       *Limiter
	notifyFailure func(serverID string)
	onStatus      func(serverID string, status Status)
}

// NormalizeServerID derives a tool server's opaque id from its configured
// name: strip a leading "@" scope marker, rewrite "/" to "-".
func NormalizeServerID(name string) string {
	id := strings.TrimPrefix(name, "@")
	return strings.ReplaceAll(id, "/", "-")
}

func newServer(name string, spec config.ToolServerSpec, logger *slog.Logger, limiter *Limiter) *Server {
	return &Server{
		id:      NormalizeServerID(name),
		name:    name,
		spec:    spec,
		logger:  logger,
		status:  StatusInstalled,
		pending: make(map[string]chan Response),
		limiter: limiter,
	}
}

// ID returns the server's normalized opaque id.
func (s *Server) ID() string { return s.id }

// Name returns the server's configured (pre-normalization) name.
func (s *Server) Name() string { return s.name }

// StartedAt returns the time the server last entered StatusRunning, or the
// zero time if it has never successfully started.
func (s *Server) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// LastError returns the most recently observed crash/start error, if any.
func (s *Server) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Status returns the server's current lifecycle state.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetOnStatusChange installs a callback invoked every time the server's
// lifecycle status changes, after the new status is already visible to
// Status(). Used by Proxy to publish tool_server.status_changed events.
func (s *Server) SetOnStatusChange(f func(serverID string, status Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStatus = f
}

// Tools returns the tools most recently advertised by this server.
func (s *Server) Tools() []ToolInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ToolInfo, len(s.tools))
	copy(out, s.tools)
	return out
}

func (s *Server) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	onStatus := s.onStatus
	s.mu.Unlock()
	if onStatus != nil {
		onStatus(s.id, st)
	}
}

// Start spawns the child process and blocks until initialize succeeds, the
// process exits, or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.setStatus(StatusStarting)

	cmd := exec.CommandContext(ctx, s.spec.Command, s.spec.Args...) //nolint:gosec // admin-configured tool server
	for k, v := range s.spec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.setStatus(StatusError)
		return fmt.Errorf("tool server %s: stdin pipe: %w", s.id, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.setStatus(StatusError)
		return fmt.Errorf("tool server %s: stdout pipe: %w", s.id, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.setStatus(StatusError)
		return fmt.Errorf("tool server %s: stderr pipe: %w", s.id, err)
	}

	if err := cmd.Start(); err != nil {
		s.setStatus(StatusError)
		return fmt.Errorf("tool server %s: start: %w", s.id, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.mu.Unlock()

	go s.drainStderr(stderr)
	go s.readLoop(stdout)

	if err := s.initialize(ctx); err != nil {
		s.setStatus(StatusError)
		return err
	}

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.setStatus(StatusRunning)

	go s.waitAndSupervise(ctx)

	return nil
}

func (s *Server) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug("tool server stderr", "server", s.id, "line", scanner.Text())
	}
}

// readLoop parses line-delimited JSON-RPC responses from stdout. A
// malformed line is logged and dropped, never fatal to the server.
func (s *Server) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 8*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			s.logger.Warn("tool server sent malformed line", "server", s.id, "error", err)
			continue
		}
		s.dispatchResponse(resp)
	}
}

func (s *Server) dispatchResponse(resp Response) {
	key := string(resp.ID)
	s.mu.Lock()
	ch, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	s.mu.Unlock()
	if ok {
		ch <- resp
	}
}

func (s *Server) waitAndSupervise(ctx context.Context) {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()

	err := cmd.Wait()

	s.mu.Lock()
	s.lastError = err
	failFast := s.status == StatusStopped
	s.mu.Unlock()

	if failFast {
		s.failPending()
		return
	}

	s.setStatus(StatusError)
	s.failPending()

	if s.notifyFailure != nil {
		s.notifyFailure(s.id)
	}

	if !s.spec.AutoRestart {
		return
	}

	s.mu.Lock()
	s.restartCount++
	attempt := s.restartCount
	s.mu.Unlock()

	if attempt > maxRestartAttempts {
		s.logger.Error("tool server exceeded restart attempts, leaving in error", "server", s.id, "attempts", attempt)
		return
	}

	backoff := time.Duration(1<<uint(attempt-1)) * time.Second
	s.logger.Warn("tool server crashed, restarting", "server", s.id, "attempt", attempt, "backoff", backoff)

	select {
	case <-ctx.Done():
		return
	case <-time.After(backoff):
	}

	if err := s.Start(ctx); err != nil {
		s.logger.Error("tool server restart failed", "server", s.id, "error", err)
	}
}

// failPending resolves every in-flight call with a "server unavailable"
// JSON-RPC error once the server leaves Running (on a crash or a Stop).
func (s *Server) failPending() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]chan Response)
	s.mu.Unlock()

	for _, ch := range pending {
		ch <- errorResponse(nil, CodeInternalError, "server unavailable")
	}
}

// Stop terminates the child process without triggering auto-restart.
func (s *Server) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	stdin := s.stdin
	s.mu.Unlock()
	s.setStatus(StatusStopped)

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		return cmd.Process.Kill()
	}
	return nil
}

// call sends a JSON-RPC request and waits for its matching response, or for
// deadline (derived from ctx) to elapse, or for the server to fail.
func (s *Server) call(ctx context.Context, method string, params any) (Response, error) {
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return Response{}, fmt.Errorf("tool server %s is not running", s.id)
	}
	stdin := s.stdin
	s.mu.Unlock()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, s.id); err != nil {
			return Response{}, err
		}
	}

	id := fmt.Sprintf("%d", time.Now().UnixNano())
	idRaw, _ := json.Marshal(id)

	var paramsRaw json.RawMessage
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return Response{}, err
		}
		paramsRaw = raw
	}

	req := Request{JSONRPC: "2.0", ID: idRaw, Method: method, Params: paramsRaw}
	line, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}

	ch := make(chan Response, 1)
	s.mu.Lock()
	s.pending[string(idRaw)] = ch
	s.mu.Unlock()

	if _, err := stdin.Write(append(line, '\n')); err != nil {
		s.mu.Lock()
		delete(s.pending, string(idRaw))
		s.mu.Unlock()
		return Response{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, string(idRaw))
		s.mu.Unlock()
		return Response{}, ctx.Err()
	}
}

func (s *Server) initialize(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := s.call(initCtx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]string{"name": "octave-tsp", "version": "1"},
	})
	if err != nil {
		return fmt.Errorf("tool server %s: initialize: %w", s.id, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("tool server %s: initialize error: %s", s.id, resp.Error.Message)
	}

	listResp, err := s.call(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("tool server %s: tools/list: %w", s.id, err)
	}
	if listResp.Error != nil {
		return fmt.Errorf("tool server %s: tools/list error: %s", s.id, listResp.Error.Message)
	}

	var result struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(listResp.Result, &result); err != nil {
		return fmt.Errorf("tool server %s: parsing tools/list: %w", s.id, err)
	}

	tools := make([]ToolInfo, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, ToolInfo{
			ServerID:    s.id,
			ServerName:  s.name,
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	s.mu.Lock()
	s.tools = tools
	s.mu.Unlock()

	return nil
}
