package tsp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaharia-lab/octave-core/internal/config"
	"github.com/shaharia-lab/octave-core/internal/storage"
)

// EventPublisher allows the Proxy to emit lifecycle events without
// depending on a concrete event bus implementation. Satisfied by
// *eventbus.inMemoryBus via its exported EventBus interface.
type EventPublisher interface {
	Publish(eventType string, payload any)
}

// EventToolServerStatusChanged is published every time a supervised
// server's lifecycle status transitions.
const EventToolServerStatusChanged = "tool_server.status_changed"

// ToolServerStatusChangedPayload is EventToolServerStatusChanged's payload:
// the supervised server's id and the status it just transitioned into.
type ToolServerStatusChangedPayload struct {
	ServerID string `json:"serverId"`
	Status   Status `json:"status"`
}

// Proxy is the Tool-Server Proxy: it owns every configured stdio tool
// server's supervised process, the in-process shell_execute tool, and
// dispatches JSON-RPC requests from the AI CLI across both.
type Proxy struct {
	logger        *slog.Logger
	calls         CallRecorder
	shell         *ShellExecutor
	limiter       *Limiter
	loggerFactory func(serverID string) *slog.Logger
	events        EventPublisher

	mu      sync.RWMutex
	servers map[string]*Server
}

// CallRecorder persists MCPCall rows. Satisfied by *storage.ConversationStore.
type CallRecorder interface {
	RecordMCPCallPending(ctx context.Context, callID, serverID, serverName, method, toolName, requestParams string) (int64, error)
	CompleteMCPCall(ctx context.Context, callID string, status storage.MCPCallStatus, durationMs int64, result, callErr *string) error
}

// NewProxy constructs a Proxy with no servers started yet; call LoadRegistry
// then StartAll (or Start per server) to bring tool servers up.
func NewProxy(logger *slog.Logger, calls CallRecorder, shell *ShellExecutor, ratePerSecond float64, burst int) *Proxy {
	return &Proxy{
		logger:  logger,
		calls:   calls,
		shell:   shell,
		limiter: NewLimiter(ratePerSecond, burst),
		servers: make(map[string]*Server),
	}
}

// WithLoggerFactory installs a per-server logger factory, so each supervised
// tool server writes to its own log file (<logDir>/servers/<id>.log) instead
// of sharing the process-wide system logger. Used by /mcp/logs/:serverId.
func (p *Proxy) WithLoggerFactory(f func(serverID string) *slog.Logger) *Proxy {
	p.loggerFactory = f
	return p
}

// WithEventPublisher installs an event bus that receives a
// tool_server.status_changed event on every supervised server's status
// transition.
func (p *Proxy) WithEventPublisher(events EventPublisher) *Proxy {
	p.events = events
	return p
}

// LoadRegistry registers every stdio-transport entry in reg as a supervised
// Server. HTTP/SSE entries describe remote servers the proxy does not spawn
// and are skipped here.
func (p *Proxy) LoadRegistry(reg *config.ToolServerRegistry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, spec := range reg.All() {
		if spec.Transport != config.TransportStdio {
			continue
		}
		id := NormalizeServerID(name)
		serverLogger := p.logger
		if p.loggerFactory != nil {
			serverLogger = p.loggerFactory(id)
		}
		srv := newServer(name, spec, serverLogger, p.limiter)
		srv.SetOnStatusChange(p.publishStatusChange)
		p.servers[srv.ID()] = srv
	}
}

// publishStatusChange forwards one server's status transition to the
// installed event bus, if any. Safe to call with p.events unset.
func (p *Proxy) publishStatusChange(serverID string, status Status) {
	if p.events == nil {
		return
	}
	p.events.Publish(EventToolServerStatusChanged, ToolServerStatusChangedPayload{
		ServerID: serverID,
		Status:   status,
	})
}

// StartAll starts every loaded server concurrently, logging (not failing)
// individual start errors so one bad server does not block the others.
func (p *Proxy) StartAll(ctx context.Context) {
	p.mu.RLock()
	servers := make([]*Server, 0, len(p.servers))
	for _, s := range p.servers {
		servers = append(servers, s)
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(s *Server) {
			defer wg.Done()
			if err := s.Start(ctx); err != nil {
				p.logger.Error("tool server failed to start", "server", s.ID(), "error", err)
			} else {
				serversRunning.Inc()
			}
		}(s)
	}
	wg.Wait()
}

// StopAll stops every supervised server.
func (p *Proxy) StopAll() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.servers {
		if s.Status() == StatusRunning {
			serversRunning.Dec()
		}
		_ = s.Stop()
	}
}

// serverForTool returns the server owning toolName, or an error if no server
// advertises it.
func (p *Proxy) serverForTool(toolName string) (*Server, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.servers {
		for _, t := range s.Tools() {
			if t.Name == toolName {
				return s, nil
			}
		}
	}
	return nil, fmt.Errorf("no tool server advertises %q", toolName)
}

// AllTools returns the union of every server's advertised tools.
func (p *Proxy) AllTools() []ToolInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []ToolInfo
	for _, s := range p.servers {
		out = append(out, s.Tools()...)
	}
	return out
}

// ServerStatuses returns every supervised server's id and current status.
func (p *Proxy) ServerStatuses() map[string]Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]Status, len(p.servers))
	for id, s := range p.servers {
		out[id] = s.Status()
	}
	return out
}

// ServerDetail is one server's entry in the /mcp/status bridge response.
type ServerDetail struct {
	ServerID  string `json:"serverId"`
	Name      string `json:"name"`
	Status    Status `json:"status"`
	ToolCount int    `json:"toolCount"`
	UptimeMs  int64  `json:"uptimeMs"`
	Error     string `json:"error,omitempty"`
}

// ServerDetails returns every supervised server's status, uptime, tool
// count, and last error, keyed by server id.
func (p *Proxy) ServerDetails() map[string]ServerDetail {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]ServerDetail, len(p.servers))
	for id, s := range p.servers {
		detail := ServerDetail{
			ServerID:  id,
			Name:      s.Name(),
			Status:    s.Status(),
			ToolCount: len(s.Tools()),
		}
		if started := s.StartedAt(); !started.IsZero() && s.Status() == StatusRunning {
			detail.UptimeMs = time.Since(started).Milliseconds()
		}
		if lastErr := s.LastError(); lastErr != nil {
			detail.Error = lastErr.Error()
		}
		out[id] = detail
	}
	return out
}
