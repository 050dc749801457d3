// Package bridge implements the External Interfaces layer: a loopback-only
// HTTP bridge and a line-delimited stdio JSON-RPC proxy, both fronting the
// same Tool-Server Proxy dispatcher.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shaharia-lab/octave-core/internal/logger"
	"github.com/shaharia-lab/octave-core/internal/tsp"
)

// Dispatcher is the subset of *tsp.Proxy the bridge needs. Declared here so
// both the HTTP and stdio transports can be tested against a fake.
type Dispatcher interface {
	Dispatch(ctx context.Context, req tsp.Request) tsp.Response
	AllTools() []tsp.ToolInfo
	ServerDetails() map[string]tsp.ServerDetail
}

// Server is the loopback HTTP bridge described in spec.md §6.
type Server struct {
	proxy      Dispatcher
	logDir     string
	httpServer *http.Server
}

// NewServer builds the HTTP bridge bound to host:port. It refuses to
// construct a server bound to a non-loopback interface — the bridge is an
// internal, same-host-only surface.
func NewServer(proxy Dispatcher, logDir, host string, port int) (*Server, error) {
	if !isLoopback(host) {
		return nil, fmt.Errorf("bridge must bind to a loopback address, got %q", host)
	}

	s := &Server{proxy: proxy, logDir: logDir}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", s.handleHealth)
	r.Get("/mcp/tools", s.handleMCPTools)
	r.Post("/mcp/call", s.handleMCPCall)
	r.Get("/mcp/status", s.handleMCPStatus)
	r.Get("/mcp/logs/{serverId}", s.handleMCPLogs)

	s.httpServer = &http.Server{
		Addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		Handler: r,
	}

	return s, nil
}

// isLoopback reports whether host is a loopback address or "localhost".
func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Handler returns the bridge's http.Handler, for use in tests that want to
// drive it via httptest without binding a real socket.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleMCPTools(w http.ResponseWriter, _ *http.Request) {
	tools := s.proxy.AllTools()
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"name":         t.Name,
			"description":  t.Description,
			"inputSchema":  t.InputSchema,
			"_serverId":    t.ServerID,
			"_serverName":  t.ServerName,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

type mcpCallBody struct {
	ToolName  string          `json:"toolName"`
	Arguments json.RawMessage `json:"arguments"`
	ServerID  string          `json:"serverId,omitempty"`
}

func (s *Server) handleMCPCall(w http.ResponseWriter, r *http.Request) {
	var body mcpCallBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params, _ := json.Marshal(map[string]any{
		"name":      body.ToolName,
		"arguments": body.Arguments,
	})
	req := tsp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`"bridge-http"`),
		Method:  "tools/call",
		Params:  params,
	}

	resp := s.proxy.Dispatch(r.Context(), req)
	if resp.Error != nil {
		status := http.StatusInternalServerError
		if resp.Error.Code == tsp.CodeMethodNotFound {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": resp.Error.Message})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Result)
}

func (s *Server) handleMCPStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.proxy.ServerDetails())
}

func (s *Server) handleMCPLogs(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "serverId")
	lines := 100
	if raw := r.URL.Query().Get("lines"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			lines = n
		}
	}

	logPath := logger.ServerLogPath(s.logDir, serverID)
	out, err := logger.TailLines(logPath, lines)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read log"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
