package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/shaharia-lab/octave-core/internal/tsp"
)

// StdioProxy implements the stdio JSON-RPC transport: one request per
// line in, one response per line out, dispatching into the same proxy the
// HTTP bridge uses. Malformed lines are dropped silently — there is no id
// to correlate an error response to, so nothing useful could be written
// back for them.
type StdioProxy struct {
	proxy  Dispatcher
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
}

// NewStdioProxy builds a stdio proxy reading requests from in and writing
// responses to out.
func NewStdioProxy(proxy Dispatcher, logger *slog.Logger, in io.Reader, out io.Writer) *StdioProxy {
	return &StdioProxy{proxy: proxy, logger: logger, in: in, out: out}
}

// Run reads one JSON-RPC request per line from in until EOF or ctx is
// cancelled, dispatches each through the proxy, and writes one response
// per line to out. Unknown methods produce the literal JSON-RPC
// "method not found" error shape; internal failures never leak error
// text beyond the generic internal-error message TSP's dispatcher already
// enforces.
func (p *StdioProxy) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(p.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req tsp.Request
		if err := json.Unmarshal(line, &req); err != nil {
			p.logger.Warn("stdio proxy: dropping malformed line", "error", err)
			continue
		}

		resp := p.proxy.Dispatch(ctx, req)
		if resp.JSONRPC == "" && resp.Result == nil && resp.Error == nil {
			// Notification; no response expected.
			continue
		}

		encoded, err := json.Marshal(resp)
		if err != nil {
			p.logger.Warn("stdio proxy: dropping unencodable response", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(p.out, "%s\n", encoded); err != nil {
			return fmt.Errorf("writing stdio response: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdio request: %w", err)
	}
	return nil
}
