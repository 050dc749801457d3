package tsp_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/octave-core/internal/config"
	"github.com/shaharia-lab/octave-core/internal/tsp"
)

// recordingPublisher collects every event published to it, safe for
// concurrent use since StartAll fans out across goroutines.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingPublisher) Publish(eventType string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recordingPublisher) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func TestProxy_WithEventPublisher_PublishesStatusChangeOnStart(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "tool-servers.yaml")
	require.NoError(t, os.WriteFile(fp, []byte(`
broken:
  transport: stdio
  command: this-binary-does-not-exist-anywhere
`), 0o600))

	registry, err := config.LoadToolServerRegistry(fp)
	require.NoError(t, err)

	shell := tsp.NewShellExecutor(nil, 5*time.Second)
	publisher := &recordingPublisher{}

	proxy := tsp.NewProxy(discardLogger(), nil, shell, 1000, 10).WithEventPublisher(publisher)
	proxy.LoadRegistry(registry)
	proxy.StartAll(context.Background())
	defer proxy.StopAll()

	assert.GreaterOrEqual(t, publisher.count(tsp.EventToolServerStatusChanged), 1)

	statuses := proxy.ServerStatuses()
	require.Len(t, statuses, 1)
	for _, st := range statuses {
		assert.Equal(t, tsp.StatusError, st)
	}
}

func TestProxy_NoEventPublisher_DoesNotPanic(t *testing.T) {
	shell := tsp.NewShellExecutor(nil, 5*time.Second)
	proxy := tsp.NewProxy(discardLogger(), nil, shell, 1000, 10)

	registry, err := config.LoadToolServerRegistry("/nonexistent/tool-servers.yaml")
	require.NoError(t, err)
	proxy.LoadRegistry(registry)
	proxy.StartAll(context.Background())
	proxy.StopAll()
}
