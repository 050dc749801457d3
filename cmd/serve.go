package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/termenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/shaharia-lab/octave-core/internal/bridge"
	"github.com/shaharia-lab/octave-core/internal/cce"
	"github.com/shaharia-lab/octave-core/internal/config"
	"github.com/shaharia-lab/octave-core/internal/eventbus"
	"github.com/shaharia-lab/octave-core/internal/logger"
	"github.com/shaharia-lab/octave-core/internal/octaveerr"
	"github.com/shaharia-lab/octave-core/internal/scheduler"
	"github.com/shaharia-lab/octave-core/internal/storage"
	"github.com/shaharia-lab/octave-core/internal/tsp"
)

const octaveVersion = "0.1.0"

// NewServeCmd returns the "serve" subcommand that starts the IF: the
// loopback HTTP bridge and the stdio JSON-RPC proxy, both fronting the
// same Tool-Server Proxy, plus the CCE background compaction sweep.
func NewServeCmd(cfg *config.AppConfig) *cobra.Command {
	var bridgePort int
	var noStdio bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Octave tool-server proxy and loopback bridge",
		Long: `Start Octave's External Interface Surface: a loopback-only HTTP bridge
and (unless --no-stdio) a line-delimited stdio JSON-RPC proxy, both dispatching
into the Tool-Server Proxy. Runs the CCE compaction sweep in the background.`,
		RunE: func(c *cobra.Command, _ []string) error {
			if c.Flags().Changed("bridge-port") {
				cfg.BridgePort = bridgePort
			}

			bridgeURL := fmt.Sprintf("http://%s:%d", cfg.BridgeHost, cfg.BridgePort)
			logFile := filepath.Join(cfg.LogDir(), "system.log")
			printBanner(octaveVersion, bridgeURL, logFile)

			if err := runServe(cfg, noStdio); err != nil {
				fmt.Fprintf(os.Stderr, "An error occurred. Please check the logs at: %s\n", logFile)
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&bridgePort, "bridge-port", cfg.BridgePort, "loopback HTTP bridge port (overrides OCTAVE_BRIDGE_PORT)")
	cmd.Flags().BoolVar(&noStdio, "no-stdio", false, "do not run the stdio JSON-RPC proxy on stdin/stdout")

	return cmd
}

func runServe(cfg *config.AppConfig, noStdio bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// The legacy copy runs before anything is created under octave-data/:
	// MigrateFromFS copies nothing into a target that already holds data.
	migrateErr := migrateLegacyLayout(cfg)

	if err := ensureServeDirectories(cfg); err != nil {
		return err
	}

	sysLogger, err := logger.NewSystemLogger(cfg.LogDir(), cfg.SlogLevel())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	sysLogger.Info("octave starting",
		slog.String("version", octaveVersion),
		slog.String("data_dir", cfg.DataDir),
		slog.Int("bridge_port", cfg.BridgePort),
	)

	if migrateErr != nil {
		sysLogger.Warn("legacy layout migration failed", "error", migrateErr)
	}

	convDB, _, err := storage.NewConversationsDB(cfg.ConversationsDBPath())
	if err != nil {
		return fmt.Errorf("opening conversations database: %w", err)
	}
	defer closeDB(convDB, sysLogger, "conversations")

	memDB, _, err := storage.NewMemoryDB(cfg.MemoryDBPath())
	if err != nil {
		return fmt.Errorf("opening memory database: %w", err)
	}
	defer closeDB(memDB, sysLogger, "memory")

	convStore := storage.NewConversationStore(convDB)
	_ = storage.NewMemoryStore(memDB) // wired for project-memory reads/writes by the (excluded) IPC surface

	bus := eventbus.New(cfg.EventBusWorkers)
	defer bus.Close()

	proxy, err := buildToolServerProxy(ctx, cfg, convStore, sysLogger, bus)
	if err != nil {
		return fmt.Errorf("building tool-server proxy: %w", err)
	}
	defer proxy.StopAll()

	if err := tsp.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		sysLogger.Warn("registering TSP metrics failed", "error", err)
	}

	sweeper, err := buildSweeper(cfg, convStore, bus, sysLogger)
	if err != nil {
		return fmt.Errorf("building compaction sweeper: %w", err)
	}
	if startErr := sweeper.Start(ctx); startErr != nil {
		sysLogger.Warn("compaction sweeper failed to start", "error", startErr)
	}
	defer func() {
		if stopErr := sweeper.Stop(); stopErr != nil {
			sysLogger.Warn("compaction sweeper failed to stop cleanly", "error", stopErr)
		}
	}()

	httpBridge, err := bridge.NewServer(proxy, cfg.LogDir(), cfg.BridgeHost, cfg.BridgePort)
	if err != nil {
		return fmt.Errorf("building HTTP bridge: %w", err)
	}

	if !noStdio {
		stdioProxy := bridge.NewStdioProxy(proxy, sysLogger, os.Stdin, os.Stdout)
		go func() {
			if runErr := stdioProxy.Run(ctx); runErr != nil && ctx.Err() == nil {
				sysLogger.Warn("stdio proxy exited", "error", runErr)
			}
		}()
	}

	sysLogger.Info("server ready", "bridge_url", fmt.Sprintf("http://%s:%d", cfg.BridgeHost, cfg.BridgePort))

	return httpBridge.Run(ctx)
}

func ensureServeDirectories(cfg *config.AppConfig) error {
	for _, dir := range []string{cfg.DataDir, cfg.LogDir(), cfg.ServerLogDir(), cfg.BackupsDir()} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}

func closeDB(db *sql.DB, sysLogger *slog.Logger, name string) {
	if err := db.Close(); err != nil {
		sysLogger.Error("failed to close database", "database", name, "error", err)
	}
}

// migrateLegacyLayout copies any pre-existing circuit-data/ directory into
// the octave-data/ layout, mirroring the teacher's pre-SQLite filesystem
// migration in initDatabase. Never moves or deletes the legacy directory.
func migrateLegacyLayout(cfg *config.AppConfig) error {
	targetDir := filepath.Dir(cfg.ConversationsDBPath())
	legacyDir := cfg.LegacyDataDir()
	if !bridge.HasFSData(legacyDir) {
		return nil
	}
	return bridge.MigrateFromFS(legacyDir, targetDir)
}

// buildToolServerProxy loads the tool-server registry and layered defaults,
// constructs the shell-execute tool and the supervising Proxy, wires a
// per-server logger factory so /mcp/logs/:serverId has a concrete backing
// file, and starts every configured stdio server.
func buildToolServerProxy(
	ctx context.Context, cfg *config.AppConfig, convStore *storage.ConversationStore, sysLogger *slog.Logger,
	events eventbus.EventBus,
) (*tsp.Proxy, error) {
	registry, err := config.LoadToolServerRegistry(cfg.ToolServersFile())
	if err != nil {
		return nil, fmt.Errorf("loading tool-server registry: %w", err)
	}

	defaults, err := config.LoadToolServerDefaults(cfg.DenyListFile())
	if err != nil {
		return nil, fmt.Errorf("loading tool-server defaults: %w", err)
	}

	shellTimeout := time.Duration(cfg.ToolCallTimeoutSeconds) * time.Second
	shell := tsp.NewShellExecutor(defaults.DangerousSubstrings, shellTimeout)

	proxy := tsp.NewProxy(sysLogger, convStore, shell, 5, 10).
		WithLoggerFactory(func(serverID string) *slog.Logger {
			serverLogger, logErr := logger.NewServerLogger(cfg.LogDir(), serverID, cfg.SlogLevel())
			if logErr != nil {
				sysLogger.Warn("falling back to system logger for tool server", "server", serverID, "error", logErr)
				return sysLogger
			}
			return serverLogger
		}).
		WithEventPublisher(events)
	proxy.LoadRegistry(registry)
	proxy.StartAll(ctx)

	return proxy, nil
}

// buildSweeper wires CCE's periodic compaction sweep: on every tick it checks
// every active conversation's rolling token percentage and, above threshold,
// runs the compact protocol and persists the result.
func buildSweeper(
	cfg *config.AppConfig, convStore *storage.ConversationStore, bus eventbus.EventBus, sysLogger *slog.Logger,
) (*scheduler.Sweeper, error) {
	tok := cce.NewTokenizer()
	sweepFn := buildCompactionSweep(convStore, tok, bus, sysLogger)

	return scheduler.New(scheduler.Config{
		Interval:       cfg.CompactionSweepInterval,
		Sweep:          sweepFn,
		Logger:         sysLogger,
		EventPublisher: bus,
	})
}

// conversationCompactedEvent is published per conversation the sweep
// actually folds into a summary, distinct from the scheduler's own
// cce.sweep.* lifecycle events that bracket the whole tick.
const conversationCompactedEvent = "conversation.compacted"

// conversationCompactedPayload is conversationCompactedEvent's payload.
type conversationCompactedPayload struct {
	ConversationID string `json:"conversationId"`
}

// buildCompactionSweep returns a scheduler.SweepFunc that checks every
// active conversation and, if its token usage is above threshold, runs the
// compact protocol and replaces the summarized range with a single
// compact message.
func buildCompactionSweep(
	convStore *storage.ConversationStore, tok cce.Tokenizer, bus eventbus.EventBus, sysLogger *slog.Logger,
) scheduler.SweepFunc {
	compactor := cce.NewCompactor(tok)

	return func(ctx context.Context) (int, error) {
		conversations, err := convStore.ListActiveConversations(ctx)
		if err != nil {
			return 0, fmt.Errorf("listing active conversations: %w", err)
		}

		compacted := 0
		for _, conv := range conversations {
			ok, sweepErr := compactOneConversation(ctx, convStore, compactor, tok, conv.ID)
			if sweepErr != nil {
				sysLogger.Warn("compaction sweep: conversation failed", "conversation", conv.ID, "error", sweepErr)
				continue
			}
			if ok {
				compacted++
				bus.Publish(conversationCompactedEvent, conversationCompactedPayload{ConversationID: conv.ID})
			}
		}
		return compacted, nil
	}
}

// compactOneConversation checks one conversation's token usage and, if over
// threshold, runs and persists a compaction. Returns false (not an error) if
// the conversation was under threshold or had too few messages to compact.
func compactOneConversation(
	ctx context.Context, convStore *storage.ConversationStore, compactor *cce.Compactor, tok cce.Tokenizer, conversationID string,
) (bool, error) {
	msgs, err := convStore.ListMessages(ctx, conversationID)
	if err != nil {
		return false, fmt.Errorf("listing messages: %w", err)
	}

	candidates := make([]cce.CandidateMessage, len(msgs))
	contents := make([]string, len(msgs))
	for i, m := range msgs {
		candidates[i] = cce.CandidateMessage{ID: m.ID, Role: m.Role, Content: m.Content, Timestamp: m.Timestamp}
		contents[i] = m.Content
	}

	usage := cce.CalculateTokens(tok, contents)
	if !usage.ShouldCompact {
		return false, nil
	}

	result, err := compactor.Compact(ctx, candidates)
	if err != nil {
		if octaveerr.Is(err, octaveerr.KindTooFewMessages) {
			return false, nil
		}
		return false, err
	}

	if err := applyCompactResult(ctx, convStore, conversationID, msgs, result); err != nil {
		return false, err
	}
	return true, nil
}

// applyCompactResult writes the generated summary as a single new message
// and deletes every original message the smart-selection step sent to the
// summarizer, leaving only the kept (bootstrap + recent + critical/high)
// messages plus the new summary in place.
func applyCompactResult(
	ctx context.Context, convStore *storage.ConversationStore, conversationID string,
	original []storage.Message, result *cce.CompactResult,
) error {
	kept := make(map[string]bool, len(result.Kept))
	for _, m := range result.Kept {
		kept[m.ID] = true
	}

	var summaryTimestamp int64
	for _, m := range original {
		if !kept[m.ID] {
			summaryTimestamp = m.Timestamp
			break
		}
	}

	summaryMsg := storage.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           storage.RoleAssistant,
		Content:        result.Summary,
		Metadata:       fmt.Sprintf(`{"compacted":true,"summarizedCount":%d,"tokensBefore":%d,"tokensAfter":%d}`, result.SummarizedCount, result.TokensBefore, result.TokensAfter),
		Timestamp:      summaryTimestamp,
	}
	summaryBlock := storage.Block{
		ID:      uuid.NewString(),
		Type:    storage.BlockText,
		Content: result.Summary,
		Order:   0,
	}
	if err := convStore.SaveMessageWithBlocks(ctx, summaryMsg, []storage.Block{summaryBlock}); err != nil {
		return fmt.Errorf("saving compact summary message: %w", err)
	}

	for _, m := range original {
		if kept[m.ID] {
			continue
		}
		if err := convStore.DeleteMessage(ctx, m.ID); err != nil && !octaveerr.Is(err, octaveerr.KindNotFound) {
			return fmt.Errorf("deleting summarized message %s: %w", m.ID, err)
		}
	}
	return nil
}

// printBanner writes the startup banner to stdout. It is the only output
// visible in the terminal during normal operation; structured logs go to
// the log file instead.
const (
	githubRepo  = "https://github.com/shaharia-lab/octave-core"
	description = "A local runtime that brokers an AI CLI's tool calls and bounds its context"
)

func printBanner(version, bridgeURL, logFile string) {
	if termenv.ColorProfile() == termenv.Ascii {
		printPlainBanner(version, bridgeURL, logFile)
		return
	}
	printFancyBanner(version, bridgeURL, logFile)
}

func printFancyBanner(version, bridgeURL, logFile string) {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")). // bright blue
		Render(`
 ██████╗  ██████╗████████╗ █████╗ ██╗   ██╗███████╗
██╔═══██╗██╔════╝╚══██╔══╝██╔══██╗██║   ██║██╔════╝
██║   ██║██║        ██║   ███████║██║   ██║█████╗
██║   ██║██║        ██║   ██╔══██║╚██╗ ██╔╝██╔══╝
╚██████╔╝╚██████╗   ██║   ██║  ██║ ╚████╔╝ ███████╗
 ╚═════╝  ╚═════╝   ╚═╝   ╚═╝  ╚═╝  ╚═══╝  ╚══════╝
`)

	desc := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")). // muted gray
		Italic(true).
		Render(description)

	keyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")). // dark gray
		Width(10)

	valStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("15")) // bright white

	urlStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("14")). // bright cyan
		Underline(true)

	borderStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		PaddingLeft(1).
		PaddingRight(2)

	rows := []string{
		keyStyle.Render("Version") + valStyle.Render(version),
		keyStyle.Render("Bridge") + urlStyle.Render(bridgeURL),
		keyStyle.Render("Logs") + valStyle.Render(logFile),
		keyStyle.Render("GitHub") + urlStyle.Render(githubRepo),
	}

	table := borderStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))

	fmt.Println(logo)
	fmt.Println(desc)
	fmt.Println()
	fmt.Println(table)
	fmt.Println()
}

func printPlainBanner(version, bridgeURL, logFile string) {
	fmt.Println("Octave")
	fmt.Println(description)
	fmt.Println()
	fmt.Printf("  Version  %s\n", version)
	fmt.Printf("  Bridge   %s\n", bridgeURL)
	fmt.Printf("  Logs     %s\n", logFile)
	fmt.Printf("  GitHub   %s\n", githubRepo)
	fmt.Println()
}
