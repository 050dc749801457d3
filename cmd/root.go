package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/octave-core/internal/config"
)

// NewRootCmd returns the root cobra command wired with the provided AppConfig.
func NewRootCmd(cfg *config.AppConfig) *cobra.Command {
	root := &cobra.Command{
		Use:   "octave",
		Short: "Octave — local coding-assistant runtime",
		Long: "Octave brokers an external AI CLI's tool calls, persists conversational " +
			"state, ingests streamed assistant output into typed blocks, and bounds " +
			"the AI's context window through token accounting and compaction.",
	}
	return root
}

// Execute is the entrypoint called from main. It loads config, wires the
// command tree, and runs the root command.
func Execute() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	root := NewRootCmd(cfg)
	root.AddCommand(NewServeCmd(cfg))
	root.AddCommand(NewMigrateCmd(cfg))
	root.AddCommand(NewDoctorCmd(cfg))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
