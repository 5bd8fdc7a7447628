// Package cmd provides the CLI commands for dirc.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/boletinlabs/dirc/internal/logging"
	"github.com/boletinlabs/dirc/pkg/version"
)

// Flags shared by every command.
var (
	configPath string
	dataDir    string
	jsonOutput bool
	debugMode  bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the dirc CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dirc",
		Short: "Gazette ingestion and hybrid retrieval",
		Long: `dirc ingests official-gazette PDFs into three mutually consistent
indexes (relational chunks, BM25 full text, vectors) and answers
semantic, keyword, and hybrid queries over them.

Start with 'dirc ingest boletin.pdf', then 'dirc search "licitación"'.`,
		Version:      version.Version,
		SilenceUsage: true,
		// Errors are rendered by Execute so structured ones keep their
		// code and suggestion.
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("dirc version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: ./dirc.yaml, then user config)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory override")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Force JSON output")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newRepairCmd())
	cmd.AddCommand(newPurgeCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	// The serve command owns its own logging: stdout belongs to the
	// MCP transport there.
	if cmd.Name() == "serve" {
		return nil
	}

	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if debugMode {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Logging must never block the actual work.
		fmt.Fprintf(os.Stderr, "warning: file logging disabled: %v\n", err)
		return nil
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// Execute runs the root command and renders its error, if any.
func Execute(ctx context.Context) error {
	err := NewRootCmd().ExecuteContext(ctx)
	renderError(os.Stderr, err)
	return err
}
