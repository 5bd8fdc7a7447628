package cmd

import (
	"github.com/spf13/cobra"

	"github.com/boletinlabs/dirc/internal/logging"
	"github.com/boletinlabs/dirc/internal/mcp"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the corpus over MCP (stdio)",
		Long: `Serve exposes search, ingestion, verification, repair, and corpus
statistics as MCP tools over stdio, for AI clients.

stdout carries JSON-RPC exclusively; all logging goes to the log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout belongs to the protocol from here on.
			level := "info"
			if debugMode {
				level = "debug"
			}
			cleanup, err := logging.SetupMCPMode(level)
			if err == nil {
				defer cleanup()
			}

			app, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			server, err := mcp.NewServer(app.engine, app.orchestrator, app.pipeline, nil)
			if err != nil {
				return err
			}
			return server.Serve(cmd.Context())
		},
	}
	return cmd
}
