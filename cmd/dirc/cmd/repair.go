package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRepairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repair <document-id>",
		Short: "Rebuild a document's derived indexes",
		Long: `Repair takes the relational chunk rows as source of truth: it
regenerates the full-text entries and re-embeds every chunk with the
currently configured model. This also migrates a document after an
embedding model change.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			report, err := app.orchestrator.Repair(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if useJSON() {
				return emitJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks re-embedded, fts rebuilt\n",
				report.DocumentID, report.ChunksReembedded)
			return nil
		},
	}
	return cmd
}
