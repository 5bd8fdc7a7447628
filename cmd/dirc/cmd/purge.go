package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPurgeCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "purge <document-id>",
		Short: "Delete a document from every index",
		Long: `Purge removes a document and all its chunks: the relational rows,
the full-text entries (via the cascade), and the vectors. This is the
administrative delete; there is no undo.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("purge is irreversible; re-run with --force to confirm")
			}

			app, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			if err := app.orchestrator.DeleteDocument(cmd.Context(), args[0]); err != nil {
				return err
			}

			// Confirm nothing survived in any of the three indexes.
			report, err := app.orchestrator.Verify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if report.SQLChunks+report.FTSChunks+report.VectorChunks != 0 {
				return fmt.Errorf("purge left residue: sql=%d fts=%d vectors=%d",
					report.SQLChunks, report.FTSChunks, report.VectorChunks)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm the irreversible delete")
	return cmd
}
