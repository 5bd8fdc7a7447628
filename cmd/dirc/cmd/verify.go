package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boletinlabs/dirc/internal/index"
)

func newVerifyCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "verify [document-id]",
		Short: "Check cross-index consistency",
		Long: `Verify checks that a document's chunks agree across the relational
store, the full-text index, and the vector store: equal counts, a
gapless chunk sequence, and one vector per chunk. Read-only; use
'dirc repair' to fix an inconsistent document.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("a document id or --all is required")
			}

			app, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			var reports []*index.VerifyReport
			if all {
				reports, err = app.orchestrator.VerifyAll(cmd.Context())
			} else {
				var report *index.VerifyReport
				report, err = app.orchestrator.Verify(cmd.Context(), args[0])
				reports = []*index.VerifyReport{report}
			}
			if err != nil {
				return err
			}

			if useJSON() {
				if err := emitJSON(cmd.OutOrStdout(), reports); err != nil {
					return err
				}
			} else {
				for _, r := range reports {
					status := "consistent"
					if !r.Consistent {
						status = "INCONSISTENT"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (sql=%d fts=%d vectors=%d)\n",
						r.DocumentID, status, r.SQLChunks, r.FTSChunks, r.VectorChunks)
					for _, issue := range r.Issues {
						fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", issue)
					}
				}
			}

			var bad []string
			for _, r := range reports {
				if !r.Consistent {
					bad = append(bad, r.DocumentID)
				}
			}
			if len(bad) > 0 {
				return fmt.Errorf("inconsistent documents: %s", strings.Join(bad, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Verify every indexed document")
	return cmd
}
