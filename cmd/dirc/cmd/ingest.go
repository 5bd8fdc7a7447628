package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boletinlabs/dirc/internal/pipeline"
)

func newIngestCmd() *cobra.Command {
	var (
		chunkSize      int
		chunkOverlap   int
		skipCleaning   bool
		skipEnrichment bool
		vectorOnly     bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <pdf>...",
		Short: "Ingest gazette PDFs into the triple index",
		Long: `Ingest runs each PDF through the full pipeline: extract, clean,
chunk, enrich, and index into the relational store, the full-text
index, and the vector store in one consistent write.

A failed file reports its terminal stage and error code; the rest of
the batch continues.

Examples:
  dirc ingest boletin-2024-05.pdf
  dirc ingest drop/*.pdf --chunk-size 800
  dirc ingest legacy.pdf --vector-only`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			opts := pipeline.Options{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
			}
			if cmd.Flags().Changed("skip-cleaning") {
				opts.SkipCleaning = &skipCleaning
			}
			if cmd.Flags().Changed("skip-enrichment") {
				opts.SkipEnrichment = &skipEnrichment
			}
			if cmd.Flags().Changed("vector-only") {
				triple := !vectorOnly
				opts.UseTripleIndexing = &triple
			}

			responses := app.pipeline.ProcessBatch(cmd.Context(), args, opts)

			if useJSON() {
				if err := emitJSON(cmd.OutOrStdout(), responses); err != nil {
					return err
				}
			} else {
				for _, resp := range responses {
					if resp.Success {
						fmt.Fprintf(cmd.OutOrStdout(), "ok   %s → %s (%d chunks, %dms)\n",
							resp.FileID, resp.DocumentID, resp.ChunksIndexed, resp.DurationMS)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s at %s: %s\n",
							resp.FileID, resp.TerminalStage, resp.Error)
					}
				}
			}

			for _, resp := range responses {
				if !resp.Success {
					return fmt.Errorf("%d of %d files failed", countFailed(responses), len(responses))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Chunk size in characters (default from config)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Chunk overlap in characters (default from config)")
	cmd.Flags().BoolVar(&skipCleaning, "skip-cleaning", false, "Skip text normalization")
	cmd.Flags().BoolVar(&skipEnrichment, "skip-enrichment", false, "Skip metadata extraction")
	cmd.Flags().BoolVar(&vectorOnly, "vector-only", false, "Write only the vector index (deprecated legacy mode)")

	return cmd
}

func countFailed(responses []*pipeline.Response) int {
	n := 0
	for _, r := range responses {
		if !r.Success {
			n++
		}
	}
	return n
}
