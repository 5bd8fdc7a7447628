package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// statsOutput is the JSON shape of 'dirc stats'.
type statsOutput struct {
	Documents      int            `json:"documents"`
	Chunks         int            `json:"chunks"`
	IndexedChunks  int            `json:"indexed_chunks"`
	Vectors        int            `json:"vectors"`
	SectionCounts  map[string]int `json:"section_counts,omitempty"`
	EmbeddingModel string         `json:"embedding_model,omitempty"`
	DBSizeBytes    int64          `json:"db_size_bytes"`
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show corpus statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			stats, vectors, err := app.orchestrator.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := statsOutput{
				Documents:      stats.Documents,
				Chunks:         stats.Chunks,
				IndexedChunks:  stats.IndexedChunks,
				Vectors:        vectors,
				SectionCounts:  stats.SectionCounts,
				EmbeddingModel: stats.EmbeddingModel,
				DBSizeBytes:    stats.DBSizeBytes,
			}

			if useJSON() {
				return emitJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "documents:       %d\n", out.Documents)
			fmt.Fprintf(w, "chunks:          %d (%d indexed)\n", out.Chunks, out.IndexedChunks)
			fmt.Fprintf(w, "vectors:         %d\n", out.Vectors)
			fmt.Fprintf(w, "embedding model: %s\n", out.EmbeddingModel)
			fmt.Fprintf(w, "db size:         %d bytes\n", out.DBSizeBytes)
			if len(out.SectionCounts) > 0 {
				fmt.Fprintln(w, "sections:")
				sections := make([]string, 0, len(out.SectionCounts))
				for s := range out.SectionCounts {
					sections = append(sections, s)
				}
				sort.Strings(sections)
				for _, s := range sections {
					fmt.Fprintf(w, "  %-12s %d\n", s, out.SectionCounts[s])
				}
			}
			return nil
		},
	}
	return cmd
}
