package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boletinlabs/dirc/internal/search"
)

type searchFlags struct {
	topK           int
	technique      string
	rerank         bool
	rerankStrategy string

	year         string
	month        string
	section      string
	jurisdiction string
	topic        string
	language     string
	hasTables    bool
	hasAmounts   bool
	entities     []string
	documentID   string
	sourceID     string
}

func newSearchCmd() *cobra.Command {
	var flags searchFlags

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the gazette corpus",
		Long: `Search runs a hybrid query by default: BM25 keyword matching and
semantic similarity, fused with reciprocal-rank fusion. Scores are
normalized to [0, 1].

Filters the chosen technique cannot enforce are silently dropped;
year/month/amount/table/entity filters only bind on the keyword side.

Examples:
  dirc search "licitación pública equipamiento"
  dirc search "subsidio bomberos" --technique keyword --year 2024
  dirc search "presupuesto salud" --top-k 20 --rerank`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			req := search.Request{
				Query:          strings.Join(args, " "),
				TopK:           flags.topK,
				Technique:      search.Technique(flags.technique),
				Rerank:         flags.rerank,
				RerankStrategy: flags.rerankStrategy,
				Filters: search.Filters{
					Year:           flags.year,
					Month:          flags.month,
					Section:        flags.section,
					JurisdictionID: flags.jurisdiction,
					Topic:          flags.topic,
					Language:       flags.language,
					Entities:       flags.entities,
					DocumentID:     flags.documentID,
					SourceID:       flags.sourceID,
				},
			}
			if cmd.Flags().Changed("has-tables") {
				req.Filters.HasTables = &flags.hasTables
			}
			if cmd.Flags().Changed("has-amounts") {
				req.Filters.HasAmounts = &flags.hasAmounts
			}

			resp, err := app.engine.Search(cmd.Context(), req)
			if err != nil {
				return err
			}

			if useJSON() {
				return emitJSON(cmd.OutOrStdout(), resp)
			}
			printSearchResults(cmd, resp)
			return nil
		},
	}

	cmd.Flags().IntVarP(&flags.topK, "top-k", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&flags.technique, "technique", "t", "hybrid", "Retrieval technique: semantic, keyword, hybrid")
	cmd.Flags().BoolVar(&flags.rerank, "rerank", false, "Rerank the top results with the cross-encoder")
	cmd.Flags().StringVar(&flags.rerankStrategy, "rerank-strategy", "", "Reranker: noop or cross-encoder")

	cmd.Flags().StringVar(&flags.year, "year", "", "Filter by gazette year")
	cmd.Flags().StringVar(&flags.month, "month", "", "Filter by gazette month (zero-padded)")
	cmd.Flags().StringVar(&flags.section, "section", "", "Filter by section type")
	cmd.Flags().StringVar(&flags.jurisdiction, "jurisdiction", "", "Filter by jurisdiction id")
	cmd.Flags().StringVar(&flags.topic, "topic", "", "Filter by topic tag")
	cmd.Flags().StringVar(&flags.language, "language", "", "Filter by language code")
	cmd.Flags().BoolVar(&flags.hasTables, "has-tables", false, "Only chunks containing tables")
	cmd.Flags().BoolVar(&flags.hasAmounts, "has-amounts", false, "Only chunks mentioning amounts")
	cmd.Flags().StringSliceVar(&flags.entities, "entity", nil, "Filter by extracted entity (repeatable, AND)")
	cmd.Flags().StringVar(&flags.documentID, "document", "", "Restrict to one document id")
	cmd.Flags().StringVar(&flags.sourceID, "source", "", "Filter by upstream source id")

	return cmd
}

func printSearchResults(cmd *cobra.Command, resp *search.Response) {
	out := cmd.OutOrStdout()
	if resp.TotalResults == 0 {
		fmt.Fprintf(out, "no results for %q\n", resp.Query)
		return
	}

	fmt.Fprintf(out, "%d results (%s, %dms", resp.TotalResults, resp.Technique, resp.ExecutionTimeMS)
	if resp.Reranked {
		fmt.Fprint(out, ", reranked")
	}
	if resp.Degraded != "" {
		fmt.Fprintf(out, ", %s leg degraded", resp.Degraded)
	}
	fmt.Fprintln(out, ")")

	for i, hit := range resp.Results {
		fmt.Fprintf(out, "\n%2d. [%.3f] %s #%d", i+1, hit.Score, hit.DocumentID, hit.ChunkIndex)
		if section := hit.Metadata["section_type"]; section != "" {
			fmt.Fprintf(out, " (%s)", section)
		}
		fmt.Fprintln(out)

		snippet := hit.Highlight
		if snippet == "" {
			if runes := []rune(hit.Text); len(runes) > 200 {
				snippet = string(runes[:200]) + "…"
			} else {
				snippet = hit.Text
			}
		}
		snippet = strings.ReplaceAll(snippet, "<mark>", "")
		snippet = strings.ReplaceAll(snippet, "</mark>", "")
		fmt.Fprintf(out, "    %s\n", snippet)
	}
}
