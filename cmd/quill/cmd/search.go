package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quillindex/quill/internal/chunk"
	"github.com/quillindex/quill/internal/connectors"
	"github.com/quillindex/quill/internal/docindex"
	"github.com/quillindex/quill/internal/query"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit   int
	mode    string // "hybrid", "keyword", "semantic"
	user    string
	sources []string
	format  string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Search indexed documents.

Hybrid mode fuses keyword (BM25) and semantic (vector) retrieval
with Reciprocal Rank Fusion; keyword and semantic modes run a
single leg.

Examples:
  quill search "eiffel tower"
  quill search "quarterly report" --user alice
  quill search "setup notes" --mode keyword --limit 5
  quill search "roadmap" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Search mode: hybrid, keyword, semantic")
	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "Restrict results to documents this user may see")
	cmd.Flags().StringSliceVarP(&opts.sources, "source", "s", nil, "Filter by source (repeatable, e.g. --source file)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, rawQuery string, opts searchOptions) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	limit := opts.limit
	if limit <= 0 {
		limit = app.cfg.Search.MaxResults
	}

	filters := docindex.Filters{}
	if opts.user != "" {
		filters.AllowedUsers = []string{opts.user}
	}
	for _, source := range opts.sources {
		filters.Sources = append(filters.Sources, connectors.Source(source))
	}

	retriever := query.NewRetriever(app.index, nil)
	ctx := cmd.Context()

	var results []chunk.InferenceChunk
	var found bool
	switch opts.mode {
	case "hybrid":
		results, found, err = retriever.RetrieveHybrid(ctx, rawQuery, filters, limit)
	case "keyword":
		results, found, err = retriever.RetrieveKeyword(ctx, rawQuery, filters, limit)
	case "semantic":
		results, found, err = retriever.RetrieveSemantic(ctx, rawQuery, filters, limit)
	default:
		return fmt.Errorf("unknown search mode %q (want hybrid, keyword or semantic)", opts.mode)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	}

	if !found {
		fmt.Fprintf(out, "No results for %q\n", rawQuery)
		return nil
	}

	fmt.Fprintf(out, "%d results for %q\n\n", len(results), rawQuery)
	for i, result := range results {
		fmt.Fprintf(out, "%2d. %s (%s, score %.3f)\n", i+1, result.SemanticIdentifier, result.Source, result.Score)
		fmt.Fprintf(out, "    %s\n", result.Blurb)
	}
	return nil
}
