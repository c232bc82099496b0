package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanctx/internal/mcp"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	scope string
	topK  int
	json  bool
}

func newSearchCmd(o *rootOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed code chunks and documents",
		Long: `Search the index with hybrid keyword and semantic search.

Both channels run over the code and document collections and are fused
with Reciprocal Rank Fusion. When the embedding service is unreachable
the results come from keyword search alone.

Examples:
  amanctx search "cancel order" --scope task-42
  amanctx search "refund policy" --top-k 5 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, o, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.scope, "scope", "s", "", "Scope to search within (default: all scopes)")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "n", 0, "Number of results (default: search.default_top_k)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, o *rootOptions, query string, opts searchOptions) error {
	a, err := openApp(ctx, o, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	slog.Info("search_started", slog.String("scope", opts.scope), slog.Int("top_k", opts.topK))
	res := a.rag.SearchOnly(ctx, query, opts.scope, opts.topK)
	slog.Info("search_complete", slog.Int("results", res.Count), slog.String("path", string(res.Path)))

	if opts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), mcp.FormatSearchResults(query, res.Results, res.Path))
	return err
}
