package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanctx/internal/mcp"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Serve the search, build_context, review_context and index_status tools
to an MCP client over stdio.

Stdout carries the protocol only; logs go to ~/.amanctx/logs/server.log.
The server reads the index and never writes to it, so it can run next to
'amanctx watch' or 'amanctx queue run'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), o)
		},
	}
}

func runServe(ctx context.Context, o *rootOptions) error {
	a, err := openApp(ctx, o, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srv, err := mcp.NewServer(a.rag, a.collectStatus, a.logger)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}
