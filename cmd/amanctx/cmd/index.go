package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
	"github.com/Aman-CERP/amanctx/internal/index"
	"github.com/Aman-CERP/amanctx/internal/ui"
)

// indexOptions holds CLI flags for the index subcommands.
type indexOptions struct {
	scope   string
	repo    string
	plain   bool
	noColor bool
	json    bool
}

func newIndexCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a directory of code files or markdown documents",
	}
	cmd.AddCommand(newIndexCodeCmd(o))
	cmd.AddCommand(newIndexDocsCmd(o))
	return cmd
}

func newIndexCodeCmd(o *rootOptions) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "code <dir>",
		Short: "Chunk and index the source files of a repository",
		Long: `Scan <dir> for source files, split each through the chunking service
and index every chunk under --scope.

Build output, dependency and hidden directories are skipped, as are
binary files and files above index.max_file_size. A file the chunker
cannot split is reported and the run continues. Re-running replaces
chunks by identity.

Examples:
  amanctx index code ./order-service --scope task-42 --repo order-service
  amanctx index code . --scope main --plain`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, o, index.WorkCode, args[0], opts)
		},
	}
	addIndexFlags(cmd, &opts, true)
	return cmd
}

func newIndexDocsCmd(o *rootOptions) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "docs <dir>",
		Short: "Index markdown files as documents",
		Long: `Index every .md and .markdown file under <dir> as a complete document.

The document ID is the path relative to <dir>; the title is the first
level-one heading, or the file name when there is none.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, o, index.WorkDocument, args[0], opts)
		},
	}
	addIndexFlags(cmd, &opts, false)
	return cmd
}

func addIndexFlags(cmd *cobra.Command, opts *indexOptions, withRepo bool) {
	cmd.Flags().StringVarP(&opts.scope, "scope", "s", "", "Scope identifier the records are stored under (required)")
	if withRepo {
		cmd.Flags().StringVarP(&opts.repo, "repo", "r", "", "Repository identifier stamped on every chunk")
	}
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain text progress instead of the interactive view")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the run result as JSON")
}

// summaryRenderer adds the embedder details to the completion summary.
type summaryRenderer struct {
	ui.Renderer
	embedder ui.EmbedderInfo
}

func (r *summaryRenderer) Complete(stats ui.CompletionStats) {
	stats.Embedder = r.embedder
	r.Renderer.Complete(stats)
}

func runIndex(ctx context.Context, cmd *cobra.Command, o *rootOptions, typ index.WorkType, dir string, opts indexOptions) error {
	if err := requireFlag("scope", opts.scope); err != nil {
		return err
	}
	root, err := resolveDir(dir)
	if err != nil {
		return err
	}

	base := ui.Nop()
	if !opts.json {
		base = ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
			ui.WithForcePlain(opts.plain),
			ui.WithNoColor(opts.noColor || ui.DetectNoColor()),
			ui.WithProjectDir(root),
		))
	}
	renderer := &summaryRenderer{Renderer: base}

	a, err := openApp(ctx, o, appOptions{write: true, renderer: renderer})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	renderer.embedder = a.embedderInfo(ctx)

	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start progress display: %w", err)
	}

	var res *index.RunResult
	if typ == index.WorkCode {
		res, err = a.pipeline.IndexCodeFiles(ctx, opts.scope, opts.repo, root)
	} else {
		res, err = a.pipeline.IndexDocsDir(ctx, opts.scope, opts.repo, root)
	}
	_ = renderer.Stop()
	if err != nil {
		return err
	}

	if opts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	if len(res.Files) > 0 && res.FilesIndexed == 0 {
		return amerrors.New(amerrors.ErrCodeIndexFailed, fmt.Sprintf("none of %d files could be indexed", len(res.Files)), nil).
			WithSuggestion("Check that the chunking service is running: amanctx status")
	}
	return nil
}

// resolveDir returns dir as an absolute path to an existing directory.
func resolveDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid path %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", amerrors.New(amerrors.ErrCodeInvalidInput, "directory not found: "+dir, err)
	}
	if !info.IsDir() {
		return "", amerrors.New(amerrors.ErrCodeInvalidInput, "not a directory: "+dir, nil)
	}
	return abs, nil
}
