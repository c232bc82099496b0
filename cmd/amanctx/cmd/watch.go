package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanctx/internal/index"
	"github.com/Aman-CERP/amanctx/internal/output"
	"github.com/Aman-CERP/amanctx/internal/watcher"
)

// watchOptions holds CLI flags for watch.
type watchOptions struct {
	scope   string
	repo    string
	initial bool
}

func newWatchCmd(o *rootOptions) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Re-index code files as they change",
		Long: `Watch <dir> recursively and re-index changed source files under --scope.

Events are debounced (index.watch_debounce) and filtered with the same
rules as 'index code'. A changed file is re-chunked and the chunks it no
longer produces are removed; a deleted file loses all its chunks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd, o, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.scope, "scope", "s", "", "Scope identifier (required)")
	cmd.Flags().StringVarP(&opts.repo, "repo", "r", "", "Repository identifier")
	cmd.Flags().BoolVar(&opts.initial, "initial", false, "Index the whole directory before watching")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, o *rootOptions, dir string, opts watchOptions) error {
	if err := requireFlag("scope", opts.scope); err != nil {
		return err
	}
	root, err := resolveDir(dir)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, o, appOptions{write: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := output.New(cmd.OutOrStdout())
	if opts.initial {
		res, err := a.pipeline.IndexCodeFiles(ctx, opts.scope, opts.repo, root)
		if err != nil {
			return err
		}
		out.Successf("Indexed %d chunks from %d files", res.Records, res.FilesIndexed)
	}

	coord, err := index.NewCoordinator(index.CoordinatorConfig{
		Pipeline: a.pipeline,
		Scanner:  a.code,
		Scope:    opts.scope,
		Repo:     opts.repo,
		RootPath: root,
	})
	if err != nil {
		return err
	}

	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: a.cfg.Index.WatchDebounce,
		Filter:         a.code,
	})
	if err != nil {
		return err
	}

	out.Statusf("👀", "Watching %s (%s, scope %s). Ctrl+C to stop.", root, w.WatcherType(), opts.scope)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer func() { _ = w.Stop() }()
		return w.Start(gctx, root)
	})
	g.Go(func() error {
		for err := range w.Errors() {
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
		return nil
	})
	g.Go(func() error {
		for batch := range w.Events() {
			if err := coord.HandleEvents(gctx, batch); err != nil {
				return err
			}
			out.Statusf("🔄", "%d file changes applied", len(batch))
		}
		return nil
	})

	err = g.Wait()
	if dropped := w.DroppedBatches(); dropped > 0 {
		out.Warningf("%d event batches were dropped; run 'amanctx index code' to catch up", dropped)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
