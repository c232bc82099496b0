package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
	"github.com/Aman-CERP/amanctx/internal/embed"
	"github.com/Aman-CERP/amanctx/internal/preflight"
	"github.com/Aman-CERP/amanctx/internal/store"
)

func newDoctorCmd(o *rootOptions) *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the data dir and external services",
		Long: `Run preflight checks: data dir permissions and free space, the file
descriptor limit, the index write lock, and whether the embedding and
chunking services answer. Exits non-zero only on a required failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd, o, jsonOutput, verbose)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for each check")

	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, o *rootOptions, jsonOutput, verbose bool) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	chunker, _, _, err := newSources(cfg)
	if err != nil {
		return err
	}
	dataDir := cfg.Index.DataDir

	checker := preflight.New(dataDir,
		preflight.WithProbeTimeout(cfg.Embeddings.Timeout),
		preflight.WithLockProbe(func() bool { return lockHeld(dataDir) }),
		preflight.WithEmbedder(func(ctx context.Context) error {
			g, err := embed.NewGeneratorFromConfig(ctx, cfg.Embeddings, slog.Default())
			if err != nil {
				return err
			}
			defer func() { _ = g.Close() }()
			if !g.IsAvailable(ctx) {
				return errors.New("no embedding returned by " + cfg.Embeddings.Endpoint)
			}
			return nil
		}),
		preflight.WithChunker(func(ctx context.Context) error {
			if !chunker.Healthy(ctx) {
				return errors.New("no healthy response from " + cfg.Chunker.URL)
			}
			return nil
		}),
	)
	results := checker.RunAll(ctx)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{
			"status": preflight.SummaryStatus(results),
			"checks": results,
		}); err != nil {
			return err
		}
	} else {
		preflight.PrintResults(cmd.OutOrStdout(), results, verbose)
	}

	if preflight.HasCriticalFailures(results) {
		return amerrors.New(amerrors.ErrCodeInternal, "preflight checks failed", nil).
			WithSuggestion("Fix the errors listed above, then rerun 'amanctx doctor'")
	}
	return nil
}

// lockHeld reports whether another process holds the data dir's write lock.
func lockHeld(dataDir string) bool {
	lock := store.NewWriteLock(dataDir)
	if err := lock.TryLock(); err != nil {
		return amerrors.GetCode(err) == amerrors.ErrCodeLockHeld
	}
	_ = lock.Unlock()
	return false
}
