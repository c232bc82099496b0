package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
	"github.com/Aman-CERP/amanctx/internal/index"
	"github.com/Aman-CERP/amanctx/internal/output"
	"github.com/Aman-CERP/amanctx/internal/queue"
)

func newQueueCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Work with the durable indexing queue",
		Long: `The queue decouples discovering work from indexing it. Items survive
restarts; an item a crashed consumer had leased is delivered again on
the next open. Items that keep failing move to a dead-letter bucket.`,
	}
	cmd.AddCommand(newQueueEnqueueDirCmd(o))
	cmd.AddCommand(newQueueRunCmd(o))
	cmd.AddCommand(newQueueStatsCmd(o))
	cmd.AddCommand(newQueueDeadCmd(o))
	return cmd
}

func newQueueEnqueueDirCmd(o *rootOptions) *cobra.Command {
	var (
		typ   string
		scope string
		repo  string
	)

	cmd := &cobra.Command{
		Use:   "enqueue-dir <dir>",
		Short: "Scan a directory and enqueue its records",
		Long: `Scan <dir> the way 'index code' or 'index docs' would and enqueue one
work item per chunk or document. Nothing is indexed until 'queue run'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueueDir(cmd.Context(), cmd, o, args[0], typ, scope, repo)
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", "code", "What to enqueue: code or docs")
	cmd.Flags().StringVarP(&scope, "scope", "s", "", "Scope identifier (required)")
	cmd.Flags().StringVarP(&repo, "repo", "r", "", "Repository identifier")

	return cmd
}

func runEnqueueDir(ctx context.Context, cmd *cobra.Command, o *rootOptions, dir, typ, scope, repo string) error {
	if err := requireFlag("scope", scope); err != nil {
		return err
	}
	var workType index.WorkType
	switch typ {
	case "code":
		workType = index.WorkCode
	case "docs":
		workType = index.WorkDocument
	default:
		return amerrors.New(amerrors.ErrCodeInvalidInput, fmt.Sprintf("--type must be code or docs, got %q", typ), nil)
	}
	root, err := resolveDir(dir)
	if err != nil {
		return err
	}

	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	chunker, code, docs, err := newSources(cfg)
	if err != nil {
		return err
	}
	collector := index.NewCollector(index.Dependencies{
		Chunker:     chunker,
		CodeScanner: code,
		DocScanner:  docs,
		Workers:     cfg.Index.Workers,
		Logger:      slog.Default(),
	})

	items, err := collector.CollectItems(ctx, workType, scope, repo, root)
	if err != nil {
		return err
	}

	q, err := openQueue(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	if err := q.EnqueueAll(items); err != nil {
		return err
	}
	output.New(cmd.OutOrStdout()).Successf("Enqueued %d items from %s (scope %s)", len(items), root, scope)
	return nil
}

func newQueueRunCmd(o *rootOptions) *cobra.Command {
	var drain bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Index queued items",
		Long: `Consume the queue, indexing each item through the pipeline. By default
the consumer keeps waiting for new items until interrupted; --drain stops
once the queue is empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQueue(cmd.Context(), cmd, o, drain)
		},
	}

	cmd.Flags().BoolVar(&drain, "drain", false, "Exit when the queue is empty")

	return cmd
}

func runQueue(ctx context.Context, cmd *cobra.Command, o *rootOptions, drain bool) error {
	a, err := openApp(ctx, o, appOptions{write: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	q, err := openQueue(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	out := output.New(cmd.OutOrStdout())
	var tally queueTally

	if drain {
		results, err := q.Drain(ctx, a.pipeline.Process)
		for _, res := range results {
			tally.report(out, res)
		}
		tally.summary(out)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	out.Status("⏳", "Waiting for queued items (Ctrl+C to stop)")
	for res := range q.Consume(ctx, a.pipeline.Process) {
		tally.report(out, res)
	}
	tally.summary(out)
	return nil
}

// queueTally counts consumer outcomes for the summary line.
type queueTally struct {
	indexed, retried, dead int
}

func (t *queueTally) report(out *output.Writer, res queue.Result) {
	switch {
	case res.Err == nil:
		t.indexed++
		out.Statusf("", "indexed %s %s", res.Type, res.ID)
	case res.Dead:
		t.dead++
		out.Errorf("%s %s failed %d times, moved to dead letters: %v", res.Type, res.ID, res.Attempts, res.Err)
	default:
		t.retried++
		out.Warningf("%s %s failed (attempt %d), requeued: %v", res.Type, res.ID, res.Attempts, res.Err)
	}
}

func (t *queueTally) summary(out *output.Writer) {
	out.Successf("Indexed %d items (%d requeued, %d dead)", t.indexed, t.retried, t.dead)
}

func newQueueStatsCmd(o *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show pending, leased and dead item counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			q, err := openQueue(cfg, slog.Default())
			if err != nil {
				return err
			}
			defer func() { _ = q.Close() }()

			st, err := q.Stats()
			if err != nil {
				return err
			}
			if jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(st)
			}
			out := output.New(cmd.OutOrStdout())
			out.Field("pending", st.Pending)
			out.Field("leased", st.Leased)
			out.Field("dead", st.Dead)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newQueueDeadCmd(o *rootOptions) *cobra.Command {
	var retry bool

	cmd := &cobra.Command{
		Use:   "dead",
		Short: "List dead-lettered items, or requeue them with --retry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			q, err := openQueue(cfg, slog.Default())
			if err != nil {
				return err
			}
			defer func() { _ = q.Close() }()

			out := output.New(cmd.OutOrStdout())
			if retry {
				n, err := q.RetryDead()
				if err != nil {
					return err
				}
				out.Successf("Requeued %d dead items", n)
				return nil
			}

			dead, err := q.DeadLetters()
			if err != nil {
				return err
			}
			if len(dead) == 0 {
				out.Success("No dead items")
				return nil
			}
			for _, e := range dead {
				out.Errorf("%s %s after %d attempts: %s", e.Item.Type, e.Item.ID, e.Attempts, e.LastError)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&retry, "retry", false, "Move dead items back to pending")

	return cmd
}
