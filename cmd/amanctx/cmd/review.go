package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
	"github.com/Aman-CERP/amanctx/internal/output"
	"github.com/Aman-CERP/amanctx/internal/rag"
)

// reviewOptions holds CLI flags for review.
type reviewOptions struct {
	req      rag.ReviewRequest
	diffFile string
}

func newReviewCmd(o *rootOptions) *cobra.Command {
	var opts reviewOptions

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Build code review context for a pull request",
		Long: `Synthesize a search query from the pull request title, changed file
names, description and changed diff lines, then assemble review context
with the tighter review caps.

The scope is --task, or --repo when no task is given.

Examples:
  amanctx review --repo order-service --title "Fix refund rounding" \
      --files src/RefundService.java --diff-file change.diff
  git diff main | amanctx review --task task-42 --diff-file -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReview(cmd.Context(), cmd, o, opts)
		},
	}

	cmd.Flags().StringVar(&opts.req.RepositoryID, "repo", "", "Repository identifier")
	cmd.Flags().StringVar(&opts.req.TaskID, "task", "", "Scope identifier of the indexed repository")
	cmd.Flags().StringVar(&opts.req.PRTitle, "title", "", "Pull request title")
	cmd.Flags().StringVar(&opts.req.PRDescription, "description", "", "Pull request description")
	cmd.Flags().StringSliceVar(&opts.req.ChangedFiles, "files", nil, "Changed file paths (comma separated or repeated)")
	cmd.Flags().StringVar(&opts.diffFile, "diff-file", "", "Unified diff file, or - for stdin")
	cmd.Flags().IntVarP(&opts.req.MaxResults, "top-k", "n", 0, "Number of search results (default 10)")

	return cmd
}

func runReview(ctx context.Context, cmd *cobra.Command, o *rootOptions, opts reviewOptions) error {
	req := opts.req
	if req.Scope() == "" {
		return amerrors.New(amerrors.ErrCodeInvalidInput, "--task or --repo is required", nil)
	}
	if opts.diffFile != "" {
		diff, err := readDiff(cmd.InOrStdin(), opts.diffFile)
		if err != nil {
			return err
		}
		req.DiffContent = diff
	}

	a, err := openApp(ctx, o, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	text := a.rag.ReviewContext(ctx, req)
	if text == "" {
		output.New(cmd.ErrOrStderr()).Warning("No relevant context found for this change.")
		return nil
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}

func readDiff(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", amerrors.New(amerrors.ErrCodeInvalidInput, "cannot read diff "+path, err)
	}
	return string(data), nil
}
