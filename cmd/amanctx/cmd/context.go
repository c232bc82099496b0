package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
)

// contextOptions holds CLI flags for context.
type contextOptions struct {
	scope     string
	topK      int
	maxLength int
	prompt    bool
	json      bool
}

func newContextCmd(o *rootOptions) *cobra.Command {
	var opts contextOptions

	cmd := &cobra.Command{
		Use:   "context <query>",
		Short: "Build a length-bounded context block for a question",
		Long: `Search for <query> and assemble the results into a context block:
code chunks first, then documents, each truncated to its item cap, the
whole bounded by --max-length characters.

With --prompt the block is wrapped in the full LLM prompt. When nothing
relevant is found the prompt is the bare query.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContext(cmd.Context(), cmd, o, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.scope, "scope", "s", "", "Scope to search within")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "n", 0, "Number of search results to assemble from")
	cmd.Flags().IntVarP(&opts.maxLength, "max-length", "m", 0, "Maximum context length in characters (default: context.max_length)")
	cmd.Flags().BoolVar(&opts.prompt, "prompt", false, "Print the full prompt instead of the context block")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output as JSON")

	return cmd
}

func runContext(ctx context.Context, cmd *cobra.Command, o *rootOptions, query string, opts contextOptions) error {
	if opts.maxLength < 0 {
		return amerrors.New(amerrors.ErrCodeInvalidInput, "--max-length must not be negative", nil)
	}
	a, err := openApp(ctx, o, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	rc := a.rag.Retrieve(ctx, query, opts.scope, opts.topK, opts.maxLength)

	out := cmd.OutOrStdout()
	switch {
	case opts.json:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rc)
	case opts.prompt:
		_, err = fmt.Fprintln(out, rc.Prompt)
	default:
		_, err = fmt.Fprintln(out, rc.ContextText)
	}
	return err
}
