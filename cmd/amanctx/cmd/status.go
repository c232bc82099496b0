package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanctx/internal/ui"
)

func newStatusCmd(o *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the index:
  - Records, vectors and lexical entries per collection
  - Last indexing time and storage size
  - Whether the embedding and chunking services answer
  - Queue counts, when a queue exists and no consumer holds it`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, o, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, o *rootOptions, jsonOutput bool) error {
	a, err := openApp(ctx, o, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	info, err := a.collectStatus(ctx)
	if err != nil {
		return err
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}
