// Package cmd provides the CLI commands for amanctx.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanctx/internal/logging"
	"github.com/Aman-CERP/amanctx/internal/profiling"
	"github.com/Aman-CERP/amanctx/pkg/version"
)

// rootOptions holds the persistent flags and the per-run resources they
// start.
type rootOptions struct {
	debug      bool
	configPath string
	dataDir    string
	profile    profiling.Options

	profiler       *profiling.Session
	loggingCleanup func()
}

// NewRootCmd creates the root command for the amanctx CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "amanctx",
		Short: "Hybrid code and document retrieval for LLM context",
		Long: `amanctx indexes source code chunks and documents per scope, answers
queries with hybrid keyword and semantic search fused by Reciprocal Rank
Fusion, and assembles length-bounded context blocks for chat and code
review prompts.

Search keeps working without the embedding service; results then come
from keyword search alone.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("amanctx version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.amanctx/logs/")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: user config plus ./.amanctx.yaml)")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Data directory (overrides index.data_dir)")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = opts.start
	cmd.PersistentPostRunE = func(*cobra.Command, []string) error { return opts.stop() }

	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newContextCmd(opts))
	cmd.AddCommand(newReviewCmd(opts))
	cmd.AddCommand(newQueueCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// start installs logging and starts any requested profiles. The MCP server
// logs to file only, since stdout carries the protocol.
func (o *rootOptions) start(cmd *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	switch {
	case o.debug:
		logCfg = logging.DebugConfig()
	case cmd.Name() == "serve":
		logCfg = logging.ServerConfig("info")
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.loggingCleanup = cleanup
	slog.SetDefault(logger)
	if o.debug {
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("version", version.Version))
	}

	if o.profile.Enabled() {
		o.profiler, err = profiling.Start(o.profile)
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *rootOptions) stop() error {
	err := o.profiler.Stop()
	o.profiler = nil
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
	return err
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}
