package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/Aman-CERP/amanctx/internal/scanner"
	"github.com/Aman-CERP/amanctx/internal/watcher"
)

// CoordinatorConfig contains configuration for the Coordinator.
type CoordinatorConfig struct {
	// Pipeline re-indexes changed files (required).
	Pipeline *Pipeline

	// Scanner applies the same file rules as the initial run (required).
	Scanner *scanner.Scanner

	// Scope and Repo are stamped on every re-indexed chunk.
	Scope string
	Repo  string

	// RootPath is the absolute repository root the watcher reports under.
	RootPath string
}

// Coordinator applies watcher events to the index.
type Coordinator struct {
	config CoordinatorConfig
	mu     sync.Mutex
}

// NewCoordinator creates a new index coordinator.
func NewCoordinator(config CoordinatorConfig) (*Coordinator, error) {
	if config.Pipeline == nil || config.Scanner == nil {
		return nil, fmt.Errorf("pipeline and scanner are required")
	}
	if config.Scope == "" {
		return nil, fmt.Errorf("scope is required")
	}
	return &Coordinator{config: config}, nil
}

// HandleEvents processes a batch of file events. A failing event is
// logged and does not stop the rest.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var processed int
	for _, event := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.handleEvent(ctx, event); err != nil {
			slog.Warn("failed to process file event",
				slog.String("path", event.Path),
				slog.String("operation", event.Operation.String()),
				slog.String("error", err.Error()))
			continue
		}
		processed++
	}
	slog.Debug("file_events_applied", slog.Int("events", len(events)), slog.Int("processed", processed))
	return nil
}

func (c *Coordinator) handleEvent(ctx context.Context, event watcher.FileEvent) error {
	if event.IsDir {
		return nil
	}

	switch event.Operation {
	case watcher.OpCreate, watcher.OpModify:
		return c.indexFile(ctx, event.Path)
	case watcher.OpDelete:
		return c.removeFile(ctx, event.Path)
	case watcher.OpRename:
		if event.OldPath != "" {
			if err := c.removeFile(ctx, event.OldPath); err != nil {
				return err
			}
		}
		return c.indexFile(ctx, event.Path)
	default:
		return nil
	}
}

func (c *Coordinator) indexFile(ctx context.Context, relPath string) error {
	absPath := filepath.Join(c.config.RootPath, filepath.FromSlash(relPath))
	info, ok := c.config.Scanner.Accept(c.config.RootPath, absPath)
	if !ok {
		slog.Debug("file_event_ignored", slog.String("path", relPath))
		return nil
	}

	res := c.config.Pipeline.IndexFile(ctx, c.config.Scope, c.config.Repo, *info)
	if !res.OK() {
		return fmt.Errorf("re-index %s: %s", relPath, res.Error)
	}
	slog.Info("file_reindexed",
		slog.String("path", relPath),
		slog.Int("chunks", res.Indexed))
	return nil
}

func (c *Coordinator) removeFile(ctx context.Context, relPath string) error {
	n, err := c.config.Pipeline.RemoveFile(ctx, c.config.Scope, filepath.ToSlash(relPath))
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if n > 0 {
		slog.Info("file_removed", slog.String("path", relPath), slog.Int("chunks", n))
	}
	return nil
}
