package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per event, for CI and pipes.
type PlainRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	noColor bool
	stage   Stage
	errors  []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out:     cfg.Output,
		noColor: cfg.NoColor,
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stage = event.Stage

	// Format: [STAGE] current/total - message or file
	var msg string
	if event.Message != "" {
		msg = event.Message
	} else if event.CurrentFile != "" {
		msg = event.CurrentFile
	}

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	} else if msg != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}

	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d files, %d records indexed in %s",
		stats.Files-stats.FilesFailed, stats.Records, stats.Duration.Round(100*time.Millisecond))
	if stats.Scope != "" {
		_, _ = fmt.Fprintf(r.out, " [scope %s]", stats.Scope)
	}
	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.FilesFailed > 0 || stats.RecordsFailed > 0 {
		_, _ = fmt.Fprintf(r.out, "Failed: %d files, %d records\n", stats.FilesFailed, stats.RecordsFailed)
	}

	if stats.Stages.Scan > 0 || stats.Stages.Index > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "Stage Breakdown:")
		_, _ = fmt.Fprintf(r.out, "  Scan:  %s (files discovered)\n", stats.Stages.Scan.Round(100*time.Millisecond))
		if stats.Stages.Chunk > 0 {
			_, _ = fmt.Fprintf(r.out, "  Chunk: %s (chunking service)\n", stats.Stages.Chunk.Round(100*time.Millisecond))
		}
		if stats.Stages.Index > 0 && stats.Records > 0 {
			perSec := float64(stats.Records) / stats.Stages.Index.Seconds()
			_, _ = fmt.Fprintf(r.out, "  Index: %s (%d records @ %.1f/sec)\n",
				stats.Stages.Index.Round(100*time.Millisecond), stats.Records, perSec)
		}
	}

	if stats.Embedder.Provider != "" {
		_, _ = fmt.Fprintln(r.out)
		state := "available"
		if !stats.Embedder.Available {
			state = "unavailable, stored without vectors"
		}
		_, _ = fmt.Fprintf(r.out, "Embedder: %s (%s, %d dims, %s)\n",
			stats.Embedder.Provider, stats.Embedder.Model, stats.Embedder.Dimensions, state)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
