// Package index turns code chunks and documents into stored, searchable
// records: hash, embed, compute identity, upsert. It also drives whole
// repository runs through the scanner and the chunking service.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanctx/internal/chunk"
	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
	"github.com/Aman-CERP/amanctx/internal/scanner"
	"github.com/Aman-CERP/amanctx/internal/store"
	"github.com/Aman-CERP/amanctx/internal/ui"
)

// Embedder produces record vectors. A nil vector means "store without one".
type Embedder interface {
	EmbedCodeChunk(ctx context.Context, c *store.CodeChunk) []float32
	EmbedDocument(ctx context.Context, d *store.Document) []float32
}

// Writer persists records by identity.
type Writer interface {
	UpsertCodeChunk(ctx context.Context, c *store.CodeChunk) error
	UpsertDocument(ctx context.Context, d *store.Document) error
	DeleteFileChunks(ctx context.Context, scope, filePath string, keep []string) (int, error)
}

// Dependencies are injected into NewPipeline.
type Dependencies struct {
	// Store receives the records (required).
	Store Writer

	// Embedder vectorises records (required).
	Embedder Embedder

	// Chunker splits source files. Required for IndexCodeFiles.
	Chunker chunk.Chunker

	// CodeScanner and DocScanner discover files for the directory runs.
	CodeScanner *scanner.Scanner
	DocScanner  *scanner.Scanner

	// Renderer receives progress. Nil discards it.
	Renderer ui.Renderer

	// Workers bounds concurrent item processing (0 = NumCPU).
	Workers int

	Logger *slog.Logger
}

// Pipeline indexes single records and batches of them. The embedded
// Collector supplies the directory runs.
type Pipeline struct {
	*Collector
	store    Writer
	embedder Embedder
}

// NewPipeline validates deps and builds a pipeline.
func NewPipeline(deps Dependencies) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	return &Pipeline{
		Collector: NewCollector(deps),
		store:     deps.Store,
		embedder:  deps.Embedder,
	}, nil
}

// IndexCodeChunk hashes, embeds and upserts c. Identity and content hash
// are always recomputed, so a reused record never carries stale values.
// A missing embedding is not an error; the record is stored without one.
func (p *Pipeline) IndexCodeChunk(ctx context.Context, c *store.CodeChunk) error {
	if c == nil {
		return amerrors.New(amerrors.ErrCodeInvalidInput, "code chunk is nil", nil)
	}
	if err := getValidator().Struct(c); err != nil {
		return invalidInput("code chunk", err)
	}

	c.ContentHash = store.ContentHash(c.Content)
	if c.APIName == "" {
		c.APIName = store.DeriveAPIName(c.ClassName, c.MethodName)
	}
	if c.Language == "" {
		c.Language = chunk.LanguageUnknown
	}
	c.Embedding = p.embedder.EmbedCodeChunk(ctx, c)
	c.Identity = store.ComputeIdentity(c.ScopeID, c.LogicalKey())
	c.IndexedAt = time.Now().UTC()

	if err := p.store.UpsertCodeChunk(ctx, c); err != nil {
		return err
	}
	p.logger.Debug("code_chunk_indexed",
		slog.String("scope", c.ScopeID),
		slog.String("api", c.APIName),
		slog.Bool("vector", c.Embedding != nil))
	return nil
}

// IndexDocument hashes, embeds and upserts d.
func (p *Pipeline) IndexDocument(ctx context.Context, d *store.Document) error {
	if d == nil {
		return amerrors.New(amerrors.ErrCodeInvalidInput, "document is nil", nil)
	}
	if err := getValidator().Struct(d); err != nil {
		return invalidInput("document", err)
	}

	d.ContentHash = store.ContentHash(d.Content)
	d.Embedding = p.embedder.EmbedDocument(ctx, d)
	d.Identity = store.ComputeIdentity(d.ScopeID, d.DocumentID)
	d.IndexedAt = time.Now().UTC()

	if err := p.store.UpsertDocument(ctx, d); err != nil {
		return err
	}
	p.logger.Debug("document_indexed",
		slog.String("scope", d.ScopeID),
		slog.String("document", d.DocumentID),
		slog.Bool("vector", d.Embedding != nil))
	return nil
}

// Process validates and indexes one work item.
func (p *Pipeline) Process(ctx context.Context, item WorkItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	switch item.Type {
	case WorkCode:
		return p.IndexCodeChunk(ctx, item.Code)
	default:
		return p.IndexDocument(ctx, item.Document)
	}
}

// ItemError records why one item of a batch failed.
type ItemError struct {
	ID  string
	Err error
}

// BatchResult summarises IndexBatch. Skipped counts items that never
// started because the context was cancelled.
type BatchResult struct {
	Total   int
	Indexed int
	Failed  int
	Skipped int
	Errors  []ItemError
}

// IndexBatch processes items on a bounded worker pool. Failures are
// isolated per item. Cancelling ctx stops new items from starting; items
// already in flight complete or roll back.
func (p *Pipeline) IndexBatch(ctx context.Context, items []WorkItem) BatchResult {
	var (
		mu     sync.Mutex
		errs   []ItemError
		failed atomic.Int64
	)
	indexed := p.runBatch(ctx, items, func(i int, err error) {
		if err == nil {
			return
		}
		failed.Add(1)
		mu.Lock()
		errs = append(errs, ItemError{ID: items[i].ID, Err: err})
		mu.Unlock()
	})

	res := BatchResult{
		Total:   len(items),
		Indexed: indexed,
		Failed:  int(failed.Load()),
		Errors:  errs,
	}
	res.Skipped = res.Total - res.Indexed - res.Failed
	p.logger.Info("batch_indexed",
		slog.Int("total", res.Total),
		slog.Int("indexed", res.Indexed),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped))
	return res
}

// runBatch processes items with at most p.workers in flight and reports
// every finished item through done, which may be called concurrently. It
// returns how many items succeeded.
func (p *Pipeline) runBatch(ctx context.Context, items []WorkItem, done func(i int, err error)) int {
	var indexed, finished atomic.Int64
	total := len(items)

	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for i := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			err := p.processSafe(ctx, items[i])
			if err == nil {
				indexed.Add(1)
			} else {
				p.logger.Warn("item_index_failed",
					slog.String("id", items[i].ID),
					slog.String("type", string(items[i].Type)),
					slog.String("error", err.Error()))
			}
			done(i, err)
			p.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:   ui.StageIndexing,
				Current: int(finished.Add(1)),
				Total:   total,
			})
			return nil
		})
	}
	_ = g.Wait()
	return int(indexed.Load())
}

// processSafe turns a panic in one item into that item's error.
func (p *Pipeline) processSafe(ctx context.Context, item WorkItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("item_index_panic",
				slog.String("id", item.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = amerrors.New(amerrors.ErrCodeInternal, fmt.Sprintf("panic while indexing: %v", r), nil)
		}
	}()
	return p.Process(ctx, item)
}

func invalidInput(what string, err error) error {
	return amerrors.New(amerrors.ErrCodeInvalidInput, what+" is missing required fields", err)
}
