package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/amanctx/internal/chunk"
	"github.com/Aman-CERP/amanctx/internal/config"
	"github.com/Aman-CERP/amanctx/internal/embed"
	"github.com/Aman-CERP/amanctx/internal/index"
	"github.com/Aman-CERP/amanctx/internal/queue"
	"github.com/Aman-CERP/amanctx/internal/rag"
	"github.com/Aman-CERP/amanctx/internal/scanner"
	"github.com/Aman-CERP/amanctx/internal/search"
	"github.com/Aman-CERP/amanctx/internal/store"
	"github.com/Aman-CERP/amanctx/internal/ui"
)

// docExtensions are indexed by `index docs`.
var docExtensions = []string{"md", "markdown"}

// loadConfig resolves the effective configuration. --config replaces the
// user and project files; --data-dir wins over everything.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		wd, _ := os.Getwd()
		cfg, err = config.Load(wd)
	}
	if err != nil {
		return nil, err
	}
	if o.dataDir != "" {
		cfg.Index.DataDir = o.dataDir
	}
	return cfg, nil
}

// appOptions selects what openApp wires.
type appOptions struct {
	// write takes the cross-process write lock.
	write bool
	// renderer receives indexing progress. Nil discards it.
	renderer ui.Renderer
}

// app is the wired engine for one command run.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	lock      *store.WriteLock
	store     *store.Store
	generator *embed.Generator
	chunker   *chunk.Client
	code      *scanner.Scanner
	docs      *scanner.Scanner
	pipeline  *index.Pipeline
	engine    *search.Engine
	rag       *rag.Service
}

// openApp loads config, opens and provisions the store and wires the
// embedding, chunking, indexing, search and assembly layers over it.
func openApp(ctx context.Context, o *rootOptions, opts appOptions) (a *app, err error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	a = &app{cfg: cfg, logger: slog.Default()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if opts.write {
		a.lock = store.NewWriteLock(cfg.Index.DataDir)
		if err := a.lock.TryLock(); err != nil {
			a.lock = nil
			return nil, err
		}
	}

	a.store, err = store.Open(store.Options{
		Dir:                 cfg.Index.DataDir,
		Dimensions:          cfg.Embeddings.Dimensions,
		CandidateMultiplier: cfg.Search.CandidateMultiplier,
		MinShouldMatch:      cfg.Search.MinShouldMatch,
		CodeBoosts:          cfg.Search.CodeBoosts,
		DocBoosts:           cfg.Search.DocBoosts,
		Logger:              a.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := a.store.EnsureCollections(ctx); err != nil {
		return nil, err
	}

	a.generator, err = embed.NewGeneratorFromConfig(ctx, cfg.Embeddings, a.logger)
	if err != nil {
		return nil, err
	}

	a.chunker, a.code, a.docs, err = newSources(cfg)
	if err != nil {
		return nil, err
	}

	a.pipeline, err = index.NewPipeline(index.Dependencies{
		Store:       a.store,
		Embedder:    a.generator,
		Chunker:     a.chunker,
		CodeScanner: a.code,
		DocScanner:  a.docs,
		Renderer:    opts.renderer,
		Workers:     cfg.Index.Workers,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, err
	}

	a.engine = search.New(a.store, a.generator, search.Config{
		RRFConstant:    cfg.Search.RRFConstant,
		DefaultTopK:    cfg.Search.DefaultTopK,
		MaxTopK:        cfg.Search.MaxTopK,
		BackendTimeout: cfg.Search.BackendTimeout,
	}, a.logger)

	a.rag = rag.NewService(a.engine, rag.ServiceConfig{
		Chat:             rag.Limits{CodeItemCap: cfg.Context.CodeItemCap, DocItemCap: cfg.Context.DocItemCap},
		Review:           rag.Limits{CodeItemCap: cfg.Context.ReviewCodeItemCap, DocItemCap: cfg.Context.ReviewDocItemCap},
		DefaultMaxLength: cfg.Context.MaxLength,
		ReviewMaxLength:  cfg.Context.ReviewMaxLength,
	}, a.logger)

	a.logger.Debug("app_opened",
		slog.String("data_dir", cfg.Index.DataDir),
		slog.String("embedder", cfg.Embeddings.Provider),
		slog.String("model", cfg.Embeddings.Model),
		slog.Bool("write", opts.write))
	return a, nil
}

// newSources builds the chunking client and the code and document
// scanners. They touch no stored state.
func newSources(cfg *config.Config) (*chunk.Client, *scanner.Scanner, *scanner.Scanner, error) {
	chunker := chunk.NewClient(chunk.ClientConfig{
		URL:      cfg.Chunker.URL,
		Timeout:  cfg.Chunker.Timeout,
		MaxChars: cfg.Chunker.MaxChars,
	})
	code, err := scanner.New(scanner.Options{
		Extensions:      cfg.Index.CodeExtensions,
		ExcludePatterns: cfg.Index.Exclude,
		MaxFileSize:     cfg.Index.MaxFileSize,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	docs, err := scanner.New(scanner.Options{
		Extensions:      docExtensions,
		ExcludePatterns: cfg.Index.Exclude,
		MaxFileSize:     cfg.Index.MaxFileSize,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return chunker, code, docs, nil
}

// openQueue opens the durable queue named by cfg.
func openQueue(cfg *config.Config, logger *slog.Logger) (*queue.Queue, error) {
	return queue.Open(cfg.QueuePath(), queue.Options{
		PollInterval: cfg.Queue.PollInterval,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		Logger:       logger,
	})
}

// embedderInfo probes the embedding provider for the completion summary.
func (a *app) embedderInfo(ctx context.Context) ui.EmbedderInfo {
	return ui.EmbedderInfo{
		Provider:   a.cfg.Embeddings.Provider,
		Model:      a.generator.ModelName(),
		Dimensions: a.cfg.Embeddings.Dimensions,
		Available:  a.generator.IsAvailable(ctx),
	}
}

// collectStatus gathers what `status` and the index_status tool report.
// The queue is included only when its file exists and is not held by a
// running consumer.
func (a *app) collectStatus(ctx context.Context) (ui.StatusInfo, error) {
	st, err := a.store.Stats(ctx)
	if err != nil {
		return ui.StatusInfo{}, err
	}

	info := ui.StatusInfo{
		DataDir:          a.cfg.Index.DataDir,
		Dimensions:       st.Dimensions,
		LastIndexed:      st.LastIndexed,
		EmbedderProvider: a.cfg.Embeddings.Provider,
		EmbedderModel:    a.generator.ModelName(),
		EmbedderStatus:   ui.StatusOffline,
		ChunkerEndpoint:  a.chunker.URL(),
		ChunkerStatus:    ui.StatusOffline,
		StorageSize:      dirSize(a.cfg.Index.DataDir),
	}
	for _, c := range st.Collections {
		info.Collections = append(info.Collections, ui.CollectionStatus{
			Name:        c.Name,
			Records:     c.Records,
			Vectors:     c.Vectors,
			LexicalDocs: c.LexicalDocs,
		})
	}
	if a.generator.IsAvailable(ctx) {
		info.EmbedderStatus = ui.StatusReady
	}
	if a.chunker.Healthy(ctx) {
		info.ChunkerStatus = ui.StatusReady
	}

	if _, err := os.Stat(a.cfg.QueuePath()); err == nil {
		if q, err := openQueue(a.cfg, a.logger); err == nil {
			qs, serr := q.Stats()
			_ = q.Close()
			if serr == nil {
				info.Queue = &ui.QueueStatus{Pending: qs.Pending, Leased: qs.Leased, Dead: qs.Dead}
			}
		} else {
			a.logger.Debug("queue_status_skipped", slog.String("error", err.Error()))
		}
	}
	return info, nil
}

// Close releases everything openApp acquired. It is safe on a partially
// opened app.
func (a *app) Close() error {
	var errs []error
	if a.generator != nil {
		errs = append(errs, a.generator.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.lock != nil {
		errs = append(errs, a.lock.Unlock())
	}
	return errors.Join(errs...)
}

// dirSize sums regular file sizes under dir. Unreadable entries are
// skipped.
func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}

// requireFlag returns a usage error naming the missing flag.
func requireFlag(name, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
