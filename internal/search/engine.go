package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanctx/internal/store"
)

// Config configures an Engine. Zero fields take the package defaults.
type Config struct {
	RRFConstant    int
	DefaultTopK    int
	MaxTopK        int
	BackendTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.RRFConstant <= 0 {
		c.RRFConstant = DefaultRRFConstant
	}
	if c.MaxTopK <= 0 {
		c.MaxTopK = MaxTopK
	}
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = DefaultTopK
	}
	if c.DefaultTopK > c.MaxTopK {
		c.DefaultTopK = c.MaxTopK
	}
	if c.BackendTimeout <= 0 {
		c.BackendTimeout = DefaultBackendTimeout
	}
}

// Engine answers queries over the code and document collections.
// It holds no per-call state and is safe for concurrent use.
type Engine struct {
	backend  Backend
	embedder QueryEmbedder
	fusion   *RRFFusion
	cfg      Config
	logger   *slog.Logger
}

// New creates an engine.
func New(backend Backend, embedder QueryEmbedder, cfg Config, logger *slog.Logger) *Engine {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		backend:  backend,
		embedder: embedder,
		fusion:   NewRRFFusion(cfg.RRFConstant),
		cfg:      cfg,
		logger:   logger,
	}
}

// TopK resolves the requested result count against the defaults and cap.
func (e *Engine) TopK(requested int) int {
	if requested <= 0 {
		return e.cfg.DefaultTopK
	}
	return min(requested, e.cfg.MaxTopK)
}

// Search runs the query. It never returns an error and never panics: a
// blank query, or a failure on every path, yields an empty Response.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (resp *Response) {
	resp = &Response{Query: query, Results: []Result{}, Path: PathEmpty}
	if strings.TrimSpace(query) == "" {
		return resp
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("search_panic",
				slog.String("query", query),
				slog.String("scope", opts.ScopeID),
				slog.Any("panic", r))
			resp = &Response{Query: query, Results: []Result{}, Path: PathEmpty}
		}
	}()

	topK := e.TopK(opts.TopK)
	start := time.Now()

	if vec := e.embedder.Embed(ctx, query); vec != nil {
		results, err := e.hybrid(ctx, query, vec, opts.ScopeID, topK)
		if err == nil {
			e.logSearch(PathHybrid, query, opts.ScopeID, len(results), start)
			return &Response{Query: query, Results: results, Path: PathHybrid}
		}
		e.logger.Warn("hybrid_search_degraded",
			slog.String("scope", opts.ScopeID),
			slog.String("error", err.Error()))
	} else {
		e.logger.Debug("query_embedding_unavailable", slog.String("scope", opts.ScopeID))
	}

	results, err := e.lexicalOnly(ctx, query, opts.ScopeID, topK)
	if err != nil {
		e.logger.Error("lexical_search_failed",
			slog.String("scope", opts.ScopeID),
			slog.String("error", err.Error()))
		return resp
	}
	e.logSearch(PathLexical, query, opts.ScopeID, len(results), start)
	return &Response{Query: query, Results: results, Path: PathLexical}
}

func (e *Engine) logSearch(path Path, query, scope string, n int, start time.Time) {
	e.logger.Debug("search_complete",
		slog.String("path", string(path)),
		slog.String("query", query),
		slog.String("scope", scope),
		slog.Int("results", n),
		slog.Duration("duration", time.Since(start)))
}

// hybrid runs the four channels concurrently, fuses code and documents
// concurrently, then merges. Any channel error fails the whole path.
func (e *Engine) hybrid(ctx context.Context, query string, vec []float32, scope string, topK int) ([]Result, error) {
	var codeLex, codeVec, docLex, docVec []Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		codeLex, err = e.lexical(gctx, store.KindCode, query, scope, topK)
		return err
	})
	g.Go(func() (err error) {
		codeVec, err = e.vector(gctx, store.KindCode, vec, scope, topK)
		return err
	})
	g.Go(func() (err error) {
		docLex, err = e.lexical(gctx, store.KindDocument, query, scope, topK)
		return err
	})
	g.Go(func() (err error) {
		docVec, err = e.vector(gctx, store.KindDocument, vec, scope, topK)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var codeFused, docFused []Result
	var fg errgroup.Group
	fg.Go(func() error {
		codeFused = e.fusion.Fuse(codeLex, codeVec)
		return nil
	})
	fg.Go(func() error {
		docFused = e.fusion.Fuse(docLex, docVec)
		return nil
	})
	_ = fg.Wait()

	merged := make([]Result, 0, len(codeFused)+len(docFused))
	merged = append(merged, codeFused...)
	merged = append(merged, docFused...)
	SortResults(merged)
	return truncate(merged, topK), nil
}

// lexicalOnly is the degraded path: ceil(topK/2) code hits and
// floor(topK/2) document hits, merged by native score. One failing
// collection still returns the other's hits.
func (e *Engine) lexicalOnly(ctx context.Context, query, scope string, topK int) ([]Result, error) {
	codeK, docK := splitTopK(topK)

	var code, docs []Result
	var codeErr, docErr error
	var g errgroup.Group
	g.Go(func() error {
		code, codeErr = e.lexical(ctx, store.KindCode, query, scope, codeK)
		return nil
	})
	g.Go(func() error {
		docs, docErr = e.lexical(ctx, store.KindDocument, query, scope, docK)
		return nil
	})
	_ = g.Wait()

	switch {
	case codeErr != nil && docErr != nil:
		return nil, fmt.Errorf("code: %w; documents: %w", codeErr, docErr)
	case codeErr != nil:
		e.logger.Warn("lexical_code_failed", slog.String("error", codeErr.Error()))
	case docErr != nil:
		e.logger.Warn("lexical_documents_failed", slog.String("error", docErr.Error()))
	}

	merged := make([]Result, 0, len(code)+len(docs))
	merged = append(merged, code...)
	merged = append(merged, docs...)
	SortResults(merged)
	return truncate(merged, topK), nil
}

// splitTopK divides topK between code and documents for the lexical path.
// Both get at least one slot when topK > 1.
func splitTopK(topK int) (code, docs int) {
	code = (topK + 1) / 2
	docs = topK / 2
	if topK > 1 {
		code = max(code, 1)
		docs = max(docs, 1)
	}
	return code, docs
}

func (e *Engine) lexical(ctx context.Context, kind store.Kind, query, scope string, k int) (_ []Result, err error) {
	if k <= 0 {
		return nil, nil
	}
	defer recoverChannel("lexical", kind, &err)
	ctx, cancel := context.WithTimeout(ctx, e.cfg.BackendTimeout)
	defer cancel()
	hits, err := e.backend.LexicalSearch(ctx, kind, query, scope, k)
	if err != nil {
		return nil, fmt.Errorf("lexical %s: %w", kind, err)
	}
	return resultsFromHits(hits), nil
}

func (e *Engine) vector(ctx context.Context, kind store.Kind, vec []float32, scope string, k int) (_ []Result, err error) {
	defer recoverChannel("vector", kind, &err)
	ctx, cancel := context.WithTimeout(ctx, e.cfg.BackendTimeout)
	defer cancel()
	hits, err := e.backend.VectorSearch(ctx, kind, vec, scope, k)
	if err != nil {
		return nil, fmt.Errorf("vector %s: %w", kind, err)
	}
	return resultsFromHits(hits), nil
}

// recoverChannel turns a backend panic into a channel error so the engine
// can degrade instead of crashing a worker goroutine.
func recoverChannel(channel string, kind store.Kind, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s %s: backend panic: %v", channel, kind, r)
	}
}

func truncate(results []Result, k int) []Result {
	if len(results) > k {
		return results[:k]
	}
	return results
}
