package embed

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/amanctx/internal/store"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
)

// GeneratorOptions configures a Generator.
type GeneratorOptions struct {
	// MaxInputChars truncates input, in runes. Zero means DefaultMaxInputChars.
	MaxInputChars int

	// Dimensions, when set, rejects vectors of any other length.
	Dimensions int

	// Breaker short-circuits calls while the provider is known to be down.
	// Nil installs a default breaker.
	Breaker *amerrors.CircuitBreaker

	Logger *slog.Logger
}

// Generator is the best-effort embedding front end. It never returns an
// error: failures yield a nil vector.
type Generator struct {
	provider Provider
	maxChars int
	dims     int
	breaker  *amerrors.CircuitBreaker
	logger   *slog.Logger
}

// NewGenerator wraps provider.
func NewGenerator(provider Provider, opts GeneratorOptions) *Generator {
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = DefaultMaxInputChars
	}
	if opts.Breaker == nil {
		opts.Breaker = amerrors.NewCircuitBreaker("embeddings",
			amerrors.WithMaxFailures(5),
			amerrors.WithResetTimeout(30*time.Second))
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Generator{
		provider: provider,
		maxChars: opts.MaxInputChars,
		dims:     opts.Dimensions,
		breaker:  opts.Breaker,
		logger:   opts.Logger,
	}
}

// Embed returns the vector for text, or nil when text is blank or the
// provider fails, times out, or returns nothing.
func (g *Generator) Embed(ctx context.Context, text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	text = Truncate(text, g.maxChars)

	vec, err := amerrors.Execute(g.breaker, func() ([]float32, error) {
		return g.provider.Embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, amerrors.ErrCircuitOpen) {
			g.logger.Debug("embedding_skipped", slog.String("reason", "circuit open"))
		} else {
			attrs := append([]any{slog.String("model", g.provider.ModelName())}, amerrors.LogAttrs(err)...)
			g.logger.Warn("embedding_failed", attrs...)
		}
		return nil
	}
	if len(vec) == 0 {
		g.logger.Warn("embedding_empty", slog.String("model", g.provider.ModelName()))
		return nil
	}
	if g.dims > 0 && len(vec) != g.dims {
		g.logger.Warn("embedding_dimension_mismatch",
			slog.String("model", g.provider.ModelName()),
			slog.Int("expected", g.dims),
			slog.Int("got", len(vec)))
		return nil
	}
	return vec
}

// IsAvailable embeds ProbeText and reports whether a vector came back.
// It is a diagnostic; indexing and search do not depend on it.
func (g *Generator) IsAvailable(ctx context.Context) bool {
	return len(g.Embed(ctx, ProbeText)) > 0
}

// EmbedCodeChunk embeds the composed class/method/summary/code text of c.
func (g *Generator) EmbedCodeChunk(ctx context.Context, c *store.CodeChunk) []float32 {
	if c == nil {
		return nil
	}
	return g.Embed(ctx, CodeChunkText(c))
}

// EmbedDocument embeds title and content of d.
func (g *Generator) EmbedDocument(ctx context.Context, d *store.Document) []float32 {
	if d == nil {
		return nil
	}
	return g.Embed(ctx, DocumentText(d))
}

// ModelName returns the provider's model.
func (g *Generator) ModelName() string { return g.provider.ModelName() }

// Close closes the provider.
func (g *Generator) Close() error { return g.provider.Close() }

// CodeChunkText is the text embedded for a code chunk. Empty parts are left out.
func CodeChunkText(c *store.CodeChunk) string {
	var lines []string
	if c.ClassName != "" {
		lines = append(lines, "Class: "+c.ClassName)
	}
	if c.MethodName != "" {
		lines = append(lines, "Method: "+c.MethodName)
	}
	if c.DocSummary != "" {
		lines = append(lines, "Description: "+c.DocSummary)
	}
	if c.Content != "" {
		lines = append(lines, "Code: "+c.Content)
	}
	return strings.Join(lines, "\n")
}

// DocumentText is the text embedded for a document.
func DocumentText(d *store.Document) string {
	return d.Title + "\n\n" + d.Content
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
