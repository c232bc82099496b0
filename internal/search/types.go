// Package search is the hybrid retrieval engine. It runs lexical and vector
// searches over the code and document collections, fuses each pair with
// Reciprocal Rank Fusion (RRF) and merges the two fused lists. When the
// query cannot be embedded, or a backend fails, it falls back to
// lexical-only search.
package search

import (
	"context"
	"time"

	"github.com/Aman-CERP/amanctx/internal/store"
)

// Tunables.
const (
	// DefaultRRFConstant is the RRF smoothing constant K.
	DefaultRRFConstant = 60

	DefaultTopK = 10
	MaxTopK     = 100

	DefaultBackendTimeout = 5 * time.Second
)

// Backend is the collection store the engine reads from.
type Backend interface {
	LexicalSearch(ctx context.Context, kind store.Kind, text, scope string, k int) ([]store.Hit, error)
	VectorSearch(ctx context.Context, kind store.Kind, vec []float32, scope string, k int) ([]store.Hit, error)
}

// QueryEmbedder embeds query text. A nil vector means no embedding.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Options configures one search.
type Options struct {
	// ScopeID restricts every channel to one scope. Empty searches all.
	ScopeID string

	// TopK is the number of results. Zero or negative means the default;
	// values above the maximum are capped.
	TopK int
}

// Path records which branch produced a Response.
type Path string

const (
	PathHybrid  Path = "hybrid"
	PathLexical Path = "lexical"
	PathEmpty   Path = "empty"
)

// Result is one ranked search result. Results are never persisted.
type Result struct {
	Kind       store.Kind `json:"kind"`
	Score      float64    `json:"score"`
	ScopeID    string     `json:"scopeId"`
	Identity   string     `json:"identity"`
	Title      string     `json:"title,omitempty"`
	ClassName  string     `json:"className,omitempty"`
	MethodName string     `json:"methodName,omitempty"`
	APIName    string     `json:"apiName,omitempty"`
	Language   string     `json:"language,omitempty"`
	FilePath   string     `json:"filePath,omitempty"`
	DocumentID string     `json:"documentId,omitempty"`
	Content    string     `json:"content"`
	Summary    string     `json:"summary,omitempty"`

	// LexicalRank and VectorRank are the 1-indexed channel positions that
	// contributed to a fused score (0 when absent).
	LexicalRank int `json:"lexicalRank,omitempty"`
	VectorRank  int `json:"vectorRank,omitempty"`
}

// Response is the outcome of one Search call.
type Response struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
	Path    Path     `json:"path"`
}

// HasContext reports whether any result came back.
func (r *Response) HasContext() bool {
	return r != nil && len(r.Results) > 0
}

// resultFromHit copies the identifying fields of a hit.
func resultFromHit(h store.Hit) Result {
	r := Result{Kind: h.Kind, Score: h.Score}
	switch {
	case h.Code != nil:
		c := h.Code
		r.ScopeID = c.ScopeID
		r.Identity = c.Identity
		r.ClassName = c.ClassName
		r.MethodName = c.MethodName
		r.APIName = c.APIName
		r.Language = c.Language
		r.FilePath = c.FilePath
		r.Content = c.Content
		r.Summary = c.DocSummary
	case h.Document != nil:
		d := h.Document
		r.ScopeID = d.ScopeID
		r.Identity = d.Identity
		r.Title = d.Title
		r.DocumentID = d.DocumentID
		r.Content = d.Content
	}
	return r
}

func resultsFromHits(hits []store.Hit) []Result {
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, resultFromHit(h))
	}
	return out
}
