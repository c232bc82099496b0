package rag

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/amanctx/internal/search"
)

// Searcher runs a query. *search.Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) *search.Response
}

// ServiceConfig sets the assembly caps. Zero fields take the defaults.
type ServiceConfig struct {
	Chat             Limits
	Review           Limits
	DefaultMaxLength int
	ReviewMaxLength  int
}

// Service composes the search engine and the assemblers.
type Service struct {
	searcher Searcher
	chat     *Assembler
	review   *Assembler
	cfg      ServiceConfig
	logger   *slog.Logger
}

// NewService creates a service.
func NewService(searcher Searcher, cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.Review.CodeItemCap <= 0 {
		cfg.Review.CodeItemCap = ReviewCodeItemCap
	}
	if cfg.Review.DocItemCap <= 0 {
		cfg.Review.DocItemCap = ReviewDocItemCap
	}
	if cfg.DefaultMaxLength <= 0 {
		cfg.DefaultMaxLength = DefaultMaxLength
	}
	if cfg.ReviewMaxLength <= 0 {
		cfg.ReviewMaxLength = ReviewMaxLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		searcher: searcher,
		chat:     NewAssembler(cfg.Chat),
		review:   NewAssembler(cfg.Review),
		cfg:      cfg,
		logger:   logger,
	}
}

// RAGContext is a retrieval outcome ready for an LLM call.
type RAGContext struct {
	Query       string          `json:"query"`
	Prompt      string          `json:"prompt"`
	ContextText string          `json:"context"`
	Results     []search.Result `json:"results"`
	HasContext  bool            `json:"has_context"`
	Path        search.Path     `json:"path"`
}

// Retrieve searches and assembles a chat context. With no results the
// prompt is the bare query and HasContext is false.
func (s *Service) Retrieve(ctx context.Context, query, scope string, maxResults, maxLen int) *RAGContext {
	if maxLen <= 0 {
		maxLen = s.cfg.DefaultMaxLength
	}
	resp := s.searcher.Search(ctx, query, search.Options{ScopeID: scope, TopK: maxResults})

	out := &RAGContext{
		Query:       query,
		Prompt:      query,
		ContextText: NoContextMarker,
		Results:     resp.Results,
		Path:        resp.Path,
	}
	if !resp.HasContext() {
		s.logger.Info("rag_no_results", slog.String("scope", scope), slog.String("path", string(resp.Path)))
		return out
	}

	c := s.chat.BuildContext(resp.Results, maxLen)
	out.ContextText = c.Text
	out.HasContext = c.NonEmpty
	if c.NonEmpty {
		out.Prompt = BuildPrompt(query, c)
	}
	s.logger.Info("rag_context_built",
		slog.String("scope", scope),
		slog.Int("results", len(resp.Results)),
		slog.Int("items", c.Items),
		slog.Int("context_len", utf8.RuneCountInString(c.Text)))
	return out
}

// SearchResult is a plain search outcome.
type SearchResult struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
	Path    search.Path     `json:"path"`
}

// SearchOnly searches without assembling a context.
func (s *Service) SearchOnly(ctx context.Context, query, scope string, maxResults int) *SearchResult {
	resp := s.searcher.Search(ctx, query, search.Options{ScopeID: scope, TopK: maxResults})
	return &SearchResult{Query: query, Results: resp.Results, Count: len(resp.Results), Path: resp.Path}
}

// ReviewContext returns review context for a pull request, or "" when the
// search finds nothing.
func (s *Service) ReviewContext(ctx context.Context, req ReviewRequest) string {
	query := BuildReviewQuery(req)
	scope := req.Scope()
	s.logger.Debug("review_query", slog.String("scope", scope), slog.String("query", query))

	resp := s.searcher.Search(ctx, query, search.Options{ScopeID: scope, TopK: req.Limit()})
	if !resp.HasContext() {
		s.logger.Info("review_no_context", slog.String("scope", scope))
		return ""
	}

	header := reviewHeader(req)
	budget := max(s.cfg.ReviewMaxLength-utf8.RuneCountInString(header), 0)
	c := s.review.BuildContext(resp.Results, budget)
	s.logger.Info("review_context_built",
		slog.String("scope", scope),
		slog.Int("results", len(resp.Results)),
		slog.Int("items", c.Items))
	return header + c.Text
}

func reviewHeader(req ReviewRequest) string {
	var sb strings.Builder
	sb.WriteString("## Code review context\n\n")
	if t := strings.TrimSpace(req.PRTitle); t != "" {
		sb.WriteString("**PR title:** ")
		sb.WriteString(t)
		sb.WriteString("\n")
	}
	if len(req.ChangedFiles) > 0 {
		sb.WriteString("**Changed files:** ")
		sb.WriteString(strings.Join(req.ChangedFiles, ", "))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}
