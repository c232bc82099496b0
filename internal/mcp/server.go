package mcp

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanctx/internal/rag"
	"github.com/Aman-CERP/amanctx/internal/search"
	"github.com/Aman-CERP/amanctx/internal/ui"
	"github.com/Aman-CERP/amanctx/pkg/version"
)

const (
	serverName = "amanctx"

	defaultLimit = search.DefaultTopK
	maxLimit     = search.MaxTopK
)

// Retriever is the retrieval surface the tools call. *rag.Service
// satisfies it.
type Retriever interface {
	SearchOnly(ctx context.Context, query, scope string, maxResults int) *rag.SearchResult
	Retrieve(ctx context.Context, query, scope string, maxResults, maxLen int) *rag.RAGContext
	ReviewContext(ctx context.Context, req rag.ReviewRequest) string
}

// StatusFunc collects the index status on demand.
type StatusFunc func(ctx context.Context) (ui.StatusInfo, error)

// Server is the MCP server. It bridges AI clients with the retrieval
// service.
type Server struct {
	mcp       *mcp.Server
	retriever Retriever
	status    StatusFunc
	logger    *slog.Logger
}

// NewServer creates a server and registers its tools. status may be nil,
// in which case index_status is not offered.
func NewServer(retriever Retriever, status StatusFunc, logger *slog.Logger) (*Server, error) {
	if retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		retriever: retriever,
		status:    status,
		logger:    logger,
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version.Version}, nil)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Hybrid keyword and semantic search over indexed code chunks and documents. Returns ranked results with file paths, API names and content.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "build_context",
		Description: "Search and assemble a length-bounded context block plus a ready-to-send prompt for answering a question about the indexed code.",
	}, s.handleBuildContext)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "review_context",
		Description: "Build code review context for a pull request from its title, description, changed files and diff.",
	}, s.handleReviewContext)

	count := 3
	if s.status != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "index_status",
			Description: "Report collection counts and whether the embedding and chunking services are reachable. Offline embeddings mean keyword-only search.",
		}, s.handleIndexStatus)
		count++
	}
	s.logger.Info("mcp_tools_registered", slog.Int("count", count))
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	limit := clampLimit(in.Limit, defaultLimit, 1, maxLimit)

	done := s.begin("search", in.Scope)
	res := s.retriever.SearchOnly(ctx, in.Query, in.Scope, limit)
	done(slog.Int("result_count", res.Count), slog.String("path", string(res.Path)))

	out := SearchOutput{Query: res.Query, Path: res.Path, Count: res.Count, Results: res.Results}
	return textResult(FormatSearchResults(in.Query, res.Results, res.Path)), out, nil
}

func (s *Server) handleBuildContext(ctx context.Context, _ *mcp.CallToolRequest, in BuildContextInput) (*mcp.CallToolResult, BuildContextOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, BuildContextOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	if in.MaxLength < 0 {
		return nil, BuildContextOutput{}, NewInvalidParamsError("max_length must not be negative")
	}
	limit := clampLimit(in.Limit, defaultLimit, 1, maxLimit)

	done := s.begin("build_context", in.Scope)
	rc := s.retriever.Retrieve(ctx, in.Query, in.Scope, limit, in.MaxLength)
	done(slog.Int("result_count", len(rc.Results)), slog.Bool("has_context", rc.HasContext))

	out := BuildContextOutput{
		Prompt:     rc.Prompt,
		Context:    rc.ContextText,
		HasContext: rc.HasContext,
		Results:    len(rc.Results),
		Path:       rc.Path,
	}
	return textResult(rc.Prompt), out, nil
}

func (s *Server) handleReviewContext(ctx context.Context, _ *mcp.CallToolRequest, in rag.ReviewRequest) (*mcp.CallToolResult, ReviewContextOutput, error) {
	if in.Scope() == "" {
		return nil, ReviewContextOutput{}, NewInvalidParamsError("repository_id or task_id is required")
	}

	done := s.begin("review_context", in.Scope())
	text := s.retriever.ReviewContext(ctx, in)
	done(slog.Bool("has_context", text != ""))

	out := ReviewContextOutput{Context: text, HasContext: text != ""}
	if text == "" {
		text = "No relevant context found for this change."
	}
	return textResult(text), out, nil
}

func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (*mcp.CallToolResult, *IndexStatusOutput, error) {
	done := s.begin("index_status", "")
	info, err := s.status(ctx)
	if err != nil {
		done(slog.String("error", err.Error()))
		return nil, nil, MapError(err)
	}
	done()
	return nil, statusOutput(info), nil
}

// begin logs a tool call and returns a func that logs its completion
// under the same request ID.
func (s *Server) begin(tool, scope string) func(attrs ...slog.Attr) {
	requestID := uuid.NewString()[:8]
	start := time.Now()
	s.logger.Info("tool_started",
		slog.String("tool", tool),
		slog.String("request_id", requestID),
		slog.String("scope", scope))

	return func(attrs ...slog.Attr) {
		args := []any{
			slog.String("tool", tool),
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
		}
		for _, a := range attrs {
			args = append(args, a)
		}
		s.logger.Info("tool_completed", args...)
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// Serve runs the server over stdio until ctx ends or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}
