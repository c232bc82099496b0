package mcp

import (
	"time"

	"github.com/Aman-CERP/amanctx/internal/search"
	"github.com/Aman-CERP/amanctx/internal/ui"
)

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query"`
	Scope string `json:"scope,omitempty" jsonschema:"scope identifier to search within; empty searches all scopes"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Query   string          `json:"query"`
	Path    search.Path     `json:"path" jsonschema:"hybrid, lexical or empty"`
	Count   int             `json:"count"`
	Results []search.Result `json:"results"`
}

// BuildContextInput defines the input schema for the build_context tool.
type BuildContextInput struct {
	Query     string `json:"query" jsonschema:"the user question"`
	Scope     string `json:"scope,omitempty" jsonschema:"scope identifier to search within"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of search results, default 10"`
	MaxLength int    `json:"max_length,omitempty" jsonschema:"maximum context length in characters, default 4000"`
}

// BuildContextOutput defines the output schema for the build_context tool.
type BuildContextOutput struct {
	Prompt     string      `json:"prompt" jsonschema:"ready-to-send prompt, or the bare query when no context was found"`
	Context    string      `json:"context"`
	HasContext bool        `json:"has_context"`
	Results    int         `json:"results"`
	Path       search.Path `json:"path"`
}

// ReviewContextOutput defines the output schema for the review_context tool.
type ReviewContextOutput struct {
	Context    string `json:"context" jsonschema:"markdown context for the reviewer; empty when nothing relevant was found"`
	HasContext bool   `json:"has_context"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Dimensions       int                   `json:"dimensions"`
	Collections      []ui.CollectionStatus `json:"collections"`
	LastIndexed      string                `json:"last_indexed,omitempty" jsonschema:"RFC 3339 time of the newest record"`
	EmbedderProvider string                `json:"embedder_provider"`
	EmbedderModel    string                `json:"embedder_model,omitempty"`
	EmbedderStatus   string                `json:"embedder_status" jsonschema:"ready, offline or error; offline means keyword search only"`
	ChunkerStatus    string                `json:"chunker_status" jsonschema:"ready, offline or n/a"`
	Queue            *ui.QueueStatus       `json:"queue,omitempty"`
}

func statusOutput(info ui.StatusInfo) *IndexStatusOutput {
	out := &IndexStatusOutput{
		Dimensions:       info.Dimensions,
		Collections:      info.Collections,
		EmbedderProvider: info.EmbedderProvider,
		EmbedderModel:    info.EmbedderModel,
		EmbedderStatus:   info.EmbedderStatus,
		ChunkerStatus:    info.ChunkerStatus,
		Queue:            info.Queue,
	}
	if !info.LastIndexed.IsZero() {
		out.LastIndexed = info.LastIndexed.UTC().Format(time.RFC3339)
	}
	return out
}
