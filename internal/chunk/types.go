// Package chunk is the client of the external AST chunking service, which
// splits source files into method-level chunks.
package chunk

import "context"

// Chunk is one method-level fragment returned by the chunking service.
// Optional fields are empty when the service could not determine them.
type Chunk struct {
	ID         string `json:"id"`
	Language   string `json:"language"`
	SubType    string `json:"subType,omitempty"`
	ClassName  string `json:"className,omitempty"`
	MethodName string `json:"methodName,omitempty"`
	APIName    string `json:"apiName,omitempty"`
	DocSummary string `json:"docSummary,omitempty"`
	Content    string `json:"content"`
}

// Chunker splits source code into chunks.
type Chunker interface {
	// Parse returns the chunks of code. A file with no methods yields an
	// empty slice and no error.
	Parse(ctx context.Context, language, code string) ([]Chunk, error)

	// Healthy reports whether the service answers its health check.
	Healthy(ctx context.Context) bool
}

type parseRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	MaxChars int    `json:"max_chars"`
}

// The service emits null for unknown fields; pointers keep the decode
// lenient and are flattened into Chunk.
type wireChunk struct {
	ID         string  `json:"id"`
	Language   string  `json:"language"`
	SubType    *string `json:"subType"`
	ClassName  *string `json:"className"`
	MethodName *string `json:"methodName"`
	APIName    *string `json:"apiName"`
	DocSummary *string `json:"docSummary"`
	Content    string  `json:"content"`
}

type parseResponse struct {
	Chunks []wireChunk `json:"chunks"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (w wireChunk) chunk() Chunk {
	return Chunk{
		ID:         w.ID,
		Language:   w.Language,
		SubType:    deref(w.SubType),
		ClassName:  deref(w.ClassName),
		MethodName: deref(w.MethodName),
		APIName:    deref(w.APIName),
		DocSummary: deref(w.DocSummary),
		Content:    w.Content,
	}
}
