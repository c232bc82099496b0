// Package store is the persistence layer for indexed records.
//
// Each collection (code chunks, documents) lives in three places that are
// kept in step: a SQLite STRICT table holding the typed payload, a bleve
// index for weighted lexical search, and an HNSW graph for cosine kNN.
// SQLite is authoritative; the graphs are rebuilt from it on open.
package store

import (
	"time"
)

// Kind identifies a collection.
type Kind string

const (
	KindCode     Kind = "code"
	KindDocument Kind = "document"
)

// Collection names.
const (
	CollectionCode      = "code_chunks"
	CollectionDocuments = "documents"
)

// DocumentStatus is the lifecycle state of a catalogue document.
type DocumentStatus string

const (
	StatusDraft      DocumentStatus = "draft"
	StatusInProgress DocumentStatus = "in_progress"
	StatusComplete   DocumentStatus = "complete"
	StatusFailed     DocumentStatus = "failed"
)

// StatusFromCode maps catalogue status codes (1 in progress, 2 completed,
// 3 failed) to a DocumentStatus. Anything else is a draft.
func StatusFromCode(code int) DocumentStatus {
	switch code {
	case 1:
		return StatusInProgress
	case 2:
		return StatusComplete
	case 3:
		return StatusFailed
	default:
		return StatusDraft
	}
}

// Valid reports whether s is a known status.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// CodeChunk is one parsed unit of source code.
type CodeChunk struct {
	ScopeID     string    `json:"scopeId" validate:"required"`
	RepoID      string    `json:"repoId,omitempty"`
	FilePath    string    `json:"filePath,omitempty"`
	Language    string    `json:"language,omitempty"`
	ClassName   string    `json:"className,omitempty"`
	MethodName  string    `json:"methodName,omitempty"`
	APIName     string    `json:"apiName,omitempty"`
	DocSummary  string    `json:"docSummary,omitempty"`
	Content     string    `json:"content" validate:"required"`
	ContentHash string    `json:"contentHash,omitempty"`
	Identity    string    `json:"identity,omitempty"`
	ChunkSize   int       `json:"chunkSize,omitempty"`
	Embedding   []float32 `json:"-"`
	IndexedAt   time.Time `json:"indexedAt,omitempty"`
}

// Document is one catalogue entry (design doc, wiki page, spec).
type Document struct {
	ScopeID     string         `json:"scopeId" validate:"required"`
	RepoID      string         `json:"repoId,omitempty"`
	DocumentID  string         `json:"documentId" validate:"required"`
	Title       string         `json:"title,omitempty"`
	Content     string         `json:"content"`
	ContentHash string         `json:"contentHash,omitempty"`
	Identity    string         `json:"identity,omitempty"`
	Status      DocumentStatus `json:"status,omitempty"`
	Embedding   []float32      `json:"-"`
	IndexedAt   time.Time      `json:"indexedAt,omitempty"`
}

// Hit is a single search hit with its payload. Exactly one of Code or
// Document is set, matching Kind.
type Hit struct {
	Kind     Kind
	Score    float64
	Code     *CodeChunk
	Document *Document
}

// Identity returns the payload identity.
func (h Hit) Identity() string {
	if h.Code != nil {
		return h.Code.Identity
	}
	if h.Document != nil {
		return h.Document.Identity
	}
	return ""
}

// CollectionStats describes one collection.
type CollectionStats struct {
	Name        string `json:"name"`
	Records     int    `json:"records"`
	Vectors     int    `json:"vectors"`
	LexicalDocs uint64 `json:"lexicalDocs"`
}

// Stats describes the whole store.
type Stats struct {
	Dimensions  int               `json:"dimensions"`
	InMemory    bool              `json:"inMemory"`
	Collections []CollectionStats `json:"collections"`
	LastIndexed time.Time         `json:"lastIndexed,omitzero"`
}
