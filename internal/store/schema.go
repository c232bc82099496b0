package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	regexptokenizer "github.com/blevesearch/bleve/v2/analysis/tokenizer/regexp"
	"github.com/blevesearch/bleve/v2/mapping"
)

const (
	// CodeAnalyzerName splits on non-identifier characters, expands
	// camelCase/snake_case, lowercases and stems.
	CodeAnalyzerName = "code_ana"

	// ProseAnalyzerName handles CJK bigrams as well as whitespace-separated text.
	ProseAnalyzerName = cjk.AnalyzerName

	codePatternTokenizerName = "code_pattern"
	identifierPattern        = `[\p{L}\p{N}_$]+`

	// ScopeField is the keyword field every lexical query filters on.
	ScopeField = "scope"
)

// lexicalField is one analysed field of a collection's bleve mapping.
type lexicalField struct {
	Name     string
	Analyzer string
}

// collectionDef describes a collection across all three stores.
type collectionDef struct {
	Name    string
	Kind    Kind
	Columns []string
	Fields  []lexicalField
}

var codeCollection = collectionDef{
	Name: CollectionCode,
	Kind: KindCode,
	Columns: []string{
		"identity", "scope_id", "repo_id", "file_path", "language", "class_name",
		"method_name", "api_name", "doc_summary", "content", "content_hash",
		"chunk_size", "embedding", "indexed_at",
	},
	Fields: []lexicalField{
		{Name: "content", Analyzer: CodeAnalyzerName},
		{Name: "apiName", Analyzer: CodeAnalyzerName},
		{Name: "docSummary", Analyzer: ProseAnalyzerName},
		{Name: "className", Analyzer: CodeAnalyzerName},
		{Name: "methodName", Analyzer: CodeAnalyzerName},
	},
}

var documentCollection = collectionDef{
	Name: CollectionDocuments,
	Kind: KindDocument,
	Columns: []string{
		"identity", "scope_id", "repo_id", "document_id", "title", "content",
		"content_hash", "status", "embedding", "indexed_at",
	},
	Fields: []lexicalField{
		{Name: "content", Analyzer: ProseAnalyzerName},
		{Name: "title", Analyzer: ProseAnalyzerName},
	},
}

var collections = []collectionDef{codeCollection, documentCollection}

func collectionFor(kind Kind) (collectionDef, bool) {
	for _, c := range collections {
		if c.Kind == kind {
			return c, true
		}
	}
	return collectionDef{}, false
}

// signature is what the collections meta table records for drift checks.
func (c collectionDef) signature() string {
	fields := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		fields = append(fields, f.Name+"="+f.Analyzer)
	}
	sort.Strings(fields)
	return "columns:" + strings.Join(c.Columns, ",") + ";lexical:" + strings.Join(fields, ",")
}

func (c collectionDef) hasField(name string) bool {
	for _, f := range c.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// indexMapping builds the strict bleve mapping for a collection: only the
// declared fields are indexed and nothing is stored, since payloads come
// from SQLite.
func (c collectionDef) indexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	if err := im.AddCustomTokenizer(codePatternTokenizerName, map[string]interface{}{
		"type":   regexptokenizer.Name,
		"regexp": identifierPattern,
	}); err != nil {
		return nil, fmt.Errorf("add tokenizer: %w", err)
	}
	if err := im.AddCustomAnalyzer(CodeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": codePatternTokenizerName,
		"token_filters": []string{
			IdentifierSplitFilterName,
			lowercase.Name,
			porter.Name,
		},
	}); err != nil {
		return nil, fmt.Errorf("add analyzer: %w", err)
	}

	doc := bleve.NewDocumentStaticMapping()

	scope := bleve.NewKeywordFieldMapping()
	scope.Analyzer = keyword.Name
	scope.Store = false
	scope.IncludeInAll = false
	doc.AddFieldMappingsAt(ScopeField, scope)

	for _, f := range c.Fields {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = f.Analyzer
		fm.Store = false
		fm.IncludeTermVectors = false
		fm.IncludeInAll = false
		doc.AddFieldMappingsAt(f.Name, fm)
	}

	im.DefaultMapping = doc
	im.DefaultAnalyzer = ProseAnalyzerName
	im.IndexDynamic = false
	im.StoreDynamic = false
	im.DocValuesDynamic = false
	return im, nil
}

// codeLexicalDoc is the bleve view of a CodeChunk.
type codeLexicalDoc struct {
	Scope      string `json:"scope"`
	Content    string `json:"content"`
	APIName    string `json:"apiName"`
	DocSummary string `json:"docSummary"`
	ClassName  string `json:"className"`
	MethodName string `json:"methodName"`
}

// documentLexicalDoc is the bleve view of a Document.
type documentLexicalDoc struct {
	Scope   string `json:"scope"`
	Content string `json:"content"`
	Title   string `json:"title"`
}

func (c *CodeChunk) lexicalDoc() any {
	return codeLexicalDoc{
		Scope:      c.ScopeID,
		Content:    c.Content,
		APIName:    c.APIName,
		DocSummary: c.DocSummary,
		ClassName:  c.ClassName,
		MethodName: c.MethodName,
	}
}

func (d *Document) lexicalDoc() any {
	return documentLexicalDoc{Scope: d.ScopeID, Content: d.Content, Title: d.Title}
}

// sqlite DDL. Tables are STRICT so a type mismatch is an error rather than
// a silent coercion.
const (
	ddlCollections = `CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	signature  TEXT NOT NULL,
	dimensions INTEGER NOT NULL,
	created_at TEXT NOT NULL
) STRICT`

	ddlCodeChunks = `CREATE TABLE IF NOT EXISTS code_chunks (
	identity     TEXT PRIMARY KEY,
	scope_id     TEXT NOT NULL,
	repo_id      TEXT NOT NULL DEFAULT '',
	file_path    TEXT NOT NULL DEFAULT '',
	language     TEXT NOT NULL DEFAULT '',
	class_name   TEXT NOT NULL DEFAULT '',
	method_name  TEXT NOT NULL DEFAULT '',
	api_name     TEXT NOT NULL DEFAULT '',
	doc_summary  TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	chunk_size   INTEGER NOT NULL,
	embedding    BLOB,
	indexed_at   TEXT NOT NULL
) STRICT`

	ddlDocuments = `CREATE TABLE IF NOT EXISTS documents (
	identity     TEXT PRIMARY KEY,
	scope_id     TEXT NOT NULL,
	repo_id      TEXT NOT NULL DEFAULT '',
	document_id  TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	status       TEXT NOT NULL CHECK (status IN ('draft','in_progress','complete','failed')),
	embedding    BLOB,
	indexed_at   TEXT NOT NULL
) STRICT`
)

func (c collectionDef) ddl() []string {
	switch c.Kind {
	case KindCode:
		return []string{ddlCodeChunks, `CREATE INDEX IF NOT EXISTS idx_code_chunks_scope ON code_chunks(scope_id)`}
	case KindDocument:
		return []string{ddlDocuments, `CREATE INDEX IF NOT EXISTS idx_documents_scope ON documents(scope_id)`}
	}
	return nil
}
