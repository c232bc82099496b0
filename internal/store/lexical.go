package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
)

var errIndexClosed = errors.New("index is closed")

// lexicalIndex wraps one bleve index.
type lexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// boltTimeout bounds the wait for another process's hold on the index.
const boltTimeout = time.Second

// scoredID is a bleve hit before its payload is loaded.
type scoredID struct {
	ID    string
	Score float64
}

// openLexical opens or creates the bleve index at path. An empty path
// creates an in-memory index. A corrupted on-disk index is cleared and
// recreated; the caller repopulates it from SQLite.
func openLexical(path string, m mapping.IndexMapping) (*lexicalIndex, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(m)
		if err != nil {
			return nil, fmt.Errorf("create in-memory index: %w", err)
		}
		return &lexicalIndex{index: idx}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	if verr := validateIndexIntegrity(path); verr != nil {
		slog.Warn("lexical_index_corrupted", slog.String("path", path), slog.String("error", verr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w", path, err)
		}
	}

	idx, err := bleve.OpenUsing(path, map[string]interface{}{"bolt_timeout": boltTimeout.String()})
	switch {
	case err != nil && strings.Contains(err.Error(), "timeout"):
		return nil, amerrors.New(amerrors.ErrCodeLockHeld, "lexical index is open in another process", err).
			WithDetail("path", path).
			WithSuggestion("Stop the other amanctx process (watch, serve or queue run) using this data directory")
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		idx, err = bleve.New(path, m)
	case err != nil && isCorruptionError(err):
		slog.Warn("lexical_index_open_failed", slog.String("path", path), slog.String("error", err.Error()))
		if rerr := os.RemoveAll(path); rerr != nil {
			return nil, fmt.Errorf("lexical index corrupted, cannot clear: %w", rerr)
		}
		idx, err = bleve.New(path, m)
	}
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}
	return &lexicalIndex{index: idx, path: path}, nil
}

// validateIndexIntegrity checks index_meta.json before bleve.Open, which
// otherwise fails in ways that are hard to tell apart from a real error.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	if len(data) == 0 {
		return errors.New("index_meta.json is empty")
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt")
}

func (l *lexicalIndex) put(id string, doc any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errIndexClosed
	}
	return l.index.Index(id, doc)
}

func (l *lexicalIndex) remove(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errIndexClosed
	}
	batch := l.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return l.index.Batch(batch)
}

// rebuild replaces the index content with docs.
func (l *lexicalIndex) rebuild(docs map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errIndexClosed
	}

	batch := l.index.NewBatch()
	ids, err := l.allIDsLocked()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, keep := docs[id]; !keep {
			batch.Delete(id)
		}
	}
	for id, doc := range docs {
		if err := batch.Index(id, doc); err != nil {
			return fmt.Errorf("index %s: %w", id, err)
		}
	}
	return l.index.Batch(batch)
}

func (l *lexicalIndex) allIDsLocked() ([]string, error) {
	n, err := l.index.DocCount()
	if err != nil || n == 0 {
		return nil, err
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(n)
	res, err := l.index.Search(req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

func (l *lexicalIndex) search(ctx context.Context, q query.Query, k int) ([]scoredID, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, errIndexClosed
	}

	req := bleve.NewSearchRequest(q)
	req.Size = k
	res, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	out := make([]scoredID, 0, len(res.Hits))
	for _, h := range res.Hits {
		out = append(out, scoredID{ID: h.ID, Score: h.Score})
	}
	return out, nil
}

func (l *lexicalIndex) count() (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return 0, errIndexClosed
	}
	return l.index.DocCount()
}

func (l *lexicalIndex) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.index.Close()
}

// boostedField pairs a lexical field with its query-time boost.
type boostedField struct {
	Name  string
	Boost float64
}

// resolveBoosts keeps the boosts for fields def declares, ordered by name.
func resolveBoosts(def collectionDef, boosts map[string]float64) []boostedField {
	out := make([]boostedField, 0, len(boosts))
	for name, b := range boosts {
		if b > 0 && def.hasField(name) {
			out = append(out, boostedField{Name: name, Boost: b})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// buildLexicalQuery composes the weighted multi-field query. Each query term
// is matched against every boosted field; at least minShouldMatch percent of
// the terms (rounded down, minimum one) must match in some field. A
// non-empty scope adds a required term filter on the keyword scope field.
// It returns nil when text has no usable terms.
func buildLexicalQuery(text string, fields []boostedField, minShouldMatch int, scope string) query.Query {
	terms := queryTerms(text)
	if len(terms) == 0 || len(fields) == 0 {
		return nil
	}

	perTerm := make([]query.Query, 0, len(terms))
	for _, term := range terms {
		alts := make([]query.Query, 0, len(fields))
		for _, f := range fields {
			mq := bleve.NewMatchQuery(term)
			mq.SetField(f.Name)
			mq.SetBoost(f.Boost)
			alts = append(alts, mq)
		}
		perTerm = append(perTerm, bleve.NewDisjunctionQuery(alts...))
	}

	textQuery := bleve.NewDisjunctionQuery(perTerm...)
	textQuery.SetMin(float64(requiredMatches(len(terms), minShouldMatch)))

	if scope == "" {
		return textQuery
	}
	scopeQuery := bleve.NewTermQuery(scope)
	scopeQuery.SetField(ScopeField)
	return bleve.NewConjunctionQuery(textQuery, scopeQuery)
}

func requiredMatches(terms, percent int) int {
	n := terms * percent / 100
	if n < 1 {
		n = 1
	}
	return n
}
