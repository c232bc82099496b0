package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
)

// Defaults for Options fields left at zero.
const (
	DefaultDimensions          = 1024
	DefaultCandidateMultiplier = 10
	DefaultMinShouldMatch      = 75
)

// DefaultCodeBoosts are the per-field query boosts for code chunks.
func DefaultCodeBoosts() map[string]float64 {
	return map[string]float64{
		"content":    2.0,
		"apiName":    1.8,
		"docSummary": 1.5,
		"className":  1.2,
		"methodName": 1.2,
	}
}

// DefaultDocBoosts are the per-field query boosts for documents.
func DefaultDocBoosts() map[string]float64 {
	return map[string]float64{
		"content": 2.0,
		"title":   1.5,
	}
}

// Options configures a Store.
type Options struct {
	// Dir holds records.db and the bleve indexes. Empty means in-memory.
	Dir                 string
	Dimensions          int
	CandidateMultiplier int
	MinShouldMatch      int
	CodeBoosts          map[string]float64
	DocBoosts           map[string]float64
	Logger              *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Dimensions <= 0 {
		o.Dimensions = DefaultDimensions
	}
	if o.CandidateMultiplier < 1 {
		o.CandidateMultiplier = DefaultCandidateMultiplier
	}
	if o.MinShouldMatch <= 0 || o.MinShouldMatch > 100 {
		o.MinShouldMatch = DefaultMinShouldMatch
	}
	if len(o.CodeBoosts) == 0 {
		o.CodeBoosts = DefaultCodeBoosts()
	}
	if len(o.DocBoosts) == 0 {
		o.DocBoosts = DefaultDocBoosts()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// collection is one provisioned collection.
type collection struct {
	def     collectionDef
	boosts  []boostedField
	lexical *lexicalIndex
	vectors *vectorIndex
}

// Store manages the code_chunks and documents collections.
// It is safe for concurrent use.
type Store struct {
	opts   Options
	logger *slog.Logger
	db     *sql.DB

	mu          sync.RWMutex
	collections map[Kind]*collection
	closed      bool
}

// Open opens the payload database. Collections are provisioned separately
// by EnsureCollections.
func Open(opts Options) (*Store, error) {
	opts.applyDefaults()

	var dbPath string
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, amerrors.New(amerrors.ErrCodeCollectionProvision,
				"cannot create data directory", err).WithDetail("dir", opts.Dir)
		}
		dbPath = filepath.Join(opts.Dir, "records.db")
	}

	db, err := openRecords(dbPath)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeCollectionProvision, "cannot open record database", err).
			WithSuggestion("Check permissions on the data directory, or remove it and re-index")
	}

	return &Store{
		opts:        opts,
		logger:      opts.Logger,
		db:          db,
		collections: make(map[Kind]*collection),
	}, nil
}

// Dimensions returns the configured vector dimensionality.
func (s *Store) Dimensions() int { return s.opts.Dimensions }

// EnsureCollections provisions every collection that is not yet present.
// It is idempotent. A field or dimension change against what was
// provisioned before is ERR_SCHEMA_DRIFT.
func (s *Store) EnsureCollections(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return amerrors.New(amerrors.ErrCodeStoreClosed, "store is closed", nil)
	}

	if _, err := s.db.ExecContext(ctx, ddlCollections); err != nil {
		return s.provisionErr("collections", err)
	}

	for _, def := range collections {
		if _, ok := s.collections[def.Kind]; ok {
			continue
		}
		col, err := s.provision(ctx, def)
		if err != nil {
			return err
		}
		s.collections[def.Kind] = col
	}
	return nil
}

func (s *Store) provision(ctx context.Context, def collectionDef) (*collection, error) {
	for _, stmt := range def.ddl() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return nil, s.provisionErr(def.Name, err)
		}
	}

	drift, err := checkCollection(ctx, s.db, def, s.opts.Dimensions)
	if err != nil {
		return nil, s.provisionErr(def.Name, err)
	}
	if drift != "" {
		s.logger.Error("collection_schema_drift", slog.String("collection", def.Name), slog.String("detail", drift))
		return nil, amerrors.New(amerrors.ErrCodeSchemaDrift,
			fmt.Sprintf("collection %s does not match the expected schema: %s", def.Name, drift), nil).
			WithDetail("collection", def.Name).
			WithSuggestion("Remove the data directory and re-index, or restore the previous embedding configuration")
	}

	m, err := def.indexMapping()
	if err != nil {
		return nil, s.provisionErr(def.Name, err)
	}
	var lexPath string
	if s.opts.Dir != "" {
		lexPath = filepath.Join(s.opts.Dir, def.Name+".bleve")
	}
	lex, err := openLexical(lexPath, m)
	if err != nil {
		return nil, s.provisionErr(def.Name, err)
	}

	col := &collection{
		def:     def,
		lexical: lex,
		vectors: newVectorIndex(s.opts.Dimensions),
	}
	switch def.Kind {
	case KindCode:
		col.boosts = resolveBoosts(def, s.opts.CodeBoosts)
	case KindDocument:
		col.boosts = resolveBoosts(def, s.opts.DocBoosts)
	}

	if err := s.hydrate(ctx, col); err != nil {
		_ = lex.close()
		return nil, s.provisionErr(def.Name, err)
	}

	s.logger.Info("collection_ready",
		slog.String("collection", def.Name),
		slog.Int("vectors", col.vectors.count()),
		slog.Int("dimensions", s.opts.Dimensions))
	return col, nil
}

// hydrate loads the vector graph from SQLite and repairs the lexical index
// when its document count disagrees with the table.
func (s *Store) hydrate(ctx context.Context, col *collection) error {
	rows := 0
	docs := make(map[string]any)
	err := eachRecord(ctx, s.db, col.def.Kind, func(id, scope string, vec []float32, lexical any) error {
		rows++
		docs[id] = lexical
		if len(vec) == 0 {
			return nil
		}
		if err := col.vectors.set(id, scope, vec); err != nil {
			s.logger.Warn("vector_skipped", slog.String("identity", id), slog.String("error", err.Error()))
		}
		return nil
	})
	if err != nil {
		return err
	}

	n, err := col.lexical.count()
	if err != nil {
		return err
	}
	if int(n) == rows {
		return nil
	}
	s.logger.Warn("lexical_index_rebuild",
		slog.String("collection", col.def.Name),
		slog.Uint64("indexed", n),
		slog.Int("records", rows))
	return col.lexical.rebuild(docs)
}

func (s *Store) provisionErr(name string, err error) error {
	if amerrors.GetCode(err) == amerrors.ErrCodeLockHeld {
		return err
	}
	s.logger.Error("collection_provision_failed", slog.String("collection", name), slog.String("error", err.Error()))
	return amerrors.New(amerrors.ErrCodeCollectionProvision,
		fmt.Sprintf("failed to provision collection %s", name), err).WithDetail("collection", name)
}

func (s *Store) collection(kind Kind) (*collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, amerrors.New(amerrors.ErrCodeStoreClosed, "store is closed", nil)
	}
	col, ok := s.collections[kind]
	if !ok {
		if _, known := collectionFor(kind); !known {
			return nil, amerrors.New(amerrors.ErrCodeInvalidInput, fmt.Sprintf("unknown collection kind %q", kind), nil)
		}
		return nil, amerrors.New(amerrors.ErrCodeCollectionProvision,
			fmt.Sprintf("collection for %s is not provisioned", kind), nil).
			WithSuggestion("Call EnsureCollections before reading or writing")
	}
	return col, nil
}

// UpsertCodeChunk writes c by identity, overwriting any previous version.
// Derived fields that are empty are filled in first.
func (s *Store) UpsertCodeChunk(ctx context.Context, c *CodeChunk) error {
	if c == nil || c.ScopeID == "" || c.Content == "" {
		return amerrors.New(amerrors.ErrCodeInvalidInput, "code chunk requires scope and content", nil)
	}
	c.Prepare()
	return s.upsert(ctx, KindCode, c.Identity, c.ScopeID, c.Embedding, c.lexicalDoc(),
		func(tx *sql.Tx) error { return upsertCode(ctx, tx, c) },
		func(tx *sql.Tx) (*prior, error) {
			old, err := getCode(ctx, tx, c.Identity)
			if err != nil || old == nil {
				return nil, err
			}
			return &prior{scope: old.ScopeID, vec: old.Embedding, lexical: old.lexicalDoc()}, nil
		})
}

// UpsertDocument writes d by identity, overwriting any previous version.
func (s *Store) UpsertDocument(ctx context.Context, d *Document) error {
	if d == nil || d.ScopeID == "" || d.DocumentID == "" {
		return amerrors.New(amerrors.ErrCodeInvalidInput, "document requires scope and document id", nil)
	}
	if d.Status != "" && !d.Status.Valid() {
		return amerrors.New(amerrors.ErrCodeInvalidInput, fmt.Sprintf("unknown document status %q", d.Status), nil)
	}
	d.Prepare()
	return s.upsert(ctx, KindDocument, d.Identity, d.ScopeID, d.Embedding, d.lexicalDoc(),
		func(tx *sql.Tx) error { return upsertDocument(ctx, tx, d) },
		func(tx *sql.Tx) (*prior, error) {
			old, err := getDocument(ctx, tx, d.Identity)
			if err != nil || old == nil {
				return nil, err
			}
			return &prior{scope: old.ScopeID, vec: old.Embedding, lexical: old.lexicalDoc()}, nil
		})
}

// prior is the previous version of a record, used to undo index writes.
type prior struct {
	scope   string
	vec     []float32
	lexical any
}

// upsert writes the row, then the lexical and vector mirrors, then commits.
// A mirror failure rolls back the row; a commit failure restores the
// mirrors from the previous row.
func (s *Store) upsert(ctx context.Context, kind Kind, id, scope string, vec []float32, lexical any,
	write func(*sql.Tx) error, previous func(*sql.Tx) (*prior, error)) error {

	col, err := s.collection(kind)
	if err != nil {
		return err
	}
	if len(vec) > 0 && len(vec) != s.opts.Dimensions {
		return amerrors.New(amerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedding has %d dimensions, collection expects %d", len(vec), s.opts.Dimensions), nil).
			WithDetail("identity", id)
	}

	fail := func(stage string, err error) error {
		return amerrors.New(amerrors.ErrCodeUpsertFailed, fmt.Sprintf("upsert %s: %s", col.def.Name, stage), err).
			WithDetail("identity", id).
			WithDetail("scope", scope)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	old, err := previous(tx)
	if err != nil {
		return fail("read previous", err)
	}
	if err := write(tx); err != nil {
		return fail("write row", err)
	}
	if err := col.lexical.put(id, lexical); err != nil {
		return fail("lexical index", err)
	}

	if len(vec) > 0 {
		if err := col.vectors.set(id, scope, vec); err != nil {
			s.restore(col, id, old)
			return fail("vector index", err)
		}
	} else {
		col.vectors.remove(id)
	}

	if err := tx.Commit(); err != nil {
		s.restore(col, id, old)
		return fail("commit", err)
	}
	return nil
}

// restore puts the mirrors back to old, or removes id when there was none.
func (s *Store) restore(col *collection, id string, old *prior) {
	if old == nil {
		if err := col.lexical.remove(id); err != nil {
			s.logger.Warn("lexical_revert_failed", slog.String("identity", id), slog.String("error", err.Error()))
		}
		col.vectors.remove(id)
		return
	}
	if err := col.lexical.put(id, old.lexical); err != nil {
		s.logger.Warn("lexical_revert_failed", slog.String("identity", id), slog.String("error", err.Error()))
	}
	if len(old.vec) > 0 {
		if err := col.vectors.set(id, old.scope, old.vec); err != nil {
			s.logger.Warn("vector_revert_failed", slog.String("identity", id), slog.String("error", err.Error()))
		}
	} else {
		col.vectors.remove(id)
	}
}

// LexicalSearch runs the weighted multi-field query against kind's
// collection and returns up to k hits ordered by native score. A query with
// no usable terms returns no hits.
func (s *Store) LexicalSearch(ctx context.Context, kind Kind, text, scope string, k int) ([]Hit, error) {
	col, err := s.collection(kind)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	q := buildLexicalQuery(text, col.boosts, s.opts.MinShouldMatch, scope)
	if q == nil {
		return nil, nil
	}
	ids, err := col.lexical.search(ctx, q, k)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "lexical search failed", err).
			WithDetail("collection", col.def.Name)
	}
	return s.hydrateHits(ctx, kind, ids)
}

// VectorSearch returns up to k nearest records to vec by cosine similarity.
func (s *Store) VectorSearch(ctx context.Context, kind Kind, vec []float32, scope string, k int) ([]Hit, error) {
	col, err := s.collection(kind)
	if err != nil {
		return nil, err
	}
	if k <= 0 || len(vec) == 0 {
		return nil, nil
	}
	if len(vec) != s.opts.Dimensions {
		return nil, amerrors.New(amerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query vector has %d dimensions, collection expects %d", len(vec), s.opts.Dimensions), nil)
	}
	ids, err := col.vectors.search(ctx, vec, scope, k, s.opts.CandidateMultiplier)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "vector search failed", err).
			WithDetail("collection", col.def.Name)
	}
	return s.hydrateHits(ctx, kind, ids)
}

// hydrateHits loads payloads for ids, keeping their order.
func (s *Store) hydrateHits(ctx context.Context, kind Kind, ids []scoredID) ([]Hit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, sid := range ids {
		keys[i] = sid.ID
	}

	hits := make([]Hit, 0, len(ids))
	switch kind {
	case KindCode:
		rows, err := loadCode(ctx, s.db, keys)
		if err != nil {
			return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "load code payloads", err)
		}
		for _, sid := range ids {
			if c, ok := rows[sid.ID]; ok {
				hits = append(hits, Hit{Kind: KindCode, Score: sid.Score, Code: c})
			}
		}
	case KindDocument:
		rows, err := loadDocuments(ctx, s.db, keys)
		if err != nil {
			return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "load document payloads", err)
		}
		for _, sid := range ids {
			if d, ok := rows[sid.ID]; ok {
				hits = append(hits, Hit{Kind: KindDocument, Score: sid.Score, Document: d})
			}
		}
	}
	return hits, nil
}

// GetCodeChunk returns the chunk stored under identity, or nil.
func (s *Store) GetCodeChunk(ctx context.Context, identity string) (*CodeChunk, error) {
	if _, err := s.collection(KindCode); err != nil {
		return nil, err
	}
	return getCode(ctx, s.db, identity)
}

// GetDocument returns the document stored under identity, or nil.
func (s *Store) GetDocument(ctx context.Context, identity string) (*Document, error) {
	if _, err := s.collection(KindDocument); err != nil {
		return nil, err
	}
	return getDocument(ctx, s.db, identity)
}

// DeleteScope removes every record in scope from all collections and
// returns how many rows were deleted.
func (s *Store) DeleteScope(ctx context.Context, scope string) (int, error) {
	if scope == "" {
		return 0, amerrors.New(amerrors.ErrCodeInvalidInput, "scope is required", nil)
	}

	total := 0
	for _, def := range collections {
		col, err := s.collection(def.Kind)
		if err != nil {
			return total, err
		}
		n, err := s.deleteScope(ctx, col, scope)
		total += n
		if err != nil {
			return total, err
		}
	}
	s.logger.Info("scope_deleted", slog.String("scope", scope), slog.Int("records", total))
	return total, nil
}

func (s *Store) deleteScope(ctx context.Context, col *collection, scope string) (int, error) {
	return s.deleteWhere(ctx, col, `scope_id = ?`, scope)
}

// DeleteFileChunks removes the code chunks of filePath in scope whose
// identity is not in keep. An empty keep removes every chunk of the file.
func (s *Store) DeleteFileChunks(ctx context.Context, scope, filePath string, keep []string) (int, error) {
	if scope == "" || filePath == "" {
		return 0, amerrors.New(amerrors.ErrCodeInvalidInput, "scope and file path are required", nil)
	}
	col, err := s.collection(KindCode)
	if err != nil {
		return 0, err
	}
	where := `scope_id = ? AND file_path = ?`
	args := []any{scope, filePath}
	if len(keep) > 0 {
		where += ` AND identity NOT IN (` + placeholders(len(keep)) + `)`
		args = append(args, toArgs(keep)...)
	}
	n, err := s.deleteWhere(ctx, col, where, args...)
	if n > 0 {
		s.logger.Debug("file_chunks_pruned", slog.String("scope", scope),
			slog.String("file", filePath), slog.Int("records", n))
	}
	return n, err
}

// deleteWhere removes matching rows, then drops them from the mirrors.
func (s *Store) deleteWhere(ctx context.Context, col *collection, where string, args ...any) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	ids, err := matchingIdentities(ctx, tx, col.def.Name, where, args...)
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+col.def.Name+` WHERE `+where, args...); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	// Rows are gone; a lexical failure here is repaired by the next hydrate.
	if err := col.lexical.remove(ids...); err != nil {
		s.logger.Warn("lexical_delete_failed", slog.String("collection", col.def.Name), slog.String("error", err.Error()))
	}
	col.vectors.remove(ids...)
	return len(ids), nil
}

// Stats reports record, vector and lexical counts per collection.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Dimensions: s.opts.Dimensions, InMemory: s.opts.Dir == ""}
	for _, def := range collections {
		col, err := s.collection(def.Kind)
		if err != nil {
			return nil, err
		}
		n, err := countRows(ctx, s.db, def.Name)
		if err != nil {
			return nil, amerrors.Wrap(amerrors.ErrCodeInternal, err)
		}
		lex, err := col.lexical.count()
		if err != nil {
			return nil, amerrors.Wrap(amerrors.ErrCodeInternal, err)
		}
		last, err := lastIndexed(ctx, s.db, def.Name)
		if err != nil {
			return nil, amerrors.Wrap(amerrors.ErrCodeInternal, err)
		}
		if last.After(st.LastIndexed) {
			st.LastIndexed = last
		}
		st.Collections = append(st.Collections, CollectionStats{
			Name:        def.Name,
			Records:     n,
			Vectors:     col.vectors.count(),
			LexicalDocs: lex,
		})
	}
	return st, nil
}

// Close releases all resources. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for _, col := range s.collections {
		if err := col.lexical.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		col.vectors.close()
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
