package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// openRecords opens the payload database. An empty path opens an in-memory
// database; the single connection keeps it alive for the store's lifetime.
func openRecords(path string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != "" {
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer; also required for the in-memory database to persist.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if path != "" {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	return db, nil
}

// checkCollection records def in the collections table, or compares it with
// what is already recorded. A mismatch is reported as drift.
func checkCollection(ctx context.Context, q querier, def collectionDef, dims int) (drift string, err error) {
	var sig string
	var storedDims int
	err = q.QueryRowContext(ctx,
		`SELECT signature, dimensions FROM collections WHERE name = ?`, def.Name).Scan(&sig, &storedDims)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = q.ExecContext(ctx,
			`INSERT INTO collections (name, signature, dimensions, created_at) VALUES (?, ?, ?, ?)`,
			def.Name, def.signature(), dims, time.Now().UTC().Format(time.RFC3339Nano))
		return "", err
	}
	if err != nil {
		return "", err
	}
	switch {
	case sig != def.signature():
		return fmt.Sprintf("field definition changed (stored %q, expected %q)", sig, def.signature()), nil
	case storedDims != dims:
		return fmt.Sprintf("dimensions changed (stored %d, expected %d)", storedDims, dims), nil
	}
	return "", nil
}

const codeColumns = `identity, scope_id, repo_id, file_path, language, class_name, method_name,
	api_name, doc_summary, content, content_hash, chunk_size, embedding, indexed_at`

const documentColumns = `identity, scope_id, repo_id, document_id, title, content, content_hash,
	status, embedding, indexed_at`

func upsertCode(ctx context.Context, q querier, c *CodeChunk) error {
	_, err := q.ExecContext(ctx, `INSERT INTO code_chunks (`+codeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			scope_id = excluded.scope_id,
			repo_id = excluded.repo_id,
			file_path = excluded.file_path,
			language = excluded.language,
			class_name = excluded.class_name,
			method_name = excluded.method_name,
			api_name = excluded.api_name,
			doc_summary = excluded.doc_summary,
			content = excluded.content,
			content_hash = excluded.content_hash,
			chunk_size = excluded.chunk_size,
			embedding = excluded.embedding,
			indexed_at = excluded.indexed_at`,
		c.Identity, c.ScopeID, c.RepoID, c.FilePath, c.Language, c.ClassName, c.MethodName,
		c.APIName, c.DocSummary, c.Content, c.ContentHash, int64(c.ChunkSize),
		encodeVector(c.Embedding), c.IndexedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func upsertDocument(ctx context.Context, q querier, d *Document) error {
	_, err := q.ExecContext(ctx, `INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			scope_id = excluded.scope_id,
			repo_id = excluded.repo_id,
			document_id = excluded.document_id,
			title = excluded.title,
			content = excluded.content,
			content_hash = excluded.content_hash,
			status = excluded.status,
			embedding = excluded.embedding,
			indexed_at = excluded.indexed_at`,
		d.Identity, d.ScopeID, d.RepoID, d.DocumentID, d.Title, d.Content, d.ContentHash,
		string(d.Status), encodeVector(d.Embedding), d.IndexedAt.UTC().Format(time.RFC3339Nano))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCode(r rowScanner) (*CodeChunk, error) {
	var c CodeChunk
	var size int64
	var blob []byte
	var indexedAt string
	if err := r.Scan(&c.Identity, &c.ScopeID, &c.RepoID, &c.FilePath, &c.Language, &c.ClassName,
		&c.MethodName, &c.APIName, &c.DocSummary, &c.Content, &c.ContentHash, &size, &blob, &indexedAt); err != nil {
		return nil, err
	}
	c.ChunkSize = int(size)
	c.Embedding = decodeVector(blob)
	c.IndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
	return &c, nil
}

func scanDocument(r rowScanner) (*Document, error) {
	var d Document
	var status string
	var blob []byte
	var indexedAt string
	if err := r.Scan(&d.Identity, &d.ScopeID, &d.RepoID, &d.DocumentID, &d.Title, &d.Content,
		&d.ContentHash, &status, &blob, &indexedAt); err != nil {
		return nil, err
	}
	d.Status = DocumentStatus(status)
	d.Embedding = decodeVector(blob)
	d.IndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
	return &d, nil
}

// getCode returns the stored chunk or nil when absent.
func getCode(ctx context.Context, q querier, identity string) (*CodeChunk, error) {
	c, err := scanCode(q.QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM code_chunks WHERE identity = ?`, identity))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// getDocument returns the stored document or nil when absent.
func getDocument(ctx context.Context, q querier, identity string) (*Document, error) {
	d, err := scanDocument(q.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE identity = ?`, identity))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// loadCode fetches chunks by identity. Missing identities are skipped.
func loadCode(ctx context.Context, q querier, ids []string) (map[string]*CodeChunk, error) {
	out := make(map[string]*CodeChunk, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+codeColumns+` FROM code_chunks WHERE identity IN (`+placeholders(len(ids))+`)`, toArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		out[c.Identity] = c
	}
	return out, rows.Err()
}

// loadDocuments fetches documents by identity. Missing identities are skipped.
func loadDocuments(ctx context.Context, q querier, ids []string) (map[string]*Document, error) {
	out := make(map[string]*Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE identity IN (`+placeholders(len(ids))+`)`, toArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out[d.Identity] = d
	}
	return out, rows.Err()
}

// eachRecord streams identity, scope, vector and lexical view for every row
// in a collection.
func eachRecord(ctx context.Context, q querier, kind Kind, fn func(id, scope string, vec []float32, lexical any) error) error {
	var query string
	switch kind {
	case KindCode:
		query = `SELECT ` + codeColumns + ` FROM code_chunks ORDER BY identity`
	case KindDocument:
		query = `SELECT ` + documentColumns + ` FROM documents ORDER BY identity`
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if kind == KindCode {
			c, err := scanCode(rows)
			if err != nil {
				return err
			}
			if err := fn(c.Identity, c.ScopeID, c.Embedding, c.lexicalDoc()); err != nil {
				return err
			}
			continue
		}
		d, err := scanDocument(rows)
		if err != nil {
			return err
		}
		if err := fn(d.Identity, d.ScopeID, d.Embedding, d.lexicalDoc()); err != nil {
			return err
		}
	}
	return rows.Err()
}

func matchingIdentities(ctx context.Context, q querier, table, where string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT identity FROM `+table+` WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func countRows(ctx context.Context, q querier, table string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n)
	return n, err
}

// lastIndexed returns the newest indexed_at in table, or the zero time for
// an empty table. Values are UTC RFC 3339, so MAX orders them to within a
// second.
func lastIndexed(ctx context.Context, q querier, table string) (time.Time, error) {
	var v sql.NullString
	if err := q.QueryRowContext(ctx, `SELECT MAX(indexed_at) FROM `+table).Scan(&v); err != nil {
		return time.Time{}, err
	}
	if !v.Valid {
		return time.Time{}, nil
	}
	t, _ := time.Parse(time.RFC3339Nano, v.String)
	return t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// encodeVector stores float32s little-endian. A nil vector is SQL NULL.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
