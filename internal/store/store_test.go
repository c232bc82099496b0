package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
)

const testDims = 4

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{Dimensions: testDims})
	require.NoError(t, err)
	require.NoError(t, s.EnsureCollections(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func codeChunk(scope, class, method, content string, vec []float32) *CodeChunk {
	return &CodeChunk{
		ScopeID:    scope,
		Language:   "java",
		ClassName:  class,
		MethodName: method,
		Content:    content,
		Embedding:  vec,
	}
}

func TestComputeIdentity_IsDeterministicSHA256(t *testing.T) {
	assert.Equal(t,
		"bb9bb5e24c8970c159dc302e409b4f0f90c150d4c59dc053abf55db79a5ac4df",
		ComputeIdentity("scope-1", "OrderService#placeOrder"))
	assert.Equal(t, ComputeIdentity("a", "b"), ComputeIdentity("a", "b"))
	assert.NotEqual(t, ComputeIdentity("a", "b"), ComputeIdentity("b", "b"))
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", ContentHash("hello"))
}

func TestCodeChunkPrepare_DerivesFields(t *testing.T) {
	tests := []struct {
		name    string
		class   string
		method  string
		wantAPI string
	}{
		{"both present", "OrderService", "placeOrder", "OrderService#placeOrder"},
		{"missing class", "", "placeOrder", "Unknown#placeOrder"},
		{"missing method", "OrderService", "", "OrderService#unknown"},
		{"missing both", "", "", "Unknown#unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &CodeChunk{ScopeID: "s", ClassName: tt.class, MethodName: tt.method, Content: "héllo"}
			c.Prepare()
			assert.Equal(t, tt.wantAPI, c.APIName)
			assert.Equal(t, ComputeIdentity("s", tt.wantAPI), c.Identity)
			assert.Equal(t, ContentHash("héllo"), c.ContentHash)
			assert.Equal(t, 5, c.ChunkSize)
			assert.False(t, c.IndexedAt.IsZero())
		})
	}
}

func TestCodeChunk_LogicalKeyFallback(t *testing.T) {
	c := &CodeChunk{ClassName: "A", MethodName: "b"}
	assert.Equal(t, "A:b", c.LogicalKey())
	c.APIName = "A#b"
	assert.Equal(t, "A#b", c.LogicalKey())
}

func TestDocumentPrepare(t *testing.T) {
	d := &Document{ScopeID: "s", DocumentID: "doc-7", Content: "x"}
	d.Prepare()
	assert.Equal(t, ComputeIdentity("s", "doc-7"), d.Identity)
	assert.Equal(t, StatusDraft, d.Status)
}

func TestStatusFromCode(t *testing.T) {
	assert.Equal(t, StatusInProgress, StatusFromCode(1))
	assert.Equal(t, StatusComplete, StatusFromCode(2))
	assert.Equal(t, StatusFailed, StatusFromCode(3))
	assert.Equal(t, StatusDraft, StatusFromCode(0))
}

func TestEnsureCollections_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCodeChunk(ctx, codeChunk("s", "A", "b", "int b() {}", nil)))
	require.NoError(t, s.EnsureCollections(ctx))
	require.NoError(t, s.EnsureCollections(ctx))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, st.Collections, 2)
	assert.Equal(t, 1, st.Collections[0].Records)
	assert.WithinDuration(t, time.Now(), st.LastIndexed, time.Minute)
}

func TestStats_EmptyStoreHasNoLastIndexed(t *testing.T) {
	s := newTestStore(t)
	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.True(t, st.LastIndexed.IsZero())
	assert.Zero(t, st.Collections[1].Records)
}

func TestStore_RequiresProvisioning(t *testing.T) {
	s, err := Open(Options{Dimensions: testDims})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	err = s.UpsertCodeChunk(context.Background(), codeChunk("s", "A", "b", "x", nil))
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeCollectionProvision, amerrors.GetCode(err))
}

func TestEnsureCollections_DetectsDimensionDrift(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(Options{Dir: dir, Dimensions: 4})
	require.NoError(t, err)
	require.NoError(t, s.EnsureCollections(ctx))
	require.NoError(t, s.Close())

	s, err = Open(Options{Dir: dir, Dimensions: 8})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	err = s.EnsureCollections(ctx)
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeSchemaDrift, amerrors.GetCode(err))
	assert.True(t, amerrors.IsFatal(err))
}

func TestUpsertCodeChunk_OverwritesByIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := codeChunk("s", "OrderService", "placeOrder", "void placeOrder() { v1(); }", []float32{1, 0, 0, 0})
	second := codeChunk("s", "OrderService", "placeOrder", "void placeOrder() { v2(); }", []float32{0, 1, 0, 0})
	require.NoError(t, s.UpsertCodeChunk(ctx, first))
	require.NoError(t, s.UpsertCodeChunk(ctx, second))
	assert.Equal(t, first.Identity, second.Identity)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Collections[0].Records)
	assert.Equal(t, 1, st.Collections[0].Vectors)
	assert.Equal(t, uint64(1), st.Collections[0].LexicalDocs)

	got, err := s.GetCodeChunk(ctx, first.Identity)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Contains(t, got.Content, "v2")
	assert.Equal(t, []float32{0, 1, 0, 0}, got.Embedding)
}

func TestUpsertCodeChunk_NilEmbeddingDropsVector(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCodeChunk(ctx, codeChunk("s", "A", "b", "x y", []float32{1, 0, 0, 0})))
	require.NoError(t, s.UpsertCodeChunk(ctx, codeChunk("s", "A", "b", "x y", nil)))

	hits, err := s.VectorSearch(ctx, KindCode, []float32{1, 0, 0, 0}, "", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.LexicalSearch(ctx, KindCode, "x", "", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestUpsert_RejectsInvalidInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.UpsertCodeChunk(ctx, &CodeChunk{ScopeID: "s"})
	assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(err))

	err = s.UpsertDocument(ctx, &Document{ScopeID: "s"})
	assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(err))

	err = s.UpsertDocument(ctx, &Document{ScopeID: "s", DocumentID: "d", Status: "archived"})
	assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(err))

	err = s.UpsertCodeChunk(ctx, codeChunk("s", "A", "b", "x", []float32{1, 2}))
	assert.Equal(t, amerrors.ErrCodeDimensionMismatch, amerrors.GetCode(err))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Collections[0].Records)
	assert.Equal(t, uint64(0), st.Collections[0].LexicalDocs)
}

func TestLexicalSearch_FiltersByScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCodeChunk(ctx, codeChunk("tenant-a", "PaymentGateway", "charge", "charge the card", nil)))
	require.NoError(t, s.UpsertCodeChunk(ctx, codeChunk("tenant-b", "PaymentGateway", "charge", "charge the card", nil)))

	hits, err := s.LexicalSearch(ctx, KindCode, "charge card", "tenant-a", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "tenant-a", hits[0].Code.ScopeID)

	hits, err = s.LexicalSearch(ctx, KindCode, "charge card", "", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestLexicalSearch_SplitsIdentifiers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCodeChunk(ctx,
		codeChunk("s", "UserRepository", "findUserById", "public User findUserById(long id) { return repo.get(id); }", nil)))

	hits, err := s.LexicalSearch(ctx, KindCode, "user", "s", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "UserRepository#findUserById", hits[0].Code.APIName)
	assert.Greater(t, hits[0].Score, 0.0)

	hits, err = s.LexicalSearch(ctx, KindCode, "findUserById", "s", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestLexicalSearch_MinimumShouldMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCodeChunk(ctx, codeChunk("s", "A", "full", "alpha bravo charlie delta", nil)))
	require.NoError(t, s.UpsertCodeChunk(ctx, codeChunk("s", "B", "partial", "alpha zulu", nil)))

	// 4 terms at 75% requires 3 matching terms.
	hits, err := s.LexicalSearch(ctx, KindCode, "alpha bravo charlie delta", "s", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "A", hits[0].Code.ClassName)
}

func TestLexicalSearch_BlankQueryReturnsNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertCodeChunk(ctx, codeChunk("s", "A", "b", "anything", nil)))

	for _, q := range []string{"", "   ", "{}();"} {
		hits, err := s.LexicalSearch(ctx, KindCode, q, "s", 10)
		require.NoError(t, err)
		assert.Empty(t, hits, "query %q", q)
	}
}

func TestLexicalSearch_Documents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDocument(ctx, &Document{
		ScopeID: "s", DocumentID: "d1", Title: "Refund policy", Content: "Refunds are issued within 14 days.", Status: StatusComplete,
	}))
	require.NoError(t, s.UpsertDocument(ctx, &Document{
		ScopeID: "s", DocumentID: "d2", Title: "支付流程", Content: "用户支付订单后系统生成发票", Status: StatusComplete,
	}))

	hits, err := s.LexicalSearch(ctx, KindDocument, "refund policy", "s", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d1", hits[0].Document.DocumentID)
	assert.Equal(t, KindDocument, hits[0].Kind)

	hits, err = s.LexicalSearch(ctx, KindDocument, "支付", "s", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d2", hits[0].Document.DocumentID)
}

func TestVectorSearch_OrdersByCosineAndFiltersScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCodeChunk(ctx, codeChunk("s", "A", "exact", "a", []float32{1, 0, 0, 0})))
	require.NoError(t, s.UpsertCodeChunk(ctx, codeChunk("s", "B", "near", "b", []float32{0.9, 0.1, 0, 0})))
	require.NoError(t, s.UpsertCodeChunk(ctx, codeChunk("s", "C", "far", "c", []float32{0, 1, 0, 0})))
	require.NoError(t, s.UpsertCodeChunk(ctx, codeChunk("other", "D", "exact", "d", []float32{1, 0, 0, 0})))

	hits, err := s.VectorSearch(ctx, KindCode, []float32{1, 0, 0, 0}, "s", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "A", hits[0].Code.ClassName)
	assert.Equal(t, "B", hits[1].Code.ClassName)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)

	_, err = s.VectorSearch(ctx, KindCode, []float32{1, 0}, "s", 2)
	assert.Equal(t, amerrors.ErrCodeDimensionMismatch, amerrors.GetCode(err))
}

func TestDeleteScope_RemovesFromAllStores(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.UpsertCodeChunk(ctx, codeChunk("gone", "K", fmt.Sprintf("m%d", i), "shared words", []float32{1, 0, 0, 0})))
	}
	require.NoError(t, s.UpsertDocument(ctx, &Document{ScopeID: "gone", DocumentID: "d", Content: "shared words"}))
	require.NoError(t, s.UpsertCodeChunk(ctx, codeChunk("kept", "K", "m", "shared words", []float32{1, 0, 0, 0})))

	n, err := s.DeleteScope(ctx, "gone")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	hits, err := s.LexicalSearch(ctx, KindCode, "shared words", "", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "kept", hits[0].Code.ScopeID)

	hits, err = s.VectorSearch(ctx, KindCode, []float32{1, 0, 0, 0}, "", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	_, err = s.DeleteScope(ctx, "")
	assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(err))
}

func TestDeleteFileChunks_KeepsListedAndOtherFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var keep string
	for _, m := range []string{"a", "b", "c"} {
		c := codeChunk("s", "Svc", m, "body "+m, []float32{0, 1, 0, 0})
		c.FilePath = "src/Svc.java"
		require.NoError(t, s.UpsertCodeChunk(ctx, c))
		if m == "b" {
			keep = c.Identity
		}
	}
	other := codeChunk("s", "Other", "x", "body x", nil)
	other.FilePath = "src/Other.java"
	require.NoError(t, s.UpsertCodeChunk(ctx, other))

	n, err := s.DeleteFileChunks(ctx, "s", "src/Svc.java", []string{keep})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.GetCodeChunk(ctx, keep)
	require.NoError(t, err)
	require.NotNil(t, got)
	hits, err := s.VectorSearch(ctx, KindCode, []float32{0, 1, 0, 0}, "s", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	n, err = s.DeleteFileChunks(ctx, "s", "src/Svc.java", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = s.GetCodeChunk(ctx, other.Identity)
	require.NoError(t, err)
	assert.NotNil(t, got)

	_, err = s.DeleteFileChunks(ctx, "", "src/Svc.java", nil)
	assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(err))
}

func TestStore_ReopenRestoresIndexes(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(Options{Dir: dir, Dimensions: testDims})
	require.NoError(t, err)
	require.NoError(t, s.EnsureCollections(ctx))
	require.NoError(t, s.UpsertCodeChunk(ctx, codeChunk("s", "Invoice", "total", "sum invoice lines", []float32{0, 0, 1, 0})))
	require.NoError(t, s.Close())

	s, err = Open(Options{Dir: dir, Dimensions: testDims})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.EnsureCollections(ctx))

	hits, err := s.VectorSearch(ctx, KindCode, []float32{0, 0, 1, 0}, "s", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Invoice", hits[0].Code.ClassName)

	hits, err = s.LexicalSearch(ctx, KindCode, "invoice", "s", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	s, err := Open(Options{Dimensions: testDims})
	require.NoError(t, err)
	require.NoError(t, s.EnsureCollections(context.Background()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.LexicalSearch(context.Background(), KindCode, "x", "", 1)
	assert.Equal(t, amerrors.ErrCodeStoreClosed, amerrors.GetCode(err))
}

func TestVectorEncoding_RoundTrip(t *testing.T) {
	v := []float32{0.25, -1.5, 3, 0}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
	assert.Nil(t, encodeVector(nil))
	assert.Nil(t, decodeVector([]byte{1, 2, 3}))
}
