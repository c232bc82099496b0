package store

import (
	"testing"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"getUserById", []string{"get", "User", "By", "Id"}},
		{"HTTPHandler", []string{"HTTP", "Handler"}},
		{"parseHTTPRequest", []string{"parse", "HTTP", "Request"}},
		{"MAX_RETRY_count", []string{"MAX", "RETRY", "count"}},
		{"user_id", []string{"user", "id"}},
		{"simple", []string{"simple"}},
		{"x", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitIdentifier(tt.in))
		})
	}
}

func TestIdentifierSplitFilter_KeepsOriginalAndParts(t *testing.T) {
	f := &identifierSplitFilter{}
	out := f.Filter(analysis.TokenStream{
		{Term: []byte("getUser"), Start: 0, End: 7, Position: 1},
		{Term: []byte("id"), Start: 8, End: 10, Position: 2},
	})

	var terms []string
	for _, tok := range out {
		terms = append(terms, string(tok.Term))
	}
	assert.Equal(t, []string{"getUser", "get", "User", "id"}, terms)
	assert.Equal(t, 1, out[1].Position)
}

func TestQueryTerms(t *testing.T) {
	assert.Equal(t, []string{"Order", "total"}, queryTerms("Order total order {} ;"))
	assert.Empty(t, queryTerms("  () ;; "))
}

func TestRequiredMatches(t *testing.T) {
	assert.Equal(t, 1, requiredMatches(1, 75))
	assert.Equal(t, 1, requiredMatches(2, 75))
	assert.Equal(t, 3, requiredMatches(4, 75))
	assert.Equal(t, 7, requiredMatches(10, 75))
}

func TestResolveBoosts_IgnoresUnknownFields(t *testing.T) {
	got := resolveBoosts(documentCollection, map[string]float64{"title": 1.5, "content": 2, "apiName": 9, "bogus": 1})
	require.Len(t, got, 2)
	assert.Equal(t, boostedField{Name: "content", Boost: 2}, got[0])
	assert.Equal(t, boostedField{Name: "title", Boost: 1.5}, got[1])
}

func TestCollectionSignature_ChangesWithFields(t *testing.T) {
	def := codeCollection
	sig := def.signature()
	def.Fields = append([]lexicalField{}, def.Fields[:2]...)
	assert.NotEqual(t, sig, def.signature())
}

func TestIndexMapping_IsStrict(t *testing.T) {
	m, err := codeCollection.indexMapping()
	require.NoError(t, err)
	assert.False(t, m.DefaultMapping.Dynamic)
	assert.False(t, m.IndexDynamic)
	assert.False(t, m.StoreDynamic)
	require.NoError(t, m.Validate())
}
