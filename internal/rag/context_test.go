package rag

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanctx/internal/search"
	"github.com/Aman-CERP/amanctx/internal/store"
)

func codeResult(class, method, content string, score float64) search.Result {
	return search.Result{
		Kind:       store.KindCode,
		Score:      score,
		ScopeID:    "proj1",
		ClassName:  class,
		MethodName: method,
		APIName:    class + "#" + method,
		Language:   "java",
		Content:    content,
	}
}

func docResult(title, content string, score float64) search.Result {
	return search.Result{
		Kind:    store.KindDocument,
		Score:   score,
		ScopeID: "proj1",
		Title:   title,
		Content: content,
	}
}

func TestBuildContext_Empty(t *testing.T) {
	a := NewAssembler(ChatLimits())
	c := a.BuildContext(nil, 4000)
	assert.Equal(t, NoContextMarker, c.Text)
	assert.False(t, c.NonEmpty)
	assert.Zero(t, c.Items)
}

func TestBuildContext_CodeBeforeDocuments(t *testing.T) {
	a := NewAssembler(ChatLimits())
	results := []search.Result{
		docResult("Login flow", "How users sign in.", 0.9),
		codeResult("AuthService", "login", "return check(user);", 0.8),
		codeResult("TokenStore", "issue", "return sign(claims);", 0.5),
	}
	c := a.BuildContext(results, 4000)
	require.True(t, c.NonEmpty)
	assert.Equal(t, 3, c.Items)

	code := strings.Index(c.Text, codeHeading)
	docs := strings.Index(c.Text, docHeading)
	require.GreaterOrEqual(t, code, 0)
	require.Greater(t, docs, code)

	assert.Contains(t, c.Text, "### Code snippet 1 (relevance: 0.80)")
	assert.Contains(t, c.Text, "### Code snippet 2 (relevance: 0.50)")
	assert.Contains(t, c.Text, "### Document 1 (relevance: 0.90)")
	assert.Contains(t, c.Text, "**API:** AuthService#login\n")
	assert.Contains(t, c.Text, "**Title:** Login flow\n")
	assert.Contains(t, c.Text, "```java\nreturn check(user);\n```")
	assert.Less(t, strings.Index(c.Text, "AuthService"), strings.Index(c.Text, "TokenStore"))
}

func TestBuildContext_OmitsEmptyFields(t *testing.T) {
	a := NewAssembler(ChatLimits())
	r := search.Result{Kind: store.KindCode, Score: 1, Content: "x := 1"}
	c := a.BuildContext([]search.Result{r}, 4000)
	assert.NotContains(t, c.Text, "**API:**")
	assert.NotContains(t, c.Text, "**Class:**")
	assert.NotContains(t, c.Text, "**Summary:**")
}

func TestBuildContext_TruncatesItems(t *testing.T) {
	a := NewAssembler(Limits{CodeItemCap: 10, DocItemCap: 5})
	results := []search.Result{
		codeResult("A", "a", strings.Repeat("界", 25), 1),
		docResult("D", "abcdefghij", 1),
	}
	c := a.BuildContext(results, 4000)
	assert.Contains(t, c.Text, strings.Repeat("界", 10)+"...\n```")
	assert.NotContains(t, c.Text, strings.Repeat("界", 11))
	assert.Contains(t, c.Text, "abcde...")
}

func TestBuildContext_OverflowStopsSectionButTriesNext(t *testing.T) {
	a := NewAssembler(Limits{CodeItemCap: 5000, DocItemCap: 1000})
	results := []search.Result{
		codeResult("Huge", "m", strings.Repeat("x", 3000), 2),
		codeResult("Small", "m", "ok", 1.5),
		docResult("Guide", "short doc", 1),
	}
	c := a.BuildContext(results, 500)
	require.True(t, c.NonEmpty)
	// The oversized first code item closes the code section.
	assert.NotContains(t, c.Text, codeHeading)
	assert.NotContains(t, c.Text, "Small")
	assert.Contains(t, c.Text, docHeading)
	assert.Contains(t, c.Text, "Guide")
}

func TestBuildContext_NothingFits(t *testing.T) {
	a := NewAssembler(ChatLimits())
	c := a.BuildContext([]search.Result{codeResult("A", "a", "body", 1)}, 10)
	assert.Equal(t, NoContextMarker, c.Text)
	assert.False(t, c.NonEmpty)
}

func TestBuildContext_LengthBound(t *testing.T) {
	a := NewAssembler(ChatLimits())
	var results []search.Result
	for i := 0; i < 20; i++ {
		results = append(results,
			codeResult(fmt.Sprintf("C%d", i), "m", strings.Repeat("代码 ", 50+i*37), float64(20-i)),
			docResult(fmt.Sprintf("Doc %d", i), strings.Repeat("doc text ", 30+i*23), float64(20-i)))
	}
	for _, limit := range []int{0, 1, 50, 199, 200, 512, 1000, 1999, 4000, 6000, 100000} {
		c := a.BuildContext(results, limit)
		if c.NonEmpty {
			assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), limit, "limit=%d", limit)
		} else {
			assert.Equal(t, NoContextMarker, c.Text)
		}
	}
}

func TestBuildPrompt_IncludesContextAndQueryVerbatim(t *testing.T) {
	c := Context{Text: "## Relevant code snippets\n\nsnippet body", NonEmpty: true}
	query := "How does login work?\nAnd tokens?"
	p := BuildPrompt(query, c)
	assert.Contains(t, p, c.Text)
	assert.Contains(t, p, query)
	assert.True(t, strings.HasSuffix(p, "Answer:"))
	assert.Less(t, strings.Index(p, c.Text), strings.Index(p, query))
}
