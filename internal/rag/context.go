// Package rag turns ranked search results into a length-bounded context
// block and wraps it into an LLM prompt.
package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/amanctx/internal/search"
	"github.com/Aman-CERP/amanctx/internal/store"
)

// NoContextMarker is the context text when nothing was found or nothing fits.
const NoContextMarker = "No relevant context found."

// Per-item caps, in runes.
const (
	DefaultCodeItemCap = 800
	DefaultDocItemCap  = 1000
	DefaultMaxLength   = 4000

	ReviewCodeItemCap = 500
	ReviewDocItemCap  = 300
	ReviewMaxLength   = 6000
)

const (
	codeHeading   = "## Relevant code snippets\n\n"
	docHeading    = "## Relevant documents\n\n"
	itemSeparator = "\n\n"
	ellipsis      = "..."
)

// Limits caps how much of each result is rendered.
type Limits struct {
	CodeItemCap int
	DocItemCap  int
}

// ChatLimits are the caps used for chat and wiki context.
func ChatLimits() Limits {
	return Limits{CodeItemCap: DefaultCodeItemCap, DocItemCap: DefaultDocItemCap}
}

// ReviewLimits are the tighter caps used for code review context.
func ReviewLimits() Limits {
	return Limits{CodeItemCap: ReviewCodeItemCap, DocItemCap: ReviewDocItemCap}
}

// Context is an assembled context block.
type Context struct {
	Text     string
	NonEmpty bool
	// Items is the number of results rendered into Text.
	Items int
}

// Assembler renders results into a context block.
type Assembler struct {
	limits Limits
}

// NewAssembler returns an assembler; non-positive caps take the chat defaults.
func NewAssembler(limits Limits) *Assembler {
	if limits.CodeItemCap <= 0 {
		limits.CodeItemCap = DefaultCodeItemCap
	}
	if limits.DocItemCap <= 0 {
		limits.DocItemCap = DefaultDocItemCap
	}
	return &Assembler{limits: limits}
}

// BuildContext renders code results, then document results, each in ranked
// order, until the next item would push the text past maxTotalLength runes.
// An item that does not fit ends its section; the next section is still
// tried. The returned text never exceeds maxTotalLength runes.
func (a *Assembler) BuildContext(results []search.Result, maxTotalLength int) Context {
	var code, docs []search.Result
	for _, r := range results {
		if r.Kind == store.KindDocument {
			docs = append(docs, r)
		} else {
			code = append(code, r)
		}
	}

	b := &budget{max: maxTotalLength}
	b.section(codeHeading, code, a.formatCode)
	b.section(docHeading, docs, a.formatDocument)

	if b.items == 0 {
		return Context{Text: NoContextMarker}
	}
	return Context{Text: b.sb.String(), NonEmpty: true, Items: b.items}
}

// budget tracks the rune length of the text being assembled.
type budget struct {
	sb    strings.Builder
	used  int
	max   int
	items int
}

func (b *budget) section(heading string, results []search.Result, format func(int, search.Result) string) {
	headingLen := utf8.RuneCountInString(heading)
	started := false
	for i, r := range results {
		item := format(i+1, r)
		cost := utf8.RuneCountInString(item) + utf8.RuneCountInString(itemSeparator)
		if !started {
			cost += headingLen
		}
		if b.used+cost > b.max {
			return
		}
		if !started {
			b.sb.WriteString(heading)
			started = true
		}
		b.sb.WriteString(item)
		b.sb.WriteString(itemSeparator)
		b.used += cost
		b.items++
	}
}

func (a *Assembler) formatCode(n int, r search.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### Code snippet %d (relevance: %.2f)\n", n, r.Score)
	writeField(&sb, "API", r.APIName)
	writeField(&sb, "Class", r.ClassName)
	writeField(&sb, "Language", r.Language)
	writeField(&sb, "Summary", r.Summary)
	fmt.Fprintf(&sb, "\n```%s\n%s\n```", r.Language, truncateRunes(r.Content, a.limits.CodeItemCap))
	return sb.String()
}

func (a *Assembler) formatDocument(n int, r search.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### Document %d (relevance: %.2f)\n", n, r.Score)
	writeField(&sb, "Title", r.Title)
	sb.WriteString("\n")
	sb.WriteString(truncateRunes(r.Content, a.limits.DocItemCap))
	return sb.String()
}

func writeField(sb *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(sb, "**%s:** %s\n", label, value)
}

// truncateRunes cuts s to n runes and marks the cut with "...".
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + ellipsis
}
