package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanctx/internal/search"
	"github.com/Aman-CERP/amanctx/internal/store"
)

// FormatSearchResults renders results as markdown for the tool's text
// content.
func FormatSearchResults(query string, results []search.Result, path search.Path) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	if path == search.PathLexical {
		sb.WriteString(" (keyword search only)")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		if r.Kind == store.KindDocument {
			formatDocResult(&sb, i+1, r)
		} else {
			formatCodeResult(&sb, i+1, r)
		}
	}
	return sb.String()
}

func formatCodeResult(sb *strings.Builder, num int, r search.Result) {
	fmt.Fprintf(sb, "### %d. %s (score: %.4f)\n", num, r.APIName, r.Score)
	if r.FilePath != "" {
		fmt.Fprintf(sb, "**File:** %s\n", r.FilePath)
	}
	if r.Summary != "" {
		fmt.Fprintf(sb, "**Summary:** %s\n", r.Summary)
	}
	if reason := matchReason(r); reason != "" {
		fmt.Fprintf(sb, "**Matched:** %s\n", reason)
	}

	lang := r.Language
	if lang == "" || lang == "unknown" {
		lang = "text"
	}
	fmt.Fprintf(sb, "\n```%s\n%s\n```\n\n", lang, r.Content)
}

func formatDocResult(sb *strings.Builder, num int, r search.Result) {
	title := r.Title
	if title == "" {
		title = r.DocumentID
	}
	fmt.Fprintf(sb, "### %d. %s (score: %.4f)\n", num, title, r.Score)
	if r.DocumentID != "" && r.DocumentID != title {
		fmt.Fprintf(sb, "**Document:** %s\n", r.DocumentID)
	}
	sb.WriteString("\n")
	sb.WriteString(r.Content)
	sb.WriteString("\n\n---\n\n")
}

// matchReason says which channels ranked the result.
func matchReason(r search.Result) string {
	switch {
	case r.LexicalRank > 0 && r.VectorRank > 0:
		return fmt.Sprintf("keyword #%d and semantic #%d", r.LexicalRank, r.VectorRank)
	case r.LexicalRank > 0:
		return fmt.Sprintf("keyword #%d", r.LexicalRank)
	case r.VectorRank > 0:
		return fmt.Sprintf("semantic #%d", r.VectorRank)
	default:
		return ""
	}
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, lo, hi int) int {
	if limit <= 0 {
		return defaultVal
	}
	return min(max(limit, lo), hi)
}
