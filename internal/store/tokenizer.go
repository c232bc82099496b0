package store

import (
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/registry"
)

// IdentifierSplitFilterName is the bleve token filter that expands code
// identifiers into their camelCase and snake_case parts.
const IdentifierSplitFilterName = "identifier_split"

func init() {
	_ = registry.RegisterTokenFilter(IdentifierSplitFilterName, identifierSplitConstructor)
}

func identifierSplitConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &identifierSplitFilter{}, nil
}

// identifierSplitFilter keeps each token and, when it is compound, appends
// its parts at the same position so both "getUserById" and "user" match.
type identifierSplitFilter struct{}

func (f *identifierSplitFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := make(analysis.TokenStream, 0, len(input))
	for _, tok := range input {
		out = append(out, tok)
		parts := SplitIdentifier(string(tok.Term))
		if len(parts) < 2 {
			continue
		}
		offset := tok.Start
		for _, part := range parts {
			out = append(out, &analysis.Token{
				Term:     []byte(part),
				Start:    offset,
				End:      offset + len(part),
				Position: tok.Position,
				Type:     tok.Type,
			})
			offset += len(part)
		}
	}
	return out
}

// SplitIdentifier splits snake_case and camelCase identifiers.
// Parts shorter than two runes are dropped.
//
//	"getUserById"      -> [get User By Id]
//	"parseHTTPRequest" -> [parse HTTP Request]
//	"MAX_RETRY_count"  -> [MAX RETRY count]
func SplitIdentifier(token string) []string {
	var parts []string
	for _, seg := range strings.FieldsFunc(token, func(r rune) bool { return r == '_' || r == '$' }) {
		for _, p := range splitCamelCase(seg) {
			if len([]rune(p)) >= 2 {
				parts = append(parts, p)
			}
		}
	}
	return parts
}

func splitCamelCase(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			boundary := unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower))
			if boundary && current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// queryTerms splits free text into the unique terms used for
// minimum-should-match counting. Terms with no letter or digit are dropped.
func queryTerms(text string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, f := range strings.Fields(text) {
		if !strings.ContainsFunc(f, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
			continue
		}
		key := strings.ToLower(f)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}
