package rag

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultReviewQuery is used when nothing in a review request yields a term.
const DefaultReviewQuery = "code review"

const (
	reviewDescriptionCap = 200
	reviewDiffLineCap    = 10
	defaultReviewResults = 10
)

var (
	pathNoise       = map[string]bool{"src": true, "main": true, "java": true, "resources": true}
	sourceSuffix    = regexp.MustCompile(`\.(java|kt|scala|groovy)$`)
	descriptionVerb = regexp.MustCompile(`(?i)(fix|add|update|remove|refactor|improve)\s+`)
	newlines        = regexp.MustCompile(`[\r\n]+`)
	diffPunctuation = regexp.MustCompile(`[{}();,]`)
	whitespace      = regexp.MustCompile(`\s+`)
)

// ReviewRequest describes a pull request to gather review context for.
type ReviewRequest struct {
	RepositoryID  string   `json:"repository_id" jsonschema:"repository identifier, used as scope when task_id is empty"`
	TaskID        string   `json:"task_id,omitempty" jsonschema:"scope identifier of the indexed repository"`
	PRTitle       string   `json:"pr_title,omitempty" jsonschema:"pull request title"`
	PRDescription string   `json:"pr_description,omitempty" jsonschema:"pull request description"`
	ChangedFiles  []string `json:"changed_files,omitempty" jsonschema:"paths of changed files"`
	DiffContent   string   `json:"diff_content,omitempty" jsonschema:"unified diff of the change"`
	MaxResults    int      `json:"max_results,omitempty" jsonschema:"maximum number of search results (default 10)"`
}

// Scope is TaskID, falling back to RepositoryID.
func (r ReviewRequest) Scope() string {
	if strings.TrimSpace(r.TaskID) != "" {
		return r.TaskID
	}
	return r.RepositoryID
}

// Limit is MaxResults, defaulting to 10.
func (r ReviewRequest) Limit() int {
	if r.MaxResults <= 0 {
		return defaultReviewResults
	}
	return r.MaxResults
}

// BuildReviewQuery synthesizes a search query from the PR title, the
// changed file paths, the description and the changed lines of the diff.
func BuildReviewQuery(r ReviewRequest) string {
	var parts []string
	if t := strings.TrimSpace(r.PRTitle); t != "" {
		parts = append(parts, t)
	}

	var fileTerms []string
	for _, f := range r.ChangedFiles {
		if kw := fileKeywords(f); kw != "" {
			fileTerms = append(fileTerms, kw)
		}
	}
	if len(fileTerms) > 0 {
		parts = append(parts, strings.Join(fileTerms, " "))
	}

	if d := descriptionKeywords(r.PRDescription); d != "" {
		parts = append(parts, d)
	}
	if d := diffKeywords(r.DiffContent); d != "" {
		parts = append(parts, d)
	}

	q := strings.TrimSpace(strings.Join(parts, " "))
	if q == "" {
		return DefaultReviewQuery
	}
	return q
}

func fileKeywords(path string) string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		seg = strings.TrimSpace(seg)
		if seg == "" || pathNoise[seg] {
			continue
		}
		out = append(out, sourceSuffix.ReplaceAllString(seg, ""))
	}
	return strings.Join(out, " ")
}

func descriptionKeywords(desc string) string {
	if strings.TrimSpace(desc) == "" {
		return ""
	}
	if utf8.RuneCountInString(desc) > reviewDescriptionCap {
		desc = string([]rune(desc)[:reviewDescriptionCap])
	}
	desc = descriptionVerb.ReplaceAllString(desc, "")
	desc = newlines.ReplaceAllString(desc, " ")
	return strings.TrimSpace(desc)
}

// diffKeywords keeps up to ten added or removed lines that are not comments.
func diffKeywords(diff string) string {
	if strings.TrimSpace(diff) == "" {
		return ""
	}
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(diff, "\r\n", "\n"), "\n") {
		if len(out) >= reviewDiffLineCap {
			break
		}
		if !strings.HasPrefix(line, "+ ") && !strings.HasPrefix(line, "- ") {
			continue
		}
		code := strings.TrimSpace(line[2:])
		if code == "" || strings.HasPrefix(code, "//") || strings.HasPrefix(code, "*") {
			continue
		}
		code = diffPunctuation.ReplaceAllString(code, " ")
		code = strings.TrimSpace(whitespace.ReplaceAllString(code, " "))
		if code != "" {
			out = append(out, code)
		}
	}
	return strings.Join(out, " ")
}
