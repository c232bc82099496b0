package chunk

import (
	"path/filepath"
	"strings"
)

// LanguageUnknown is used when a file extension maps to no language.
const LanguageUnknown = "unknown"

// languageByExt maps lowercase extensions (without the dot) to the language
// names the chunking service understands.
var languageByExt = map[string]string{
	"java":  "java",
	"js":    "javascript",
	"jsx":   "javascript",
	"ts":    "typescript",
	"tsx":   "typescript",
	"py":    "python",
	"go":    "go",
	"cpp":   "cpp",
	"cc":    "cpp",
	"cxx":   "cpp",
	"c":     "c",
	"h":     "c",
	"hpp":   "c",
	"cs":    "csharp",
	"php":   "php",
	"rb":    "ruby",
	"kt":    "kotlin",
	"swift": "swift",
	"rs":    "rust",
	"scala": "scala",
}

// InferLanguage returns the language of path from its extension, or
// LanguageUnknown.
func InferLanguage(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	return LanguageUnknown
}
