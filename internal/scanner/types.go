// Package scanner discovers indexable files under a repository root. It
// skips build output, VCS and IDE directories, hidden directories, files
// matching the configured exclude globs, oversized files and binary files.
package scanner

import (
	"time"
)

// FileInfo describes a discovered file.
type FileInfo struct {
	Path    string // Slash-separated, relative to the scan root
	AbsPath string
	Size    int64
	ModTime time.Time
	Ext     string // Lowercase, without the dot
}

// Options configures a Scanner.
type Options struct {
	// Extensions limits the scan to these extensions (no dot, any case).
	// Empty accepts every extension.
	Extensions []string

	// ExcludePatterns are doublestar globs matched against the
	// slash-separated relative path, e.g. "**/generated/**" or "docs/*.md".
	ExcludePatterns []string

	// MaxFileSize skips larger files (0 = DefaultMaxFileSize).
	MaxFileSize int64

	// FollowSymlinks includes symlinked files (default: false).
	FollowSymlinks bool
}

// ScanResult is sent on the scan channel.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// DefaultMaxFileSize is 1 MiB.
const DefaultMaxFileSize = 1 << 20

// skippedDirs are never descended into, at any depth.
var skippedDirs = map[string]bool{
	"target":       true,
	"build":        true,
	"node_modules": true,
	".git":         true,
	".idea":        true,
	".vscode":      true,
}

// sensitiveFilePatterns are never indexed.
var sensitiveFilePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}
