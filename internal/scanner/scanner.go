package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// binarySniffLen is how much of a file is read to look for NUL bytes.
const binarySniffLen = 512

// Scanner discovers files. It holds no per-scan state and is safe for
// concurrent use.
type Scanner struct {
	exts        map[string]bool
	excludes    []string
	maxFileSize int64
	followLinks bool
}

// New creates a scanner. Invalid exclude patterns are an error.
func New(opts Options) (*Scanner, error) {
	for _, p := range opts.ExcludePatterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	s := &Scanner{
		excludes:    opts.ExcludePatterns,
		maxFileSize: opts.MaxFileSize,
		followLinks: opts.FollowSymlinks,
	}
	if s.maxFileSize <= 0 {
		s.maxFileSize = DefaultMaxFileSize
	}
	if len(opts.Extensions) > 0 {
		s.exts = make(map[string]bool, len(opts.Extensions))
		for _, e := range opts.Extensions {
			s.exts[strings.TrimPrefix(strings.ToLower(e), ".")] = true
		}
	}
	return s, nil
}

// Scan walks root and streams accepted files. The channel is closed when
// the walk ends or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, root string) (<-chan ScanResult, error) {
	absRoot, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}

	results := make(chan ScanResult, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, results)
	}()
	return results, nil
}

// Collect runs Scan and gathers the files.
func (s *Scanner) Collect(ctx context.Context, root string) ([]FileInfo, error) {
	results, err := s.Scan(ctx, root)
	if err != nil {
		return nil, err
	}
	var files []FileInfo
	for r := range results {
		if r.Error != nil {
			return files, r.Error
		}
		files = append(files, *r.File)
	}
	return files, ctx.Err()
}

func resolveRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return "", fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root path is not a directory: %s", absRoot)
	}
	return absRoot, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, results chan<- ScanResult) {
	err := filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return nil // unreadable entries are skipped
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if s.skipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 && !s.followLinks {
			return nil
		}

		info, ok := s.acceptFile(rel, p)
		if !ok {
			return nil
		}
		select {
		case results <- ScanResult{File: info}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		select {
		case results <- ScanResult{Error: err}:
		case <-ctx.Done():
		}
	}
}

// Accept reports whether the file at absPath under root passes every rule,
// including the directory rules for each of its parents. The watcher uses
// it to filter change events.
func (s *Scanner) Accept(root, absPath string) (*FileInfo, bool) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil, false
	}
	rel = filepath.ToSlash(rel)

	for dir := path.Dir(rel); dir != "."; dir = path.Dir(dir) {
		if s.skipDir(dir) {
			return nil, false
		}
	}
	return s.acceptFile(rel, absPath)
}

// SkipDir reports whether the directory at the slash-separated relative
// path is excluded.
func (s *Scanner) SkipDir(rel string) bool {
	return s.skipDir(filepath.ToSlash(rel))
}

func (s *Scanner) skipDir(rel string) bool {
	base := path.Base(rel)
	if skippedDirs[base] || strings.HasPrefix(base, ".") {
		return true
	}
	return s.excluded(rel) || s.excluded(rel+"/")
}

func (s *Scanner) acceptFile(rel, absPath string) (*FileInfo, bool) {
	base := path.Base(rel)
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(base)), ".")
	if s.exts != nil && !s.exts[ext] {
		return nil, false
	}
	if isSensitive(base) || s.excluded(rel) {
		return nil, false
	}

	info, err := os.Stat(absPath)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	if info.Size() == 0 || info.Size() > s.maxFileSize {
		return nil, false
	}
	if isBinaryFile(absPath) {
		return nil, false
	}
	return &FileInfo{
		Path:    rel,
		AbsPath: absPath,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Ext:     ext,
	}, true
}

func (s *Scanner) excluded(rel string) bool {
	for _, pattern := range s.excludes {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func isSensitive(base string) bool {
	for _, pattern := range sensitiveFilePatterns {
		if ok, err := doublestar.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

// isBinaryFile checks for NUL bytes in the first few hundred bytes.
func isBinaryFile(p string) bool {
	f, err := os.Open(p)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, binarySniffLen)
	n, err := f.Read(buf)
	if err != nil {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
