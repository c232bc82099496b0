package watcher

import (
	"path"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted or moved away.
	OpDelete
	// OpRename indicates a move whose source is known (OldPath is set).
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file system event.
type FileEvent struct {
	// Path is slash-separated and relative to the watched root.
	Path string

	// OldPath is the previous path for rename events.
	OldPath string

	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// DirFilter decides which directories are not worth watching. The
// scanner implements it, so the watcher and the indexer agree.
type DirFilter interface {
	SkipDir(rel string) bool
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the quiet period before a batch is emitted.
	// Default: 500ms
	DebounceWindow time.Duration

	// PollInterval is the interval for polling mode (fallback).
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the size of the batch channel buffer.
	// Default: 1000
	EventBufferSize int

	// Filter skips directories. Nil watches everything.
	Filter DirFilter
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// skipped reports whether rel or any of its parent directories is
// filtered out. rel is slash-separated; isDir says whether rel itself is
// a directory.
func skipped(f DirFilter, rel string, isDir bool) bool {
	if f == nil || rel == "" || rel == "." {
		return false
	}
	dir := rel
	if !isDir {
		dir = path.Dir(rel)
	}
	for ; dir != "." && dir != "/"; dir = path.Dir(dir) {
		if f.SkipDir(dir) {
			return true
		}
	}
	return false
}
