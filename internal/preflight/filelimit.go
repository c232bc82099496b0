package preflight

import (
	"fmt"
	"syscall"
)

const (
	// MinFileDescriptors is the hard floor. Below it the store's SQLite,
	// bleve and HNSW files plus the HTTP clients cannot all stay open.
	MinFileDescriptors = 256
	// RecommendedFileDescriptors leaves room for the fsnotify watcher,
	// which holds one descriptor per watched directory.
	RecommendedFileDescriptors = 1024
)

// CheckFileDescriptors checks the soft RLIMIT_NOFILE against both limits.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to read the file descriptor limit: %v", err)
		return result
	}
	result.Status, result.Message, result.Details = classifyFileLimit(uint64(rLimit.Cur))
	return result
}

func classifyFileLimit(limit uint64) (CheckStatus, string, string) {
	msg := fmt.Sprintf("%d open files allowed", limit)
	switch {
	case limit < MinFileDescriptors:
		return StatusFail, fmt.Sprintf("%s (minimum: %d)", msg, MinFileDescriptors),
			fmt.Sprintf("Run 'ulimit -n %d' before indexing", RecommendedFileDescriptors)
	case limit < RecommendedFileDescriptors:
		return StatusWarn, fmt.Sprintf("%s; watch on large trees may fall back to polling", msg),
			fmt.Sprintf("Run 'ulimit -n %d' for fsnotify on large repositories", RecommendedFileDescriptors*10)
	default:
		return StatusPass, msg, ""
	}
}
