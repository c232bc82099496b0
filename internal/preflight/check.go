package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Probe reports whether an external service answers. A nil error means
// ready.
type Probe func(ctx context.Context) error

// defaultProbeTimeout bounds each service probe.
const defaultProbeTimeout = 5 * time.Second

// Checker performs preflight validation checks against one data dir.
type Checker struct {
	dataDir      string
	embedder     Probe
	chunker      Probe
	lockHeld     func() bool
	probeTimeout time.Duration
}

// Option configures a Checker.
type Option func(*Checker)

// WithEmbedder sets the embedding service probe.
func WithEmbedder(p Probe) Option {
	return func(c *Checker) {
		c.embedder = p
	}
}

// WithChunker sets the chunking service probe.
func WithChunker(p Probe) Option {
	return func(c *Checker) {
		c.chunker = p
	}
}

// WithLockProbe sets the function reporting whether another process
// holds the index write lock.
func WithLockProbe(held func() bool) Option {
	return func(c *Checker) {
		c.lockHeld = held
	}
}

// WithProbeTimeout bounds each service probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.probeTimeout = d
		}
	}
}

// New creates a new Checker for dataDir.
func New(dataDir string, opts ...Option) *Checker {
	c := &Checker{
		dataDir:      dataDir,
		probeTimeout: defaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs all preflight checks and returns the results. Unset probes
// are skipped.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	var results []CheckResult

	// The data dir must exist before it can be statted.
	results = append(results, c.CheckWritePermissions())
	results = append(results, c.CheckDiskSpace(c.dataDir))
	results = append(results, c.CheckFileDescriptors())

	if c.lockHeld != nil {
		results = append(results, c.CheckWriteLock())
	}
	if c.embedder != nil {
		results = append(results, c.checkService(ctx, "embedder", c.embedder,
			"search falls back to keyword only and records are stored without vectors"))
	}
	if c.chunker != nil {
		results = append(results, c.checkService(ctx, "chunker", c.chunker,
			"code indexing is unavailable; documents still index"))
	}

	return results
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes check results to w. verbose adds each check's
// details line.
func PrintResults(w io.Writer, results []CheckResult, verbose bool) {
	_, _ = fmt.Fprintln(w, "amanctx system check")
	_, _ = fmt.Fprintln(w, "====================")
	_, _ = fmt.Fprintln(w)

	for _, r := range results {
		_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if verbose && r.Details != "" {
			_, _ = fmt.Fprintf(w, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Status: %s\n", strings.ToUpper(SummaryStatus(results)))

	var warnings, errors []string
	for _, r := range results {
		switch {
		case r.IsCritical():
			errors = append(errors, r.Name+": "+r.Message)
		case r.Status != StatusPass:
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	if len(errors) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintf(w, "%d error(s):\n", len(errors))
		for _, e := range errors {
			_, _ = fmt.Fprintf(w, "  - %s\n", e)
		}
	}

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintf(w, "%d warning(s):\n", len(warnings))
		for _, msg := range warnings {
			_, _ = fmt.Fprintf(w, "  - %s\n", msg)
		}
	}
}

// CheckWritePermissions creates the data dir if needed and checks that
// files can be written in it.
func (c *Checker) CheckWritePermissions() CheckResult {
	result := CheckResult{
		Name:     "data_dir_writable",
		Required: true,
		Details:  c.dataDir,
	}

	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create data dir: %v", err)
		return result
	}

	testFile := filepath.Join(c.dataDir, ".amanctx-preflight-test")
	f, err := os.Create(testFile)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckWriteLock warns when another process is indexing into the data
// dir. Readers still work while it holds the lock.
func (c *Checker) CheckWriteLock() CheckResult {
	result := CheckResult{Name: "write_lock"}
	if c.lockHeld() {
		result.Status = StatusWarn
		result.Message = "held by another process; index, queue run and watch will be refused"
		return result
	}
	result.Status = StatusPass
	result.Message = "free"
	return result
}

func (c *Checker) checkService(ctx context.Context, name string, probe Probe, degraded string) CheckResult {
	result := CheckResult{Name: name}

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	start := time.Now()
	if err := probe(ctx); err != nil {
		result.Status = StatusWarn
		result.Message = "unreachable: " + degraded
		result.Details = err.Error()
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("ready (%s)", time.Since(start).Round(time.Millisecond))
	return result
}
