package preflight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
		{CheckStatus(9), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestCheckResult_JSONUsesStatusName(t *testing.T) {
	data, err := json.Marshal(CheckResult{Name: "chunker", Status: StatusWarn})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"warn"`)
}

func TestCheckResult_IsCritical(t *testing.T) {
	tests := []struct {
		name     string
		result   CheckResult
		expected bool
	}{
		{"required pass is not critical", CheckResult{Status: StatusPass, Required: true}, false},
		{"required fail is critical", CheckResult{Status: StatusFail, Required: true}, true},
		{"optional fail is not critical", CheckResult{Status: StatusFail}, false},
		{"required warn is not critical", CheckResult{Status: StatusWarn, Required: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.IsCritical())
		})
	}
}

func TestHasCriticalFailures(t *testing.T) {
	assert.False(t, HasCriticalFailures(nil))
	assert.False(t, HasCriticalFailures([]CheckResult{{Status: StatusWarn}, {Status: StatusFail}}))
	assert.True(t, HasCriticalFailures([]CheckResult{{Status: StatusPass}, {Status: StatusFail, Required: true}}))
}

func TestSummaryStatus(t *testing.T) {
	tests := []struct {
		name     string
		results  []CheckResult
		expected string
	}{
		{"all pass", []CheckResult{{Status: StatusPass}, {Status: StatusPass}}, "ready"},
		{"with warnings", []CheckResult{{Status: StatusPass}, {Status: StatusWarn}}, "ready_with_warnings"},
		{"with critical failure", []CheckResult{{Status: StatusPass}, {Status: StatusFail, Required: true}}, "failed"},
		{"with optional failure", []CheckResult{{Status: StatusPass}, {Status: StatusFail}}, "ready_with_warnings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SummaryStatus(tt.results))
		})
	}
}

func TestCheckWritePermissions_CreatesDataDir(t *testing.T) {
	// Given: a data dir that does not exist yet
	dataDir := filepath.Join(t.TempDir(), "nested", "data")

	// When: checking write permissions
	result := New(dataDir).CheckWritePermissions()

	// Then: the dir is created and the check passes
	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "data_dir_writable", result.Name)
	assert.True(t, result.Required)
	assert.DirExists(t, dataDir)
	assert.NoFileExists(t, filepath.Join(dataDir, ".amanctx-preflight-test"))
}

func TestCheckWritePermissions_ReadOnly(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	readOnlyDir := filepath.Join(t.TempDir(), "readonly")
	require.NoError(t, os.Mkdir(readOnlyDir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(readOnlyDir, 0o755) })

	result := New(readOnlyDir).CheckWritePermissions()

	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "permission denied")
}

func TestCheckDiskSpace_MissingPath(t *testing.T) {
	result := New("").CheckDiskSpace(filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, StatusFail, result.Status)
	assert.True(t, result.IsCritical())
}

func TestRunAll_SkipsUnsetProbes(t *testing.T) {
	results := New(t.TempDir()).RunAll(context.Background())

	names := resultNames(results)
	assert.Equal(t, []string{"data_dir_writable", "disk_space", "file_descriptors"}, names)
}

func TestRunAll_ServiceProbes(t *testing.T) {
	// Given: a reachable embedder, an unreachable chunker and a held lock
	checker := New(t.TempDir(),
		WithEmbedder(func(context.Context) error { return nil }),
		WithChunker(func(context.Context) error { return errors.New("connection refused") }),
		WithLockProbe(func() bool { return true }),
	)

	// When: running all checks
	results := checker.RunAll(context.Background())

	// Then: service problems warn without failing
	byName := map[string]CheckResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, StatusPass, byName["embedder"].Status)
	assert.Equal(t, StatusWarn, byName["chunker"].Status)
	assert.Equal(t, "connection refused", byName["chunker"].Details)
	assert.Contains(t, byName["chunker"].Message, "documents still index")
	assert.Equal(t, StatusWarn, byName["write_lock"].Status)
	assert.False(t, HasCriticalFailures(results))
	assert.Equal(t, "ready_with_warnings", SummaryStatus(results))
}

func TestRunAll_ProbeTimeout(t *testing.T) {
	checker := New(t.TempDir(),
		WithProbeTimeout(20*time.Millisecond),
		WithEmbedder(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	)

	start := time.Now()
	results := checker.RunAll(context.Background())

	assert.Less(t, time.Since(start), 2*time.Second)
	last := results[len(results)-1]
	assert.Equal(t, "embedder", last.Name)
	assert.Equal(t, StatusWarn, last.Status)
	assert.Contains(t, last.Details, "deadline exceeded")
}

func TestPrintResults(t *testing.T) {
	results := []CheckResult{
		{Name: "disk_space", Status: StatusPass, Message: "50 GB free"},
		{Name: "embedder", Status: StatusWarn, Message: "unreachable", Details: "dial tcp: refused"},
		{Name: "data_dir_writable", Status: StatusFail, Message: "permission denied", Required: true},
	}

	var buf bytes.Buffer
	PrintResults(&buf, results, true)

	out := buf.String()
	assert.Contains(t, out, "[PASS] disk_space: 50 GB free")
	assert.Contains(t, out, "[WARN] embedder: unreachable")
	assert.Contains(t, out, "      dial tcp: refused")
	assert.Contains(t, out, "Status: FAILED")
	assert.Contains(t, out, "1 error(s):\n  - data_dir_writable: permission denied")
	assert.Contains(t, out, "1 warning(s):\n  - embedder: unreachable")

	buf.Reset()
	PrintResults(&buf, results, false)
	assert.NotContains(t, buf.String(), "dial tcp")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 bytes", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "100.0 MB", formatBytes(MinDiskSpaceBytes))
	assert.Equal(t, "2.0 GB", formatBytes(2<<30))
}

func resultNames(results []CheckResult) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	return names
}

func TestClassifyFileLimit(t *testing.T) {
	tests := []struct {
		limit uint64
		want  CheckStatus
	}{
		{64, StatusFail},
		{MinFileDescriptors, StatusWarn},
		{RecommendedFileDescriptors - 1, StatusWarn},
		{RecommendedFileDescriptors, StatusPass},
		{1 << 20, StatusPass},
	}
	for _, tt := range tests {
		status, msg, _ := classifyFileLimit(tt.limit)
		assert.Equal(t, tt.want, status, "limit %d", tt.limit)
		assert.Contains(t, msg, "open files allowed")
	}
}
