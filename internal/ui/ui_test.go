package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_StringAndIcon(t *testing.T) {
	tests := []struct {
		stage Stage
		name  string
		icon  string
	}{
		{StageScanning, "Scanning", "SCAN"},
		{StageChunking, "Chunking", "CHUNK"},
		{StageIndexing, "Indexing", "INDEX"},
		{StageComplete, "Complete", "DONE"},
		{Stage(99), "Unknown", "???"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.stage.String())
		assert.Equal(t, tt.icon, tt.stage.Icon())
	}
}

func TestIsTTY_NonTerminals(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))
}

func TestNewConfig(t *testing.T) {
	// Given: default config
	cfg := NewConfig(&bytes.Buffer{})

	// Then: has sensible defaults
	assert.False(t, cfg.ForcePlain)
	assert.False(t, cfg.NoColor)
	assert.Equal(t, "dots", cfg.SpinnerStyle)

	// When: options are given
	cfg = NewConfig(&bytes.Buffer{}, WithForcePlain(true), WithNoColor(true), WithProjectDir("/repo"))

	// Then: options are applied
	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "/repo", cfg.ProjectDir)
}

func TestNewRenderer_FallsBackToPlain(t *testing.T) {
	// Given: forced plain, then a non-TTY buffer
	for _, cfg := range []Config{
		NewConfig(&bytes.Buffer{}, WithForcePlain(true)),
		NewConfig(&bytes.Buffer{}),
	} {
		// When: creating renderer
		r := NewRenderer(cfg)

		// Then: returns PlainRenderer
		_, ok := r.(*PlainRenderer)
		require.True(t, ok, "expected PlainRenderer")
	}
}

func TestNop(t *testing.T) {
	r := Nop()
	require.NoError(t, r.Start(t.Context()))
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing})
	r.AddError(ErrorEvent{Err: assert.AnError})
	r.Complete(CompletionStats{})
	require.NoError(t, r.Stop())
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestDetectCI(t *testing.T) {
	t.Setenv("GITLAB_CI", "true")
	assert.True(t, DetectCI())
}
