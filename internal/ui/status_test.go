package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStatus() StatusInfo {
	return StatusInfo{
		DataDir:    "/data/amanctx",
		Dimensions: 1024,
		Collections: []CollectionStatus{
			{Name: "code_chunks", Records: 250, Vectors: 240, LexicalDocs: 250},
			{Name: "documents", Records: 12, Vectors: 12, LexicalDocs: 12},
		},
		StorageSize:      6*1024*1024 + 512*1024,
		LastIndexed:      time.Now().Add(-3 * time.Hour),
		EmbedderProvider: "ollama",
		EmbedderModel:    "bge-m3",
		EmbedderStatus:   StatusReady,
		ChunkerEndpoint:  "http://localhost:8090",
		ChunkerStatus:    StatusOffline,
		Queue:            &QueueStatus{Pending: 3, Dead: 1},
	}
}

func TestStatusRenderer_Render(t *testing.T) {
	// Given: status renderer without color
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering status info
	require.NoError(t, r.Render(sampleStatus()))

	// Then: every section is shown
	output := buf.String()
	assert.Contains(t, output, "Index Status: /data/amanctx")
	assert.Contains(t, output, "Dimensions:   1024")
	assert.Contains(t, output, "3 hours ago")
	assert.Contains(t, output, "6.5 MB")
	assert.Contains(t, output, "code_chunks  250 records, 240 vectors, 250 lexical")
	assert.Contains(t, output, "Embedder: ollama bge-m3 (ready)")
	assert.Contains(t, output, "Chunker:  http://localhost:8090 (offline)")
	assert.Contains(t, output, "Queue:    3 pending, 0 leased, 1 dead")
}

func TestStatusRenderer_Render_Minimal(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	require.NoError(t, r.Render(StatusInfo{DataDir: ":memory:", EmbedderProvider: "openai", EmbedderStatus: StatusUnknown}))

	output := buf.String()
	assert.NotContains(t, output, "Last indexed")
	assert.NotContains(t, output, "Chunker:")
	assert.NotContains(t, output, "Queue:")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	require.NoError(t, r.RenderJSON(sampleStatus()))

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, "/data/amanctx", parsed["data_dir"])
	assert.Equal(t, "ready", parsed["embedder_status"])
	assert.Len(t, parsed["collections"], 2)
	assert.Equal(t, float64(1), parsed["queue"].(map[string]any)["dead"])
}

func TestFormatTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		t    time.Time
		want string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-1 * time.Minute), "1 minute ago"},
		{now.Add(-5 * time.Minute), "5 minutes ago"},
		{now.Add(-2 * time.Hour), "2 hours ago"},
		{now.Add(-25 * time.Hour), "1 day ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTime(tt.t))
	}

	old := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, old.Format("2006-01-02 15:04"), formatTime(old))
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}
