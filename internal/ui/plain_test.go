package ui

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress_OutputFormat(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: updating progress
	r.UpdateProgress(ProgressEvent{
		Stage:       StageChunking,
		Current:     50,
		Total:       100,
		CurrentFile: "src/main/java/OrderService.java",
	})

	// Then: output is correctly formatted
	output := buf.String()
	assert.Contains(t, output, "[CHUNK]")
	assert.Contains(t, output, "50/100")
	assert.Contains(t, output, "OrderService.java")
}

func TestPlainRenderer_AllStages_NoANSICodes(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: rendering progress through all stages
	stages := []struct {
		stage Stage
		icon  string
	}{
		{StageScanning, "SCAN"},
		{StageChunking, "CHUNK"},
		{StageIndexing, "INDEX"},
		{StageComplete, "DONE"},
	}
	for _, s := range stages {
		r.UpdateProgress(ProgressEvent{Stage: s.stage, Current: 50, Total: 100, Message: "working"})
	}

	// Then: every icon appears and no escape codes are written
	output := buf.String()
	for _, s := range stages {
		assert.Contains(t, output, "["+s.icon+"]")
	}
	assert.NotContains(t, output, "\x1b[")
}

func TestPlainRenderer_UpdateProgress_ZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.UpdateProgress(ProgressEvent{Stage: StageScanning, Message: "/repo"})
	r.UpdateProgress(ProgressEvent{Stage: StageScanning})

	output := buf.String()
	assert.Equal(t, "[SCAN] /repo\n", output)
}

func TestPlainRenderer_AddError(t *testing.T) {
	tests := []struct {
		name  string
		event ErrorEvent
		want  string
	}{
		{
			name:  "error with file",
			event: ErrorEvent{File: "A.kt", Err: errors.New("chunker returned status 500")},
			want:  "ERROR: A.kt: chunker returned status 500\n",
		},
		{
			name:  "warning with file",
			event: ErrorEvent{File: "B.java", Err: errors.New("failed to read"), IsWarn: true},
			want:  "WARN: B.java: failed to read\n",
		},
		{
			name:  "no file",
			event: ErrorEvent{Err: errors.New("connection refused")},
			want:  "ERROR: connection refused\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			r := NewPlainRenderer(NewConfig(buf))
			r.AddError(tt.event)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: completing a run with failures
	r.Complete(CompletionStats{
		Scope:         "task-7",
		Files:         12,
		FilesFailed:   2,
		Records:       40,
		RecordsFailed: 3,
		Duration:      5 * time.Second,
		Errors:        3,
		Warnings:      2,
		Stages:        StageTimings{Scan: time.Second, Chunk: 2 * time.Second, Index: 2 * time.Second},
		Embedder:      EmbedderInfo{Provider: "ollama", Model: "bge-m3", Dimensions: 1024, Available: true},
	})

	// Then: summary, failures, stages and embedder are shown
	output := buf.String()
	assert.Contains(t, output, "Complete: 10 files, 40 records indexed in 5s [scope task-7]")
	assert.Contains(t, output, "(3 errors, 2 warnings)")
	assert.Contains(t, output, "Failed: 2 files, 3 records")
	assert.Contains(t, output, "Chunk: 2s")
	assert.Contains(t, output, "40 records @ 20.0/sec")
	assert.Contains(t, output, "Embedder: ollama (bge-m3, 1024 dims, available)")
	assert.NotContains(t, output, "\x1b[")
}

func TestPlainRenderer_Complete_Minimal(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Complete(CompletionStats{Files: 3, Records: 3, Duration: time.Second})

	assert.Equal(t, "Complete: 3 files, 3 records indexed in 1s\n", buf.String())
}

func TestPlainRenderer_Complete_EmbedderUnavailable(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Complete(CompletionStats{Embedder: EmbedderInfo{Provider: "openai", Model: "m", Dimensions: 8}})

	assert.Contains(t, buf.String(), "unavailable, stored without vectors")
}

func TestPlainRenderer_StartStop(t *testing.T) {
	r := NewPlainRenderer(NewConfig(&bytes.Buffer{}))
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop())
}

func TestPlainRenderer_ThreadSafe(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: concurrent updates
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: n, Total: 100})
			r.AddError(ErrorEvent{File: "x.java", Err: errors.New("boom"), IsWarn: n%2 == 0})
		}(i)
	}
	wg.Wait()

	// Then: every error was recorded
	assert.Len(t, r.errors, 10)
}
