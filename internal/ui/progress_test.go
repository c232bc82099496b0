package ui

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewProgressTracker(t *testing.T) {
	// When: creating a new tracker
	tracker := NewProgressTracker()

	// Then: starts at StageScanning with zero progress
	st := tracker.Stats()
	assert.Equal(t, StageScanning, st.Stage)
	assert.Zero(t, st.Current)
	assert.Zero(t, st.Total)
	assert.Zero(t, st.Progress)
}

func TestProgressTracker_Apply(t *testing.T) {
	// Given: a tracker in the chunking stage
	tracker := NewProgressTracker()
	tracker.Apply(ProgressEvent{Stage: StageChunking, Total: 40})

	// When: progress arrives, including one out of order
	tracker.Apply(ProgressEvent{Stage: StageChunking, Current: 10, Total: 40, CurrentFile: "A.java"})
	tracker.Apply(ProgressEvent{Stage: StageChunking, Current: 8, Total: 40, CurrentFile: "B.java"})

	// Then: the counter never moves backwards
	st := tracker.Stats()
	assert.Equal(t, 10, st.Current)
	assert.Equal(t, 40, st.Total)
	assert.InDelta(t, 0.25, st.Progress, 1e-9)
	assert.Equal(t, "B.java", st.CurrentFile)
}

func TestProgressTracker_StageChangeResets(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.Apply(ProgressEvent{Stage: StageChunking, Current: 40, Total: 40, CurrentFile: "A.java"})

	tracker.Apply(ProgressEvent{Stage: StageIndexing, Total: 120})

	st := tracker.Stats()
	assert.Equal(t, StageIndexing, st.Stage)
	assert.Zero(t, st.Current)
	assert.Equal(t, 120, st.Total)
	assert.Empty(t, st.CurrentFile)
	assert.Zero(t, st.Rate)
}

func TestProgressTracker_ProgressCapped(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.Apply(ProgressEvent{Stage: StageIndexing, Current: 15, Total: 10})
	assert.Equal(t, 1.0, tracker.Stats().Progress)
	assert.Zero(t, tracker.Stats().ETA)
}

func TestProgressTracker_RateAndETA(t *testing.T) {
	// Given: a tracker partway through a stage
	tracker := NewProgressTracker()
	tracker.Apply(ProgressEvent{Stage: StageIndexing, Total: 100})

	// When: progress is reported after the sampling window
	time.Sleep(rateWindow + 50*time.Millisecond)
	tracker.Apply(ProgressEvent{Stage: StageIndexing, Current: 50, Total: 100})

	// Then: rate and ETA are estimated
	st := tracker.Stats()
	assert.Greater(t, st.Rate, 0.0)
	assert.Equal(t, st.Rate, st.PeakRate)
	assert.Greater(t, st.ETA, time.Duration(0))
	assert.Less(t, st.ETA, 5*time.Second)
}

func TestProgressTracker_AddError(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.AddError(ErrorEvent{Err: assert.AnError})
	tracker.AddError(ErrorEvent{Err: assert.AnError, IsWarn: true})
	tracker.AddError(ErrorEvent{Err: assert.AnError, IsWarn: true})

	st := tracker.Stats()
	assert.Equal(t, 1, st.Errors)
	assert.Equal(t, 2, st.Warnings)
}

func TestProgressTracker_Concurrent(t *testing.T) {
	tracker := NewProgressTracker()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tracker.Apply(ProgressEvent{Stage: StageIndexing, Current: n, Total: 50})
			_ = tracker.Stats()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, tracker.Stats().Current)
}
