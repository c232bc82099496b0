package ui

import (
	"sync"
	"time"
)

// rateWindow is the minimum gap between throughput samples.
const rateWindow = 500 * time.Millisecond

// smoothing weights a new sample against the running value.
const smoothing = 0.3

// ProgressTracker holds the state behind the TUI. It is safe for
// concurrent use.
type ProgressTracker struct {
	mu sync.Mutex

	stage       Stage
	current     int
	total       int
	currentFile string
	started     time.Time
	stageStart  time.Time

	sampleAt    time.Time
	sampleCount int
	rate        float64
	peak        float64
	eta         time.Duration

	errors   int
	warnings int
}

// ProgressStats is a snapshot of a tracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64
	Rate        float64 // items per second, smoothed
	PeakRate    float64
	ETA         time.Duration
	Elapsed     time.Duration
	CurrentFile string
	Errors      int
	Warnings    int
}

// NewProgressTracker starts a tracker in the scanning stage.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{stage: StageScanning, started: now, stageStart: now, sampleAt: now}
}

// Apply folds a progress event into the tracker. A stage change resets
// the counters and the throughput estimate.
func (p *ProgressTracker) Apply(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if event.Stage != p.stage {
		p.stage = event.Stage
		p.current, p.sampleCount = 0, 0
		p.rate, p.peak, p.eta = 0, 0, 0
		p.currentFile = ""
		p.stageStart, p.sampleAt = now, now
	}
	if event.Total > 0 {
		p.total = event.Total
	}
	if event.CurrentFile != "" {
		p.currentFile = event.CurrentFile
	}
	if event.Current > p.current {
		p.current = event.Current
	}

	if elapsed := now.Sub(p.sampleAt); elapsed >= rateWindow {
		if delta := p.current - p.sampleCount; delta > 0 {
			sample := float64(delta) / elapsed.Seconds()
			if p.rate == 0 {
				p.rate = sample
			} else {
				p.rate = smoothing*sample + (1-smoothing)*p.rate
			}
			if sample > p.peak {
				p.peak = sample
			}
		}
		p.sampleCount, p.sampleAt = p.current, now
	}
	p.updateETA(now)
}

// updateETA projects the stage's remaining time from its average pace and
// smooths it so batch jitter does not make it jump. Lock must be held.
func (p *ProgressTracker) updateETA(now time.Time) {
	if p.current == 0 || p.total == 0 || p.current >= p.total {
		p.eta = 0
		return
	}
	elapsed := now.Sub(p.stageStart)
	remaining := time.Duration(float64(elapsed) * float64(p.total-p.current) / float64(p.current))
	if p.eta == 0 {
		p.eta = remaining
		return
	}
	p.eta = time.Duration(smoothing*float64(remaining) + (1-smoothing)*float64(p.eta))
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	progress := 0.0
	if p.total > 0 {
		progress = min(float64(p.current)/float64(p.total), 1.0)
	}
	return ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Progress:    progress,
		Rate:        p.rate,
		PeakRate:    p.peak,
		ETA:         p.eta,
		Elapsed:     time.Since(p.started),
		CurrentFile: p.currentFile,
		Errors:      p.errors,
		Warnings:    p.warnings,
	}
}
