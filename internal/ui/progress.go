package ui

import (
	"sync"
	"time"
)

// etaSmoothing is the weight of the newest ETA estimate.
const etaSmoothing = 0.3

// ProgressTracker holds the state behind the TUI. It is safe for
// concurrent use.
type ProgressTracker struct {
	mu  sync.Mutex
	now func() time.Time

	stage       Stage
	current     int
	total       int
	currentFile string
	stageStart  time.Time
	lastETA     time.Duration

	errors   int
	warnings int
	lastErr  string
}

// ProgressStats is a snapshot of a ProgressTracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64 // 0..1
	ETA         time.Duration
	Rate        float64 // items per second in the current stage
	CurrentFile string
	ErrorCount  int
	WarnCount   int
	LastError   string
}

// NewProgressTracker returns a tracker in the scanning stage.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	return &ProgressTracker{now: now, stage: StageScanning, stageStart: now()}
}

// Apply folds an event into the tracker. A new stage resets the counters.
func (p *ProgressTracker) Apply(ev ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Stage != p.stage {
		p.stage = ev.Stage
		p.current = 0
		p.currentFile = ""
		p.stageStart = p.now()
		p.lastETA = 0
	}
	p.total = ev.Total
	p.current = ev.Current
	if ev.CurrentFile != "" {
		p.currentFile = ev.CurrentFile
	}
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(ev ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
	if ev.Err != nil {
		p.lastErr = ev.Err.Error()
		if ev.File != "" {
			p.lastErr = ev.File + ": " + p.lastErr
		}
	}
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		CurrentFile: p.currentFile,
		ErrorCount:  p.errors,
		WarnCount:   p.warnings,
		LastError:   p.lastErr,
	}
	if p.total > 0 {
		s.Progress = min(float64(p.current)/float64(p.total), 1)
	}
	if elapsed := p.now().Sub(p.stageStart); elapsed > 0 {
		s.Rate = float64(p.current) / elapsed.Seconds()
	}
	s.ETA = p.eta()
	return s
}

// eta must be called with the lock held. Estimates are smoothed so that
// uneven batch latency does not make the display jump.
func (p *ProgressTracker) eta() time.Duration {
	if p.current == 0 || p.total == 0 || p.current >= p.total {
		return 0
	}
	elapsed := p.now().Sub(p.stageStart)
	raw := time.Duration(float64(elapsed) * float64(p.total-p.current) / float64(p.current))
	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	p.lastETA = time.Duration(etaSmoothing*float64(raw) + (1-etaSmoothing)*float64(p.lastETA))
	return p.lastETA
}
