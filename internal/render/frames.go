package render

import (
	"sync"
	"time"

	"fii-monitor/internal/clock"
)

// FrameSource delivers frame ticks to the scheduler.
type FrameSource interface {
	// RequestFrame arranges for fn to run once on the next frame.
	RequestFrame(fn func())
	// Close drops pending frames.
	Close()
}

// TimerFrames ticks frames from a clock at a fixed interval.
type TimerFrames struct {
	clock    clock.Clock
	interval time.Duration

	mu     sync.Mutex
	timer  clock.Timer
	closed bool
}

// NewTimerFrames creates a timer-driven frame source.
func NewTimerFrames(clk clock.Clock, interval time.Duration) *TimerFrames {
	if clk == nil {
		clk = clock.New()
	}
	return &TimerFrames{clock: clk, interval: interval}
}

// RequestFrame implements FrameSource.
func (f *TimerFrames) RequestFrame(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.timer = f.clock.AfterFunc(f.interval, fn)
}

// Close implements FrameSource.
func (f *TimerFrames) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.timer != nil {
		f.timer.Stop()
	}
}

// ManualFrames only ticks when Tick is called.
type ManualFrames struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
}

// NewManualFrames creates a manual frame source.
func NewManualFrames() *ManualFrames {
	return &ManualFrames{}
}

// RequestFrame implements FrameSource.
func (f *ManualFrames) RequestFrame(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.pending = append(f.pending, fn)
	}
}

// Tick runs every requested frame and returns how many ran.
func (f *ManualFrames) Tick() int {
	f.mu.Lock()
	fns := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Requested returns the number of frames waiting for a tick.
func (f *ManualFrames) Requested() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Close implements FrameSource.
func (f *ManualFrames) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.pending = nil
}
