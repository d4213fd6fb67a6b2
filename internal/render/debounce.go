package render

import (
	"sync"
	"time"

	"fii-monitor/internal/clock"
)

// Debouncer delays fn until wait has passed since the last Call.
type Debouncer struct {
	fn    func()
	wait  time.Duration
	clock clock.Clock

	mu    sync.Mutex
	timer clock.Timer
	gen   uint64
}

// Debounce returns a Debouncer for fn. A nil clock uses the system clock.
func Debounce(fn func(), wait time.Duration, clk clock.Clock) *Debouncer {
	if clk == nil {
		clk = clock.New()
	}
	return &Debouncer{fn: fn, wait: wait, clock: clk}
}

// Call restarts the wait.
func (d *Debouncer) Call() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.wait, func() {
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.fn()
	})
}

// Cancel drops a pending invocation.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Flush runs a pending invocation immediately. It reports whether one ran.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.timer == nil {
		d.mu.Unlock()
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	d.mu.Unlock()

	d.fn()
	return true
}

// Pending reports whether an invocation is waiting.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Throttler runs fn at most once per limit window, on the leading call.
type Throttler struct {
	fn    func()
	limit time.Duration
	clock clock.Clock

	mu   sync.Mutex
	last time.Time
	ran  bool
}

// Throttle returns a Throttler for fn. A nil clock uses the system clock.
func Throttle(fn func(), limit time.Duration, clk clock.Clock) *Throttler {
	if clk == nil {
		clk = clock.New()
	}
	return &Throttler{fn: fn, limit: limit, clock: clk}
}

// Call runs fn unless it ran within the limit. It reports whether fn ran.
func (t *Throttler) Call() bool {
	t.mu.Lock()
	now := t.clock.Now()
	if t.ran && now.Sub(t.last) < t.limit {
		t.mu.Unlock()
		return false
	}
	t.ran = true
	t.last = now
	t.mu.Unlock()

	t.fn()
	return true
}
