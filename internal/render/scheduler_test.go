package render

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fii-monitor/internal/clock"
)

type spyWarner struct {
	mu       sync.Mutex
	warnings []string
}

func (w *spyWarner) Warning(title, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.warnings = append(w.warnings, message)
}

func (w *spyWarner) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.warnings)
}

func newManualScheduler(cfg Config) (*Scheduler, *ManualFrames, *spyWarner) {
	frames := NewManualFrames()
	warner := &spyWarner{}
	return NewScheduler(cfg, frames, clock.NewFake(time.Unix(0, 0)), warner, zerolog.Nop()), frames, warner
}

// Property: Enqueuing the same id N times before a pass runs exactly one
// job, the last one registered.
func TestProperty_EnqueueCoalescing(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("one execution of the last callback", prop.ForAll(
		func(n int) bool {
			s, frames, _ := newManualScheduler(DefaultConfig())
			var ran []int
			for i := 0; i < n; i++ {
				i := i
				s.EnqueueFunc("chart", func() { ran = append(ran, i) }, i%3)
			}
			if frames.Requested() != 1 {
				return false
			}
			frames.Tick()
			return len(ran) == 1 && ran[0] == n-1
		},
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}

// Property: Jobs with priorities 0, 2 and 1 run as 2, 1, 0 whatever the
// enqueue order.
func TestProperty_PriorityOrdering(t *testing.T) {
	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("descending priority", prop.ForAll(
		func(idx int) bool {
			s, _, _ := newManualScheduler(DefaultConfig())
			var order []int
			for _, p := range perms[idx] {
				p := p
				s.EnqueueFunc(string(rune('a'+p)), func() { order = append(order, p) }, p)
			}
			s.Flush()
			return len(order) == 3 && order[0] == 2 && order[1] == 1 && order[2] == 0
		},
		gen.IntRange(0, len(perms)-1),
	))

	properties.TestingRun(t)
}

func TestScheduler_EqualPrioritiesKeepEnqueueOrder(t *testing.T) {
	s, _, _ := newManualScheduler(DefaultConfig())
	var order []string
	for _, id := range []string{"table", "summary", "chart"} {
		id := id
		s.EnqueueFunc(id, func() { order = append(order, id) }, 0)
	}
	s.Flush()
	assert.Equal(t, []string{"table", "summary", "chart"}, order)
}

func TestScheduler_FailingJobsAreIsolated(t *testing.T) {
	s, frames, warner := newManualScheduler(DefaultConfig())
	var ran []string

	s.Enqueue("panics", func() error { panic("nil chart") }, 3)
	s.Enqueue("errors", func() error { return errors.New("no canvas") }, 2)
	s.EnqueueFunc("table", func() { ran = append(ran, "table") }, 1)

	frames.Tick()

	assert.Equal(t, []string{"table"}, ran)
	assert.Equal(t, 2, warner.count())
	st := s.Stats()
	assert.Equal(t, int64(3), st.JobsRun)
	assert.Equal(t, int64(2), st.JobsFailed)
}

func TestScheduler_JobsEnqueuedDuringPassRunInSameFrame(t *testing.T) {
	s, frames, _ := newManualScheduler(DefaultConfig())
	var ran []string

	s.EnqueueFunc("summary", func() {
		ran = append(ran, "summary")
		s.EnqueueFunc("chart", func() { ran = append(ran, "chart") }, 0)
	}, 0)

	frames.Tick()
	assert.Equal(t, []string{"summary", "chart"}, ran)
	assert.Equal(t, int64(2), s.Stats().Passes)
	assert.Equal(t, 0, frames.Requested())
}

func TestScheduler_ChainGuardDefersSelfReschedulingJob(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxChainedPasses = 3
	s, frames, _ := newManualScheduler(cfg)

	runs := 0
	var loop Job
	loop = func() error {
		runs++
		s.Enqueue("loop", loop, 0)
		return nil
	}
	s.Enqueue("loop", loop, 0)

	frames.Tick()
	assert.Equal(t, 4, runs, "first pass plus three chained passes")
	assert.Equal(t, int64(1), s.Stats().ChainBreaks)
	assert.Equal(t, 1, frames.Requested(), "remaining job waits for the next frame")

	frames.Tick()
	assert.Equal(t, 8, runs)
}

func TestScheduler_TracksAverageDuration(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	cfg := DefaultConfig()
	cfg.Window = 2
	s := NewScheduler(cfg, NewManualFrames(), clk, nil, zerolog.Nop())

	for _, d := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond} {
		d := d
		s.EnqueueFunc("heavy", func() { clk.Advance(d) }, 0)
		s.Flush()
	}

	avg, n := s.Average("heavy")
	assert.Equal(t, 2, n)
	assert.Equal(t, 300*time.Millisecond, avg)

	avg, n = s.Average("unknown")
	assert.Zero(t, avg)
	assert.Zero(t, n)
}

func TestScheduler_TimerFrames(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	s := NewScheduler(DefaultConfig(), nil, clk, nil, zerolog.Nop())

	ran := 0
	s.EnqueueFunc("summary", func() { ran++ }, 0)
	s.EnqueueFunc("summary", func() { ran++ }, 0)
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(16 * time.Millisecond)
	assert.Equal(t, 1, ran)

	s.EnqueueFunc("summary", func() { ran++ }, 0)
	s.Close()
	clk.Advance(time.Second)
	assert.Equal(t, 1, ran)
}

func TestDebounce(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	calls := 0
	d := Debounce(func() { calls++ }, 50*time.Millisecond, clk)

	for i := 0; i < 3; i++ {
		d.Call()
		clk.Advance(10 * time.Millisecond)
	}
	assert.Equal(t, 0, calls)
	clk.Advance(50 * time.Millisecond)
	assert.Equal(t, 1, calls)

	d.Call()
	d.Cancel()
	clk.Advance(time.Second)
	assert.Equal(t, 1, calls)

	d.Call()
	require.True(t, d.Flush())
	assert.Equal(t, 2, calls)
	assert.False(t, d.Pending())
	assert.False(t, d.Flush())
}

func TestThrottle(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	calls := 0
	th := Throttle(func() { calls++ }, time.Second, clk)

	assert.True(t, th.Call())
	assert.False(t, th.Call())
	clk.Advance(time.Second)
	assert.True(t, th.Call())
	assert.Equal(t, 2, calls)
}
