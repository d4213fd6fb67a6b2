// Package render coalesces redraw requests into prioritized passes run on
// frame ticks.
package render

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	"fii-monitor/internal/clock"
	"fii-monitor/internal/errors"
	"fii-monitor/internal/logging"
)

// Job is a unit of deferred redraw work.
type Job func() error

// Warner surfaces non-blocking warnings to the user.
type Warner interface {
	Warning(title, message string)
}

// Config holds scheduler settings.
type Config struct {
	FrameInterval time.Duration
	// SlowThreshold is the moving average above which a job is logged as slow.
	SlowThreshold time.Duration
	// MaxChainedPasses bounds passes triggered by jobs enqueued during a pass.
	MaxChainedPasses int
	// Window is the number of duration samples kept per job id.
	Window int
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		FrameInterval:    16 * time.Millisecond,
		SlowThreshold:    100 * time.Millisecond,
		MaxChainedPasses: 10,
		Window:           100,
	}
}

// Stats counts scheduler activity.
type Stats struct {
	Passes      int64 `json:"passes"`
	JobsRun     int64 `json:"jobs_run"`
	JobsFailed  int64 `json:"jobs_failed"`
	ChainBreaks int64 `json:"chain_breaks"`
	Pending     int   `json:"pending"`
}

type entry struct {
	id       string
	job      Job
	priority int
	seq      uint64
}

// Scheduler holds at most one pending job per id and runs them in priority
// order on the next frame.
type Scheduler struct {
	cfg    Config
	frames FrameSource
	clock  clock.Clock
	warner Warner
	logger zerolog.Logger

	// passMu serializes passes so a job never runs concurrently with itself.
	passMu sync.Mutex

	mu           sync.Mutex
	pending      map[string]*entry
	seq          uint64
	framePending bool
	inPass       bool
	closed       bool
	stats        Stats
	samples      map[string]*window
}

// NewScheduler creates a Scheduler. A nil frame source ticks from the clock
// at cfg.FrameInterval; a nil clock uses the system clock.
func NewScheduler(cfg Config, frames FrameSource, clk clock.Clock, warner Warner, logger zerolog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if frames == nil {
		frames = NewTimerFrames(clk, cfg.FrameInterval)
	}
	if cfg.MaxChainedPasses < 1 {
		cfg.MaxChainedPasses = 1
	}
	if cfg.Window < 1 {
		cfg.Window = 100
	}
	return &Scheduler{
		cfg:     cfg,
		frames:  frames,
		clock:   clk,
		warner:  warner,
		logger:  logging.WithComponent(logger, "render"),
		pending: make(map[string]*entry),
		samples: make(map[string]*window),
	}
}

// Enqueue registers job under id, replacing any pending job with the same
// id along with its priority. A frame is requested if none is pending.
func (s *Scheduler) Enqueue(id string, job Job, priority int) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	s.pending[id] = &entry{id: id, job: job, priority: priority, seq: s.seq}

	request := !s.framePending && !s.inPass
	if request {
		s.framePending = true
	}
	s.mu.Unlock()

	if request {
		s.frames.RequestFrame(s.frame)
	}
}

// EnqueueFunc is Enqueue for jobs that cannot fail.
func (s *Scheduler) EnqueueFunc(id string, fn func(), priority int) {
	s.Enqueue(id, func() error {
		fn()
		return nil
	}, priority)
}

// Flush runs pending jobs now instead of waiting for the frame.
func (s *Scheduler) Flush() {
	s.frame()
}

// frame runs one pass, then further passes for jobs enqueued meanwhile, up
// to MaxChainedPasses. Whatever is left waits for the following frame.
// Flush and frame must not be called from inside a job.
func (s *Scheduler) frame() {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	s.mu.Lock()
	s.framePending = false
	s.inPass = true
	s.mu.Unlock()

	for chained := 0; ; chained++ {
		if chained > s.cfg.MaxChainedPasses {
			s.breakChain(chained - 1)
			return
		}
		batch := s.next()
		if batch == nil {
			return
		}
		s.runPass(batch)
	}
}

func (s *Scheduler) breakChain(chained int) {
	s.mu.Lock()
	s.inPass = false
	left := len(s.pending)
	if left == 0 {
		s.mu.Unlock()
		return
	}
	s.stats.ChainBreaks++
	request := !s.closed && !s.framePending
	if request {
		s.framePending = true
	}
	s.mu.Unlock()

	s.logger.Warn().
		Int("chained_passes", chained).
		Int("deferred_jobs", left).
		Msg("Render jobs keep rescheduling themselves, deferring to next frame")

	if request {
		s.frames.RequestFrame(s.frame)
	}
}

// next drains the pending map in execution order. When nothing is pending
// it ends the pass and returns nil.
func (s *Scheduler) next() []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		s.inPass = false
		return nil
	}
	batch := make([]*entry, 0, len(s.pending))
	for _, e := range s.pending {
		batch = append(batch, e)
	}
	s.pending = make(map[string]*entry)

	sort.Slice(batch, func(i, j int) bool {
		if batch[i].priority != batch[j].priority {
			return batch[i].priority > batch[j].priority
		}
		return batch[i].seq < batch[j].seq
	})
	return batch
}

func (s *Scheduler) runPass(batch []*entry) {
	s.mu.Lock()
	s.stats.Passes++
	s.mu.Unlock()

	for _, e := range batch {
		start := s.clock.Now()
		err := runJob(e)
		elapsed := s.clock.Now().Sub(start)

		s.record(e.id, elapsed)
		if err != nil {
			s.fail(e.id, err)
		}
	}
}

func runJob(e *entry) error {
	var err error
	var pc panics.Catcher
	pc.Try(func() {
		err = e.job()
	})
	if r := pc.Recovered(); r != nil {
		return errors.NewJobError(e.id, r.AsError())
	}
	if err != nil {
		return errors.NewJobError(e.id, err)
	}
	return nil
}

func (s *Scheduler) fail(id string, err error) {
	s.mu.Lock()
	s.stats.JobsFailed++
	s.mu.Unlock()

	s.logger.Error().Err(err).Str("job", id).Msg("Render job failed")
	if s.warner != nil {
		s.warner.Warning("Erro de renderização", fmt.Sprintf("Falha ao atualizar %s.", id))
	}
}

func (s *Scheduler) record(id string, d time.Duration) {
	s.mu.Lock()
	s.stats.JobsRun++
	w, ok := s.samples[id]
	if !ok {
		w = newWindow(s.cfg.Window)
		s.samples[id] = w
	}
	w.add(d)
	avg, n := w.average(), w.len()
	s.mu.Unlock()

	if s.cfg.SlowThreshold > 0 && avg > s.cfg.SlowThreshold {
		logging.LogRender(s.logger, id, avg, n)
	}
}

// Average returns the moving average duration of job id and the number of
// samples it covers.
func (s *Scheduler) Average(id string) (time.Duration, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.samples[id]
	if !ok {
		return 0, 0
	}
	return w.average(), w.len()
}

// Stats returns a snapshot of scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Pending = len(s.pending)
	return st
}

// Close drops pending jobs and stops the frame source.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.pending = make(map[string]*entry)
	s.mu.Unlock()
	s.frames.Close()
}
