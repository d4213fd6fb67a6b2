// Package scheduler runs periodic maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	"fii-monitor/internal/errors"
	"fii-monitor/internal/logging"
)

// Job represents a scheduled job
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

// NewJob wraps fn as a Job.
func NewJob(name string, fn func(ctx context.Context) error) Job {
	return funcJob{name: name, fn: fn}
}

// StatusPublisher receives a JobStatus after every run.
type StatusPublisher interface {
	PublishStatus(status interface{})
}

// JobStatus is the outcome of a job's last run.
type JobStatus struct {
	Job      string        `json:"job"`
	Schedule string        `json:"schedule,omitempty"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	RanAt    time.Time     `json:"ran_at"`
	Duration time.Duration `json:"duration"`
	Next     time.Time     `json:"next,omitempty"`
}

type registered struct {
	job      Job
	schedule string
	entry    cron.EntryID
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	jobs      map[string]*registered
	last      map[string]JobStatus
	publisher StatusPublisher
}

// New creates a scheduler using standard five-field cron expressions plus
// descriptors such as "@every 1h". A job still running when its next slot
// comes up skips that slot.
func New(log zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:    logging.WithComponent(log, "scheduler"),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*registered),
		last:   make(map[string]JobStatus),
	}
}

// SetPublisher sets where job outcomes are published.
func (s *Scheduler) SetPublisher(p StatusPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers job on schedule. An empty schedule disables the job.
// Schedule examples:
//   - "@every 1h"   - Every hour
//   - "@daily"      - Midnight
//   - "0 9 1 * *"   - 09:00 on the first of the month
func (s *Scheduler) AddJob(schedule string, job Job) error {
	if schedule == "" {
		s.log.Info().Str("job", job.Name()).Msg("Job disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name()]; dup {
		return errors.NewValidationError("job", job.Name(), "already registered")
	}

	id, err := s.cron.AddFunc(schedule, func() {
		_ = s.run(job)
	})
	if err != nil {
		return errors.NewValidationError("schedule", schedule, err.Error())
	}
	s.jobs[job.Name()] = &registered{job: job, schedule: schedule, entry: id}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	reg, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return errors.NewValidationError("job", name, "not registered")
	}
	s.log.Info().Str("job", name).Msg("Running job immediately")
	return s.run(reg.job)
}

// run executes job with panic isolation and records the outcome.
func (s *Scheduler) run(job Job) error {
	start := time.Now()
	s.log.Debug().Str("job", job.Name()).Msg("Running job")

	var err error
	var pc panics.Catcher
	pc.Try(func() {
		err = job.Run(s.ctx)
	})
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}

	status := JobStatus{Job: job.Name(), OK: err == nil, RanAt: start, Duration: time.Since(start)}
	if err != nil {
		err = errors.NewJobError(job.Name(), err)
		status.Error = err.Error()
		s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
	} else {
		s.log.Debug().Str("job", job.Name()).Dur("duration", status.Duration).Msg("Job completed")
	}

	s.mu.Lock()
	s.last[job.Name()] = status
	publisher := s.publisher
	s.mu.Unlock()
	if publisher != nil {
		publisher.PublishStatus(status)
	}
	return err
}

// Status lists every registered job with its last outcome and next run,
// sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for name, reg := range s.jobs {
		st, ok := s.last[name]
		if !ok {
			st = JobStatus{Job: name}
		}
		st.Schedule = reg.schedule
		st.Next = s.cron.Entry(reg.entry).Next
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}
