// Package monitor polls the data source on a fixed cadence while anything is
// subscribed and fans each snapshot out to the subscribers.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	"fii-monitor/internal/clock"
	"fii-monitor/internal/errors"
	"fii-monitor/internal/logging"
	"fii-monitor/internal/models"
)

// ErrorMessage is shown when a tick fails after every retry.
const ErrorMessage = "Erro ao atualizar dados em tempo real. Tentando novamente em 1 minuto."

// Fetcher returns the current fund snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) ([]*models.FundSnapshot, error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(ctx context.Context) ([]*models.FundSnapshot, error)

// Fetch implements Fetcher.
func (f FetchFunc) Fetch(ctx context.Context) ([]*models.FundSnapshot, error) {
	return f(ctx)
}

// AlertChecker evaluates alerts against a fresh snapshot.
type AlertChecker interface {
	Check(ctx context.Context, snapshot []*models.FundSnapshot) ([]models.Notification, error)
}

// Warner shows an error to the user.
type Warner interface {
	Error(title, message string)
}

// Subscriber receives every successful snapshot. All subscribers of a tick
// share the same slice and must not modify it.
type Subscriber func(funds []*models.FundSnapshot) error

// Config holds the polling cadence.
type Config struct {
	Interval   time.Duration
	RetryDelay time.Duration
	MaxRetries int
}

// DefaultConfig returns the default polling configuration.
func DefaultConfig() Config {
	return Config{
		Interval:   time.Minute,
		RetryDelay: 5 * time.Second,
		MaxRetries: 3,
	}
}

// Status is a snapshot of the monitor state.
type Status struct {
	Running     bool      `json:"running"`
	LastUpdate  time.Time `json:"last_update"`
	RetryCount  int       `json:"retry_count"`
	Subscribers int       `json:"subscribers"`
}

// Monitor runs the polling loop. It is started by the first subscriber and
// stopped when the last one leaves.
type Monitor struct {
	fetcher Fetcher
	cfg     Config
	clock   clock.Clock
	logger  zerolog.Logger
	checker AlertChecker
	warner  Warner

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	subs       map[string]Subscriber
	running    bool
	generation uint64
	interval   clock.Timer
	retry      clock.Timer
	retryCount int
	lastUpdate time.Time
	inFlight   bool
}

// New creates a stopped Monitor.
func New(fetcher Fetcher, cfg Config, clk clock.Clock, logger zerolog.Logger) *Monitor {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		fetcher: fetcher,
		cfg:     cfg,
		clock:   clk,
		logger:  logging.WithComponent(logger, "monitor"),
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[string]Subscriber),
	}
}

// SetAlertChecker installs the hook run after each successful fan-out.
func (m *Monitor) SetAlertChecker(c AlertChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checker = c
}

// SetWarner installs the surface for the give-up error message.
func (m *Monitor) SetWarner(w Warner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warner = w
}

// Subscribe registers cb under id, replacing any callback with the same id.
// The first subscriber starts the loop with an immediate tick. The returned
// function unsubscribes and may be called more than once.
func (m *Monitor) Subscribe(id string, cb Subscriber) func() {
	m.mu.Lock()
	m.subs[id] = cb
	if !m.running {
		m.running = true
		m.generation++
		m.retryLocked(0)
		m.armIntervalLocked()
		m.logger.Info().Str("subscriber", id).Msg("Realtime monitor started")
	}
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { m.Unsubscribe(id) })
	}
}

// Unsubscribe removes id. When no subscribers remain the loop stops.
func (m *Monitor) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subs[id]; !ok {
		return
	}
	delete(m.subs, id)
	if len(m.subs) == 0 && m.running {
		m.stopLocked()
		m.logger.Info().Msg("Realtime monitor stopped")
	}
}

func (m *Monitor) stopLocked() {
	m.running = false
	m.generation++
	m.retryCount = 0
	if m.interval != nil {
		m.interval.Stop()
		m.interval = nil
	}
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

// armIntervalLocked schedules the next regular tick. The chain re-arms itself
// before each tick runs, so retries never shift the cadence.
func (m *Monitor) armIntervalLocked() {
	gen := m.generation
	m.interval = m.clock.AfterFunc(m.cfg.Interval, func() {
		m.mu.Lock()
		current := m.running && gen == m.generation
		if current {
			m.armIntervalLocked()
		}
		m.mu.Unlock()
		if current {
			_ = m.Update(m.ctx)
		}
	})
}

// retryLocked replaces the pending one-shot tick with one after d.
func (m *Monitor) retryLocked(d time.Duration) {
	if m.retry != nil {
		m.retry.Stop()
	}
	gen := m.generation
	m.retry = m.clock.AfterFunc(d, func() {
		m.mu.Lock()
		current := m.running && gen == m.generation
		m.mu.Unlock()
		if current {
			_ = m.Update(m.ctx)
		}
	})
}

// Refresh runs a tick now without touching the cadence. It returns
// errors.ErrRefreshInFlight while another tick is running.
func (m *Monitor) Refresh(ctx context.Context) error {
	return m.Update(ctx)
}

// Update performs one tick: fetch, fan out and check alerts. A failed fetch
// is retried after RetryDelay up to MaxRetries times, then reported through
// the Warner and left to the regular cadence.
func (m *Monitor) Update(ctx context.Context) error {
	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		m.logger.Debug().Msg("Tick already in flight, skipping")
		return errors.ErrRefreshInFlight
	}
	m.inFlight = true
	m.mu.Unlock()

	start := m.clock.Now()
	funds, err := m.fetcher.Fetch(ctx)
	if err != nil {
		m.failed(err)
		return err
	}

	m.mu.Lock()
	m.inFlight = false
	m.lastUpdate = m.clock.Now()
	m.retryCount = 0
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	subs := make(map[string]Subscriber, len(m.subs))
	for id, cb := range m.subs {
		subs[id] = cb
	}
	checker := m.checker
	m.mu.Unlock()

	m.logger.Debug().
		Int("funds", len(funds)).
		Int("subscribers", len(subs)).
		Dur("duration", m.clock.Now().Sub(start)).
		Msg("Realtime tick")

	m.fanOut(subs, funds)

	if checker != nil {
		m.checkAlerts(ctx, checker, funds)
	}
	return nil
}

func (m *Monitor) checkAlerts(ctx context.Context, checker AlertChecker, funds []*models.FundSnapshot) {
	var err error
	var pc panics.Catcher
	pc.Try(func() {
		_, err = checker.Check(ctx, funds)
	})
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}
	if err != nil {
		m.logger.Warn().Err(err).Msg("Alert check failed")
	}
}

func (m *Monitor) failed(err error) {
	m.mu.Lock()
	m.inFlight = false
	if !m.running {
		m.mu.Unlock()
		m.logger.Warn().Err(err).Msg("Realtime update failed while stopped")
		return
	}
	giveUp := m.retryCount >= m.cfg.MaxRetries
	if giveUp {
		m.retryCount = 0
	} else {
		m.retryCount++
		m.retryLocked(m.cfg.RetryDelay)
	}
	attempt := m.retryCount
	warner := m.warner
	m.mu.Unlock()

	if !giveUp {
		m.logger.Warn().Err(err).Int("retry", attempt).Dur("delay", m.cfg.RetryDelay).Msg("Realtime update failed, retrying")
		return
	}
	m.logger.Error().Err(err).Msg("Realtime update failed after retries")
	if warner != nil {
		warner.Error("Monitoramento", ErrorMessage)
	}
}

func (m *Monitor) fanOut(subs map[string]Subscriber, funds []*models.FundSnapshot) {
	for id, cb := range subs {
		var err error
		var pc panics.Catcher
		pc.Try(func() {
			err = cb(funds)
		})
		if r := pc.Recovered(); r != nil {
			err = r.AsError()
		}
		if err != nil {
			m.logger.Error().Err(errors.NewJobError(id, err)).Str("subscriber", id).Msg("Subscriber failed")
		}
	}
}

// Status returns the current state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Running:     m.running,
		LastUpdate:  m.lastUpdate,
		RetryCount:  m.retryCount,
		Subscribers: len(m.subs),
	}
}

// Close stops the loop, drops every subscriber and cancels in-flight ticks.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.subs = make(map[string]Subscriber)
	if m.running {
		m.stopLocked()
	}
	m.mu.Unlock()
	m.cancel()
}

// String implements fmt.Stringer for status output.
func (s Status) String() string {
	state := "parado"
	if s.Running {
		state = "ativo"
	}
	last := "nunca"
	if !s.LastUpdate.IsZero() {
		last = s.LastUpdate.Format("15:04:05")
	}
	return fmt.Sprintf("monitor %s, %d inscritos, última atualização %s", state, s.Subscribers, last)
}
