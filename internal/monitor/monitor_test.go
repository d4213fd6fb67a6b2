package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fii-monitor/internal/clock"
	"fii-monitor/internal/errors"
	"fii-monitor/internal/models"
)

var epoch = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

// scriptedFetcher fails the first failures calls and then succeeds.
type scriptedFetcher struct {
	mu       sync.Mutex
	calls    int
	failures int
	always   bool
	funds    []*models.FundSnapshot
	during   func()
}

func (f *scriptedFetcher) Fetch(ctx context.Context) ([]*models.FundSnapshot, error) {
	f.mu.Lock()
	f.calls++
	fail := f.always || f.calls <= f.failures
	during := f.during
	f.mu.Unlock()

	if during != nil {
		during()
	}
	if fail {
		return nil, errors.New("upstream unavailable")
	}
	return f.funds, nil
}

func (f *scriptedFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type spyWarner struct {
	mu       sync.Mutex
	messages []string
}

func (w *spyWarner) Error(title, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, message)
}

type spyChecker struct {
	calls    int
	snapshot []*models.FundSnapshot
}

func (c *spyChecker) Check(ctx context.Context, snapshot []*models.FundSnapshot) ([]models.Notification, error) {
	c.calls++
	c.snapshot = snapshot
	return nil, nil
}

func sampleFunds() []*models.FundSnapshot {
	return []*models.FundSnapshot{
		{Ticker: "MXRF11", Sector: models.SectorReceivables, Price: 10},
		{Ticker: "HGLG11", Sector: models.SectorLogistics, Price: 160},
	}
}

func newTestMonitor(f Fetcher) (*Monitor, *clock.Fake) {
	clk := clock.NewFake(epoch)
	return New(f, DefaultConfig(), clk, zerolog.Nop()), clk
}

func TestMonitor_FirstSubscriberTicksImmediatelyThenEveryInterval(t *testing.T) {
	fetcher := &scriptedFetcher{funds: sampleFunds()}
	m, clk := newTestMonitor(fetcher)

	var received [][]*models.FundSnapshot
	m.Subscribe("dashboard", func(funds []*models.FundSnapshot) error {
		received = append(received, funds)
		return nil
	})
	assert.True(t, m.Status().Running)

	clk.Advance(0)
	require.Len(t, received, 1)
	assert.Equal(t, epoch, m.Status().LastUpdate)

	clk.Advance(59 * time.Second)
	assert.Len(t, received, 1)
	clk.Advance(time.Second)
	assert.Len(t, received, 2)
	assert.Equal(t, 2, fetcher.count())
}

func TestMonitor_RetryThenRecover(t *testing.T) {
	fetcher := &scriptedFetcher{funds: sampleFunds(), failures: 2}
	m, clk := newTestMonitor(fetcher)
	warner := &spyWarner{}
	m.SetWarner(warner)

	delivered := 0
	m.Subscribe("monitoring", func([]*models.FundSnapshot) error {
		delivered++
		return nil
	})

	clk.Advance(0)
	assert.Equal(t, 1, m.Status().RetryCount)
	assert.Equal(t, 2, clk.Pending(), "the retry runs beside the interval tick")

	clk.Advance(5 * time.Second)
	assert.Equal(t, 2, m.Status().RetryCount)

	clk.Advance(5 * time.Second)
	assert.Equal(t, 3, fetcher.count())
	assert.Equal(t, 1, delivered)
	assert.Zero(t, m.Status().RetryCount)
	assert.Empty(t, warner.messages)
}

func TestMonitor_ErrorNotificationAfterMaxRetries(t *testing.T) {
	fetcher := &scriptedFetcher{always: true}
	m, clk := newTestMonitor(fetcher)
	warner := &spyWarner{}
	m.SetWarner(warner)
	m.Subscribe("dashboard", func([]*models.FundSnapshot) error { return nil })

	clk.Advance(0)
	for i := 0; i < 3; i++ {
		clk.Advance(5 * time.Second)
	}

	assert.Equal(t, 4, fetcher.count(), "initial attempt plus three retries")
	require.Equal(t, []string{ErrorMessage}, warner.messages)
	assert.Zero(t, m.Status().RetryCount)

	// Back on the regular cadence, still anchored at the first tick.
	clk.Advance(44 * time.Second)
	assert.Equal(t, 4, fetcher.count())
	clk.Advance(time.Second)
	assert.Equal(t, 5, fetcher.count())
}

func TestMonitor_IntervalIndependentOfRetries(t *testing.T) {
	fetcher := &scriptedFetcher{funds: sampleFunds(), failures: 1}
	m, clk := newTestMonitor(fetcher)

	var ticks []time.Time
	m.Subscribe("dashboard", func([]*models.FundSnapshot) error {
		ticks = append(ticks, clk.Now())
		return nil
	})

	clk.Advance(0)
	clk.Advance(5 * time.Second)
	require.Len(t, ticks, 1)
	assert.Equal(t, epoch.Add(5*time.Second), ticks[0], "the retry succeeds")
	assert.Equal(t, 1, clk.Pending(), "only the interval tick is left")

	clk.Advance(55 * time.Second)
	require.Len(t, ticks, 2)
	assert.Equal(t, epoch.Add(time.Minute), ticks[1], "the retry did not shift the cadence")
	assert.Equal(t, 3, fetcher.count())

	clk.Advance(time.Minute)
	require.Len(t, ticks, 3)
	assert.Equal(t, epoch.Add(2*time.Minute), ticks[2])
}

func TestMonitor_IntervalKeepsTickingWhileRetrying(t *testing.T) {
	fetcher := &scriptedFetcher{always: true}
	cfg := DefaultConfig()
	cfg.RetryDelay = 25 * time.Second
	cfg.MaxRetries = 10
	clk := clock.NewFake(epoch)
	m := New(fetcher, cfg, clk, zerolog.Nop())
	m.Subscribe("dashboard", func([]*models.FundSnapshot) error { return nil })

	// Fetches at 0, 25 and 50 are the first tick and its retries.
	clk.Advance(0)
	clk.Advance(50 * time.Second)
	assert.Equal(t, 3, fetcher.count())

	clk.Advance(10 * time.Second)
	assert.Equal(t, 4, fetcher.count(), "the interval tick fires at 60s")
	assert.Equal(t, 2, clk.Pending(), "one retry and one interval tick")
}

func TestMonitor_StopsWhenLastSubscriberLeaves(t *testing.T) {
	fetcher := &scriptedFetcher{funds: sampleFunds()}
	m, clk := newTestMonitor(fetcher)

	unsubA := m.Subscribe("a", func([]*models.FundSnapshot) error { return nil })
	unsubB := m.Subscribe("b", func([]*models.FundSnapshot) error { return nil })
	clk.Advance(0)

	unsubA()
	unsubA()
	assert.True(t, m.Status().Running)
	assert.Equal(t, 1, m.Status().Subscribers)

	unsubB()
	st := m.Status()
	assert.False(t, st.Running)
	assert.Zero(t, st.Subscribers)
	assert.Zero(t, clk.Pending())

	clk.Advance(10 * time.Minute)
	assert.Equal(t, 1, fetcher.count())
}

func TestMonitor_SubscriberFailuresAreIsolated(t *testing.T) {
	fetcher := &scriptedFetcher{funds: sampleFunds()}
	m, clk := newTestMonitor(fetcher)
	checker := &spyChecker{}
	m.SetAlertChecker(checker)

	var got []*models.FundSnapshot
	m.Subscribe("panics", func([]*models.FundSnapshot) error { panic("chart missing") })
	m.Subscribe("errors", func([]*models.FundSnapshot) error { return errors.New("render failed") })
	m.Subscribe("table", func(funds []*models.FundSnapshot) error {
		got = funds
		return nil
	})

	clk.Advance(0)
	require.Len(t, got, 2)
	assert.Same(t, got[0], checker.snapshot[0], "subscribers and alerts share one snapshot")
	assert.Equal(t, 1, checker.calls)
	assert.True(t, m.Status().Running)
}

type panickingChecker struct{ calls int }

func (c *panickingChecker) Check(context.Context, []*models.FundSnapshot) ([]models.Notification, error) {
	c.calls++
	panic("rule table corrupted")
}

func TestMonitor_AlertCheckPanicIsContained(t *testing.T) {
	fetcher := &scriptedFetcher{funds: sampleFunds()}
	m, clk := newTestMonitor(fetcher)
	checker := &panickingChecker{}
	m.SetAlertChecker(checker)

	delivered := 0
	m.Subscribe("dashboard", func([]*models.FundSnapshot) error {
		delivered++
		return nil
	})

	assert.NotPanics(t, func() { clk.Advance(0) })
	assert.NoError(t, m.Refresh(context.Background()), "the in-flight flag was released")
	assert.NotPanics(t, func() { clk.Advance(time.Minute) })

	assert.Equal(t, 3, delivered)
	assert.Equal(t, 3, checker.calls)
	assert.True(t, m.Status().Running)
}

func TestMonitor_OverlappingRefreshIsCoalesced(t *testing.T) {
	fetcher := &scriptedFetcher{funds: sampleFunds()}
	m, clk := newTestMonitor(fetcher)

	var nested error
	fetcher.during = func() {
		fetcher.during = nil
		nested = m.Refresh(context.Background())
	}
	delivered := 0
	m.Subscribe("dashboard", func([]*models.FundSnapshot) error {
		delivered++
		return nil
	})

	clk.Advance(0)
	assert.ErrorIs(t, nested, errors.ErrRefreshInFlight)
	assert.Equal(t, 1, fetcher.count())
	assert.Equal(t, 1, delivered)

	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 1, clk.Pending(), "manual refresh leaves the interval tick alone")
}

func TestMonitor_LateResultAfterUnsubscribe(t *testing.T) {
	fetcher := &scriptedFetcher{funds: sampleFunds()}
	m, clk := newTestMonitor(fetcher)

	delivered := 0
	var unsub func()
	unsub = m.Subscribe("dashboard", func([]*models.FundSnapshot) error {
		delivered++
		return nil
	})
	fetcher.during = func() {
		fetcher.during = nil
		unsub()
	}

	assert.NotPanics(t, func() { clk.Advance(0) })
	assert.Zero(t, delivered)
	assert.False(t, m.Status().Running)
	assert.Zero(t, clk.Pending())
}

func TestMonitor_CloseCancelsLoop(t *testing.T) {
	fetcher := &scriptedFetcher{funds: sampleFunds()}
	m, clk := newTestMonitor(fetcher)
	m.Subscribe("dashboard", func([]*models.FundSnapshot) error { return nil })

	m.Close()
	clk.Advance(time.Hour)
	assert.Zero(t, fetcher.count())
	assert.Equal(t, "monitor parado, 0 inscritos, última atualização nunca", m.Status().String())
}
