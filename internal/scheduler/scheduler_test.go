package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fii-monitor/internal/alerts"
	"fii-monitor/internal/clock"
	"fii-monitor/internal/config"
	"fii-monitor/internal/models"
	"fii-monitor/internal/portfolio"
	"fii-monitor/internal/store"
)

type spyPublisher struct {
	mu       sync.Mutex
	statuses []JobStatus
}

func (p *spyPublisher) PublishStatus(v interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, v.(JobStatus))
}

type purger struct{ calls int }

func (p *purger) PurgeExpired() int {
	p.calls++
	return 2
}

func TestScheduler_RunNowRecordsStatus(t *testing.T) {
	s := New(zerolog.Nop())
	pub := &spyPublisher{}
	s.SetPublisher(pub)

	p := &purger{}
	require.NoError(t, s.AddJob("@every 1h", CachePurgeJob(p, zerolog.Nop())))
	require.NoError(t, s.AddJob("@daily", NewJob("broken", func(ctx context.Context) error {
		return errors.New("disk full")
	})))
	require.NoError(t, s.AddJob("@daily", NewJob("panics", func(ctx context.Context) error {
		panic("boom")
	})))

	require.NoError(t, s.RunNow(JobCachePurge))
	assert.Equal(t, 1, p.calls)

	err := s.RunNow("broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Error(t, s.RunNow("panics"))
	assert.Error(t, s.RunNow("missing"))

	statuses := s.Status()
	require.Len(t, statuses, 3)
	assert.Equal(t, "broken", statuses[0].Job)
	assert.False(t, statuses[0].OK)
	assert.Equal(t, JobCachePurge, statuses[1].Job)
	assert.True(t, statuses[1].OK)
	assert.Equal(t, "@every 1h", statuses[1].Schedule)
	assert.False(t, statuses[2].OK)

	require.Len(t, pub.statuses, 3)
	assert.Equal(t, JobCachePurge, pub.statuses[0].Job)
}

func TestScheduler_AddJobValidation(t *testing.T) {
	s := New(zerolog.Nop())
	job := NewJob("noop", func(ctx context.Context) error { return nil })

	assert.Error(t, s.AddJob("every tuesday", job))
	require.NoError(t, s.AddJob("@hourly", job))
	assert.Error(t, s.AddJob("@daily", job), "duplicate names are rejected")
	require.NoError(t, s.AddJob("", NewJob("disabled", func(ctx context.Context) error { return nil })))
	assert.Len(t, s.Status(), 1)
}

func TestScheduler_StartRunsAndStopCancels(t *testing.T) {
	s := New(zerolog.Nop())
	ran := make(chan struct{}, 1)
	cancelled := make(chan struct{})
	require.NoError(t, s.AddJob("@every 1s", NewJob("tick", func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})))

	s.Start()
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job never ran")
	}
	s.Stop()
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("stop did not cancel the running job")
	}
}

func TestRegisterDefaults(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))
	state := store.NewState(store.NewMemoryStore(), nil)

	alertSvc := alerts.NewService(state, nil, alerts.DefaultConfig(), clk, zerolog.Nop())
	_, err := alertSvc.Create(ctx, "MXRF11", models.AlertPriceAbove, 1)
	require.NoError(t, err)
	_, err = alertSvc.Check(ctx, []*models.FundSnapshot{{Ticker: "MXRF11", Price: 10}})
	require.NoError(t, err)
	require.Len(t, alertSvc.History(0), 1)

	portfolioSvc := portfolio.NewService(state, clk, zerolog.Nop())
	_, err = portfolioSvc.SavePlan(ctx, models.PurchasePlan{
		Month: "2024-02", Budget: 1000,
		Items: []models.PlanItem{{Ticker: "MXRF11", Quantity: 10, TargetPrice: 10}},
	})
	require.NoError(t, err)

	s := New(zerolog.Nop())
	cfg := config.ScheduleConfig{
		CachePurge:    "@every 1h",
		HistoryTrim:   "@daily",
		PlanReport:    "0 9 1 * *",
		HistoryMaxAge: 24 * time.Hour,
	}
	require.NoError(t, s.RegisterDefaults(cfg, &purger{}, alertSvc, portfolioSvc))
	assert.Len(t, s.Status(), 3)

	clk.Advance(48 * time.Hour)
	require.NoError(t, s.RunNow(JobHistoryTrim))
	assert.Empty(t, alertSvc.History(0))
	require.NoError(t, s.RunNow(JobPlanReport))
}
