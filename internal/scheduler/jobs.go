package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"fii-monitor/internal/config"
	"fii-monitor/internal/models"
	"fii-monitor/internal/portfolio"
)

// Job names.
const (
	JobCachePurge  = "cache-purge"
	JobHistoryTrim = "history-trim"
	JobPlanReport  = "plan-report"
)

// CachePurger drops expired history and dividend entries.
type CachePurger interface {
	PurgeExpired() int
}

// HistoryTrimmer drops notifications older than a cutoff.
type HistoryTrimmer interface {
	TrimHistory(ctx context.Context, maxAge time.Duration) (int, error)
}

// PlanLister lists purchase plans with their status.
type PlanLister interface {
	Plans() []portfolio.PlanView
}

// CachePurgeJob purges the data source's per-ticker caches.
func CachePurgeJob(c CachePurger, log zerolog.Logger) Job {
	return NewJob(JobCachePurge, func(ctx context.Context) error {
		if n := c.PurgeExpired(); n > 0 {
			log.Info().Int("removed", n).Msg("Purged expired cache entries")
		}
		return nil
	})
}

// HistoryTrimJob removes notifications older than maxAge.
func HistoryTrimJob(h HistoryTrimmer, maxAge time.Duration, log zerolog.Logger) Job {
	return NewJob(JobHistoryTrim, func(ctx context.Context) error {
		n, err := h.TrimHistory(ctx, maxAge)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info().Int("removed", n).Dur("max_age", maxAge).Msg("Trimmed notification history")
		}
		return nil
	})
}

// PlanReportJob logs each purchase plan with its status. Pending plans are
// logged as warnings.
func PlanReportJob(p PlanLister, log zerolog.Logger) Job {
	return NewJob(JobPlanReport, func(ctx context.Context) error {
		for _, plan := range p.Plans() {
			ev := log.Info()
			if plan.Status == models.PlanPending {
				ev = log.Warn()
			}
			ev.Str("month", plan.Month).
				Str("status", string(plan.Status)).
				Int("items", len(plan.Items)).
				Float64("budget", plan.Budget).
				Msg("Purchase plan")
		}
		return nil
	})
}

// RegisterDefaults adds the maintenance jobs on the configured schedules.
// Nil dependencies skip their job.
func (s *Scheduler) RegisterDefaults(cfg config.ScheduleConfig, cache CachePurger, history HistoryTrimmer, plans PlanLister) error {
	if cache != nil {
		if err := s.AddJob(cfg.CachePurge, CachePurgeJob(cache, s.log)); err != nil {
			return err
		}
	}
	if history != nil {
		maxAge := cfg.HistoryMaxAge
		if maxAge <= 0 {
			maxAge = 30 * 24 * time.Hour
		}
		if err := s.AddJob(cfg.HistoryTrim, HistoryTrimJob(history, maxAge, s.log)); err != nil {
			return err
		}
	}
	if plans != nil {
		if err := s.AddJob(cfg.PlanReport, PlanReportJob(plans, s.log)); err != nil {
			return err
		}
	}
	return nil
}
