// Package alerts evaluates user-defined watches against fund snapshots and
// owns the rule list and notification history.
package alerts

import (
	"time"

	"fii-monitor/internal/models"
)

// Rule status labels shown in listings.
const (
	StatusTriggered = "Atingido"
	StatusPending   = "Pendente"
)

// DefaultDedupWindow is how long an identical notification is suppressed.
const DefaultDedupWindow = 24 * time.Hour

// Holds reports whether rule's condition is satisfied by f. Comparisons are
// non-strict.
func Holds(rule models.AlertRule, f *models.FundSnapshot) bool {
	if f == nil {
		return false
	}
	v := rule.Kind.Value(f)
	if rule.Kind.Above() {
		return v >= rule.Threshold
	}
	return v <= rule.Threshold
}

// Evaluate returns a notification for every active rule whose condition
// holds in snapshot, except those matching an earlier notification for the
// same rule and message within window. Earlier means history or a
// notification produced by this same call. Rules for tickers missing from the
// snapshot are skipped. Returned notifications carry no ID.
func Evaluate(rules []models.AlertRule, snapshot []*models.FundSnapshot, history []models.Notification, now time.Time, window time.Duration) []models.Notification {
	funds := models.IndexFunds(snapshot)

	var out []models.Notification
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		f, ok := funds[rule.Ticker]
		if !ok || !Holds(rule, f) {
			continue
		}

		msg := rule.Kind.Describe(rule.Ticker, rule.Threshold, rule.Kind.Value(f))
		if seen(history, rule.ID, msg, now, window) || seen(out, rule.ID, msg, now, window) {
			continue
		}

		out = append(out, models.Notification{
			RuleID:    rule.ID,
			Ticker:    rule.Ticker,
			Level:     models.LevelAlert,
			Title:     "Alerta FII: " + rule.Ticker,
			Message:   msg,
			Timestamp: now,
		})
	}
	return out
}

func seen(list []models.Notification, ruleID int64, msg string, now time.Time, window time.Duration) bool {
	for _, n := range list {
		if n.RuleID == ruleID && n.Message == msg && now.Sub(n.Timestamp) < window {
			return true
		}
	}
	return false
}

// Status labels a rule against the current snapshot.
func Status(rule models.AlertRule, snapshot []*models.FundSnapshot) string {
	if Holds(rule, models.FindFund(snapshot, rule.Ticker)) {
		return StatusTriggered
	}
	return StatusPending
}
