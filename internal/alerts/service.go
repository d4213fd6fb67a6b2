package alerts

import (
	"context"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"fii-monitor/internal/clock"
	"fii-monitor/internal/errors"
	"fii-monitor/internal/logging"
	"fii-monitor/internal/models"
	"fii-monitor/internal/notify"
	"fii-monitor/internal/store"
)

var tickerPattern = regexp.MustCompile(`^[A-Z]{4}11$`)

// Config controls deduplication and history retention.
type Config struct {
	DedupWindow  time.Duration
	HistoryLimit int
	DisplayLimit int
}

// DefaultConfig returns the default alert configuration.
func DefaultConfig() Config {
	return Config{
		DedupWindow:  DefaultDedupWindow,
		HistoryLimit: 200,
		DisplayLimit: 50,
	}
}

// Service owns the alert rules and the notification history and persists
// both through the key/value store.
type Service struct {
	state    *store.State
	notifier notify.Notifier
	clock    clock.Clock
	cfg      Config
	logger   zerolog.Logger

	mu      sync.Mutex
	rules   []models.AlertRule
	history []models.Notification // oldest first
	nextID  int64
}

// NewService creates a Service. Call Load before use to restore saved state.
func NewService(state *store.State, notifier notify.Notifier, cfg Config, clk clock.Clock, logger zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 200
	}
	if cfg.DisplayLimit <= 0 {
		cfg.DisplayLimit = 50
	}
	return &Service{
		state:    state,
		notifier: notifier,
		clock:    clk,
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "alerts"),
		nextID:   1,
	}
}

// Load restores rules and history from the store.
func (s *Service) Load(ctx context.Context) error {
	var rules []models.AlertRule
	if _, err := s.state.Load(ctx, store.KeyAlerts, &rules); err != nil {
		return errors.Wrap(err, "loading alert rules")
	}
	var history []models.Notification
	if _, err := s.state.Load(ctx, store.KeyNotifications, &history); err != nil {
		return errors.Wrap(err, "loading notification history")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = rules
	s.history = history
	for _, r := range rules {
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
	}
	return nil
}

// validateRule normalizes the ticker and checks the rule fields.
func validateRule(ticker string, kind models.AlertKind, threshold float64) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if !tickerPattern.MatchString(ticker) {
		return "", errors.NewValidationError("ticker", ticker, "expected four letters followed by 11")
	}
	if !kind.Valid() {
		return "", errors.NewValidationError("kind", kind, "unknown alert kind")
	}
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold <= 0 {
		return "", errors.NewValidationError("threshold", threshold, "must be a positive number")
	}
	return ticker, nil
}

// Create validates and adds an active rule.
func (s *Service) Create(ctx context.Context, ticker string, kind models.AlertKind, threshold float64) (models.AlertRule, error) {
	ticker, err := validateRule(ticker, kind, threshold)
	if err != nil {
		return models.AlertRule{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rule := models.AlertRule{
		ID:        s.nextID,
		Ticker:    ticker,
		Kind:      kind,
		Threshold: threshold,
		Active:    true,
		CreatedAt: s.clock.Now(),
	}
	rules := append(append([]models.AlertRule(nil), s.rules...), rule)
	if err := s.state.Save(ctx, store.KeyAlerts, rules); err != nil {
		return models.AlertRule{}, err
	}
	s.rules = rules
	s.nextID++

	s.logger.Info().Int64("rule_id", rule.ID).Str("ticker", ticker).Str("kind", string(kind)).Msg("Alert rule created")
	return rule, nil
}

// Toggle flips a rule between active and inactive.
func (s *Service) Toggle(ctx context.Context, id int64) (models.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return models.AlertRule{}, fmt.Errorf("%w: %d", errors.ErrRuleNotFound, id)
	}
	rules := append([]models.AlertRule(nil), s.rules...)
	rules[idx].Active = !rules[idx].Active
	if err := s.state.Save(ctx, store.KeyAlerts, rules); err != nil {
		return models.AlertRule{}, err
	}
	s.rules = rules
	return rules[idx], nil
}

// Delete removes a rule permanently.
func (s *Service) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", errors.ErrRuleNotFound, id)
	}
	rules := make([]models.AlertRule, 0, len(s.rules)-1)
	rules = append(rules, s.rules[:idx]...)
	rules = append(rules, s.rules[idx+1:]...)
	if err := s.state.Save(ctx, store.KeyAlerts, rules); err != nil {
		return err
	}
	s.rules = rules
	return nil
}

func (s *Service) indexOf(id int64) int {
	for i, r := range s.rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// List returns a copy of the rules in creation order.
func (s *Service) List() []models.AlertRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AlertRule(nil), s.rules...)
}

// Get returns one rule.
func (s *Service) Get(id int64) (models.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return models.AlertRule{}, fmt.Errorf("%w: %d", errors.ErrRuleNotFound, id)
	}
	return s.rules[idx], nil
}

// Check evaluates the rules against snapshot, records new notifications in
// the history and dispatches them. Delivery failures are logged only.
func (s *Service) Check(ctx context.Context, snapshot []*models.FundSnapshot) ([]models.Notification, error) {
	s.mu.Lock()
	now := s.clock.Now()
	fired := Evaluate(s.rules, snapshot, s.history, now, s.cfg.DedupWindow)
	if len(fired) == 0 {
		s.mu.Unlock()
		return nil, nil
	}

	for i := range fired {
		fired[i].ID = uuid.NewString()
	}
	history := append(append([]models.Notification(nil), s.history...), fired...)
	if over := len(history) - s.cfg.HistoryLimit; over > 0 {
		history = history[over:]
	}
	s.history = history
	err := s.state.Save(ctx, store.KeyNotifications, history)

	funds := models.IndexFunds(snapshot)
	rules := make(map[int64]models.AlertRule, len(s.rules))
	for _, r := range s.rules {
		rules[r.ID] = r
	}
	s.mu.Unlock()

	for _, n := range fired {
		r := rules[n.RuleID]
		logging.LogAlert(s.logger, r.ID, r.Ticker, string(r.Kind), r.Threshold, r.Kind.Value(funds[r.Ticker]))
		if s.notifier == nil {
			continue
		}
		if nerr := s.notifier.Notify(ctx, n); nerr != nil {
			s.logger.Warn().Err(nerr).Str("ticker", n.Ticker).Msg("Alert delivery failed")
		}
	}

	if err != nil {
		return fired, errors.Wrap(err, "saving notification history")
	}
	return fired, nil
}

// History returns up to limit notifications, most recent first. A
// non-positive limit uses the display limit.
func (s *Service) History(limit int) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = s.cfg.DisplayLimit
	}
	if limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]models.Notification, 0, limit)
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}

// ClearHistory drops every notification.
func (s *Service) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.Save(ctx, store.KeyNotifications, []models.Notification{}); err != nil {
		return err
	}
	s.history = nil
	return nil
}

// TrimHistory drops notifications older than maxAge and returns how many
// were removed.
func (s *Service) TrimHistory(ctx context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-maxAge)
	kept := make([]models.Notification, 0, len(s.history))
	for _, n := range s.history {
		if !n.Timestamp.Before(cutoff) {
			kept = append(kept, n)
		}
	}
	removed := len(s.history) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.state.Save(ctx, store.KeyNotifications, kept); err != nil {
		return 0, err
	}
	s.history = kept
	return removed, nil
}

type importedRule struct {
	Ticker    string  `yaml:"ticker"`
	Kind      string  `yaml:"kind"`
	Threshold float64 `yaml:"threshold"`
	Active    *bool   `yaml:"active"`
}

// Import adds rules from a YAML list:
//
//	- ticker: MXRF11
//	  kind: price-below
//	  threshold: 9.5
//
// Nothing is added unless every entry is valid.
func (s *Service) Import(ctx context.Context, r io.Reader) ([]models.AlertRule, error) {
	var entries []importedRule
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil && err != io.EOF {
		return nil, errors.NewValidationError("yaml", "", err.Error())
	}

	type valid struct {
		ticker string
		kind   models.AlertKind
		entry  importedRule
	}
	checked := make([]valid, 0, len(entries))
	for i, e := range entries {
		kind := models.AlertKind(strings.ToLower(strings.TrimSpace(e.Kind)))
		ticker, err := validateRule(e.Ticker, kind, e.Threshold)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d", i+1)
		}
		checked = append(checked, valid{ticker: ticker, kind: kind, entry: e})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	rules := append([]models.AlertRule(nil), s.rules...)
	added := make([]models.AlertRule, 0, len(checked))
	next := s.nextID
	for _, c := range checked {
		active := true
		if c.entry.Active != nil {
			active = *c.entry.Active
		}
		rule := models.AlertRule{
			ID:        next,
			Ticker:    c.ticker,
			Kind:      c.kind,
			Threshold: c.entry.Threshold,
			Active:    active,
			CreatedAt: now,
		}
		next++
		rules = append(rules, rule)
		added = append(added, rule)
	}
	if err := s.state.Save(ctx, store.KeyAlerts, rules); err != nil {
		return nil, err
	}
	s.rules = rules
	s.nextID = next
	return added, nil
}

// Summary counts rules per status against the snapshot.
type Summary struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Triggered int `json:"triggered"`
}

// Summarize counts active and triggered rules, listing triggered tickers
// in alphabetical order.
func (s *Service) Summarize(snapshot []*models.FundSnapshot) (Summary, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum Summary
	seen := make(map[string]bool)
	var tickers []string
	for _, r := range s.rules {
		sum.Total++
		if !r.Active {
			continue
		}
		sum.Active++
		if Status(r, snapshot) == StatusTriggered {
			sum.Triggered++
			if !seen[r.Ticker] {
				seen[r.Ticker] = true
				tickers = append(tickers, r.Ticker)
			}
		}
	}
	sort.Strings(tickers)
	return sum, tickers
}
