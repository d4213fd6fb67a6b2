package alerts

import (
	"context"
	"strings"
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
	"fii-monitor/internal/errors"
	"fii-monitor/internal/models"
	"fii-monitor/internal/store"
)

var epoch = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

type spyNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (s *spyNotifier) Notify(ctx context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return s.err
}

func (s *spyNotifier) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func fund(ticker string, price, yield, pb float64) *models.FundSnapshot {
	return &models.FundSnapshot{
		Ticker:      ticker,
		Sector:      models.SectorLogistics,
		Price:       price,
		AnnualYield: yield,
		PriceToBook: pb,
	}
}

func newTestService(t *testing.T) (*Service, *store.State, *clock.Fake, *spyNotifier) {
	t.Helper()
	state := store.NewState(store.NewMemoryStore(), nil)
	clk := clock.NewFake(epoch)
	spy := &spyNotifier{}
	s := NewService(state, spy, DefaultConfig(), clk, zerolog.Nop())
	require.NoError(t, s.Load(context.Background()))
	return s, state, clk, spy
}

// Property: Evaluate fires for a rule iff it is active, its ticker is in the
// snapshot and its condition holds.
func TestProperty_EvaluateFiresOnlyWhenConditionHolds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("fires iff active, present and holding", prop.ForAll(
		func(kindIdx int, threshold, price, yield, pb float64, active, present bool) bool {
			rule := models.AlertRule{
				ID:        1,
				Ticker:    "ABCD11",
				Kind:      models.AlertKinds[kindIdx],
				Threshold: threshold,
				Active:    active,
			}
			var snapshot []*models.FundSnapshot
			f := fund("ABCD11", price, yield, pb)
			if present {
				snapshot = append(snapshot, f)
			} else {
				snapshot = append(snapshot, fund("WXYZ11", price, yield, pb))
			}

			out := Evaluate([]models.AlertRule{rule}, snapshot, nil, epoch, DefaultDedupWindow)
			want := active && present && Holds(rule, f)
			if !want {
				return len(out) == 0
			}
			return len(out) == 1 &&
				out[0].RuleID == 1 &&
				out[0].Level == models.LevelAlert &&
				out[0].Title == "Alerta FII: ABCD11" &&
				out[0].Timestamp.Equal(epoch)
		},
		gen.IntRange(0, len(models.AlertKinds)-1),
		gen.Float64Range(0.1, 20),
		gen.Float64Range(0.1, 20),
		gen.Float64Range(0.1, 20),
		gen.Float64Range(0.1, 20),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestHolds_NonStrictComparisons(t *testing.T) {
	f := fund("ABCD11", 10, 12, 0.95)

	tests := []struct {
		kind      models.AlertKind
		threshold float64
		want      bool
	}{
		{models.AlertPriceAbove, 10, true},
		{models.AlertPriceAbove, 10.01, false},
		{models.AlertPriceBelow, 10, true},
		{models.AlertPriceBelow, 9.99, false},
		{models.AlertYieldAbove, 12, true},
		{models.AlertYieldBelow, 11, false},
		{models.AlertPBBelow, 0.95, true},
		{models.AlertPBAbove, 1, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			rule := models.AlertRule{Ticker: "ABCD11", Kind: tt.kind, Threshold: tt.threshold, Active: true}
			assert.Equal(t, tt.want, Holds(rule, f))
		})
	}
	assert.False(t, Holds(models.AlertRule{Kind: models.AlertPriceAbove}, nil))
}

func TestEvaluate_MessageFormats(t *testing.T) {
	rules := []models.AlertRule{
		{ID: 1, Ticker: "ABCD11", Kind: models.AlertPriceAbove, Threshold: 10, Active: true},
		{ID: 2, Ticker: "ABCD11", Kind: models.AlertYieldBelow, Threshold: 13, Active: true},
		{ID: 3, Ticker: "ABCD11", Kind: models.AlertPBBelow, Threshold: 1, Active: true},
	}
	out := Evaluate(rules, []*models.FundSnapshot{fund("ABCD11", 10.5, 12.25, 0.93)}, nil, epoch, DefaultDedupWindow)
	require.Len(t, out, 3)
	assert.Equal(t, "ABCD11 atingiu preço acima de R$10.00 (Atual: R$10.50)", out[0].Message)
	assert.Equal(t, "ABCD11 atingiu DY abaixo de 13.00% (Atual: 12.25%)", out[1].Message)
	assert.Equal(t, "ABCD11 atingiu P/VP abaixo de 1.00 (Atual: 0.93)", out[2].Message)
	for _, n := range out {
		assert.Empty(t, n.ID)
	}
}

func TestEvaluate_DuplicateRulesInOneCallFireOnce(t *testing.T) {
	rule := models.AlertRule{ID: 7, Ticker: "ABCD11", Kind: models.AlertPriceAbove, Threshold: 10, Active: true}
	out := Evaluate([]models.AlertRule{rule, rule}, []*models.FundSnapshot{fund("ABCD11", 11, 0, 0)}, nil, epoch, time.Hour)
	assert.Len(t, out, 1)
}

func TestService_DedupWindow(t *testing.T) {
	ctx := context.Background()
	s, _, clk, spy := newTestService(t)

	_, err := s.Create(ctx, "ABCD11", models.AlertPriceAbove, 10)
	require.NoError(t, err)

	fired, err := s.Check(ctx, []*models.FundSnapshot{fund("ABCD11", 10.5, 0, 0)})
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.NotEmpty(t, fired[0].ID)
	assert.Equal(t, 1, spy.count())

	clk.Advance(time.Hour)
	fired, err = s.Check(ctx, []*models.FundSnapshot{fund("ABCD11", 10.5, 0, 0)})
	require.NoError(t, err)
	assert.Empty(t, fired, "identical message inside the window is suppressed")

	clk.Advance(24 * time.Hour)
	fired, err = s.Check(ctx, []*models.FundSnapshot{fund("ABCD11", 10.6, 0, 0)})
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Contains(t, fired[0].Message, "R$10.60")
	assert.Equal(t, 2, spy.count())
	assert.Len(t, s.History(0), 2)
}

func TestService_DifferentValueIsNotDuplicate(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newTestService(t)

	_, err := s.Create(ctx, "ABCD11", models.AlertPriceAbove, 10)
	require.NoError(t, err)

	_, err = s.Check(ctx, []*models.FundSnapshot{fund("ABCD11", 10.5, 0, 0)})
	require.NoError(t, err)
	fired, err := s.Check(ctx, []*models.FundSnapshot{fund("ABCD11", 10.7, 0, 0)})
	require.NoError(t, err)
	assert.Len(t, fired, 1)
}

func TestService_DeliveryFailureStillRecords(t *testing.T) {
	ctx := context.Background()
	s, _, _, spy := newTestService(t)
	spy.err = errors.New("webhook down")

	_, err := s.Create(ctx, "ABCD11", models.AlertPriceBelow, 10)
	require.NoError(t, err)

	fired, err := s.Check(ctx, []*models.FundSnapshot{fund("ABCD11", 9, 0, 0)})
	require.NoError(t, err)
	assert.Len(t, fired, 1)
	assert.Len(t, s.History(10), 1)
}

func TestService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newTestService(t)

	rule, err := s.Create(ctx, "  mxrf11 ", models.AlertPriceBelow, 9.5)
	require.NoError(t, err)
	assert.Equal(t, "MXRF11", rule.Ticker)
	assert.True(t, rule.Active)
	assert.Equal(t, int64(1), rule.ID)
	assert.Equal(t, epoch, rule.CreatedAt)

	tests := []struct {
		name      string
		ticker    string
		kind      models.AlertKind
		threshold float64
	}{
		{"bad ticker", "MXRF", models.AlertPriceBelow, 1},
		{"unit suffix", "MXRF12", models.AlertPriceBelow, 1},
		{"unknown kind", "MXRF11", models.AlertKind("volume-above"), 1},
		{"zero threshold", "MXRF11", models.AlertPriceBelow, 0},
		{"negative threshold", "MXRF11", models.AlertPriceBelow, -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, tt.ticker, tt.kind, tt.threshold)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInputValidation))
		})
	}
	assert.Len(t, s.List(), 1)
}

func TestService_ToggleDeleteAndReload(t *testing.T) {
	ctx := context.Background()
	s, state, clk, _ := newTestService(t)

	a, err := s.Create(ctx, "HGLG11", models.AlertPriceAbove, 170)
	require.NoError(t, err)
	b, err := s.Create(ctx, "KNRI11", models.AlertYieldAbove, 8)
	require.NoError(t, err)

	toggled, err := s.Toggle(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Active)

	require.NoError(t, s.Delete(ctx, b.ID))
	assert.True(t, errors.Is(s.Delete(ctx, b.ID), errors.ErrRuleNotFound))
	_, err = s.Toggle(ctx, 99)
	assert.True(t, errors.Is(err, errors.ErrRuleNotFound))

	reloaded := NewService(state, nil, DefaultConfig(), clk, zerolog.Nop())
	require.NoError(t, reloaded.Load(ctx))
	rules := reloaded.List()
	require.Len(t, rules, 1)
	assert.Equal(t, "HGLG11", rules[0].Ticker)
	assert.False(t, rules[0].Active)

	next, err := reloaded.Create(ctx, "XPML11", models.AlertPBBelow, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.ID, "ids continue after the highest stored id")
}

func TestService_InactiveRuleDoesNotFire(t *testing.T) {
	ctx := context.Background()
	s, _, _, spy := newTestService(t)

	rule, err := s.Create(ctx, "ABCD11", models.AlertPriceAbove, 10)
	require.NoError(t, err)
	_, err = s.Toggle(ctx, rule.ID)
	require.NoError(t, err)

	fired, err := s.Check(ctx, []*models.FundSnapshot{fund("ABCD11", 20, 0, 0)})
	require.NoError(t, err)
	assert.Empty(t, fired)
	assert.Zero(t, spy.count())
}

func TestService_HistoryLimitAndTrim(t *testing.T) {
	ctx := context.Background()
	state := store.NewState(store.NewMemoryStore(), nil)
	clk := clock.NewFake(epoch)
	s := NewService(state, nil, Config{DedupWindow: time.Minute, HistoryLimit: 3, DisplayLimit: 2}, clk, zerolog.Nop())
	require.NoError(t, s.Load(ctx))

	_, err := s.Create(ctx, "ABCD11", models.AlertPriceAbove, 1)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := s.Check(ctx, []*models.FundSnapshot{fund("ABCD11", float64(10+i), 0, 0)})
		require.NoError(t, err)
		clk.Advance(time.Hour)
	}

	all := s.History(100)
	require.Len(t, all, 3)
	assert.Contains(t, all[0].Message, "R$14.00", "most recent first")
	assert.Len(t, s.History(0), 2)

	removed, err := s.TrimHistory(ctx, 150*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Len(t, s.History(100), 2)

	require.NoError(t, s.ClearHistory(ctx))
	assert.Empty(t, s.History(100))
}

func TestService_Import(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newTestService(t)

	doc := `
- ticker: mxrf11
  kind: price-below
  threshold: 9.5
- ticker: HGLG11
  kind: PB-ABOVE
  threshold: 1.1
  active: false
`
	added, err := s.Import(ctx, strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, "MXRF11", added[0].Ticker)
	assert.True(t, added[0].Active)
	assert.Equal(t, models.AlertPBAbove, added[1].Kind)
	assert.False(t, added[1].Active)

	bad := `
- ticker: KNRI11
  kind: price-above
  threshold: 150
- ticker: KNRI11
  kind: price-above
  threshold: -1
`
	_, err = s.Import(ctx, strings.NewReader(bad))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInputValidation))
	assert.Len(t, s.List(), 2, "a bad entry rejects the whole import")
}

func TestService_Summarize(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newTestService(t)

	_, err := s.Create(ctx, "KNRI11", models.AlertPriceAbove, 100)
	require.NoError(t, err)
	_, err = s.Create(ctx, "ABCD11", models.AlertPriceAbove, 10)
	require.NoError(t, err)
	off, err := s.Create(ctx, "HGLG11", models.AlertPriceAbove, 1)
	require.NoError(t, err)
	_, err = s.Toggle(ctx, off.ID)
	require.NoError(t, err)

	snapshot := []*models.FundSnapshot{fund("ABCD11", 11, 0, 0), fund("KNRI11", 150, 0, 0), fund("HGLG11", 160, 0, 0)}
	sum, tickers := s.Summarize(snapshot)
	assert.Equal(t, Summary{Total: 3, Active: 2, Triggered: 2}, sum)
	assert.Equal(t, []string{"ABCD11", "KNRI11"}, tickers)
	assert.Equal(t, StatusPending, Status(models.AlertRule{Ticker: "ABCD11", Kind: models.AlertPriceAbove, Threshold: 12}, snapshot))
}
