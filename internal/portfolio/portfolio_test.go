package portfolio

import (
	"context"
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

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func buy(ticker string, qty int, price float64, at time.Time) models.Transaction {
	return models.Transaction{Ticker: ticker, Type: models.TransactionBuy, Quantity: qty, Price: price, Date: at}
}

func sell(ticker string, qty int, price float64, at time.Time) models.Transaction {
	return models.Transaction{Ticker: ticker, Type: models.TransactionSell, Quantity: qty, Price: price, Date: at}
}

// Property: After any sequence of buys the held quantity is their sum and
// the average price lies between the lowest and highest buy price.
func TestProperty_RecalculateBuys(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("quantity sums and average is bounded", prop.ForAll(
		func(qtys []int, prices []float64) bool {
			n := len(qtys)
			if len(prices) < n {
				n = len(prices)
			}
			if n == 0 {
				return len(Recalculate(nil)) == 0
			}
			var txs []models.Transaction
			total := 0
			lo, hi := prices[0], prices[0]
			for i := 0; i < n; i++ {
				txs = append(txs, buy("MXRF11", qtys[i], prices[i], day(2024, 1, 1).AddDate(0, 0, i)))
				total += qtys[i]
				if prices[i] < lo {
					lo = prices[i]
				}
				if prices[i] > hi {
					hi = prices[i]
				}
			}
			h := Recalculate(txs)
			return len(h) == 1 &&
				h[0].Quantity == total &&
				h[0].AveragePrice >= lo-0.01 &&
				h[0].AveragePrice <= hi+0.01
		},
		gen.SliceOf(gen.IntRange(1, 500)),
		gen.SliceOf(gen.Float64Range(1, 200)),
	))

	properties.TestingRun(t)
}

func TestRecalculate_SellsKeepAverageAndDropEmptyPositions(t *testing.T) {
	txs := []models.Transaction{
		sell("HGLG11", 5, 170, day(2024, 3, 1)),
		buy("HGLG11", 10, 160, day(2024, 1, 10)),
		buy("HGLG11", 10, 170, day(2024, 2, 10)),
		buy("MXRF11", 100, 10, day(2024, 1, 5)),
		sell("MXRF11", 100, 10.5, day(2024, 2, 1)),
	}

	h := Recalculate(txs)
	require.Len(t, h, 1)
	assert.Equal(t, "HGLG11", h[0].Ticker)
	assert.Equal(t, 15, h[0].Quantity)
	assert.Equal(t, 165.0, h[0].AveragePrice)
}

func TestValuate(t *testing.T) {
	holdings := []models.Holding{
		{Ticker: "HGLG11", Quantity: 10, AveragePrice: 150},
		{Ticker: "MXRF11", Quantity: 100, AveragePrice: 10},
		{Ticker: "GONE11", Quantity: 5, AveragePrice: 20},
	}
	snapshot := []*models.FundSnapshot{
		{Ticker: "HGLG11", Sector: models.SectorLogistics, Price: 165, LastDividend: 1.1, AnnualYield: 8},
		{Ticker: "MXRF11", Sector: models.SectorReceivables, Price: 9, LastDividend: 0.09, AnnualYield: 12},
	}

	sum := Valuate(holdings, snapshot)
	require.Len(t, sum.Positions, 3)

	hglg := sum.Positions[0]
	assert.Equal(t, 1650.0, hglg.Value)
	assert.Equal(t, 1500.0, hglg.Cost)
	assert.Equal(t, 11.0, hglg.MonthlyDividends)
	assert.Equal(t, 10.0, hglg.Return)
	assert.True(t, hglg.Quoted)

	gone := sum.Positions[2]
	assert.False(t, gone.Quoted)
	assert.Equal(t, 100.0, gone.Value, "unquoted holdings are valued at cost")
	assert.Zero(t, gone.Return)

	assert.Equal(t, 2650.0, sum.TotalValue)
	assert.Equal(t, 2600.0, sum.TotalCost)
	assert.Equal(t, 20.0, sum.MonthlyDividends)
	assert.Equal(t, 1.92, sum.Return)
	// (8*1650 + 12*900) / 2650
	assert.Equal(t, 9.06, sum.AverageYield)

	var alloc float64
	for _, p := range sum.Positions {
		alloc += p.Allocation
	}
	assert.InDelta(t, 100, alloc, 0.02)

	bySector := SectorAllocation(sum)
	assert.Equal(t, 1650.0, bySector[models.SectorLogistics])
	assert.Equal(t, 100.0, bySector[models.SectorOther])
}

func TestValuate_Empty(t *testing.T) {
	sum := Valuate(nil, nil)
	assert.Empty(t, sum.Positions)
	assert.Zero(t, sum.Return)
	assert.Zero(t, sum.AverageYield)
}

func TestPlanStatus(t *testing.T) {
	now := day(2024, 5, 15)
	plan := func(month string) models.PurchasePlan {
		return models.PurchasePlan{Month: month, Items: []models.PlanItem{{Ticker: "HGLG11", Quantity: 1}, {Ticker: "MXRF11", Quantity: 10}}}
	}
	txs := []models.Transaction{
		buy("HGLG11", 1, 160, day(2024, 3, 2)),
		buy("MXRF11", 10, 10, day(2024, 3, 20)),
		buy("HGLG11", 1, 160, day(2024, 4, 2)),
		sell("MXRF11", 10, 10, day(2024, 4, 3)),
		buy("MXRF11", 10, 10, day(2024, 5, 3)),
	}

	tests := []struct {
		month string
		want  models.PlanStatus
	}{
		{"2024-03", models.PlanDone},
		{"2024-04", models.PlanPartial},
		{"2024-02", models.PlanPending},
		{"2024-05", models.PlanPartial},
		{"2024-06", models.PlanFuture},
	}
	for _, tt := range tests {
		t.Run(tt.month, func(t *testing.T) {
			assert.Equal(t, tt.want, PlanStatus(plan(tt.month), txs, now))
		})
	}
	assert.Equal(t, models.PlanInProgress, PlanStatus(plan("2024-05"), nil, now))
}

func TestValidateTransaction(t *testing.T) {
	tx := buy(" hglg11", 1, 160, day(2024, 1, 1))
	require.NoError(t, ValidateTransaction(&tx))
	assert.Equal(t, "HGLG11", tx.Ticker)

	bad := []models.Transaction{
		buy("HGLG", 1, 160, day(2024, 1, 1)),
		buy("HGLG11", 0, 160, day(2024, 1, 1)),
		buy("HGLG11", 1, 0, day(2024, 1, 1)),
		buy("HGLG11", 1, 160, time.Time{}),
		{Ticker: "HGLG11", Type: "swap", Quantity: 1, Price: 1, Date: day(2024, 1, 1)},
	}
	for _, b := range bad {
		b := b
		assert.True(t, errors.Is(ValidateTransaction(&b), errors.ErrInputValidation), "%+v", b)
	}
}

func TestService_TransactionsAndPlans(t *testing.T) {
	ctx := context.Background()
	state := store.NewState(store.NewMemoryStore(), nil)
	clk := clock.NewFake(day(2024, 5, 15))
	s := NewService(state, clk, zerolog.Nop())
	require.NoError(t, s.Load(ctx))

	first, err := s.AddTransaction(ctx, buy("HGLG11", 10, 160, day(2024, 5, 2)))
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	_, err = s.AddTransaction(ctx, sell("HGLG11", 11, 170, day(2024, 5, 10)))
	assert.True(t, errors.Is(err, errors.ErrInputValidation), "cannot sell more than held")

	_, err = s.AddTransaction(ctx, sell("HGLG11", 4, 170, day(2024, 5, 10)))
	require.NoError(t, err)
	assert.Equal(t, []models.Holding{{Ticker: "HGLG11", Quantity: 6, AveragePrice: 160}}, s.Holdings())

	var stored []models.Holding
	found, err := state.Load(ctx, store.KeyPortfolio, &stored)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, s.Holdings(), stored)

	_, err = s.SavePlan(ctx, models.PurchasePlan{Month: "2024-05", Budget: 500, Items: []models.PlanItem{{Ticker: "hglg11", Quantity: 1}}})
	require.NoError(t, err)
	_, err = s.SavePlan(ctx, models.PurchasePlan{Month: "2024-13", Items: []models.PlanItem{{Ticker: "HGLG11"}}})
	assert.True(t, errors.Is(err, errors.ErrInputValidation))

	plans := s.Plans()
	require.Len(t, plans, 1)
	assert.Equal(t, models.PlanDone, plans[0].Status)

	reloaded := NewService(state, clk, zerolog.Nop())
	require.NoError(t, reloaded.Load(ctx))
	txs := reloaded.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, models.TransactionSell, txs[0].Type, "most recent first")

	require.NoError(t, reloaded.RemoveTransaction(ctx, first.ID))
	assert.Error(t, reloaded.RemoveTransaction(ctx, first.ID))
	require.NoError(t, reloaded.DeletePlan(ctx, "2024-05"))
	assert.Empty(t, reloaded.Plans())
}
