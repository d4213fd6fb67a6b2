package screener

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fii-monitor/internal/errors"
	"fii-monitor/internal/models"
)

func candidates() []*models.FundSnapshot {
	return []*models.FundSnapshot{
		{Ticker: "MXRF11", Sector: models.SectorReceivables, Price: 10, AnnualYield: 12, PriceToBook: 0.98, Score: 72},
		{Ticker: "KNCR11", Sector: models.SectorReceivables, Price: 24, AnnualYield: 11, PriceToBook: 0.99, Score: 80},
		{Ticker: "HGLG11", Sector: models.SectorLogistics, Price: 160, AnnualYield: 8.5, PriceToBook: 0.95, Score: 90},
		{Ticker: "XPML11", Sector: models.SectorShopping, Price: 11, AnnualYield: 7, PriceToBook: 0.9, Score: 65},
		{Ticker: "IRDM11", Sector: models.SectorReceivables, Price: 9, AnnualYield: 13, PriceToBook: 1.2, Score: 70},
		{Ticker: "RBRF11", Sector: models.SectorFundOfFunds, Price: 8, AnnualYield: 9, PriceToBook: 0.85, Score: 55},
		{Ticker: "OUTR11", Sector: models.SectorOther, Price: 9, AnnualYield: 10, PriceToBook: 0.8, Score: 99},
	}
}

func tickers(ranked []models.RankedFund) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Fund.Ticker
	}
	return out
}

func TestApply_DefaultFilter(t *testing.T) {
	got := Apply(candidates(), DefaultFilter())
	assert.Equal(t, []string{"KNCR11", "MXRF11"}, tickers(got))
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, 2, got[1].Rank)
}

func TestApply_LimitAndOpenBounds(t *testing.T) {
	got := Apply(candidates(), models.ScreenFilter{Limit: 3})
	assert.Equal(t, []string{"OUTR11", "HGLG11", "KNCR11"}, tickers(got))
}

// Property: Apply never returns more than Limit funds, every result
// matches the filter and scores never increase down the list.
func TestProperty_ApplyRespectsFilter(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("results match, are ordered and bounded", prop.ForAll(
		func(minYield float64, minScore, limit int) bool {
			filter := models.ScreenFilter{MinYield: minYield, MinScore: minScore, MaxPB: 1.1, Limit: limit}
			got := Apply(candidates(), filter)
			if len(got) > limit {
				return false
			}
			for i, r := range got {
				if !Matches(filter, r.Fund) || r.Rank != i+1 {
					return false
				}
				if i > 0 && got[i-1].Fund.Score < r.Fund.Score {
					return false
				}
			}
			return true
		},
		gen.Float64Range(0, 15),
		gen.IntRange(0, 100),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}

func TestSort(t *testing.T) {
	funds := candidates()

	byPrice, err := Sort(funds, "price", false)
	require.NoError(t, err)
	assert.Equal(t, "RBRF11", byPrice[0].Ticker)
	assert.Equal(t, "HGLG11", byPrice[len(byPrice)-1].Ticker)
	assert.Equal(t, "MXRF11", funds[0].Ticker, "input order is untouched")

	column, desc, err := ParseSort("-DY")
	require.NoError(t, err)
	assert.Equal(t, "dy", column)
	assert.True(t, desc)

	byYield, err := Sort(funds, column, desc)
	require.NoError(t, err)
	assert.Equal(t, "IRDM11", byYield[0].Ticker)

	_, _, err = ParseSort("volume")
	assert.True(t, errors.Is(err, errors.ErrInputValidation))
	_, err = Sort(funds, "volume", false)
	assert.Error(t, err)
}
