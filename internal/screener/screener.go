// Package screener filters and ranks funds for the monitoring table.
package screener

import (
	"fmt"
	"sort"
	"strings"

	"fii-monitor/internal/errors"
	"fii-monitor/internal/models"
)

// DefaultFilter returns the stock monitoring filter: every sector with
// buildings or receivables, DY >= 8, P/VP <= 1, score >= 60, price <= 25,
// top 30.
func DefaultFilter() models.ScreenFilter {
	return models.ScreenFilter{
		Sectors: []models.Sector{
			models.SectorReceivables,
			models.SectorLogistics,
			models.SectorShopping,
			models.SectorOffices,
			models.SectorFundOfFunds,
			models.SectorHybrid,
		},
		MinYield: 8,
		MaxPB:    1,
		MinScore: 60,
		MaxPrice: 25,
		Limit:    30,
	}
}

// Matches reports whether f passes every bound of filter. A zero bound or
// an empty sector list is not applied.
func Matches(filter models.ScreenFilter, f *models.FundSnapshot) bool {
	if len(filter.Sectors) > 0 && !containsSector(filter.Sectors, f.Sector) {
		return false
	}
	if f.AnnualYield < filter.MinYield {
		return false
	}
	if filter.MaxPB > 0 && f.PriceToBook > filter.MaxPB {
		return false
	}
	if f.Score < filter.MinScore {
		return false
	}
	if filter.MaxPrice > 0 && f.Price > filter.MaxPrice {
		return false
	}
	return true
}

func containsSector(list []models.Sector, s models.Sector) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// Apply filters snapshot, orders the matches by score (ties by ticker) and
// keeps the first filter.Limit. The snapshot itself is left untouched.
func Apply(snapshot []*models.FundSnapshot, filter models.ScreenFilter) []models.RankedFund {
	var matched []*models.FundSnapshot
	for _, f := range snapshot {
		if Matches(filter, f) {
			matched = append(matched, f)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Score != matched[j].Score {
			return matched[i].Score > matched[j].Score
		}
		return matched[i].Ticker < matched[j].Ticker
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return Rank(matched)
}

// Rank numbers funds from 1 in their current order.
func Rank(funds []*models.FundSnapshot) []models.RankedFund {
	out := make([]models.RankedFund, len(funds))
	for i, f := range funds {
		out[i] = models.RankedFund{Rank: i + 1, Fund: f}
	}
	return out
}

// Columns lists the sortable column names.
var Columns = []string{
	"ticker", "sector", "price", "fair_price", "upside", "dy", "pvp",
	"vacancy", "liquidity", "assets", "score", "last_dividend",
}

type less func(a, b *models.FundSnapshot) bool

var comparators = map[string]less{
	"ticker":        func(a, b *models.FundSnapshot) bool { return a.Ticker < b.Ticker },
	"sector":        func(a, b *models.FundSnapshot) bool { return a.Sector < b.Sector },
	"price":         func(a, b *models.FundSnapshot) bool { return a.Price < b.Price },
	"fair_price":    func(a, b *models.FundSnapshot) bool { return a.FairPrice < b.FairPrice },
	"upside":        func(a, b *models.FundSnapshot) bool { return a.Upside < b.Upside },
	"dy":            func(a, b *models.FundSnapshot) bool { return a.AnnualYield < b.AnnualYield },
	"pvp":           func(a, b *models.FundSnapshot) bool { return a.PriceToBook < b.PriceToBook },
	"vacancy":       func(a, b *models.FundSnapshot) bool { return a.VacancyOrZero() < b.VacancyOrZero() },
	"liquidity":     func(a, b *models.FundSnapshot) bool { return a.DailyLiquidity < b.DailyLiquidity },
	"assets":        func(a, b *models.FundSnapshot) bool { return a.NumAssets < b.NumAssets },
	"score":         func(a, b *models.FundSnapshot) bool { return a.Score < b.Score },
	"last_dividend": func(a, b *models.FundSnapshot) bool { return a.LastDividend < b.LastDividend },
}

// ParseSort splits "column" or "-column" into the column and whether the
// order is descending.
func ParseSort(spec string) (string, bool, error) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	desc := strings.HasPrefix(spec, "-")
	column := strings.TrimPrefix(spec, "-")
	if _, ok := comparators[column]; !ok {
		return "", false, errors.NewValidationError("sort", spec, fmt.Sprintf("unknown column, use one of %s", strings.Join(Columns, ", ")))
	}
	return column, desc, nil
}

// Sort returns a copy of funds ordered by column.
func Sort(funds []*models.FundSnapshot, column string, desc bool) ([]*models.FundSnapshot, error) {
	cmp, ok := comparators[column]
	if !ok {
		return nil, errors.NewValidationError("sort", column, "unknown column")
	}
	out := append([]*models.FundSnapshot(nil), funds...)
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return cmp(out[j], out[i])
		}
		return cmp(out[i], out[j])
	})
	return out, nil
}
