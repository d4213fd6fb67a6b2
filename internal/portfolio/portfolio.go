// Package portfolio derives holdings from the transaction log, values them
// against a fund snapshot and tracks monthly purchase plans.
package portfolio

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fii-monitor/internal/errors"
	"fii-monitor/internal/models"
)

var (
	hundred       = decimal.NewFromInt(100)
	tickerPattern = regexp.MustCompile(`^[A-Z]{4}11$`)
)

// Position is one valued holding.
type Position struct {
	Ticker           string        `json:"ticker" csv:"ticker"`
	Sector           models.Sector `json:"sector" csv:"sector"`
	Quantity         int           `json:"quantity" csv:"quantity"`
	AveragePrice     float64       `json:"average_price" csv:"average_price"`
	CurrentPrice     float64       `json:"current_price" csv:"current_price"`
	Value            float64       `json:"value" csv:"value"`
	Cost             float64       `json:"cost" csv:"cost"`
	MonthlyDividends float64       `json:"monthly_dividends" csv:"monthly_dividends"`
	AnnualYield      float64       `json:"annual_yield" csv:"annual_yield"`
	Return           float64       `json:"return" csv:"return"`
	Allocation       float64       `json:"allocation" csv:"allocation"`
	Quoted           bool          `json:"quoted" csv:"quoted"`
}

// Summary is the valued portfolio.
type Summary struct {
	Positions        []Position `json:"positions"`
	TotalValue       float64    `json:"total_value"`
	TotalCost        float64    `json:"total_cost"`
	MonthlyDividends float64    `json:"monthly_dividends"`
	AverageYield     float64    `json:"average_yield"`
	Return           float64    `json:"return"`
}

// ValidateTransaction checks a transaction in isolation and normalizes its
// ticker.
func ValidateTransaction(tx *models.Transaction) error {
	tx.Ticker = strings.ToUpper(strings.TrimSpace(tx.Ticker))
	if !tickerPattern.MatchString(tx.Ticker) {
		return errors.NewValidationError("ticker", tx.Ticker, "expected four letters followed by 11")
	}
	if tx.Type != models.TransactionBuy && tx.Type != models.TransactionSell {
		return errors.NewValidationError("type", tx.Type, "must be buy or sell")
	}
	if tx.Quantity <= 0 {
		return errors.NewValidationError("quantity", tx.Quantity, "must be positive")
	}
	if math.IsNaN(tx.Price) || math.IsInf(tx.Price, 0) || tx.Price <= 0 {
		return errors.NewValidationError("price", tx.Price, "must be positive")
	}
	if tx.Date.IsZero() {
		return errors.NewValidationError("date", tx.Date, "is required")
	}
	return nil
}

type lot struct {
	qty int64
	avg decimal.Decimal
}

// Recalculate replays transactions in date order. Buys move the weighted
// average price, sells only reduce the quantity, and positions that reach
// zero are dropped. The result is sorted by ticker.
func Recalculate(transactions []models.Transaction) []models.Holding {
	ordered := append([]models.Transaction(nil), transactions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	lots := make(map[string]*lot)
	for _, tx := range ordered {
		l, ok := lots[tx.Ticker]
		if !ok {
			l = &lot{}
			lots[tx.Ticker] = l
		}
		qty := int64(tx.Quantity)
		switch tx.Type {
		case models.TransactionBuy:
			held := decimal.NewFromInt(l.qty).Mul(l.avg)
			bought := decimal.NewFromInt(qty).Mul(decimal.NewFromFloat(tx.Price))
			l.qty += qty
			l.avg = held.Add(bought).Div(decimal.NewFromInt(l.qty))
		case models.TransactionSell:
			l.qty -= qty
		}
		if l.qty <= 0 {
			delete(lots, tx.Ticker)
		}
	}

	holdings := make([]models.Holding, 0, len(lots))
	for ticker, l := range lots {
		holdings = append(holdings, models.Holding{
			Ticker:       ticker,
			Quantity:     int(l.qty),
			AveragePrice: l.avg.Round(2).InexactFloat64(),
		})
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Ticker < holdings[j].Ticker })
	return holdings
}

// Held returns the quantity of ticker held after applying transactions.
func Held(transactions []models.Transaction, ticker string) int {
	for _, h := range Recalculate(transactions) {
		if h.Ticker == ticker {
			return h.Quantity
		}
	}
	return 0
}

// Valuate prices holdings against snapshot. A holding without a quote is
// valued at its average price.
func Valuate(holdings []models.Holding, snapshot []*models.FundSnapshot) Summary {
	funds := models.IndexFunds(snapshot)

	type row struct {
		pos   Position
		value decimal.Decimal
		cost  decimal.Decimal
		div   decimal.Decimal
	}
	rows := make([]row, 0, len(holdings))
	var totalValue, totalCost, totalDiv, weightedYield decimal.Decimal

	for _, h := range holdings {
		qty := decimal.NewFromInt(int64(h.Quantity))
		avg := decimal.NewFromFloat(h.AveragePrice)
		price := avg
		r := row{pos: Position{Ticker: h.Ticker, Quantity: h.Quantity, AveragePrice: h.AveragePrice}}

		if f, ok := funds[h.Ticker]; ok {
			price = decimal.NewFromFloat(f.Price)
			r.div = qty.Mul(decimal.NewFromFloat(f.LastDividend))
			r.pos.Sector = f.Sector
			r.pos.AnnualYield = f.AnnualYield
			r.pos.Quoted = true
		}
		r.value = qty.Mul(price)
		r.cost = qty.Mul(avg)
		r.pos.CurrentPrice = price.Round(2).InexactFloat64()
		if !avg.IsZero() {
			r.pos.Return = price.Div(avg).Sub(decimal.NewFromInt(1)).Mul(hundred).Round(2).InexactFloat64()
		}

		totalValue = totalValue.Add(r.value)
		totalCost = totalCost.Add(r.cost)
		totalDiv = totalDiv.Add(r.div)
		weightedYield = weightedYield.Add(decimal.NewFromFloat(r.pos.AnnualYield).Mul(r.value))
		rows = append(rows, r)
	}

	sum := Summary{Positions: make([]Position, 0, len(rows))}
	for _, r := range rows {
		r.pos.Value = r.value.Round(2).InexactFloat64()
		r.pos.Cost = r.cost.Round(2).InexactFloat64()
		r.pos.MonthlyDividends = r.div.Round(2).InexactFloat64()
		if totalValue.IsPositive() {
			r.pos.Allocation = r.value.Div(totalValue).Mul(hundred).Round(2).InexactFloat64()
		}
		sum.Positions = append(sum.Positions, r.pos)
	}

	sum.TotalValue = totalValue.Round(2).InexactFloat64()
	sum.TotalCost = totalCost.Round(2).InexactFloat64()
	sum.MonthlyDividends = totalDiv.Round(2).InexactFloat64()
	if totalValue.IsPositive() {
		sum.AverageYield = weightedYield.Div(totalValue).Round(2).InexactFloat64()
	}
	if totalCost.IsPositive() {
		sum.Return = totalValue.Div(totalCost).Sub(decimal.NewFromInt(1)).Mul(hundred).Round(2).InexactFloat64()
	}
	return sum
}

// SectorAllocation sums position values per sector. Unquoted positions
// are grouped under SectorOther.
func SectorAllocation(sum Summary) map[models.Sector]float64 {
	out := make(map[models.Sector]float64)
	for _, p := range sum.Positions {
		sector := p.Sector
		if sector == "" {
			sector = models.SectorOther
		}
		out[sector] = decimal.NewFromFloat(out[sector]).Add(decimal.NewFromFloat(p.Value)).Round(2).InexactFloat64()
	}
	return out
}

// PlanStatus reports the progress of plan given the buy transactions. Past
// months are Concluído, Parcial or Pendente; the current month is
// Concluído, Parcial or Em andamento; later months are Futuro.
func PlanStatus(plan models.PurchasePlan, transactions []models.Transaction, now time.Time) models.PlanStatus {
	month, err := time.Parse("2006-01", plan.Month)
	if err != nil {
		return models.PlanPending
	}
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if month.After(current) {
		return models.PlanFuture
	}

	bought := 0
	for _, item := range plan.Items {
		if boughtIn(transactions, item.Ticker, month) {
			bought++
		}
	}

	switch {
	case len(plan.Items) > 0 && bought == len(plan.Items):
		return models.PlanDone
	case bought > 0:
		return models.PlanPartial
	case month.Equal(current):
		return models.PlanInProgress
	default:
		return models.PlanPending
	}
}

func boughtIn(transactions []models.Transaction, ticker string, month time.Time) bool {
	for _, tx := range transactions {
		if tx.Type == models.TransactionBuy && tx.Ticker == ticker &&
			tx.Date.Year() == month.Year() && tx.Date.Month() == month.Month() {
			return true
		}
	}
	return false
}
