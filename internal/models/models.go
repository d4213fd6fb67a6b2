// Package models provides domain models for the FII monitor.
package models

import (
	"time"
)

// Sector is the fund segment a FII belongs to.
type Sector string

const (
	SectorReceivables Sector = "Recebíveis"
	SectorLogistics   Sector = "Logístico"
	SectorShopping    Sector = "Shopping"
	SectorOffices     Sector = "Escritórios"
	SectorFundOfFunds Sector = "Fundo de Fundos"
	SectorHybrid      Sector = "Híbrido"
	SectorOther       Sector = "Outros"
)

// Sectors lists the known sectors in display order.
var Sectors = []Sector{
	SectorReceivables,
	SectorLogistics,
	SectorShopping,
	SectorOffices,
	SectorFundOfFunds,
	SectorHybrid,
	SectorOther,
}

// HasVacancy reports whether vacancy is meaningful for the sector. Paper
// funds and funds of funds own no buildings.
func (s Sector) HasVacancy() bool {
	return s != SectorReceivables && s != SectorFundOfFunds
}

// FundSnapshot is one fund's indicators at a point in time. Snapshots returned
// by the data source are shared between consumers and must not be mutated;
// use Clone before deriving per-view values.
type FundSnapshot struct {
	Ticker            string    `json:"ticker" msgpack:"ticker" csv:"ticker"`
	Sector            Sector    `json:"sector" msgpack:"sector" csv:"sector"`
	Price             float64   `json:"price" msgpack:"price" csv:"price"`
	BookValuePerShare float64   `json:"book_value_per_share" msgpack:"vpc" csv:"vpc"`
	FairPrice         float64   `json:"fair_price" msgpack:"fair_price" csv:"fair_price"`
	Upside            float64   `json:"upside" msgpack:"upside" csv:"upside"`
	LastDividend      float64   `json:"last_dividend" msgpack:"last_dividend" csv:"last_dividend"`
	MonthlyYield      float64   `json:"monthly_yield" msgpack:"monthly_yield" csv:"monthly_yield"`
	AnnualYield       float64   `json:"annual_yield" msgpack:"annual_yield" csv:"annual_yield"`
	PriceToBook       float64   `json:"price_to_book" msgpack:"pvp" csv:"pvp"`
	Vacancy           *float64  `json:"vacancy,omitempty" msgpack:"vacancy" csv:"-"`
	DailyLiquidity    float64   `json:"daily_liquidity" msgpack:"liquidity" csv:"daily_liquidity"`
	NumAssets         int       `json:"num_assets" msgpack:"num_assets" csv:"num_assets"`
	Manager           string    `json:"manager" msgpack:"manager" csv:"manager"`
	CapRate           float64   `json:"cap_rate" msgpack:"cap_rate" csv:"cap_rate"`
	FFOYield          float64   `json:"ffo_yield" msgpack:"ffo_yield" csv:"ffo_yield"`
	Score             int       `json:"score" msgpack:"score" csv:"score"`
	UpdatedAt         time.Time `json:"updated_at" msgpack:"updated_at" csv:"-"`
}

// Clone returns a deep copy of the snapshot.
func (f *FundSnapshot) Clone() *FundSnapshot {
	if f == nil {
		return nil
	}
	c := *f
	if f.Vacancy != nil {
		v := *f.Vacancy
		c.Vacancy = &v
	}
	return &c
}

// VacancyOrZero returns the vacancy percentage, or zero when not applicable.
func (f *FundSnapshot) VacancyOrZero() float64 {
	if f.Vacancy == nil {
		return 0
	}
	return *f.Vacancy
}

// FindFund returns the snapshot entry for ticker, or nil.
func FindFund(snapshot []*FundSnapshot, ticker string) *FundSnapshot {
	for _, f := range snapshot {
		if f != nil && f.Ticker == ticker {
			return f
		}
	}
	return nil
}

// IndexFunds maps tickers to their snapshot entries.
func IndexFunds(snapshot []*FundSnapshot) map[string]*FundSnapshot {
	idx := make(map[string]*FundSnapshot, len(snapshot))
	for _, f := range snapshot {
		if f != nil {
			idx[f.Ticker] = f
		}
	}
	return idx
}

// RankedFund is a per-view derived record wrapping a shared snapshot.
type RankedFund struct {
	Rank int           `json:"rank"`
	Fund *FundSnapshot `json:"fund"`
}

// Candle represents one day of synthetic price history.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Dividend is one monthly distribution.
type Dividend struct {
	Value       float64   `json:"value"`
	BaseDate    time.Time `json:"base_date"`
	PaymentDate time.Time `json:"payment_date"`
}
