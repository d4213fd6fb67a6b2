package datasource

import (
	"math"

	"fii-monitor/internal/models"
)

// Target P/VP and dividend yield per sector used by the fair price blend.
var (
	pbTargets = map[models.Sector]float64{
		models.SectorReceivables: 1.05,
		models.SectorLogistics:   0.95,
		models.SectorShopping:    0.90,
		models.SectorOffices:     0.85,
		models.SectorFundOfFunds: 1.00,
		models.SectorHybrid:      0.92,
	}
	yieldTargets = map[models.Sector]float64{
		models.SectorReceivables: 0.12,
		models.SectorLogistics:   0.09,
		models.SectorShopping:    0.085,
		models.SectorOffices:     0.08,
		models.SectorFundOfFunds: 0.10,
		models.SectorHybrid:      0.09,
	}
)

const (
	defaultPBTarget    = 0.95
	defaultYieldTarget = 0.10
	managementPoints   = 7
)

// Score weights, in percent.
const (
	weightYield           = 25
	weightPB              = 20
	weightLiquidity       = 15
	weightVacancy         = 15
	weightDiversification = 10
	weightManagement      = 15
)

// FairPrice blends a book-value estimate (60%) with a dividend-yield
// estimate (40%), both against sector targets.
func FairPrice(f *models.FundSnapshot) float64 {
	pb, ok := pbTargets[f.Sector]
	if !ok {
		pb = defaultPBTarget
	}
	dy, ok := yieldTargets[f.Sector]
	if !ok {
		dy = defaultYieldTarget
	}
	byBook := f.BookValuePerShare * pb
	byYield := f.LastDividend * 12 / dy
	return Round2(byBook*0.6 + byYield*0.4)
}

// Score rates a fund from 0 to 100 over six weighted factors, each scored
// on a 0 to 10 scale.
func Score(f *models.FundSnapshot) int {
	yield := math.Min(10, f.AnnualYield/1.5)
	pb := math.Max(0, 10-(f.PriceToBook-0.7)*10)
	liquidity := math.Min(10, f.DailyLiquidity/500000)
	vacancy := 10.0
	if f.Sector.HasVacancy() {
		vacancy = math.Max(0, 10-f.VacancyOrZero())
	}
	diversification := math.Min(10, float64(f.NumAssets)/5)

	total := yield*weightYield/100 +
		pb*weightPB/100 +
		liquidity*weightLiquidity/100 +
		vacancy*weightVacancy/100 +
		diversification*weightDiversification/100 +
		managementPoints*weightManagement/100.0

	return int(math.Round(total * 10))
}

// Upside is the percentage distance from price to fair price.
func Upside(f *models.FundSnapshot) float64 {
	if f.Price <= 0 {
		return 0
	}
	return Round2((f.FairPrice/f.Price - 1) * 100)
}

// derive fills the computed fields of a freshly quoted record.
func derive(f *models.FundSnapshot) {
	f.FairPrice = FairPrice(f)
	f.Upside = Upside(f)
	f.Score = Score(f)
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
