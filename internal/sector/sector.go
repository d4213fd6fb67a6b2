// Package sector aggregates fund indicators per segment.
package sector

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"fii-monitor/internal/models"
)

// Summary holds the averages of one sector.
type Summary struct {
	Sector       models.Sector `json:"sector" csv:"sector"`
	Count        int           `json:"count" csv:"count"`
	AvgYield     float64       `json:"avg_yield" csv:"avg_yield"`
	YieldStdDev  float64       `json:"yield_stddev" csv:"yield_stddev"`
	AvgPB        float64       `json:"avg_pb" csv:"avg_pb"`
	AvgVacancy   float64       `json:"avg_vacancy" csv:"avg_vacancy"`
	AvgPrice     float64       `json:"avg_price" csv:"avg_price"`
	AvgScore     float64       `json:"avg_score" csv:"avg_score"`
	AvgLiquidity float64       `json:"avg_liquidity" csv:"avg_liquidity"`
	HasVacancy   bool          `json:"has_vacancy" csv:"has_vacancy"`

	// Funds is ordered by score, best first.
	Funds []*models.FundSnapshot `json:"funds,omitempty" csv:"-"`
}

type columns struct {
	yield, pb, vacancy, price, score, liquidity []float64
}

// Analyze groups snapshot by sector and averages each indicator, rounded
// to two decimals. The result is sorted by sector name.
func Analyze(snapshot []*models.FundSnapshot) []Summary {
	groups := make(map[models.Sector][]*models.FundSnapshot)
	for _, f := range snapshot {
		groups[f.Sector] = append(groups[f.Sector], f)
	}

	out := make([]Summary, 0, len(groups))
	for sec, funds := range groups {
		var c columns
		for _, f := range funds {
			c.yield = append(c.yield, f.AnnualYield)
			c.pb = append(c.pb, f.PriceToBook)
			c.vacancy = append(c.vacancy, f.VacancyOrZero())
			c.price = append(c.price, f.Price)
			c.score = append(c.score, float64(f.Score))
			c.liquidity = append(c.liquidity, f.DailyLiquidity)
		}

		ranked := append([]*models.FundSnapshot(nil), funds...)
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

		s := Summary{
			Sector:       sec,
			Count:        len(funds),
			AvgYield:     round2(stat.Mean(c.yield, nil)),
			AvgPB:        round2(stat.Mean(c.pb, nil)),
			AvgVacancy:   round2(stat.Mean(c.vacancy, nil)),
			AvgPrice:     round2(stat.Mean(c.price, nil)),
			AvgScore:     round2(stat.Mean(c.score, nil)),
			AvgLiquidity: round2(stat.Mean(c.liquidity, nil)),
			HasVacancy:   sec.HasVacancy(),
			Funds:        ranked,
		}
		if len(c.yield) > 1 {
			s.YieldStdDev = round2(stat.StdDev(c.yield, nil))
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Sector < out[j].Sector })
	return out
}

// YieldPBCorrelation is the Pearson correlation between annual yield and
// P/VP across the snapshot. It is zero for fewer than two funds or when
// either series is constant.
func YieldPBCorrelation(snapshot []*models.FundSnapshot) float64 {
	if len(snapshot) < 2 {
		return 0
	}
	yield := make([]float64, len(snapshot))
	pb := make([]float64, len(snapshot))
	for i, f := range snapshot {
		yield[i] = f.AnnualYield
		pb[i] = f.PriceToBook
	}
	r := stat.Correlation(yield, pb, nil)
	if math.IsNaN(r) {
		return 0
	}
	return round2(r)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
