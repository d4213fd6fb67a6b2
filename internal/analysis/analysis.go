// Package analysis computes chart overlays for fund price history.
package analysis

import (
	"math"
	"time"

	"github.com/markcheno/go-talib"

	"fii-monitor/internal/errors"
	"fii-monitor/internal/models"
)

// Point is one overlay value aligned to a candle date.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Bands is a Bollinger band overlay.
type Bands struct {
	Upper  []Point `json:"upper"`
	Middle []Point `json:"middle"`
	Lower  []Point `json:"lower"`
}

func closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func checkPeriod(candles []models.Candle, period int) error {
	if period < 2 {
		return errors.NewValidationError("period", period, "must be at least 2")
	}
	if len(candles) < period {
		return errors.Wrapf(errors.ErrInsufficient, "need %d candles, have %d", period, len(candles))
	}
	return nil
}

// align pairs series values with candle dates, skipping the lookback.
func align(candles []models.Candle, series []float64, lookback int) []Point {
	out := make([]Point, 0, len(candles)-lookback)
	for i := lookback; i < len(candles) && i < len(series); i++ {
		v := series[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, Point{Date: candles[i].Date, Value: math.Round(v*100) / 100})
	}
	return out
}

// MovingAverage returns the simple moving average of closes over period
// days. The first value lands on the period-th candle.
func MovingAverage(candles []models.Candle, period int) ([]Point, error) {
	if err := checkPeriod(candles, period); err != nil {
		return nil, err
	}
	return align(candles, talib.Sma(closes(candles), period), period-1), nil
}

// BollingerBands returns SMA-based bands at k standard deviations.
func BollingerBands(candles []models.Candle, period int, k float64) (*Bands, error) {
	if err := checkPeriod(candles, period); err != nil {
		return nil, err
	}
	upper, middle, lower := talib.BBands(closes(candles), period, k, k, talib.SMA)
	return &Bands{
		Upper:  align(candles, upper, period-1),
		Middle: align(candles, middle, period-1),
		Lower:  align(candles, lower, period-1),
	}, nil
}
