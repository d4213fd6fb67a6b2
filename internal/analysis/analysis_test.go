package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fii-monitor/internal/errors"
	"fii-monitor/internal/models"
)

func candles(closes ...float64) []models.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{Date: start.AddDate(0, 0, i), Close: c, High: c, Low: c, Open: c}
	}
	return out
}

func TestMovingAverage(t *testing.T) {
	points, err := MovingAverage(candles(10, 11, 12, 13, 14), 3)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, 11.0, points[0].Value)
	assert.Equal(t, 12.0, points[1].Value)
	assert.Equal(t, 13.0, points[2].Value)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), points[0].Date)
}

func TestMovingAverage_InsufficientData(t *testing.T) {
	_, err := MovingAverage(candles(10, 11), 5)
	assert.True(t, errors.Is(err, errors.ErrInsufficient))

	_, err = MovingAverage(candles(10, 11), 1)
	assert.True(t, errors.Is(err, errors.ErrInputValidation))
}

func TestBollingerBands(t *testing.T) {
	bands, err := BollingerBands(candles(10, 12, 10, 12), 2, 2)
	require.NoError(t, err)
	require.Len(t, bands.Middle, 3)
	for i := range bands.Middle {
		assert.InDelta(t, 11.0, bands.Middle[i].Value, 0.01)
		assert.InDelta(t, 13.0, bands.Upper[i].Value, 0.01)
		assert.InDelta(t, 9.0, bands.Lower[i].Value, 0.01)
	}
}
