package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fii-monitor/internal/errors"
	"fii-monitor/internal/models"
	"fii-monitor/internal/portfolio"
)

func sampleFunds() []*models.FundSnapshot {
	v := 3.5
	return []*models.FundSnapshot{
		{Ticker: "HGLG11", Sector: models.SectorLogistics, Price: 160.5, AnnualYield: 8.2, PriceToBook: 0.97, Vacancy: &v, Score: 81,
			UpdatedAt: time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)},
		{Ticker: "MXRF11", Sector: models.SectorReceivables, Price: 10.1, AnnualYield: 12.1, PriceToBook: 1.01, Score: 74},
	}
}

func TestFunds_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Funds(&buf, FormatCSV, sampleFunds()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ticker,segmento,preco,"))
	assert.Contains(t, lines[1], "HGLG11,Logístico,160.5,")
	assert.Contains(t, lines[1], ",3.50,")
	assert.Contains(t, lines[1], "2024-03-04T12:00:00Z")
}

func TestFunds_XLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Funds(&buf, FormatXLSX, sampleFunds()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("FIIs")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Ticker", rows[0][0])
	assert.Equal(t, "HGLG11", rows[1][0])
	assert.Equal(t, "MXRF11", rows[2][0])
}

func TestPositions_XLSXHasTotals(t *testing.T) {
	sum := portfolio.Valuate(
		[]models.Holding{{Ticker: "HGLG11", Quantity: 2, AveragePrice: 150}},
		sampleFunds(),
	)

	var buf bytes.Buffer
	require.NoError(t, Positions(&buf, FormatXLSX, sum))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Carteira")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Total", rows[2][0])
	assert.Equal(t, "321", rows[2][5])

	buf.Reset()
	require.NoError(t, Positions(&buf, FormatCSV, sum))
	assert.Contains(t, buf.String(), "HGLG11,Logístico,2,150,160.5,321,300,")
}

func TestNotifications_CSV(t *testing.T) {
	history := []models.Notification{{
		Level:     models.LevelAlert,
		Ticker:    "MXRF11",
		Title:     "Alerta FII: MXRF11",
		Message:   "MXRF11 atingiu preço abaixo de R$10.00 (Atual: R$9.90)",
		Timestamp: time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC),
	}}

	var buf bytes.Buffer
	require.NoError(t, Notifications(&buf, FormatCSV, history))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "data,nivel,ticker,titulo,mensagem\n"))
	assert.Contains(t, out, "2024-03-04T15:00:00Z,alert,MXRF11,")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
	assert.Contains(t, f.ContentType(), "spreadsheetml")

	_, err = ParseFormat("pdf")
	assert.True(t, errors.Is(err, errors.ErrInputValidation))
}
