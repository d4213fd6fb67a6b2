// Package export writes fund lists, portfolio positions and notification
// history as CSV or XLSX.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"fii-monitor/internal/errors"
	"fii-monitor/internal/models"
	"fii-monitor/internal/portfolio"
)

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", errors.NewValidationError("format", s, "expected csv or xlsx")
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

type fundRow struct {
	Ticker       string  `csv:"ticker"`
	Sector       string  `csv:"segmento"`
	Price        float64 `csv:"preco"`
	FairPrice    float64 `csv:"preco_justo"`
	Upside       float64 `csv:"potencial"`
	LastDividend float64 `csv:"ultimo_dividendo"`
	AnnualYield  float64 `csv:"dy_anual"`
	PriceToBook  float64 `csv:"pvp"`
	Vacancy      string  `csv:"vacancia"`
	Liquidity    float64 `csv:"liquidez_diaria"`
	Assets       int     `csv:"ativos"`
	Manager      string  `csv:"gestora"`
	Score        int     `csv:"score"`
	UpdatedAt    string  `csv:"atualizado_em"`
}

func (r fundRow) cells() []interface{} {
	return []interface{}{
		r.Ticker, r.Sector, r.Price, r.FairPrice, r.Upside, r.LastDividend,
		r.AnnualYield, r.PriceToBook, r.Vacancy, r.Liquidity, r.Assets,
		r.Manager, r.Score, r.UpdatedAt,
	}
}

var fundHeader = []string{
	"Ticker", "Segmento", "Preço", "Preço Justo", "Potencial (%)", "Último Dividendo",
	"DY Anual (%)", "P/VP", "Vacância (%)", "Liquidez Diária", "Ativos",
	"Gestora", "Score", "Atualizado em",
}

func fundRows(funds []*models.FundSnapshot) []fundRow {
	rows := make([]fundRow, 0, len(funds))
	for _, f := range funds {
		vacancy := ""
		if f.Vacancy != nil {
			vacancy = fmt.Sprintf("%.2f", *f.Vacancy)
		}
		rows = append(rows, fundRow{
			Ticker:       f.Ticker,
			Sector:       string(f.Sector),
			Price:        f.Price,
			FairPrice:    f.FairPrice,
			Upside:       f.Upside,
			LastDividend: f.LastDividend,
			AnnualYield:  f.AnnualYield,
			PriceToBook:  f.PriceToBook,
			Vacancy:      vacancy,
			Liquidity:    f.DailyLiquidity,
			Assets:       f.NumAssets,
			Manager:      f.Manager,
			Score:        f.Score,
			UpdatedAt:    timestamp(f.UpdatedAt),
		})
	}
	return rows
}

type positionRow struct {
	Ticker           string  `csv:"ticker"`
	Sector           string  `csv:"segmento"`
	Quantity         int     `csv:"quantidade"`
	AveragePrice     float64 `csv:"preco_medio"`
	CurrentPrice     float64 `csv:"preco_atual"`
	Value            float64 `csv:"valor"`
	Cost             float64 `csv:"custo"`
	MonthlyDividends float64 `csv:"dividendos_mensais"`
	Return           float64 `csv:"rentabilidade"`
	Allocation       float64 `csv:"percentual"`
}

func (r positionRow) cells() []interface{} {
	return []interface{}{
		r.Ticker, r.Sector, r.Quantity, r.AveragePrice, r.CurrentPrice,
		r.Value, r.Cost, r.MonthlyDividends, r.Return, r.Allocation,
	}
}

var positionHeader = []string{
	"Ticker", "Segmento", "Quantidade", "Preço Médio", "Preço Atual",
	"Valor", "Custo", "Dividendos Mensais", "Rentabilidade (%)", "Percentual (%)",
}

func positionRows(sum portfolio.Summary) []positionRow {
	rows := make([]positionRow, 0, len(sum.Positions))
	for _, p := range sum.Positions {
		rows = append(rows, positionRow{
			Ticker:           p.Ticker,
			Sector:           string(p.Sector),
			Quantity:         p.Quantity,
			AveragePrice:     p.AveragePrice,
			CurrentPrice:     p.CurrentPrice,
			Value:            p.Value,
			Cost:             p.Cost,
			MonthlyDividends: p.MonthlyDividends,
			Return:           p.Return,
			Allocation:       p.Allocation,
		})
	}
	return rows
}

type notificationRow struct {
	Timestamp string `csv:"data"`
	Level     string `csv:"nivel"`
	Ticker    string `csv:"ticker"`
	Title     string `csv:"titulo"`
	Message   string `csv:"mensagem"`
}

func (r notificationRow) cells() []interface{} {
	return []interface{}{r.Timestamp, r.Level, r.Ticker, r.Title, r.Message}
}

var notificationHeader = []string{"Data", "Nível", "Ticker", "Título", "Mensagem"}

func notificationRows(history []models.Notification) []notificationRow {
	rows := make([]notificationRow, 0, len(history))
	for _, n := range history {
		rows = append(rows, notificationRow{
			Timestamp: timestamp(n.Timestamp),
			Level:     string(n.Level),
			Ticker:    n.Ticker,
			Title:     n.Title,
			Message:   n.Message,
		})
	}
	return rows
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// Funds writes funds in format f.
func Funds(w io.Writer, f Format, funds []*models.FundSnapshot) error {
	rows := fundRows(funds)
	if f == FormatCSV {
		return writeCSV(w, &rows)
	}
	return writeXLSX(w, "FIIs", fundHeader, cellsOf(rows))
}

// Positions writes the valued portfolio in format f, with a totals line in
// XLSX output.
func Positions(w io.Writer, f Format, sum portfolio.Summary) error {
	rows := positionRows(sum)
	if f == FormatCSV {
		return writeCSV(w, &rows)
	}
	cells := cellsOf(rows)
	cells = append(cells, []interface{}{
		"Total", "", "", "", "", sum.TotalValue, sum.TotalCost, sum.MonthlyDividends, sum.Return, 100.0,
	})
	return writeXLSX(w, "Carteira", positionHeader, cells)
}

// Notifications writes the notification history in format f.
func Notifications(w io.Writer, f Format, history []models.Notification) error {
	rows := notificationRows(history)
	if f == FormatCSV {
		return writeCSV(w, &rows)
	}
	return writeXLSX(w, "Notificações", notificationHeader, cellsOf(rows))
}

type row interface {
	cells() []interface{}
}

func cellsOf[T row](rows []T) [][]interface{} {
	out := make([][]interface{}, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.cells())
	}
	return out
}

func writeCSV(w io.Writer, rows interface{}) error {
	if err := gocsv.Marshal(rows, w); err != nil {
		return errors.Wrap(err, "writing csv")
	}
	return nil
}

func writeXLSX(w io.Writer, sheet string, header []string, rows [][]interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return errors.Wrap(err, "naming sheet")
	}

	head := make([]interface{}, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return errors.Wrap(err, "writing header")
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		r := r
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return errors.Wrapf(err, "writing row %d", i+2)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 16); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "writing xlsx")
	}
	return nil
}
