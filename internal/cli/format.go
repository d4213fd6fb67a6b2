package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fii-monitor/internal/errors"
	"fii-monitor/internal/models"
	"fii-monitor/pkg/utils"
)

var saoPaulo = utils.SaoPauloLocation

// FormatYield formats a yield without a sign, e.g. "10,50%".
func FormatYield(value float64) string {
	return strings.Replace(fmt.Sprintf("%.2f%%", value), ".", ",", 1)
}

// FormatVacancy renders vacancy, or "-" for sectors without buildings.
func FormatVacancy(f *models.FundSnapshot) string {
	if f.Vacancy == nil {
		return "-"
	}
	return FormatYield(*f.Vacancy)
}

// FormatDate formats a date the Brazilian way.
func FormatDate(t time.Time) string {
	return t.In(saoPaulo).Format("02/01/2006")
}

// FormatDateTime formats a timestamp in São Paulo time.
func FormatDateTime(t time.Time) string {
	return t.In(saoPaulo).Format("02/01/2006 15:04:05")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// FormatThreshold renders an alert threshold in the unit of its kind.
func FormatThreshold(kind models.AlertKind, v float64) string {
	switch {
	case strings.HasPrefix(string(kind), "price"):
		return utils.FormatBRL(v)
	case strings.HasPrefix(string(kind), "yield"):
		return FormatYield(v)
	}
	return utils.FormatRatio(v)
}

// parseDate accepts YYYY-MM-DD or DD/MM/YYYY.
func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		if t, err := time.ParseInLocation(layout, s, saoPaulo); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.NewValidationError("date", s, "expected YYYY-MM-DD or DD/MM/YYYY")
}

// parseAmount accepts both "10.5" and "10,5".
func parseAmount(field, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(s), ",", ".", 1), 64)
	if err != nil {
		return 0, errors.NewValidationError(field, s, "not a number")
	}
	return v, nil
}

func parseQuantity(s string) (int, error) {
	q, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || q <= 0 {
		return 0, errors.NewValidationError("quantity", s, "must be a positive integer")
	}
	return q, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.NewValidationError("id", s, "not a rule id")
	}
	return id, nil
}

// parsePlanItem reads TICKER:QTY:PRICE.
func parsePlanItem(s string) (models.PlanItem, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return models.PlanItem{}, errors.NewValidationError("item", s, "expected TICKER:QTY:PRICE")
	}
	qty, err := parseQuantity(parts[1])
	if err != nil {
		return models.PlanItem{}, err
	}
	price, err := parseAmount("target_price", parts[2])
	if err != nil {
		return models.PlanItem{}, err
	}
	return models.PlanItem{
		Ticker:      strings.ToUpper(strings.TrimSpace(parts[0])),
		Quantity:    qty,
		TargetPrice: price,
	}, nil
}

// fundRow is the table row for one fund.
func fundRow(o *Output, rank int, f *models.FundSnapshot) []string {
	return []string{
		strconv.Itoa(rank),
		o.BoldText(f.Ticker),
		string(f.Sector),
		utils.FormatBRL(f.Price),
		FormatYield(f.AnnualYield),
		utils.FormatRatio(f.PriceToBook),
		FormatVacancy(f),
		utils.FormatCompact(f.DailyLiquidity),
		strconv.Itoa(f.Score),
		o.Signed(f.Upside, utils.FormatPercent(f.Upside)),
	}
}

var fundHeaders = []string{"#", "TICKER", "SETOR", "PREÇO", "DY", "P/VP", "VACÂNCIA", "LIQUIDEZ", "SCORE", "POTENCIAL"}
