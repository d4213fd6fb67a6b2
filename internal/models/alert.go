package models

import (
	"fmt"
	"strings"
	"time"
)

// AlertKind is the comparison an alert rule performs.
type AlertKind string

const (
	AlertPriceAbove AlertKind = "price-above"
	AlertPriceBelow AlertKind = "price-below"
	AlertYieldAbove AlertKind = "yield-above"
	AlertYieldBelow AlertKind = "yield-below"
	AlertPBAbove    AlertKind = "pb-above"
	AlertPBBelow    AlertKind = "pb-below"
)

// AlertKinds lists every supported kind.
var AlertKinds = []AlertKind{
	AlertPriceAbove, AlertPriceBelow,
	AlertYieldAbove, AlertYieldBelow,
	AlertPBAbove, AlertPBBelow,
}

// Valid reports whether k is a known kind.
func (k AlertKind) Valid() bool {
	for _, known := range AlertKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Above reports whether the kind fires on values at or above the threshold.
func (k AlertKind) Above() bool {
	return strings.HasSuffix(string(k), "-above")
}

// Value extracts the field the kind compares against.
func (k AlertKind) Value(f *FundSnapshot) float64 {
	switch {
	case strings.HasPrefix(string(k), "price"):
		return f.Price
	case strings.HasPrefix(string(k), "yield"):
		return f.AnnualYield
	default:
		return f.PriceToBook
	}
}

// Describe renders the alert message for ticker at the current value.
func (k AlertKind) Describe(ticker string, threshold, current float64) string {
	dir := "abaixo"
	if k.Above() {
		dir = "acima"
	}
	switch {
	case strings.HasPrefix(string(k), "price"):
		return fmt.Sprintf("%s atingiu preço %s de R$%.2f (Atual: R$%.2f)", ticker, dir, threshold, current)
	case strings.HasPrefix(string(k), "yield"):
		return fmt.Sprintf("%s atingiu DY %s de %.2f%% (Atual: %.2f%%)", ticker, dir, threshold, current)
	default:
		return fmt.Sprintf("%s atingiu P/VP %s de %.2f (Atual: %.2f)", ticker, dir, threshold, current)
	}
}

// AlertRule is a user-defined watch on one fund.
type AlertRule struct {
	ID        int64     `json:"id" yaml:"id"`
	Ticker    string    `json:"ticker" yaml:"ticker"`
	Kind      AlertKind `json:"kind" yaml:"kind"`
	Threshold float64   `json:"threshold" yaml:"threshold"`
	Active    bool      `json:"active" yaml:"active"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// NotificationLevel classifies a notification.
type NotificationLevel string

const (
	LevelAlert   NotificationLevel = "alert"
	LevelInfo    NotificationLevel = "info"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
)

// Notification is an immutable record of something surfaced to the user.
type Notification struct {
	ID        string            `json:"id" csv:"id"`
	RuleID    int64             `json:"rule_id,omitempty" csv:"rule_id"`
	Ticker    string            `json:"ticker,omitempty" csv:"ticker"`
	Level     NotificationLevel `json:"level" csv:"level"`
	Title     string            `json:"title" csv:"title"`
	Message   string            `json:"message" csv:"message"`
	Timestamp time.Time         `json:"timestamp" csv:"timestamp"`
}
