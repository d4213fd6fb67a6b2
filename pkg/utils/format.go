// Package utils provides shared formatting, retry and market-hours helpers.
package utils

import (
	"fmt"
	"math"
	"strings"
)

// FormatBRL formats an amount as Brazilian reais, e.g. "R$ 1.234,56".
func FormatBRL(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")

	result := "R$ " + groupThousands(parts[0]) + "," + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// groupThousands inserts dots every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage with sign and a decimal comma.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return sign + strings.Replace(fmt.Sprintf("%.2f%%", value), ".", ",", 1)
}

// FormatRatio formats a plain ratio such as P/VP with a decimal comma.
func FormatRatio(value float64) string {
	return strings.Replace(fmt.Sprintf("%.2f", value), ".", ",", 1)
}

// FormatGain formats a profit or loss with an explicit sign.
func FormatGain(amount float64) string {
	formatted := FormatBRL(amount)
	if amount > 0 {
		return "+" + formatted
	}
	return formatted
}

// FormatQuantity formats a share count with thousands separators.
func FormatQuantity(qty int64) string {
	if qty < 0 {
		return "-" + groupThousands(fmt.Sprintf("%d", -qty))
	}
	return groupThousands(fmt.Sprintf("%d", qty))
}

// FormatCompact formats large amounts as "R$ 1,2 mi" or "R$ 3,4 bi".
func FormatCompact(amount float64) string {
	abs := math.Abs(amount)
	switch {
	case abs >= 1e9:
		return "R$ " + FormatRatio(amount/1e9) + " bi"
	case abs >= 1e6:
		return "R$ " + FormatRatio(amount/1e6) + " mi"
	case abs >= 1e3:
		return "R$ " + FormatRatio(amount/1e3) + " mil"
	}
	return FormatBRL(amount)
}
