package utils

import (
	"time"
)

// MarketStatus is the B3 trading session state.
type MarketStatus string

const (
	MarketClosed  MarketStatus = "FECHADO"
	MarketPreOpen MarketStatus = "PRE_ABERTURA"
	MarketOpen    MarketStatus = "ABERTO"
	MarketClosing MarketStatus = "CALL_FECHAMENTO"
)

// SaoPauloLocation is the timezone for B3.
var SaoPauloLocation *time.Location

func init() {
	var err error
	SaoPauloLocation, err = time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		SaoPauloLocation = time.FixedZone("BRT", -3*60*60)
	}
}

// MarketStatusAt returns the B3 session state at t. Holidays are not
// considered.
func MarketStatusAt(t time.Time) MarketStatus {
	now := t.In(SaoPauloLocation)

	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return MarketClosed
	}

	minutes := now.Hour()*60 + now.Minute()
	switch {
	case minutes >= 9*60+45 && minutes < 10*60:
		return MarketPreOpen
	case minutes >= 10*60 && minutes < 16*60+55:
		return MarketOpen
	case minutes >= 16*60+55 && minutes < 17*60:
		return MarketClosing
	}
	return MarketClosed
}

// IsMarketOpen reports whether B3 is trading at t.
func IsMarketOpen(t time.Time) bool {
	status := MarketStatusAt(t)
	return status == MarketOpen || status == MarketClosing
}
