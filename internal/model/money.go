package model

import "github.com/shopspring/decimal"

// CurrencyPlaces is the number of decimal places in a currency unit.
const CurrencyPlaces = 2

var cents = decimal.New(1, CurrencyPlaces)

// HasCurrencyPrecision reports whether d has no more than CurrencyPlaces
// decimal places.
func HasCurrencyPrecision(d decimal.Decimal) bool {
	scaled := d.Mul(cents)
	return scaled.Equal(scaled.Truncate(0))
}

// RoundCurrency rounds d half away from zero to CurrencyPlaces.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}
