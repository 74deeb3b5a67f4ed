// Package money converts between decimal amount strings and integer minor units.
package money

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalid is returned for amounts that do not parse as a decimal number.
	ErrInvalid = errors.New("money: invalid amount")
	// ErrPrecision is returned when an amount has more fractional digits than its currency allows.
	ErrPrecision = errors.New("money: too many decimal places for currency")
	// ErrOverflow is returned when an amount does not fit in int64 minor units.
	ErrOverflow = errors.New("money: amount out of range")
)

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// ISO 4217 minor-unit exponents that differ from the common two.
var exponents = map[string]int32{
	"JPY": 0, "KRW": 0, "IDR": 0, "VND": 0, "CLP": 0, "UGX": 0, "XAF": 0, "XOF": 0,
	"BHD": 3, "KWD": 3, "OMR": 3, "JOD": 3, "TND": 3, "LYD": 3, "IQD": 3,
}

// Exponent returns the number of fractional digits used by currency.
func Exponent(currency string) int32 {
	if e, ok := exponents[strings.ToUpper(currency)]; ok {
		return e
	}
	return 2
}

// Parse converts a decimal string such as "12.50" into minor units of currency.
func Parse(amount, currency string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, ErrInvalid
	}
	return FromDecimal(d, currency)
}

// FromDecimal converts a decimal amount into minor units of currency.
func FromDecimal(d decimal.Decimal, currency string) (int64, error) {
	shifted := d.Shift(Exponent(currency))
	if !shifted.IsInteger() {
		return 0, ErrPrecision
	}
	if shifted.Abs().GreaterThan(maxMinor) {
		return 0, ErrOverflow
	}
	return shifted.IntPart(), nil
}

// ToDecimal converts minor units of currency into a decimal.
func ToDecimal(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -Exponent(currency))
}

// Format renders minor units with the currency's fixed number of decimals.
func Format(minor int64, currency string) string {
	return ToDecimal(minor, currency).StringFixed(Exponent(currency))
}
