// Package currency converts between decimal amount strings and base units.
//
// All marketplace arithmetic happens in uint64 base units; the HTTP API
// speaks decimal strings ("2.0"). One coin is 10^8 base units.
package currency

import (
	"strings"

	"github.com/shopspring/decimal"

	apperr "github.com/mintbay/mintbay/internal/errors"
)

// Decimals is the number of fractional digits one coin carries.
const Decimals = 8

var unit = decimal.New(1, Decimals)

// MaxAmount is the largest representable amount in base units.
const MaxAmount = uint64(1<<63 - 1)

// Parse converts a decimal amount string into base units.
// Amounts must be non-negative and carry at most Decimals fractional digits.
func Parse(value string) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, apperr.New(apperr.CodeAmountInvalid, "amount is required")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeAmountInvalid, "amount is not a decimal number", err)
	}
	if d.IsNegative() {
		return 0, apperr.New(apperr.CodeAmountInvalid, "amount must not be negative")
	}
	scaled := d.Mul(unit)
	if !scaled.IsInteger() {
		return 0, apperr.New(apperr.CodeAmountInvalid, "amount has too many decimal places")
	}
	if !scaled.BigInt().IsUint64() || scaled.BigInt().Uint64() > MaxAmount {
		return 0, apperr.New(apperr.CodeAmountOverflow, "amount exceeds the representable range")
	}
	return scaled.BigInt().Uint64(), nil
}

// Format renders base units as a decimal amount string.
func Format(baseUnits uint64) string {
	return decimal.NewFromUint64(baseUnits).Div(unit).String()
}
