// Package numeric provides fixed-point helpers for exchange amounts.
package numeric

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/coachpo/aevo/errs"
)

// ScaleFloor converts value into an integer count of 10^-decimals units.
// Digits below the precision floor are dropped, never rounded up, so the
// result never exceeds the caller's value. Negative values are rejected.
func ScaleFloor(value decimal.Decimal, decimals int32) (*big.Int, error) {
	if value.Sign() < 0 {
		return nil, errs.New("numeric.scale", errs.CodeInvalid,
			errs.WithMessage("value must not be negative"),
			errs.WithField("value", value.String()))
	}
	if decimals < 0 {
		return nil, errs.New("numeric.scale", errs.CodeInvalid,
			errs.WithMessage("decimals must not be negative"))
	}
	return value.Shift(decimals).Floor().BigInt(), nil
}

// FormatUnits renders an integer count of 10^-decimals units as a decimal string.
// When units is nil the empty string is returned.
func FormatUnits(units *big.Int, decimals int32) string {
	if units == nil {
		return ""
	}
	return decimal.NewFromBigInt(units, -decimals).String()
}
