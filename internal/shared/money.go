package shared

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundingMode selects how amounts are rounded to cents.
type RoundingMode string

const (
	// RoundHalfUp rounds halves away from zero, as printed invoices do.
	RoundHalfUp RoundingMode = "half_up"
	// RoundHalfEven rounds halves to the nearest even cent.
	RoundHalfEven RoundingMode = "half_even"
)

// ParseRoundingMode validates a configured rounding mode. Empty means half up.
func ParseRoundingMode(raw string) (RoundingMode, error) {
	switch mode := RoundingMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return RoundHalfUp, nil
	case RoundHalfUp, RoundHalfEven:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown rounding mode %q: %w", raw, ErrValidation)
	}
}

// Round2 rounds d to two decimal places.
func (m RoundingMode) Round2(d decimal.Decimal) decimal.Decimal {
	if m == RoundHalfEven {
		return d.RoundBank(2)
	}
	return d.Round(2)
}

// Cents is a convenience for building fixed two decimal amounts in code and tests.
func Cents(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}
