// Package money holds the monetary arithmetic used across the transaction
// engine. All amounts are exact decimals; float64 never appears in a price
// calculation. Results are rounded to two decimal places, half up, at the
// point where they become persisted figures.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Zero is the lowercase zero amount used to initialise totals.
func Zero() decimal.Decimal {
	return decimal.Zero
}

// Round2 rounds to 2 decimal places, half up. decimal.Round is
// half-away-from-zero; amounts here are never negative so the two agree.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineTotal computes unit price times quantity for one cart line.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return Round2(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
}

// LineProfit computes (unit price - unit cost) times quantity for one cart line.
func LineProfit(unitPrice, unitCost decimal.Decimal, quantity int) decimal.Decimal {
	return Round2(unitPrice.Sub(unitCost).Mul(decimal.NewFromInt(int64(quantity))))
}

// Percent computes pct percent of base, rounded. Used for percent discounts
// and for tax, both of which are defined against an already-rounded base.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return Round2(base.Mul(pct).Div(hundred))
}

// Parse decodes a decimal amount from user input. Empty input is zero.
func Parse(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	return d, nil
}

// ParseNonNegative is Parse plus a sign check, for prices and discounts.
func ParseNonNegative(raw string) (decimal.Decimal, error) {
	d, err := Parse(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %q must not be negative", raw)
	}
	return d, nil
}
