// Package money bridges the pipeline's exact decimal amounts and
// currency-aware minor units (the Fowler Money pattern). Persistence stores
// minor units; exports format through the currency's display rules.
package money

import (
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common ISO-4217 currency codes.
const (
	USD = "USD"
	EUR = "EUR"
	GBP = "GBP"
)

// Money is a monetary value with currency, wrapping go-money for safe
// arithmetic and display.
type Money struct {
	m *money.Money
}

// New creates Money from minor units (cents) and a currency code.
func New(minor int64, currencyCode string) *Money {
	return &Money{m: money.New(minor, currencyCode)}
}

// FromDecimal converts an exact decimal amount into Money, rounding to the
// currency's minor unit.
func FromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		currency = money.GetCurrency(USD)
	}
	minor := amount.Mul(decimal.New(1, int32(currency.Fraction))).Round(0).IntPart()
	return New(minor, currency.Code)
}

// Decimal converts back to an exact decimal amount in major units.
func (m *Money) Decimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	return decimal.New(m.m.Amount(), -int32(m.m.Currency().Fraction))
}

// Minor returns the amount in minor units.
func (m *Money) Minor() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 code.
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// IsNegative reports whether the amount is below zero.
func (m *Money) IsNegative() bool {
	return m != nil && m.m != nil && m.m.IsNegative()
}

// Add sums two values. Returns an error if currencies don't match.
func (m *Money) Add(other *Money) (*Money, error) {
	if m == nil || m.m == nil {
		return other, nil
	}
	if other == nil || other.m == nil {
		return m, nil
	}
	sum, err := m.m.Add(other.m)
	if err != nil {
		return nil, fmt.Errorf("add money: %w", err)
	}
	return &Money{m: sum}, nil
}

// Display formats the value with its currency symbol, e.g. "-€1,234.56".
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Display()
}
