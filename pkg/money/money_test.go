package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDecimalRoundTrip(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		minor    int64
	}{
		{"45.20", EUR, 4520},
		{"-12.50", USD, -1250},
		{"0.005", USD, 1}, // rounds half up to the minor unit
		{"1234.56", GBP, 123456},
		{"0", EUR, 0},
	}

	for _, tt := range tests {
		t.Run(tt.amount+" "+tt.currency, func(t *testing.T) {
			m := FromDecimal(decimal.RequireFromString(tt.amount), tt.currency)
			assert.Equal(t, tt.minor, m.Minor())
			assert.Equal(t, tt.currency, m.Currency())
		})
	}
}

func TestDecimalConversion(t *testing.T) {
	m := New(4520, EUR)
	assert.True(t, m.Decimal().Equal(decimal.RequireFromString("45.20")))

	neg := New(-1250, USD)
	assert.True(t, neg.IsNegative())
	assert.True(t, neg.Decimal().Equal(decimal.RequireFromString("-12.50")))
}

func TestUnknownCurrencyFallsBackToUSD(t *testing.T) {
	m := FromDecimal(decimal.RequireFromString("10.00"), "ZZZ")
	assert.Equal(t, USD, m.Currency())
	assert.Equal(t, int64(1000), m.Minor())
}

func TestAdd(t *testing.T) {
	a := New(1000, EUR)
	b := New(250, EUR)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), sum.Minor())

	_, err = a.Add(New(100, USD))
	assert.Error(t, err, "currency mismatch")
}

func TestNilSafety(t *testing.T) {
	var m *Money
	assert.Equal(t, int64(0), m.Minor())
	assert.Equal(t, "", m.Currency())
	assert.False(t, m.IsNegative())
	assert.True(t, m.Decimal().IsZero())
	assert.Equal(t, "", m.Display())
}
