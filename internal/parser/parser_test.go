package parser

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarofin/statements/internal/statement"
)

func rawLines(texts ...string) []statement.RawLine {
	lines := make([]statement.RawLine, 0, len(texts))
	for i, text := range texts {
		lines = append(lines, statement.RawLine{Page: 1, Line: i + 1, Text: text})
	}
	return lines
}

func TestParse_BasicRows(t *testing.T) {
	lines := rawLines(
		"15/01/2024 CONTINENTE LISBOA 45.20",
		"16/01/2024 SALARY ACME CORP 2,500.00 CR",
		"17/01/2024 UBER TRIP -12.50",
	)

	result, err := Parse(lines, Config{})
	require.NoError(t, err)
	require.Len(t, result.Transactions, 3)

	first := result.Transactions[0]
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, "CONTINENTE LISBOA", first.Description)
	assert.True(t, first.Amount.Equal(decimal.RequireFromString("-45.20")), "got %s", first.Amount)
	assert.Equal(t, statement.Debit, first.Direction)

	second := result.Transactions[1]
	assert.Equal(t, statement.Credit, second.Direction)
	assert.True(t, second.Amount.Equal(decimal.RequireFromString("2500.00")), "got %s", second.Amount)

	third := result.Transactions[2]
	assert.Equal(t, statement.Debit, third.Direction)
	assert.True(t, third.Amount.Equal(decimal.RequireFromString("-12.50")))
}

func TestParse_DirectionResolution(t *testing.T) {
	tests := []struct {
		name string
		line string
		want statement.Direction
	}{
		{"CR marker", "15/01/2024 DEPOSIT 100.00 CR", statement.Credit},
		{"DR marker", "15/01/2024 FEE 5.00 DR", statement.Debit},
		{"inline CR suffix", "15/01/2024 REFUND 20.00CR", statement.Credit},
		{"parentheses", "15/01/2024 PURCHASE (33.10)", statement.Debit},
		{"minus sign", "15/01/2024 PURCHASE -33.10", statement.Debit},
		{"trailing minus", "15/01/2024 PURCHASE 33.10-", statement.Debit},
		{"no indicator defaults to debit", "15/01/2024 SOMETHING 33.10", statement.Debit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Parse(rawLines(tt.line), Config{})
			require.NoError(t, err)
			require.Len(t, result.Transactions, 1)
			assert.Equal(t, tt.want, result.Transactions[0].Direction)
		})
	}
}

func TestParse_BalanceDeltaDirection(t *testing.T) {
	lines := rawLines(
		"01/02/2024 CARD PURCHASE 50.00 1,050.00",
		"02/02/2024 INCOMING TRANSFER 500.00 1,550.00",
		"03/02/2024 RENT PAYMENT 700.00 850.00",
	)

	result, err := Parse(lines, Config{})
	require.NoError(t, err)
	require.Len(t, result.Transactions, 3)

	assert.Equal(t, statement.Debit, result.Transactions[0].Direction)
	assert.Equal(t, statement.Credit, result.Transactions[1].Direction, "rising balance means credit")
	assert.Equal(t, statement.Debit, result.Transactions[2].Direction, "falling balance means debit")

	require.NotNil(t, result.Transactions[2].Balance)
	assert.True(t, result.Transactions[2].Balance.Equal(decimal.RequireFromString("850.00")))
}

func TestParse_EuropeanDialect(t *testing.T) {
	lines := rawLines(
		"15.01.2024 MERCADO CENTRAL 1.234,56",
		"16.01.2024 FARMACIA SILVA 45,20",
	)

	result, err := Parse(lines, Config{})
	require.NoError(t, err)
	require.Len(t, result.Transactions, 2)
	assert.True(t, result.Transactions[0].Amount.Equal(decimal.RequireFromString("-1234.56")),
		"got %s", result.Transactions[0].Amount)
	assert.True(t, result.Transactions[1].Amount.Equal(decimal.RequireFromString("-45.20")))
}

func TestParse_ExplicitEuropeanOverride(t *testing.T) {
	european := true
	lines := rawLines("15/01/2024 LOJA DAS MEIAS 10,50")

	result, err := Parse(lines, Config{EuropeanFormat: &european})
	require.NoError(t, err)
	assert.True(t, result.Transactions[0].Amount.Equal(decimal.RequireFromString("-10.50")))
}

func TestParse_ReferenceExtraction(t *testing.T) {
	result, err := Parse(rawLines("15/01/2024 WIRE TRANSFER REF AB12345 250.00 CR"), Config{})
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, "WIRE TRANSFER", result.Transactions[0].Description)
	assert.Equal(t, "AB12345", result.Transactions[0].Reference)
}

func TestParse_SkipsAndMetadata(t *testing.T) {
	lines := rawLines(
		"Banco Exemplo S.A.",
		"Account Number: 1234-5678-90",
		"Statement Period: 01/01/2024 to 31/01/2024",
		"Date Description Amount Balance",
		"15/01/2024 CONTINENTE 45.20",
		"17/01/2024 garbled row with no amount",
	)

	result, err := Parse(lines, Config{})
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)

	// Only the date-led unparseable line counts as skipped.
	assert.Equal(t, 1, result.SkippedLines)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "line 6")

	assert.Equal(t, "1234-5678-90", result.Account.AccountNumber)
	assert.Equal(t, "Banco Exemplo S.A.", result.Account.BankName)
	require.NotNil(t, result.Account.PeriodStart)
	require.NotNil(t, result.Account.PeriodEnd)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *result.Account.PeriodStart)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), *result.Account.PeriodEnd)
}

func TestParse_PeriodFallsBackToDateRange(t *testing.T) {
	lines := rawLines(
		"20/01/2024 SECOND 10.00",
		"05/01/2024 FIRST 10.00",
		"28/01/2024 THIRD 10.00",
	)

	result, err := Parse(lines, Config{})
	require.NoError(t, err)
	require.NotNil(t, result.Account.PeriodStart)
	require.NotNil(t, result.Account.PeriodEnd)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), *result.Account.PeriodStart)
	assert.Equal(t, time.Date(2024, 1, 28, 0, 0, 0, 0, time.UTC), *result.Account.PeriodEnd)
}

func TestParse_NoTransactions(t *testing.T) {
	lines := rawLines(
		"Banco Exemplo S.A.",
		"Statement Period: 01/01/2024 to 31/01/2024",
		"thank you for banking with us",
	)

	_, err := Parse(lines, Config{})
	assert.ErrorIs(t, err, ErrNoTransactions)
}

func TestParse_Deterministic(t *testing.T) {
	lines := rawLines(
		"15/01/2024 CONTINENTE LISBOA 45.20",
		"16/01/2024 SALARY ACME CORP 2,500.00 CR",
	)

	first, err := Parse(lines, Config{})
	require.NoError(t, err)
	second, err := Parse(lines, Config{})
	require.NoError(t, err)

	require.Equal(t, len(first.Transactions), len(second.Transactions))
	for i := range first.Transactions {
		assert.Equal(t, first.Transactions[i].ID, second.Transactions[i].ID)
	}

	// Identical rows at different positions must still get distinct ids.
	dup, err := Parse(rawLines(
		"15/01/2024 COFFEE SHOP 3.50",
		"15/01/2024 COFFEE SHOP 3.50",
	), Config{})
	require.NoError(t, err)
	assert.NotEqual(t, dup.Transactions[0].ID, dup.Transactions[1].ID)
}

func TestParse_RoundTripManyRows(t *testing.T) {
	const rows = 250
	merchants := []string{"CONTINENTE", "PINGO DOCE", "GALP ENERGIA", "FARMACIA CENTRAL", "LIVRARIA LELO"}

	var lines []statement.RawLine
	for i := 0; i < rows; i++ {
		date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i%28)
		amount := decimal.NewFromInt(int64(i + 1)).Add(decimal.RequireFromString("0.25"))
		lines = append(lines, statement.RawLine{
			Page: i/40 + 1,
			Line: i%40 + 1,
			Text: fmt.Sprintf("%s %s STORE %d %s",
				date.Format("02/01/2006"), merchants[i%len(merchants)], i, amount.StringFixed(2)),
		})
	}

	result, err := Parse(lines, Config{})
	require.NoError(t, err)
	require.Len(t, result.Transactions, rows)
	assert.Zero(t, result.SkippedLines)

	for i, tx := range result.Transactions {
		wantAmount := decimal.NewFromInt(int64(i + 1)).Add(decimal.RequireFromString("0.25")).Neg()
		assert.True(t, tx.Amount.Equal(wantAmount), "row %d: got %s want %s", i, tx.Amount, wantAmount)
		assert.Equal(t, statement.Debit, tx.Direction)
	}
}

func TestParse_MixedDocumentScenario(t *testing.T) {
	// A realistic page mix: header noise, a block of parseable rows, and a
	// handful of date-led rows the parser cannot read.
	var lines []statement.RawLine
	addLine := func(text string) {
		lines = append(lines, statement.RawLine{Page: 1, Line: len(lines) + 1, Text: text})
	}

	for i := 0; i < 750; i++ {
		addLine(fmt.Sprintf("marketing footer %d - visit our branches", i))
	}
	for i := 0; i < 200; i++ {
		date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i%30)
		addLine(fmt.Sprintf("%s MERCHANT %d 19.99", date.Format("02/01/2006"), i))
	}
	for i := 0; i < 50; i++ {
		addLine(fmt.Sprintf("%02d/06/2024 truncated row without amount", i%28+1))
	}

	result, err := Parse(lines, Config{})
	require.NoError(t, err)
	assert.Len(t, result.Transactions, 200)
	assert.Equal(t, 50, result.SkippedLines)
	assert.Len(t, result.Warnings, maxRowWarnings, "warnings are capped")
}

func TestParseAmountToken(t *testing.T) {
	tests := []struct {
		token    string
		european bool
		want     string
		negative bool
		marker   string
		ok       bool
	}{
		{"1,234.56", false, "1234.56", false, "", true},
		{"1.234,56", true, "1234.56", false, "", true},
		{"$99.95", false, "99.95", false, "", true},
		{"€45,20", true, "45.20", false, "", true},
		{"(12.50)", false, "12.50", true, "", true},
		{"-3.10", false, "3.10", true, "", true},
		{"250.00CR", false, "250.00", false, "CR", true},
		{"250.00DB", false, "250.00", false, "DR", true},
		{"1234", false, "", false, "", false},
		{"ABC", false, "", false, "", false},
		{"12.34.56.78", false, "", false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			value, negative, marker, ok := parseAmountToken(tt.token, tt.european)
			if !tt.ok {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.True(t, value.Equal(decimal.RequireFromString(tt.want)), "got %s", value)
			assert.Equal(t, tt.negative, negative)
			assert.Equal(t, tt.marker, marker)
		})
	}
}

func TestProbeEuropeanFormat(t *testing.T) {
	european := probeEuropeanFormat(rawLines(
		"15.01.2024 LOJA 1.234,56",
		"16.01.2024 CAFE 3,50",
	))
	assert.True(t, european)

	us := probeEuropeanFormat(rawLines(
		"01/15/2024 STORE 1,234.56",
		"01/16/2024 COFFEE 3.50",
	))
	assert.False(t, us)
}
