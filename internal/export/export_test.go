package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/clarofin/statements/internal/statement"
)

func exportFixture() *statement.ProcessedStatement {
	balance := decimal.RequireFromString("954.80")
	return &statement.ProcessedStatement{
		ID: uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		Transactions: []statement.Transaction{
			{
				ID:          uuid.MustParse("11111111-1111-1111-1111-111111111111"),
				Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
				Description: "CONTINENTE LISBOA",
				Amount:      decimal.RequireFromString("-45.20"),
				Direction:   statement.Debit,
				Balance:     &balance,
				Reference:   "AB123",
				Category:    "groceries",
			},
			{
				ID:          uuid.MustParse("33333333-3333-3333-3333-333333333333"),
				Date:        time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
				Description: "SALARY ACME",
				Amount:      decimal.RequireFromString("2500.00"),
				Direction:   statement.Credit,
				Category:    "income",
			},
		},
		TotalIncome:   decimal.RequireFromString("2500.00"),
		TotalExpenses: decimal.RequireFromString("45.20"),
		EndingBalance: decimal.RequireFromString("954.80"),
		Categories: []statement.CategoryData{
			{
				Category:    "groceries",
				DisplayName: "Groceries",
				Amount:      decimal.RequireFromString("45.20"),
				Count:       1,
				Percentage:  100,
				Color:       "#4caf50",
			},
		},
		ProcessedAt: time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, exportFixture()))

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, "header plus two rows")

	assert.Contains(t, lines[0], "date")
	assert.Contains(t, lines[0], "category")
	assert.Contains(t, out, "CONTINENTE LISBOA")
	assert.Contains(t, out, "-45.20")
	assert.Contains(t, out, "954.80")
	assert.Contains(t, out, "AB123")
	assert.Contains(t, out, "2024-01-16")
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, exportFixture(), "EUR"))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Transactions", "Categories"}, f.GetSheetList())

	rows, err := f.GetRows("Transactions")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Date", rows[0][0])
	assert.Equal(t, "CONTINENTE LISBOA", rows[1][1])

	catRows, err := f.GetRows("Categories")
	require.NoError(t, err)
	assert.Equal(t, "Groceries", catRows[1][0])
}
