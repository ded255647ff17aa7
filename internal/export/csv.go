// Package export renders a ProcessedStatement as downloadable CSV or XLSX,
// the formats the dashboard offers for saved analyses.
package export

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/clarofin/statements/internal/statement"
)

// transactionRow is the CSV schema for one transaction.
type transactionRow struct {
	Date        string `csv:"date"`
	Description string `csv:"description"`
	Amount      string `csv:"amount"`
	Direction   string `csv:"direction"`
	Balance     string `csv:"balance"`
	Reference   string `csv:"reference"`
	Category    string `csv:"category"`
}

// WriteCSV writes the statement's transactions as CSV.
func WriteCSV(w io.Writer, st *statement.ProcessedStatement) error {
	rows := make([]transactionRow, 0, len(st.Transactions))
	for _, tx := range st.Transactions {
		row := transactionRow{
			Date:        tx.Date.Format("2006-01-02"),
			Description: tx.Description,
			Amount:      tx.Amount.StringFixed(2),
			Direction:   string(tx.Direction),
			Reference:   tx.Reference,
			Category:    tx.Category,
		}
		if tx.Balance != nil {
			row.Balance = tx.Balance.StringFixed(2)
		}
		rows = append(rows, row)
	}

	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
