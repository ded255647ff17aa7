package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/clarofin/statements/internal/statement"
	"github.com/clarofin/statements/pkg/money"
)

const (
	sheetTransactions = "Transactions"
	sheetCategories   = "Categories"
)

// WriteXLSX writes the statement as a workbook with a transactions sheet
// and a category summary sheet.
func WriteXLSX(w io.Writer, st *statement.ProcessedStatement, currencyCode string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeTransactionsSheet(f, st, currencyCode); err != nil {
		return err
	}
	if err := writeCategoriesSheet(f, st, currencyCode); err != nil {
		return err
	}

	// Drop the default sheet created by excelize.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeTransactionsSheet(f *excelize.File, st *statement.ProcessedStatement, currencyCode string) error {
	if _, err := f.NewSheet(sheetTransactions); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	headers := []string{"Date", "Description", "Amount", "Direction", "Balance", "Category"}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetTransactions, cell, h); err != nil {
			return fmt.Errorf("set header: %w", err)
		}
	}

	for i, tx := range st.Transactions {
		rowIdx := i + 2
		balance := ""
		if tx.Balance != nil {
			balance = money.FromDecimal(*tx.Balance, currencyCode).Display()
		}
		values := []any{
			tx.Date.Format("2006-01-02"),
			tx.Description,
			money.FromDecimal(tx.Amount, currencyCode).Display(),
			string(tx.Direction),
			balance,
			tx.Category,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowIdx)
			if err := f.SetCellValue(sheetTransactions, cell, v); err != nil {
				return fmt.Errorf("set cell: %w", err)
			}
		}
	}
	return nil
}

func writeCategoriesSheet(f *excelize.File, st *statement.ProcessedStatement, currencyCode string) error {
	if _, err := f.NewSheet(sheetCategories); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	headers := []string{"Category", "Amount", "Transactions", "Percentage"}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetCategories, cell, h); err != nil {
			return fmt.Errorf("set header: %w", err)
		}
	}

	for i, cat := range st.Categories {
		rowIdx := i + 2
		values := []any{
			cat.DisplayName,
			money.FromDecimal(cat.Amount, currencyCode).Display(),
			cat.Count,
			fmt.Sprintf("%.2f%%", cat.Percentage),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowIdx)
			if err := f.SetCellValue(sheetCategories, cell, v); err != nil {
				return fmt.Errorf("set cell: %w", err)
			}
		}
	}

	summaryRow := len(st.Categories) + 3
	totals := [][2]any{
		{"Total income", money.FromDecimal(st.TotalIncome, currencyCode).Display()},
		{"Total expenses", money.FromDecimal(st.TotalExpenses, currencyCode).Display()},
		{"Ending balance", money.FromDecimal(st.EndingBalance, currencyCode).Display()},
	}
	for i, pair := range totals {
		labelCell, _ := excelize.CoordinatesToCellName(1, summaryRow+i)
		valueCell, _ := excelize.CoordinatesToCellName(2, summaryRow+i)
		if err := f.SetCellValue(sheetCategories, labelCell, pair[0]); err != nil {
			return fmt.Errorf("set summary label: %w", err)
		}
		if err := f.SetCellValue(sheetCategories, valueCell, pair[1]); err != nil {
			return fmt.Errorf("set summary value: %w", err)
		}
	}
	return nil
}
