// Package aggregate reduces a categorized transaction sequence into the
// summary statistics the dashboard renders directly: income/expense totals,
// per-category breakdowns with percentages, and the ending balance.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/clarofin/statements/internal/categorizer"
	"github.com/clarofin/statements/internal/statement"
)

// Summary is the aggregator output. All currency values are exact decimals;
// percentages are of total expenses and already guarded against a
// zero-expense statement.
type Summary struct {
	TotalIncome   decimal.Decimal
	TotalExpenses decimal.Decimal // positive
	EndingBalance decimal.Decimal
	Categories    []statement.CategoryData
	// Reconciled is true when a starting balance was known and
	// start + income - expenses matched the ending balance.
	Reconciled bool
	// ReconciliationChecked is false when no starting balance was available,
	// in which case Reconciled is meaningless rather than silently wrong.
	ReconciliationChecked bool
}

var hundred = decimal.NewFromInt(100)

// Summarize computes the statement summary. startingBalance may be nil; the
// ending balance then comes from the last printed running balance, or a
// plain running sum from zero.
func Summarize(txs []statement.Transaction, tax categorizer.Taxonomy, startingBalance *decimal.Decimal) Summary {
	s := Summary{
		TotalIncome:   decimal.Zero,
		TotalExpenses: decimal.Zero,
	}

	byCategory := make(map[string]*statement.CategoryData)
	var order []string

	for _, tx := range txs {
		if tx.Direction == statement.Credit {
			s.TotalIncome = s.TotalIncome.Add(tx.Magnitude())
			continue
		}

		s.TotalExpenses = s.TotalExpenses.Add(tx.Magnitude())

		category := tx.Category
		if category == "" {
			category = statement.Uncategorized
		}
		data, ok := byCategory[category]
		if !ok {
			info := tax.Info(category)
			data = &statement.CategoryData{
				Category:    category,
				DisplayName: info.DisplayName,
				Color:       info.Color,
				Amount:      decimal.Zero,
			}
			byCategory[category] = data
			order = append(order, category)
		}
		data.Amount = data.Amount.Add(tx.Magnitude())
		data.Count++
		data.Transactions = append(data.Transactions, tx.ID)
	}

	for _, category := range order {
		data := byCategory[category]
		if s.TotalExpenses.IsPositive() {
			pct, _ := data.Amount.Div(s.TotalExpenses).Mul(hundred).Round(2).Float64()
			data.Percentage = pct
		}
		s.Categories = append(s.Categories, *data)
	}
	sort.SliceStable(s.Categories, func(i, j int) bool {
		if !s.Categories[i].Amount.Equal(s.Categories[j].Amount) {
			return s.Categories[i].Amount.GreaterThan(s.Categories[j].Amount)
		}
		return s.Categories[i].Category < s.Categories[j].Category
	})

	s.EndingBalance = endingBalance(txs, startingBalance)

	if startingBalance != nil {
		expected := startingBalance.Add(s.TotalIncome).Sub(s.TotalExpenses)
		s.Reconciled = expected.Equal(s.EndingBalance)
		s.ReconciliationChecked = true
	}

	return s
}

// endingBalance prefers the last transaction's printed running balance;
// otherwise it runs the signed sum from the declared starting balance (or
// zero). Intermediate printed balances are not trusted as the ending
// balance: any transaction after them would be left out.
func endingBalance(txs []statement.Transaction, startingBalance *decimal.Decimal) decimal.Decimal {
	if n := len(txs); n > 0 && txs[n-1].Balance != nil {
		return *txs[n-1].Balance
	}

	balance := decimal.Zero
	if startingBalance != nil {
		balance = *startingBalance
	}
	for _, tx := range txs {
		balance = balance.Add(tx.Amount)
	}
	return balance
}
