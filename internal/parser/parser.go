// Package parser turns extracted statement lines into typed transactions.
// It recognizes date / description / amount / balance row patterns across
// US and European number dialects and infers transaction direction from
// signs, explicit debit/credit markers, or running balance deltas.
package parser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clarofin/statements/internal/statement"
)

// ErrNoTransactions indicates the entire document yielded zero rows.
var ErrNoTransactions = errors.New("no transaction rows found")

// txNamespace seeds deterministic transaction ids. Re-parsing identical
// input must yield identical ids, so ids are derived from row content
// rather than generated randomly.
var txNamespace = uuid.MustParse("9f2c1d34-6a0b-4c5e-8e21-b6d4f0a7c3e9")

// Config tunes row recognition.
type Config struct {
	// DateFormat is an explicit Go layout tried before the flexible set.
	DateFormat string
	// EuropeanFormat forces the amount dialect (1.234,56) when set.
	// When nil the dialect is probed from the document's amount tokens.
	EuropeanFormat *bool
}

// Result is the parser output: the ordered transactions plus everything a
// caller needs for diagnostics. Unparseable lines are skipped and counted,
// never fatal.
type Result struct {
	Transactions []statement.Transaction
	Account      statement.AccountMeta
	SkippedLines int
	Warnings     []string
}

const maxRowWarnings = 20

// Parse recognizes transaction rows in the extracted lines.
func Parse(lines []statement.RawLine, cfg Config) (*Result, error) {
	european := false
	if cfg.EuropeanFormat != nil {
		european = *cfg.EuropeanFormat
	} else {
		european = probeEuropeanFormat(lines)
	}

	result := &Result{}
	var prevBalance *decimal.Decimal

	for _, line := range lines {
		row, ok := parseRow(line.Text, cfg.DateFormat, european)
		if !ok {
			if looksLikeRow(line.Text, cfg.DateFormat) {
				result.SkippedLines++
				if len(result.Warnings) < maxRowWarnings {
					result.Warnings = append(result.Warnings,
						fmt.Sprintf("page %d line %d: unparseable row: %s", line.Page, line.Line, line.Text))
				}
			} else {
				scanMetadata(line.Text, &result.Account)
			}
			continue
		}

		tx := row.toTransaction(line, prevBalance)
		if tx.Balance != nil {
			prevBalance = tx.Balance
		}
		result.Transactions = append(result.Transactions, tx)
	}

	if len(result.Transactions) == 0 {
		return nil, ErrNoTransactions
	}

	fillPeriod(&result.Account, result.Transactions)
	return result, nil
}

// row is an intermediate parsed transaction row.
type row struct {
	date        time.Time
	description string
	reference   string
	amount      decimal.Decimal // positive magnitude
	balance     *decimal.Decimal
	marker      string // "DR", "CR" or ""
	negative    bool   // explicit minus sign or parentheses on the amount
}

// toTransaction resolves the direction and produces the final transaction.
// Direction precedence: explicit marker, then sign, then running balance
// delta, then debit (statement rows without any indicator are almost
// always charges).
func (r *row) toTransaction(line statement.RawLine, prevBalance *decimal.Decimal) statement.Transaction {
	direction := statement.Debit
	switch {
	case r.marker == "CR":
		direction = statement.Credit
	case r.marker == "DR" || r.marker == "DB":
		direction = statement.Debit
	case r.negative:
		direction = statement.Debit
	case r.balance != nil && prevBalance != nil:
		if r.balance.GreaterThan(*prevBalance) {
			direction = statement.Credit
		}
	}

	amount := r.amount
	if direction == statement.Debit {
		amount = amount.Neg()
	}

	key := fmt.Sprintf("%d|%d|%s|%s|%s", line.Page, line.Line,
		r.date.Format("2006-01-02"), r.description, amount.String())

	return statement.Transaction{
		ID:          uuid.NewSHA1(txNamespace, []byte(key)),
		Date:        r.date,
		Description: r.description,
		Amount:      amount,
		Direction:   direction,
		Balance:     r.balance,
		Reference:   r.reference,
	}
}

// parseRow attempts to read a line as "date description amount [balance]".
func parseRow(text, dateFormat string, european bool) (*row, bool) {
	tokens := strings.Fields(text)
	if len(tokens) < 3 {
		return nil, false
	}

	date, consumed, ok := parseLeadingDate(tokens, dateFormat)
	if !ok {
		return nil, false
	}
	rest := tokens[consumed:]
	if len(rest) < 2 {
		return nil, false
	}

	r := &row{date: date}

	// Scan monetary tokens from the right. One amount, or amount + balance.
	money := 0
	for money < 2 && len(rest) > 1 {
		last := rest[len(rest)-1]
		if marker := directionMarker(last); marker != "" && money == 0 && len(rest) > 2 {
			// Marker token after the amounts, e.g. "12.50 DR".
			r.marker = marker
			rest = rest[:len(rest)-1]
			continue
		}
		value, negative, marker, ok := parseAmountToken(last, european)
		if !ok {
			break
		}
		if money == 0 {
			// Rightmost monetary token: provisionally the amount; becomes
			// the balance if another monetary token precedes it.
			r.amount = value
			r.negative = negative
			if marker != "" {
				r.marker = marker
			}
		} else {
			bal := r.amount
			if r.negative {
				bal = bal.Neg()
			}
			r.balance = &bal
			r.amount = value
			r.negative = negative
			if marker != "" {
				r.marker = marker
			}
		}
		money++
		rest = rest[:len(rest)-1]
	}
	if money == 0 {
		return nil, false
	}

	r.amount = r.amount.Abs()
	desc, ref := extractReference(rest)
	if desc == "" {
		return nil, false
	}
	r.description = desc
	r.reference = ref
	return r, true
}

// looksLikeRow reports whether a line starts with a date token, meaning it
// was probably meant to be a transaction row and should count as skipped.
func looksLikeRow(text, dateFormat string) bool {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return false
	}
	_, _, ok := parseLeadingDate(tokens, dateFormat)
	return ok
}

// directionMarker recognizes standalone debit/credit indicator tokens.
func directionMarker(token string) string {
	switch strings.ToUpper(strings.Trim(token, ".")) {
	case "DR", "DB", "DEBIT":
		return "DR"
	case "CR", "CREDIT":
		return "CR"
	}
	return ""
}

// extractReference pulls a "REF <code>" pair out of the description tokens.
func extractReference(tokens []string) (string, string) {
	for i, tok := range tokens {
		upper := strings.ToUpper(strings.TrimSuffix(tok, ":"))
		if (upper == "REF" || upper == "REFERENCE") && i+1 < len(tokens) {
			ref := tokens[i+1]
			desc := append(append([]string{}, tokens[:i]...), tokens[i+2:]...)
			return cleanDescription(strings.Join(desc, " ")), ref
		}
	}
	return cleanDescription(strings.Join(tokens, " ")), ""
}

// cleanDescription collapses whitespace in a description span.
func cleanDescription(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// fillPeriod defaults the statement period to the transaction date range
// when the header did not declare one.
func fillPeriod(meta *statement.AccountMeta, txs []statement.Transaction) {
	if meta.PeriodStart != nil && meta.PeriodEnd != nil {
		return
	}
	start, end := txs[0].Date, txs[0].Date
	for _, tx := range txs[1:] {
		if tx.Date.Before(start) {
			start = tx.Date
		}
		if tx.Date.After(end) {
			end = tx.Date
		}
	}
	if meta.PeriodStart == nil {
		meta.PeriodStart = &start
	}
	if meta.PeriodEnd == nil {
		meta.PeriodEnd = &end
	}
}
