// Package statement defines the domain model shared by every pipeline stage:
// raw extracted lines, parsed transactions, category summaries, anomalies,
// and the final ProcessedStatement handed to persistence and presentation.
package statement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction indicates whether money left or entered the account.
type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// AssignmentSource records how a category was chosen for a transaction.
type AssignmentSource string

const (
	SourceRule          AssignmentSource = "rule"
	SourceAI            AssignmentSource = "ai"
	SourceManual        AssignmentSource = "manual"
	SourceUncategorized AssignmentSource = "uncategorized"
)

// Uncategorized is the fallback category label for transactions no rule matched.
const Uncategorized = "uncategorized"

// RawLine is one line of text extracted from a statement document.
// It only lives between the extractor and the parser.
type RawLine struct {
	Page int    // 1-based page number
	Line int    // reading order within the page, 1-based
	Text string
}

// Transaction is a single statement row. The amount is signed: credits are
// positive, debits negative. Exact decimal arithmetic throughout - currency
// values never touch binary floating point.
type Transaction struct {
	ID          uuid.UUID        `json:"id"`
	Date        time.Time        `json:"date"` // calendar date, midnight UTC
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Direction   Direction        `json:"direction"`
	Balance     *decimal.Decimal `json:"balance,omitempty"` // running balance, if the statement prints one
	Reference   string           `json:"reference,omitempty"`
	Category    string           `json:"category,omitempty"`
}

// Magnitude returns the absolute transaction amount.
func (t Transaction) Magnitude() decimal.Decimal {
	return t.Amount.Abs()
}

// CategoryAssignment maps one transaction to a category with a confidence
// score and the source that produced the assignment.
type CategoryAssignment struct {
	TransactionID uuid.UUID        `json:"transaction_id"`
	Category      string           `json:"category"`
	Confidence    float64          `json:"confidence"` // [0,1]
	Source        AssignmentSource `json:"source"`
}

// CategoryData summarizes the spending of one category. Percentage is of
// total expenses, already guarded against division by zero upstream.
type CategoryData struct {
	Category     string          `json:"category"`
	DisplayName  string          `json:"display_name"`
	Amount       decimal.Decimal `json:"amount"` // positive expense total
	Count        int             `json:"count"`
	Percentage   float64         `json:"percentage"`
	Color        string          `json:"color"`
	Transactions []uuid.UUID     `json:"transactions"`
}

// AnomalyType identifies the heuristic that flagged a transaction.
type AnomalyType string

const (
	AnomalyUnusualAmount AnomalyType = "unusual_amount"
	AnomalyDuplicate     AnomalyType = "duplicate"
	AnomalyNewMerchant   AnomalyType = "new_merchant"
)

// Severity is the anomaly impact tier.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank returns a sortable weight for the severity (higher = more severe).
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Anomaly flags a transaction that deviates from the user's typical pattern.
type Anomaly struct {
	ID            uuid.UUID   `json:"id"`
	Type          AnomalyType `json:"type"`
	Severity      Severity    `json:"severity"`
	Confidence    float64     `json:"confidence"` // [0,1]
	TransactionID uuid.UUID   `json:"transaction_id"`
	DetectedAt    time.Time   `json:"detected_at"`
}

// AccountMeta carries the account details recognized in the statement header.
type AccountMeta struct {
	AccountNumber string     `json:"account_number,omitempty"`
	BankName      string     `json:"bank_name,omitempty"`
	PeriodStart   *time.Time `json:"period_start,omitempty"`
	PeriodEnd     *time.Time `json:"period_end,omitempty"`
}

// ProcessedStatement is the sole externally visible artifact of a pipeline
// run. It is immutable once assembled; persistence copies it without
// further mutation.
type ProcessedStatement struct {
	ID            uuid.UUID          `json:"id"`
	Transactions  []Transaction      `json:"transactions"`
	TotalIncome   decimal.Decimal    `json:"total_income"`
	TotalExpenses decimal.Decimal    `json:"total_expenses"`
	EndingBalance decimal.Decimal    `json:"ending_balance"`
	Categories    []CategoryData     `json:"categories"`
	Anomalies     []Anomaly          `json:"anomalies"`
	Account       AccountMeta        `json:"account"`
	ProcessedAt   time.Time          `json:"processed_at"`
}
