// Package store persists assembled statements and serves the historical
// baseline that feeds anomaly detection on later uploads.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clarofin/statements/internal/anomaly"
	"github.com/clarofin/statements/internal/statement"
)

// ErrNotFound is returned when a statement id has no stored row.
var ErrNotFound = errors.New("statement not found")

// SavedStatement is the persistence receipt for one stored statement.
type SavedStatement struct {
	ID      uuid.UUID `json:"id"`
	SavedAt time.Time `json:"saved_at"`
}

// StatementSummary is the listing projection: header fields without the
// transaction detail.
type StatementSummary struct {
	ID               uuid.UUID  `json:"id"`
	AccountNumber    string     `json:"account_number,omitempty"`
	BankName         string     `json:"bank_name,omitempty"`
	PeriodStart      *time.Time `json:"period_start,omitempty"`
	PeriodEnd        *time.Time `json:"period_end,omitempty"`
	TransactionCount int        `json:"transaction_count"`
	AnomalyCount     int        `json:"anomaly_count"`
	ProcessedAt      time.Time  `json:"processed_at"`
}

// Store is the persistence boundary for processed statements.
type Store interface {
	// SaveStatement stores a statement with its transactions and anomalies.
	// Saving the same statement id again is a no-op returning the original
	// receipt, so re-uploading identical bytes never duplicates rows.
	SaveStatement(ctx context.Context, st *statement.ProcessedStatement) (*SavedStatement, error)

	// GetStatement reassembles a stored statement. Returns ErrNotFound when
	// the id is unknown.
	GetStatement(ctx context.Context, id uuid.UUID) (*statement.ProcessedStatement, error)

	// ListStatements returns stored statement summaries, newest first.
	ListStatements(ctx context.Context, limit int) ([]StatementSummary, error)

	// LoadBaseline builds the anomaly baseline from every stored
	// transaction. A store with no history returns an empty baseline.
	LoadBaseline(ctx context.Context) (*anomaly.Baseline, error)
}
