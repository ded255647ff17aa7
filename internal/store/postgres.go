package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clarofin/statements/internal/anomaly"
	"github.com/clarofin/statements/internal/statement"
	"github.com/clarofin/statements/pkg/money"
)

// DB is the subset of pgxpool.Pool the repository uses. It exists so tests
// can substitute a mock connection.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Store on PostgreSQL. Amounts are stored as signed
// minor units alongside a currency code.
type Postgres struct {
	db       DB
	currency string
}

// NewPostgres creates a PostgreSQL-backed store.
func NewPostgres(pool *pgxpool.Pool, currencyCode string) *Postgres {
	return newPostgres(pool, currencyCode)
}

func newPostgres(db DB, currencyCode string) *Postgres {
	if currencyCode == "" {
		currencyCode = money.USD
	}
	return &Postgres{db: db, currency: currencyCode}
}

// SaveStatement stores the statement in one transaction. A statement id
// already present short-circuits with the original receipt.
func (p *Postgres) SaveStatement(ctx context.Context, st *statement.ProcessedStatement) (*SavedStatement, error) {
	var savedAt time.Time
	err := p.db.QueryRow(ctx,
		`SELECT created_at FROM statements WHERE id = $1`, st.ID,
	).Scan(&savedAt)
	if err == nil {
		return &SavedStatement{ID: st.ID, SavedAt: savedAt}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing statement: %w", err)
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO statements (id, account_number, bank_name, period_start, period_end,
			total_income_minor, total_expenses_minor, ending_balance_minor, currency_code, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		st.ID,
		st.Account.AccountNumber,
		st.Account.BankName,
		st.Account.PeriodStart,
		st.Account.PeriodEnd,
		money.FromDecimal(st.TotalIncome, p.currency).Minor(),
		money.FromDecimal(st.TotalExpenses, p.currency).Minor(),
		money.FromDecimal(st.EndingBalance, p.currency).Minor(),
		p.currency,
		st.ProcessedAt,
	).Scan(&savedAt)
	if err != nil {
		return nil, fmt.Errorf("insert statement: %w", err)
	}

	for i, t := range st.Transactions {
		var balanceMinor *int64
		if t.Balance != nil {
			minor := money.FromDecimal(*t.Balance, p.currency).Minor()
			balanceMinor = &minor
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO transactions (id, statement_id, position, tx_date, description,
				amount_minor, direction, balance_minor, reference, category)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			t.ID, st.ID, i, t.Date, t.Description,
			money.FromDecimal(t.Amount, p.currency).Minor(),
			string(t.Direction), balanceMinor, t.Reference, t.Category,
		)
		if err != nil {
			return nil, fmt.Errorf("insert transaction: %w", err)
		}
	}

	for i, c := range st.Categories {
		_, err = tx.Exec(ctx,
			`INSERT INTO statement_categories (statement_id, position, category, display_name,
				amount_minor, tx_count, percentage, color)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			st.ID, i, c.Category, c.DisplayName,
			money.FromDecimal(c.Amount, p.currency).Minor(),
			c.Count, c.Percentage, c.Color,
		)
		if err != nil {
			return nil, fmt.Errorf("insert category: %w", err)
		}
	}

	for _, a := range st.Anomalies {
		_, err = tx.Exec(ctx,
			`INSERT INTO anomalies (id, statement_id, transaction_id, type, severity, confidence, detected_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.ID, st.ID, a.TransactionID, string(a.Type), string(a.Severity), a.Confidence, a.DetectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("insert anomaly: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit save: %w", err)
	}
	return &SavedStatement{ID: st.ID, SavedAt: savedAt}, nil
}

// GetStatement reassembles one stored statement.
func (p *Postgres) GetStatement(ctx context.Context, id uuid.UUID) (*statement.ProcessedStatement, error) {
	st := &statement.ProcessedStatement{ID: id}

	var incomeMinor, expensesMinor, endingMinor int64
	var currency string
	err := p.db.QueryRow(ctx,
		`SELECT account_number, bank_name, period_start, period_end,
			total_income_minor, total_expenses_minor, ending_balance_minor, currency_code, processed_at
		FROM statements WHERE id = $1`, id,
	).Scan(
		&st.Account.AccountNumber,
		&st.Account.BankName,
		&st.Account.PeriodStart,
		&st.Account.PeriodEnd,
		&incomeMinor,
		&expensesMinor,
		&endingMinor,
		&currency,
		&st.ProcessedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get statement: %w", err)
	}
	st.TotalIncome = money.New(incomeMinor, currency).Decimal()
	st.TotalExpenses = money.New(expensesMinor, currency).Decimal()
	st.EndingBalance = money.New(endingMinor, currency).Decimal()

	if st.Transactions, err = p.loadTransactions(ctx, id, currency); err != nil {
		return nil, err
	}
	if st.Categories, err = p.loadCategories(ctx, id, currency, st.Transactions); err != nil {
		return nil, err
	}
	if st.Anomalies, err = p.loadAnomalies(ctx, id); err != nil {
		return nil, err
	}
	return st, nil
}

func (p *Postgres) loadTransactions(ctx context.Context, id uuid.UUID, currency string) ([]statement.Transaction, error) {
	rows, err := p.db.Query(ctx,
		`SELECT id, tx_date, description, amount_minor, direction, balance_minor, reference, category
		FROM transactions WHERE statement_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []statement.Transaction
	for rows.Next() {
		var t statement.Transaction
		var amountMinor int64
		var balanceMinor *int64
		var direction string
		if err := rows.Scan(&t.ID, &t.Date, &t.Description, &amountMinor, &direction,
			&balanceMinor, &t.Reference, &t.Category); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Amount = money.New(amountMinor, currency).Decimal()
		t.Direction = statement.Direction(direction)
		if balanceMinor != nil {
			balance := money.New(*balanceMinor, currency).Decimal()
			t.Balance = &balance
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func (p *Postgres) loadCategories(ctx context.Context, id uuid.UUID, currency string, txs []statement.Transaction) ([]statement.CategoryData, error) {
	rows, err := p.db.Query(ctx,
		`SELECT category, display_name, amount_minor, tx_count, percentage, color
		FROM statement_categories WHERE statement_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	byCategory := make(map[string][]uuid.UUID)
	for _, t := range txs {
		byCategory[t.Category] = append(byCategory[t.Category], t.ID)
	}

	var categories []statement.CategoryData
	for rows.Next() {
		var c statement.CategoryData
		var amountMinor int64
		if err := rows.Scan(&c.Category, &c.DisplayName, &amountMinor, &c.Count, &c.Percentage, &c.Color); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Amount = money.New(amountMinor, currency).Decimal()
		c.Transactions = byCategory[c.Category]
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

func (p *Postgres) loadAnomalies(ctx context.Context, id uuid.UUID) ([]statement.Anomaly, error) {
	rows, err := p.db.Query(ctx,
		`SELECT id, transaction_id, type, severity, confidence, detected_at
		FROM anomalies WHERE statement_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []statement.Anomaly
	for rows.Next() {
		var a statement.Anomaly
		var kind, severity string
		if err := rows.Scan(&a.ID, &a.TransactionID, &kind, &severity, &a.Confidence, &a.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		a.Type = statement.AnomalyType(kind)
		a.Severity = statement.Severity(severity)
		anomalies = append(anomalies, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anomalies: %w", err)
	}
	return anomalies, nil
}

// ListStatements returns summaries ordered by processing time, newest first.
func (p *Postgres) ListStatements(ctx context.Context, limit int) ([]StatementSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.Query(ctx,
		`SELECT s.id, s.account_number, s.bank_name, s.period_start, s.period_end,
			(SELECT COUNT(*) FROM transactions t WHERE t.statement_id = s.id),
			(SELECT COUNT(*) FROM anomalies a WHERE a.statement_id = s.id),
			s.processed_at
		FROM statements s ORDER BY s.processed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	defer rows.Close()

	var summaries []StatementSummary
	for rows.Next() {
		var s StatementSummary
		if err := rows.Scan(&s.ID, &s.AccountNumber, &s.BankName, &s.PeriodStart, &s.PeriodEnd,
			&s.TransactionCount, &s.AnomalyCount, &s.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return summaries, nil
}

// LoadBaseline rebuilds the anomaly baseline from every stored transaction.
// Merchant normalization happens application-side, so the query only pulls
// the raw columns.
func (p *Postgres) LoadBaseline(ctx context.Context) (*anomaly.Baseline, error) {
	rows, err := p.db.Query(ctx,
		`SELECT description, amount_minor, direction, category, currency_code
		FROM transactions t JOIN statements s ON s.id = t.statement_id`)
	if err != nil {
		return nil, fmt.Errorf("load baseline: %w", err)
	}
	defer rows.Close()

	var history []statement.Transaction
	for rows.Next() {
		var t statement.Transaction
		var amountMinor int64
		var direction, currency string
		if err := rows.Scan(&t.Description, &amountMinor, &direction, &t.Category, &currency); err != nil {
			return nil, fmt.Errorf("scan baseline row: %w", err)
		}
		t.Amount = money.New(amountMinor, currency).Decimal()
		t.Direction = statement.Direction(direction)
		history = append(history, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate baseline rows: %w", err)
	}
	return anomaly.BuildBaseline(history), nil
}

// Memory is an in-memory Store used by the CLI and tests. Safe for
// concurrent use.
type Memory struct {
	mu         sync.Mutex
	statements map[uuid.UUID]*statement.ProcessedStatement
	savedAt    map[uuid.UUID]time.Time
	now        func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		statements: make(map[uuid.UUID]*statement.ProcessedStatement),
		savedAt:    make(map[uuid.UUID]time.Time),
		now:        time.Now,
	}
}

func (m *Memory) SaveStatement(_ context.Context, st *statement.ProcessedStatement) (*SavedStatement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if at, ok := m.savedAt[st.ID]; ok {
		return &SavedStatement{ID: st.ID, SavedAt: at}, nil
	}
	copied := *st
	at := m.now().UTC()
	m.statements[st.ID] = &copied
	m.savedAt[st.ID] = at
	return &SavedStatement{ID: st.ID, SavedAt: at}, nil
}

func (m *Memory) GetStatement(_ context.Context, id uuid.UUID) (*statement.ProcessedStatement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.statements[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *st
	return &copied, nil
}

func (m *Memory) ListStatements(_ context.Context, limit int) ([]StatementSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	summaries := make([]StatementSummary, 0, len(m.statements))
	for id, st := range m.statements {
		summaries = append(summaries, StatementSummary{
			ID:               id,
			AccountNumber:    st.Account.AccountNumber,
			BankName:         st.Account.BankName,
			PeriodStart:      st.Account.PeriodStart,
			PeriodEnd:        st.Account.PeriodEnd,
			TransactionCount: len(st.Transactions),
			AnomalyCount:     len(st.Anomalies),
			ProcessedAt:      st.ProcessedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].ProcessedAt.Equal(summaries[j].ProcessedAt) {
			return summaries[i].ProcessedAt.After(summaries[j].ProcessedAt)
		}
		return summaries[i].ID.String() < summaries[j].ID.String()
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (m *Memory) LoadBaseline(_ context.Context) (*anomaly.Baseline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var history []statement.Transaction
	for _, st := range m.statements {
		history = append(history, st.Transactions...)
	}
	return anomaly.BuildBaseline(history), nil
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)
