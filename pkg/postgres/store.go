// Package postgres implements ledger.Store on PostgreSQL via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ledgercache/pkg/ledger"
	"ledgercache/pkg/pagination"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Config holds connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the lib/pq connection string.
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// Store is a ledger.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens the pool and verifies connectivity.
func New(config Config) (*Store, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool, for tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

const accountColumns = "id, name, account_number, balance, currency, created_at, updated_at"

func (s *Store) GetAccount(ctx context.Context, id string) (*ledger.Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1", id)

	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get account: %w", err)
	}
	return a, nil
}

// GetAccounts resolves every ID in one round trip with = ANY($1). This is
// the query shape that replaces an account lookup per row.
func (s *Store) GetAccounts(ctx context.Context, ids []string) (map[string]*ledger.Account, error) {
	if len(ids) == 0 {
		return map[string]*ledger.Account{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ANY($1)",
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("postgres: get accounts: %w", err)
	}
	defer rows.Close()

	found := make(map[string]*ledger.Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: get accounts: %w", err)
		}
		found[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get accounts: %w", err)
	}
	return found, nil
}

const txColumns = "id, account_id, type, amount, currency, description, status, created_at"

func (s *Store) GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE id = $1", id)

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get transaction: %w", err)
	}
	return tx, nil
}

// ListTransactions pages with a keyset predicate on (created_at, id) against
// the descending index, fetching limit+1 rows to learn whether more remain.
func (s *Store) ListTransactions(ctx context.Context, accountID string, page pagination.Page) (*ledger.TransactionPage, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	limit := pagination.ClampLimit(page.Limit)

	var rows *sql.Rows
	var err error
	if page.Cursor.IsZero() {
		rows, err = s.db.QueryContext(ctx,
			"SELECT "+txColumns+` FROM transactions
			 WHERE account_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			accountID, limit+1)
	} else {
		rows, err = s.db.QueryContext(ctx,
			"SELECT "+txColumns+` FROM transactions
			 WHERE account_id = $1 AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			accountID, page.Cursor.CreatedAt, page.Cursor.ID, limit+1)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list transactions: %w", err)
		}
		txs = append(txs, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list transactions: %w", err)
	}

	hasMore := len(txs) > limit
	if hasMore {
		txs = txs[:limit]
	}

	info := pagination.PageInfo{HasMore: hasMore}
	if hasMore {
		last := txs[len(txs)-1]
		info.NextCursor = pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}

	return &ledger.TransactionPage{Transactions: txs, PageInfo: info}, nil
}

// CreateTransaction inserts the row and applies its delta to the account
// balance in one database transaction.
func (s *Store) CreateTransaction(ctx context.Context, tx *ledger.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Status == "" {
		tx.Status = ledger.StatusCompleted
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer dbTx.Rollback()

	res, err := dbTx.ExecContext(ctx,
		"UPDATE accounts SET balance = balance + $1, updated_at = now() WHERE id = $2",
		tx.Delta(), tx.AccountID)
	if err != nil {
		return fmt.Errorf("postgres: update balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ledger.ErrAccountNotFound
	}

	_, err = dbTx.ExecContext(ctx,
		`INSERT INTO transactions (id, account_id, type, amount, currency, description, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tx.ID, tx.AccountID, tx.Type, tx.Amount, tx.Currency, tx.Description, tx.Status, tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert transaction: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*ledger.Account, error) {
	var a ledger.Account
	err := row.Scan(&a.ID, &a.Name, &a.Number, &a.Balance, &a.Currency, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanTransaction(row rowScanner) (*ledger.Transaction, error) {
	var tx ledger.Transaction
	var description sql.NullString
	err := row.Scan(&tx.ID, &tx.AccountID, &tx.Type, &tx.Amount, &tx.Currency, &description, &tx.Status, &tx.CreatedAt)
	if err != nil {
		return nil, err
	}
	tx.Description = description.String
	return &tx, nil
}
