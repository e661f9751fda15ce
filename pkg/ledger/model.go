// Package ledger holds the account/transaction domain model and the
// read-through service built on top of the cache chain.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgercache/pkg/pagination"
)

// Domain errors. The service remembers store not-found under a short-lived
// cache tombstone so repeat lookups of missing IDs stay off the store.
var (
	ErrAccountNotFound     = errors.New("ledger: account not found")
	ErrTransactionNotFound = errors.New("ledger: transaction not found")
	ErrInvalidInput        = errors.New("ledger: invalid input")
)

// Transaction types.
const (
	TypeDebit  = "debit"
	TypeCredit = "credit"
)

// Transaction statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Account is a bank account summary. Balance is in minor units (cents);
// floats have no business in a ledger.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Number    string    `json:"account_number"`
	Balance   int64     `json:"balance"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction is a single ledger movement. Amount is in minor units and
// always positive; Type carries the direction.
type Transaction struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Delta returns the signed balance effect of the transaction.
func (t *Transaction) Delta() int64 {
	if t.Type == TypeDebit {
		return -t.Amount
	}
	return t.Amount
}

// Validate checks a transaction before it is written.
func (t *Transaction) Validate() error {
	if t.AccountID == "" {
		return fmt.Errorf("%w: account_id is required", ErrInvalidInput)
	}
	if t.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if t.Type != TypeDebit && t.Type != TypeCredit {
		return fmt.Errorf("%w: type must be %q or %q", ErrInvalidInput, TypeDebit, TypeCredit)
	}
	if t.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidInput)
	}
	if len(t.Currency) != 3 {
		return fmt.Errorf("%w: currency must be an ISO 4217 code", ErrInvalidInput)
	}
	return nil
}

// TransactionPage is one page of an account's transaction listing.
type TransactionPage struct {
	Transactions []Transaction       `json:"transactions"`
	PageInfo     pagination.PageInfo `json:"page_info"`
}

// Store is the backing store contract. GetAccounts must resolve every ID in
// a single query, so callers never loop GetAccount over a list.
type Store interface {
	GetAccount(ctx context.Context, id string) (*Account, error)
	// GetAccounts returns the accounts found, keyed by ID. Unknown IDs are
	// simply absent; only infrastructure failures return an error.
	GetAccounts(ctx context.Context, ids []string) (map[string]*Account, error)
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	// ListTransactions returns one page of an account's transactions,
	// newest first, resuming after page.Cursor.
	ListTransactions(ctx context.Context, accountID string, page pagination.Page) (*TransactionPage, error)
	// CreateTransaction persists tx and applies its delta to the account
	// balance atomically.
	CreateTransaction(ctx context.Context, tx *Transaction) error
	Close() error
}
