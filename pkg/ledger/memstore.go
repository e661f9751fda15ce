package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"ledgercache/pkg/pagination"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store. It backs tests and the standalone demo
// mode; the cursor semantics match the postgres implementation so the two
// are interchangeable behind the Store interface.
type MemStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	txs      map[string]*Transaction
	byAcct   map[string][]*Transaction
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		accounts: make(map[string]*Account),
		txs:      make(map[string]*Transaction),
		byAcct:   make(map[string][]*Transaction),
	}
}

// PutAccount inserts or replaces an account, assigning an ID if absent.
func (s *MemStore) PutAccount(a *Account) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	cp := *a
	s.accounts[a.ID] = &cp
	return a
}

func (s *MemStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemStore) GetAccounts(ctx context.Context, ids []string) (map[string]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make(map[string]*Account, len(ids))
	for _, id := range ids {
		if a, ok := s.accounts[id]; ok {
			cp := *a
			found[id] = &cp
		}
	}
	return found, nil
}

func (s *MemStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *MemStore) ListTransactions(ctx context.Context, accountID string, page pagination.Page) (*TransactionPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.accounts[accountID]; !ok {
		return nil, ErrAccountNotFound
	}

	all := s.byAcct[accountID]
	ordered := make([]*Transaction, len(all))
	copy(ordered, all)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
		}
		return ordered[i].ID > ordered[j].ID
	})

	// Keyset resume: first row strictly after the cursor position.
	start := 0
	if !page.Cursor.IsZero() {
		start = sort.Search(len(ordered), func(i int) bool {
			tx := ordered[i]
			return tx.CreatedAt.Before(page.Cursor.CreatedAt) ||
				(tx.CreatedAt.Equal(page.Cursor.CreatedAt) && tx.ID < page.Cursor.ID)
		})
	}

	limit := pagination.ClampLimit(page.Limit)
	end := start + limit
	hasMore := end < len(ordered)
	if end > len(ordered) {
		end = len(ordered)
	}

	out := make([]Transaction, 0, end-start)
	for _, tx := range ordered[start:end] {
		out = append(out, *tx)
	}

	info := pagination.PageInfo{HasMore: hasMore}
	if hasMore && len(out) > 0 {
		last := out[len(out)-1]
		info.NextCursor = pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}

	return &TransactionPage{Transactions: out, PageInfo: info}, nil
}

func (s *MemStore) CreateTransaction(ctx context.Context, tx *Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[tx.AccountID]
	if !ok {
		return ErrAccountNotFound
	}

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Status == "" {
		tx.Status = StatusCompleted
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	cp := *tx
	s.txs[tx.ID] = &cp
	s.byAcct[tx.AccountID] = append(s.byAcct[tx.AccountID], &cp)

	acct.Balance += tx.Delta()
	acct.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) Close() error { return nil }
