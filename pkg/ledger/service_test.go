package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ledgercache/pkg/cache/mock"
	"ledgercache/pkg/logging"
	"ledgercache/pkg/pagination"
)

// countingStore wraps a Store and counts queries reaching it.
type countingStore struct {
	Store
	accountQueries     int64
	transactionQueries int64
}

func (cs *countingStore) GetAccounts(ctx context.Context, ids []string) (map[string]*Account, error) {
	atomic.AddInt64(&cs.accountQueries, 1)
	return cs.Store.GetAccounts(ctx, ids)
}

func (cs *countingStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	atomic.AddInt64(&cs.transactionQueries, 1)
	return cs.Store.GetTransaction(ctx, id)
}

func newTestService(t *testing.T) (*Service, *MemStore, *mock.Layer) {
	t.Helper()

	store := NewMemStore()
	layer := mock.New("cache")
	svc := NewService(store, layer, ServiceConfig{
		LoaderWait: 5 * time.Millisecond,
		Logger:     logging.NewNop(),
	})
	t.Cleanup(func() { svc.Close() })
	return svc, store, layer
}

func TestGetAccountCacheAside(t *testing.T) {
	svc, store, layer := newTestService(t)
	ctx := context.Background()

	acct := store.PutAccount(&Account{Name: "Checking", Number: "0001", Currency: "USD"})

	got, hit, err := svc.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if hit {
		t.Error("first read should miss the cache")
	}
	if got.Name != "Checking" {
		t.Errorf("unexpected account %+v", got)
	}

	got, hit, err = svc.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("GetAccount (second): %v", err)
	}
	if !hit {
		t.Error("second read should hit the cache")
	}
	if got.ID != acct.ID {
		t.Errorf("unexpected account %+v", got)
	}
	if layer.SetCalls() == 0 {
		t.Error("the miss should have populated the cache")
	}
}

func TestGetAccountNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, _, err := svc.GetAccount(context.Background(), "ghost")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestGetAccountEmptyID(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, _, err := svc.GetAccount(context.Background(), "")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestConcurrentMissesBatchIntoOneQuery(t *testing.T) {
	store := NewMemStore()
	counting := &countingStore{Store: store}
	layer := mock.New("cache")
	svc := NewService(counting, layer, ServiceConfig{
		LoaderWait: 20 * time.Millisecond,
		Logger:     logging.NewNop(),
	})
	defer svc.Close()

	ctx := context.Background()
	ids := make([]string, 8)
	for i := range ids {
		acct := store.PutAccount(&Account{Name: fmt.Sprintf("A%d", i), Number: fmt.Sprintf("%04d", i), Currency: "USD"})
		ids[i] = acct.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, _, err := svc.GetAccount(ctx, id); err != nil {
				t.Errorf("GetAccount(%s): %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&counting.accountQueries); got != 1 {
		t.Errorf("expected 8 concurrent misses to become 1 store query, got %d", got)
	}
}

func TestRepeatedMissingAccountQueriesStoreOnce(t *testing.T) {
	counting := &countingStore{Store: NewMemStore()}
	svc := NewService(counting, mock.New("cache"), ServiceConfig{
		LoaderWait: time.Millisecond,
		Logger:     logging.NewNop(),
	})
	defer svc.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, _, err := svc.GetAccount(ctx, "ghost"); !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("lookup %d: expected ErrAccountNotFound, got %v", i, err)
		}
	}

	if got := atomic.LoadInt64(&counting.accountQueries); got != 1 {
		t.Errorf("repeat lookups of a missing ID should be served by the tombstone, got %d store queries", got)
	}
}

func TestRepeatedMissingTransactionQueriesStoreOnce(t *testing.T) {
	counting := &countingStore{Store: NewMemStore()}
	svc := NewService(counting, mock.New("cache"), ServiceConfig{
		Logger: logging.NewNop(),
	})
	defer svc.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, _, err := svc.GetTransaction(ctx, "ghost"); !errors.Is(err, ErrTransactionNotFound) {
			t.Fatalf("lookup %d: expected ErrTransactionNotFound, got %v", i, err)
		}
	}

	if got := atomic.LoadInt64(&counting.transactionQueries); got != 1 {
		t.Errorf("repeat lookups of a missing ID should be served by the tombstone, got %d store queries", got)
	}
}

func TestNotFoundTombstoneExpires(t *testing.T) {
	counting := &countingStore{Store: NewMemStore()}
	svc := NewService(counting, mock.New("cache"), ServiceConfig{
		LoaderWait:  time.Millisecond,
		NegativeTTL: 15 * time.Millisecond,
		Logger:      logging.NewNop(),
	})
	defer svc.Close()
	ctx := context.Background()

	if _, _, err := svc.GetAccount(ctx, "ghost"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, _, err := svc.GetAccount(ctx, "ghost"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	if got := atomic.LoadInt64(&counting.accountQueries); got != 2 {
		t.Errorf("an expired tombstone should fall back to the store, got %d queries", got)
	}
}

func TestGetAccountsTombstonesMissingIDs(t *testing.T) {
	counting := &countingStore{Store: NewMemStore()}
	svc := NewService(counting, mock.New("cache"), ServiceConfig{
		Logger: logging.NewNop(),
	})
	defer svc.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := svc.GetAccounts(ctx, []string{"ghost"})
		if err != nil {
			t.Fatalf("GetAccounts %d: %v", i, err)
		}
		if len(got) != 0 {
			t.Fatalf("unknown ID should be absent, got %+v", got)
		}
	}

	if got := atomic.LoadInt64(&counting.accountQueries); got != 1 {
		t.Errorf("batch reads should tombstone missing IDs, got %d store queries", got)
	}
}

func TestGetAccountsMixedCache(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	a := store.PutAccount(&Account{Name: "A", Number: "0001", Currency: "USD"})
	b := store.PutAccount(&Account{Name: "B", Number: "0002", Currency: "USD"})

	// Prime the cache with a only.
	if _, _, err := svc.GetAccount(ctx, a.ID); err != nil {
		t.Fatalf("prime: %v", err)
	}

	got, err := svc.GetAccounts(ctx, []string{a.ID, b.ID, "ghost"})
	if err != nil {
		t.Fatalf("GetAccounts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(got))
	}
	if got[a.ID].Name != "A" || got[b.ID].Name != "B" {
		t.Errorf("unexpected accounts %+v", got)
	}
	if _, ok := got["ghost"]; ok {
		t.Error("unknown ID should be absent")
	}
}

func TestGetTransactionCacheAside(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	acct := store.PutAccount(&Account{Name: "A", Number: "0001", Currency: "USD"})
	tx := &Transaction{AccountID: acct.ID, Type: TypeCredit, Amount: 100, Currency: "USD"}
	if err := store.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, hit, err := svc.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if hit {
		t.Error("first read should miss")
	}

	_, hit, err = svc.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction (second): %v", err)
	}
	if !hit {
		t.Error("second read should hit")
	}
}

func TestListTransactionsCachedPerPage(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	acct := store.PutAccount(&Account{Name: "A", Number: "0001", Currency: "USD"})
	for i := 0; i < 5; i++ {
		tx := &Transaction{AccountID: acct.ID, Type: TypeCredit, Amount: 100, Currency: "USD"}
		if err := store.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	page := pagination.Page{Limit: 10}
	_, hit, err := svc.ListTransactions(ctx, acct.ID, page)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if hit {
		t.Error("first listing should miss")
	}

	result, hit, err := svc.ListTransactions(ctx, acct.ID, page)
	if err != nil {
		t.Fatalf("ListTransactions (second): %v", err)
	}
	if !hit {
		t.Error("second listing should hit")
	}
	if len(result.Transactions) != 5 {
		t.Errorf("expected 5 transactions, got %d", len(result.Transactions))
	}
}

func TestCreateTransactionInvalidatesReads(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	acct := store.PutAccount(&Account{Name: "A", Number: "0001", Currency: "USD"})

	// Warm the account and its listing.
	if _, _, err := svc.GetAccount(ctx, acct.ID); err != nil {
		t.Fatalf("warm account: %v", err)
	}
	if _, _, err := svc.ListTransactions(ctx, acct.ID, pagination.Page{Limit: 10}); err != nil {
		t.Fatalf("warm list: %v", err)
	}

	created, err := svc.CreateTransaction(ctx, &Transaction{
		AccountID: acct.ID, Type: TypeCredit, Amount: 2500, Currency: "USD",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created transaction should carry an ID")
	}

	// The stale account entry must be gone: the next read sees the balance.
	got, hit, err := svc.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("GetAccount after create: %v", err)
	}
	if hit {
		t.Error("account read after create should miss the cache")
	}
	if got.Balance != 2500 {
		t.Errorf("expected balance 2500, got %d", got.Balance)
	}

	// The listing key was version-bumped: fresh page with the new row.
	result, hit, err := svc.ListTransactions(ctx, acct.ID, pagination.Page{Limit: 10})
	if err != nil {
		t.Fatalf("ListTransactions after create: %v", err)
	}
	if hit {
		t.Error("listing after create should miss the cache")
	}
	if len(result.Transactions) != 1 || result.Transactions[0].ID != created.ID {
		t.Errorf("listing should contain the new transaction, got %+v", result.Transactions)
	}

	// The new transaction itself was cached by the write path.
	if _, hit, err := svc.GetTransaction(ctx, created.ID); err != nil || !hit {
		t.Errorf("created transaction should be cached, hit=%v err=%v", hit, err)
	}
}

func TestCreateTransactionInvalid(t *testing.T) {
	svc, store, _ := newTestService(t)
	acct := store.PutAccount(&Account{Name: "A", Number: "0001", Currency: "USD"})

	_, err := svc.CreateTransaction(context.Background(), &Transaction{
		AccountID: acct.ID, Type: "transfer", Amount: 100, Currency: "USD",
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCorruptCacheEntryFallsThrough(t *testing.T) {
	svc, store, layer := newTestService(t)
	ctx := context.Background()

	acct := store.PutAccount(&Account{Name: "A", Number: "0001", Currency: "USD"})

	// Poison the cache entry; the read must recover from the store.
	if err := layer.Set(ctx, "account:"+acct.ID, []byte("not json"), time.Minute); err != nil {
		t.Fatalf("poison: %v", err)
	}

	got, hit, err := svc.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if hit {
		t.Error("corrupt entry should not count as a hit")
	}
	if got.Name != "A" {
		t.Errorf("unexpected account %+v", got)
	}
}
