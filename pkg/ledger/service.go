package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ledgercache/pkg/cache"
	"ledgercache/pkg/loader"
	"ledgercache/pkg/logging"
	"ledgercache/pkg/pagination"

	"go.uber.org/zap"
)

// ServiceConfig holds the cache policy of the read-through service.
type ServiceConfig struct {
	// AccountTTL caches account reads. Default 5m.
	AccountTTL time.Duration

	// TransactionTTL caches single transactions. Transactions are immutable
	// once written, so this can run long. Default 30m.
	TransactionTTL time.Duration

	// ListTTL caches listing pages. Short: list keys are invalidated by
	// version bump, and orphaned pages must age out quickly. Default 2m.
	ListTTL time.Duration

	// NegativeTTL bounds how long a not-found result is remembered. A miss
	// tombstone under the resource key answers repeat lookups of invented
	// IDs without touching the store. Default 1m.
	NegativeTTL time.Duration

	// LoaderWait and LoaderMaxBatch tune the account miss coalescer.
	LoaderWait     time.Duration
	LoaderMaxBatch int

	// Logger defaults to the global logger.
	Logger *logging.Logger
}

func (c *ServiceConfig) applyDefaults() {
	if c.AccountTTL <= 0 {
		c.AccountTTL = 5 * time.Minute
	}
	if c.TransactionTTL <= 0 {
		c.TransactionTTL = 30 * time.Minute
	}
	if c.ListTTL <= 0 {
		c.ListTTL = 2 * time.Minute
	}
	if c.NegativeTTL <= 0 {
		c.NegativeTTL = time.Minute
	}
	if c.LoaderWait <= 0 {
		c.LoaderWait = 2 * time.Millisecond
	}
	if c.LoaderMaxBatch <= 0 {
		c.LoaderMaxBatch = 100
	}
	if c.Logger == nil {
		c.Logger = logging.L()
	}
}

// Service orchestrates cache-aside reads over the store.
//
// Reads go cache first, store second, then populate the cache. Account
// misses funnel through a loader so a miss storm across concurrent requests
// becomes one batched store query. Store not-found is cached as a short
// tombstone, keeping scans of invented IDs off the store. Writes go store
// first, then cache the new row and invalidate what it touches.
type Service struct {
	store  Store
	cache  cache.BatchLayer
	config ServiceConfig
	logger *logging.Logger

	accountLoader *loader.Loader
	cancelLoader  context.CancelFunc

	// versions tracks the per-account list-key version. Cursor-qualified
	// list keys are unbounded, so invalidation bumps the version and lets
	// TTL reap the orphans.
	versions sync.Map // accountID -> *atomic.Int64
}

// NewService builds a service over the given store and cache layer. The
// layer is normally the chain; anything satisfying cache.Layer works.
func NewService(store Store, layer cache.Layer, config ServiceConfig) *Service {
	config.applyDefaults()

	s := &Service{
		store:  store,
		cache:  cache.AsBatch(layer),
		config: config,
		logger: config.Logger.Named("ledger"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelLoader = cancel
	s.accountLoader = loader.New(ctx, s.fetchAccounts, loader.Options{
		MaxBatch: config.LoaderMaxBatch,
		Wait:     config.LoaderWait,
	})

	return s
}

// Close stops the loader. The store and cache are owned by the caller.
func (s *Service) Close() error {
	s.cancelLoader()
	return nil
}

// fetchAccounts is the loader's batch function: one store query for every
// account ID that missed the cache inside the same window.
func (s *Service) fetchAccounts(ctx context.Context, ids []string) (map[string]interface{}, error) {
	accounts, err := s.store.GetAccounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(accounts))
	for id, a := range accounts {
		out[id] = a
	}
	return out, nil
}

// notFoundMarker is the tombstone cached for IDs the store does not have.
// JSON never begins with a NUL byte, so the marker cannot collide with a
// real cached row.
var notFoundMarker = []byte{0}

func isNotFoundMarker(data []byte) bool {
	return len(data) == 1 && data[0] == 0
}

// GetAccount returns one account, cache-aside.
func (s *Service) GetAccount(ctx context.Context, id string) (*Account, bool, error) {
	if id == "" {
		return nil, false, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}

	key := cache.AccountKey(id)
	if data, err := s.cache.Get(ctx, key); err == nil {
		if isNotFoundMarker(data) {
			return nil, true, ErrAccountNotFound
		}
		var a Account
		if err := json.Unmarshal(data, &a); err == nil {
			return &a, true, nil
		}
		// Undecodable entry: drop it and fall through to the store.
		_ = s.cache.Delete(ctx, key)
	}

	v, err := s.accountLoader.Load(ctx, id)
	if err != nil {
		if errors.Is(err, loader.ErrMissingKey) {
			s.cacheRaw(ctx, key, notFoundMarker, s.config.NegativeTTL)
			return nil, false, ErrAccountNotFound
		}
		return nil, false, err
	}
	a := v.(*Account)

	s.cachePut(ctx, key, a, s.config.AccountTTL)
	return a, false, nil
}

// GetAccounts resolves many accounts at once: one GetMulti against the
// cache, one batched store query for the residue, one SetMulti to fill the
// cache back in. Unknown IDs are absent from the result.
func (s *Service) GetAccounts(ctx context.Context, ids []string) (map[string]*Account, error) {
	if len(ids) == 0 {
		return map[string]*Account{}, nil
	}

	keys := make([]string, len(ids))
	keyToID := make(map[string]string, len(ids))
	for i, id := range ids {
		keys[i] = cache.AccountKey(id)
		keyToID[keys[i]] = id
	}

	out := make(map[string]*Account, len(ids))
	cached, err := s.cache.GetMulti(ctx, keys)
	if err != nil {
		return nil, err
	}
	var residue []string
	for _, id := range ids {
		data, ok := cached[cache.AccountKey(id)]
		if !ok {
			residue = append(residue, id)
			continue
		}
		if isNotFoundMarker(data) {
			// Known-missing ID, stays absent from the result.
			continue
		}
		var a Account
		if err := json.Unmarshal(data, &a); err != nil {
			residue = append(residue, id)
			continue
		}
		out[id] = &a
	}

	if len(residue) > 0 {
		fresh, err := s.store.GetAccounts(ctx, residue)
		if err != nil {
			return nil, err
		}
		fill := make(map[string][]byte, len(fresh))
		for id, a := range fresh {
			out[id] = a
			if data, err := json.Marshal(a); err == nil {
				fill[cache.AccountKey(id)] = data
			}
		}
		if len(fill) > 0 {
			if err := s.cache.SetMulti(ctx, fill, s.config.AccountTTL); err != nil {
				s.logger.Warn("failed to fill account cache", zap.Error(err))
			}
		}
		ghosts := make(map[string][]byte)
		for _, id := range residue {
			if _, ok := fresh[id]; !ok {
				ghosts[cache.AccountKey(id)] = notFoundMarker
			}
		}
		if len(ghosts) > 0 {
			if err := s.cache.SetMulti(ctx, ghosts, s.config.NegativeTTL); err != nil {
				s.logger.Warn("failed to cache missing account IDs", zap.Error(err))
			}
		}
	}

	return out, nil
}

// GetTransaction returns one transaction, cache-aside.
func (s *Service) GetTransaction(ctx context.Context, id string) (*Transaction, bool, error) {
	if id == "" {
		return nil, false, fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	key := cache.TransactionKey(id)
	if data, err := s.cache.Get(ctx, key); err == nil {
		if isNotFoundMarker(data) {
			return nil, true, ErrTransactionNotFound
		}
		var tx Transaction
		if err := json.Unmarshal(data, &tx); err == nil {
			return &tx, true, nil
		}
		_ = s.cache.Delete(ctx, key)
	}

	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			s.cacheRaw(ctx, key, notFoundMarker, s.config.NegativeTTL)
		}
		return nil, false, err
	}

	s.cachePut(ctx, key, tx, s.config.TransactionTTL)
	return tx, false, nil
}

// ListTransactions returns one page of an account's transactions, caching
// each page under its cursor-qualified, version-stamped key.
func (s *Service) ListTransactions(ctx context.Context, accountID string, page pagination.Page) (*TransactionPage, bool, error) {
	if accountID == "" {
		return nil, false, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}

	page.Limit = pagination.ClampLimit(page.Limit)

	cursorToken := ""
	if !page.Cursor.IsZero() {
		cursorToken = page.Cursor.Encode()
	}
	key := cache.TransactionListKey(accountID, s.listVersion(accountID), cursorToken, page.Limit)

	if data, err := s.cache.Get(ctx, key); err == nil {
		var tp TransactionPage
		if err := json.Unmarshal(data, &tp); err == nil {
			return &tp, true, nil
		}
		_ = s.cache.Delete(ctx, key)
	}

	tp, err := s.store.ListTransactions(ctx, accountID, page)
	if err != nil {
		return nil, false, err
	}

	s.cachePut(ctx, key, tp, s.config.ListTTL)
	return tp, false, nil
}

// CreateTransaction writes through the store, caches the new transaction,
// and invalidates the account and its listings.
func (s *Service) CreateTransaction(ctx context.Context, tx *Transaction) (*Transaction, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	s.cachePut(ctx, cache.TransactionKey(tx.ID), tx, s.config.TransactionTTL)

	// The balance changed and every listing of this account is stale.
	if err := s.cache.Delete(ctx, cache.AccountKey(tx.AccountID)); err != nil {
		s.logger.Warn("failed to invalidate account key",
			zap.String("account_id", tx.AccountID), zap.Error(err))
	}
	s.bumpListVersion(tx.AccountID)

	return tx, nil
}

// cachePut marshals v and stores it, logging (not failing) on error: a
// broken cache degrades to slower reads, nothing else.
func (s *Service) cachePut(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to marshal for cache", zap.String("key", key), zap.Error(err))
		return
	}
	s.cacheRaw(ctx, key, data, ttl)
}

func (s *Service) cacheRaw(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		s.logger.Warn("failed to populate cache", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) listVersion(accountID string) int64 {
	cell, _ := s.versions.LoadOrStore(accountID, &atomic.Int64{})
	return cell.(*atomic.Int64).Load()
}

func (s *Service) bumpListVersion(accountID string) {
	cell, _ := s.versions.LoadOrStore(accountID, &atomic.Int64{})
	cell.(*atomic.Int64).Add(1)
}
