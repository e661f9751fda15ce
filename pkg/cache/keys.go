package cache

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Key schema for the ledger domain. All keys share a common prefix per
// entity so they can be reasoned about in Redis and in metrics:
//
//	account:{id}
//	tx:{id}
//	txlist:{accountID}:v{version}:{cursor}:{limit}
//
// List keys carry a per-account version. Cursor-qualified keys are unbounded,
// so invalidation bumps the version instead of deleting keys; orphaned
// entries age out via TTL.
const (
	accountPrefix = "account"
	txPrefix      = "tx"
	txListPrefix  = "txlist"
	separator     = ":"
)

// AccountKey returns the cache key for a single account.
func AccountKey(id string) string {
	return accountPrefix + separator + id
}

// TransactionKey returns the cache key for a single transaction.
func TransactionKey(id string) string {
	return txPrefix + separator + id
}

// TransactionListKey returns the cache key for one page of an account's
// transaction listing. An empty cursor addresses the first page.
func TransactionListKey(accountID string, version int64, cursor string, limit int) string {
	if cursor == "" {
		cursor = "head"
	}
	return txListPrefix + separator + accountID +
		separator + "v" + strconv.FormatInt(version, 10) +
		separator + cursor +
		separator + strconv.Itoa(limit)
}

// MaxKeyLength is the longest key any layer accepts.
const MaxKeyLength = 250

// ValidateKey checks a cache key against the shared rules: non-empty, at
// most MaxKeyLength bytes, no control characters, no surrounding whitespace.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key exceeds %d bytes", ErrInvalidKey, MaxKeyLength)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: key contains control character", ErrInvalidKey)
		}
	}
	if strings.TrimSpace(key) != key {
		return fmt.Errorf("%w: key has leading or trailing whitespace", ErrInvalidKey)
	}
	return nil
}
