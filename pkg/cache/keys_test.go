package cache

import (
	"strings"
	"testing"
)

func TestKeyBuilders(t *testing.T) {
	if got := AccountKey("abc"); got != "account:abc" {
		t.Errorf("AccountKey = %q, expected %q", got, "account:abc")
	}
	if got := TransactionKey("t1"); got != "tx:t1" {
		t.Errorf("TransactionKey = %q, expected %q", got, "tx:t1")
	}
}

func TestTransactionListKey(t *testing.T) {
	tests := []struct {
		name     string
		version  int64
		cursor   string
		limit    int
		expected string
	}{
		{"first page", 0, "", 20, "txlist:a1:v0:head:20"},
		{"with cursor", 0, "Zm9v", 20, "txlist:a1:v0:Zm9v:20"},
		{"bumped version", 3, "", 50, "txlist:a1:v3:head:50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TransactionListKey("a1", tt.version, tt.cursor, tt.limit)
			if got != tt.expected {
				t.Errorf("TransactionListKey = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestTransactionListKeyVersionChangesKey(t *testing.T) {
	before := TransactionListKey("a1", 1, "", 20)
	after := TransactionListKey("a1", 2, "", 20)
	if before == after {
		t.Error("bumping the version should change the key")
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", "account:abc", false},
		{"empty", "", true},
		{"too long", strings.Repeat("k", MaxKeyLength+1), true},
		{"max length ok", strings.Repeat("k", MaxKeyLength), false},
		{"control character", "account:\x00abc", true},
		{"newline", "account:a\nb", true},
		{"leading space", " account:abc", true},
		{"trailing space", "account:abc ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateKey(%q) expected error, got nil", tt.key)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateKey(%q) unexpected error: %v", tt.key, err)
			}
		})
	}
}
