package pagination

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

func TestCursorRoundTrip(t *testing.T) {
	original := Cursor{
		CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		ID:        "tx-42",
	}

	decoded, err := Decode(original.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !decoded.CreatedAt.Equal(original.CreatedAt) || decoded.ID != original.ID {
		t.Errorf("round trip mismatch: %+v != %+v", decoded, original)
	}
}

func TestDecodeEmptyToken(t *testing.T) {
	c, err := Decode("")
	if err != nil {
		t.Fatalf("Decode(\"\"): %v", err)
	}
	if !c.IsZero() {
		t.Errorf("empty token should yield the zero cursor, got %+v", c)
	}
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"not json", base64.RawURLEncoding.EncodeToString([]byte("plain text"))},
		{"missing id", base64.RawURLEncoding.EncodeToString([]byte(`{"t":"2026-01-01T00:00:00Z"}`))},
		{"missing time", base64.RawURLEncoding.EncodeToString([]byte(`{"id":"tx-1"}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.token)
			if !errors.Is(err, ErrInvalidCursor) {
				t.Errorf("expected ErrInvalidCursor, got %v", err)
			}
		})
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		limit    int
		expected int
	}{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{1, 1},
		{50, 50},
		{MaxLimit, MaxLimit},
		{MaxLimit + 1, MaxLimit},
		{10000, MaxLimit},
	}

	for _, tt := range tests {
		if got := ClampLimit(tt.limit); got != tt.expected {
			t.Errorf("ClampLimit(%d) = %d, expected %d", tt.limit, got, tt.expected)
		}
	}
}

func TestNewPage(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Now().UTC(), ID: "tx-1"}

	page, err := NewPage(250, cursor.Encode())
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	if page.Limit != MaxLimit {
		t.Errorf("limit should be clamped to %d, got %d", MaxLimit, page.Limit)
	}
	if page.Cursor.ID != "tx-1" {
		t.Errorf("cursor should decode, got %+v", page.Cursor)
	}

	if _, err := NewPage(20, "garbage!"); !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("expected ErrInvalidCursor, got %v", err)
	}
}

func TestCursorIsOpaque(t *testing.T) {
	token := Cursor{CreatedAt: time.Now().UTC(), ID: "tx-1"}.Encode()
	if _, err := base64.RawURLEncoding.DecodeString(token); err != nil {
		t.Errorf("token should be URL-safe base64: %v", err)
	}
}
