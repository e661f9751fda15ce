// Package pagination implements opaque cursor paging over (created_at, id).
//
// Cursors replace numeric offsets so retrieval cost stays independent of page
// depth: the store resumes from a keyset predicate instead of skipping rows.
// The cursor is base64-encoded JSON and opaque to clients; its layout may
// change between releases.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCursor is returned when a client-supplied cursor cannot be
	// decoded.
	ErrInvalidCursor = errors.New("pagination: invalid cursor")
)

// Limit bounds applied to every page request.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Cursor is a position in a listing ordered by (created_at DESC, id DESC).
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        string    `json:"id"`
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode parses a token produced by Encode. An empty token yields the zero
// cursor (start of the listing).
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return Cursor{}, fmt.Errorf("%w: missing fields", ErrInvalidCursor)
	}
	return c, nil
}

// IsZero reports whether the cursor addresses the start of the listing.
func (c Cursor) IsZero() bool {
	return c.ID == "" && c.CreatedAt.IsZero()
}

// Page is a normalized page request.
type Page struct {
	Limit  int
	Cursor Cursor
}

// NewPage builds a Page from raw query parameters, clamping the limit and
// decoding the cursor token.
func NewPage(limit int, token string) (Page, error) {
	cursor, err := Decode(token)
	if err != nil {
		return Page{}, err
	}
	return Page{Limit: ClampLimit(limit), Cursor: cursor}, nil
}

// ClampLimit normalizes a client-supplied limit into [1, MaxLimit], applying
// DefaultLimit for zero or negative values.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// PageInfo describes how to continue a listing.
type PageInfo struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}
