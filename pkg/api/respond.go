package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ledgercache/pkg/ledger"
	"ledgercache/pkg/pagination"
)

// errorBody is the envelope every non-2xx response carries.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeDomainError maps domain errors onto HTTP statuses. Anything unmapped
// is a 500 with a generic message so internals never leak to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account_not_found", "account not found")
	case errors.Is(err, ledger.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, "transaction_not_found", "transaction not found")
	case errors.Is(err, ledger.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, pagination.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, "invalid_cursor", "cursor is malformed or from another listing")
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeCacheable renders v with an ETag and honors If-None-Match, so clients
// that already hold the current representation get a bodiless 304. maxAge
// drives Cache-Control; cacheHit surfaces the server-side cache outcome in
// X-Cache for debugging.
func writeCacheable(w http.ResponseWriter, r *http.Request, v interface{}, cacheHit bool, maxAge time.Duration) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	sum := sha256.Sum256(body)
	etag := fmt.Sprintf("%q", hex.EncodeToString(sum[:16]))

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int(maxAge.Seconds())))
	if cacheHit {
		w.Header().Set("X-Cache", "hit")
	} else {
		w.Header().Set("X-Cache", "miss")
	}

	if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// etagMatches reports whether an If-None-Match header matches etag. The
// header may carry a comma-separated list, weak W/ validators, or "*".
func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
