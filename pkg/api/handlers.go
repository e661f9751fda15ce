package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"ledgercache/pkg/ledger"
	"ledgercache/pkg/logging"
	"ledgercache/pkg/pagination"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// handler exposes the ledger service over HTTP.
type handler struct {
	service *ledger.Service
	config  Config
	logger  *logging.Logger
}

func (h *handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	account, hit, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeCacheable(w, r, account, hit, h.config.AccountMaxAge)
}

// getAccountBatch resolves ?ids=a,b,c in one shot. Unknown IDs are dropped
// from the response rather than failing the whole batch.
func (h *handler) getAccountBatch(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "ids query parameter is required")
		return
	}

	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "ids query parameter is empty")
		return
	}
	if len(ids) > maxBatchIDs {
		writeError(w, http.StatusBadRequest, "invalid_input",
			"at most "+strconv.Itoa(maxBatchIDs)+" ids per request")
		return
	}

	accounts, err := h.service.GetAccounts(r.Context(), ids)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Preserve request order; absent entries mean the ID does not exist.
	out := make([]*ledger.Account, 0, len(accounts))
	for _, id := range ids {
		if a, ok := accounts[id]; ok {
			out = append(out, a)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": out})
}

func (h *handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "limit must be an integer")
			return
		}
		limit = n
	}

	page, err := pagination.NewPage(limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, hit, err := h.service.ListTransactions(r.Context(), accountID, page)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeCacheable(w, r, result, hit, h.config.ListMaxAge)
}

func (h *handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	tx, hit, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeCacheable(w, r, tx, hit, h.config.TransactionMaxAge)
}

func (h *handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID   string `json:"account_id"`
		Type        string `json:"type"`
		Amount      int64  `json:"amount"`
		Currency    string `json:"currency"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "request body is not valid JSON")
		return
	}

	tx := &ledger.Transaction{
		AccountID:   req.AccountID,
		Type:        req.Type,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
	}

	created, err := h.service.CreateTransaction(r.Context(), tx)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.Info("transaction created",
		zap.String("id", created.ID),
		zap.String("account_id", created.AccountID),
		zap.String("type", created.Type),
	)

	writeJSON(w, http.StatusCreated, created)
}

// health reports the cache topology alongside a liveness signal. Layers is
// nil when the service runs on a bare layer instead of the chain.
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}

	if h.config.Layers != nil {
		layers := make([]map[string]string, 0, len(h.config.Layers()))
		for _, layer := range h.config.Layers() {
			layers = append(layers, map[string]string{"name": layer.Name(), "status": "ok"})
		}
		resp["cache_layers"] = layers
	}

	writeJSON(w, http.StatusOK, resp)
}
