package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/model"
)

// AccountsHandler serves the chart of accounts.
type AccountsHandler struct {
	registry *accounts.Registry
	log      *slog.Logger
}

// NewAccountsHandler creates a new AccountsHandler.
func NewAccountsHandler(reg *accounts.Registry, logger *slog.Logger) *AccountsHandler {
	return &AccountsHandler{registry: reg, log: logger}
}

// List handles GET /api/v1/accounts, optionally filtered by ?type=.
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		list []model.Account
		err  error
	)
	if t := r.URL.Query().Get("type"); t != "" {
		if !model.AccountType(t).Valid() {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid type parameter")
			return
		}
		list, err = h.registry.ByType(r.Context(), model.AccountType(t))
	} else {
		list, err = h.registry.List(r.Context())
	}
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get handles GET /api/v1/accounts/{id}. The path accepts an ID or a code.
func (h *AccountsHandler) Get(w http.ResponseWriter, r *http.Request) {
	acct, err := h.registry.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// Create handles POST /api/v1/accounts.
func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var p accounts.CreateParams
	if !decode(w, r, &p) {
		return
	}
	acct, err := h.registry.Create(r.Context(), p)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

// Update handles PATCH /api/v1/accounts/{id}.
func (h *AccountsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var p accounts.Patch
	if !decode(w, r, &p) {
		return
	}
	acct, err := h.registry.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// Archive handles POST /api/v1/accounts/{id}/archive.
func (h *AccountsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	acct, err := h.registry.Archive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// TrialBalance handles GET /api/v1/trial-balance.
func (h *AccountsHandler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	tb, err := h.registry.TrialBalance(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, tb)
}
