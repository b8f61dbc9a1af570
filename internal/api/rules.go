package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cleared-dev/ledger/internal/rules"
)

// RulesHandler serves categorization rules and expense categories.
type RulesHandler struct {
	book *rules.Book
	log  *slog.Logger
}

// NewRulesHandler creates a new RulesHandler.
func NewRulesHandler(b *rules.Book, logger *slog.Logger) *RulesHandler {
	return &RulesHandler{book: b, log: logger}
}

// List handles GET /api/v1/rules, optionally filtered by ?owner=.
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.book.ListRules(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Create handles POST /api/v1/rules.
func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var p rules.RuleParams
	if !decode(w, r, &p) {
		return
	}
	rule, err := h.book.CreateRule(r.Context(), p)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// Update handles PUT /api/v1/rules/{id}.
func (h *RulesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var p rules.RulePatch
	if !decode(w, r, &p) {
		return
	}
	rule, err := h.book.UpdateRule(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// Delete handles DELETE /api/v1/rules/{id}.
func (h *RulesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.book.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCategories handles GET /api/v1/categories.
func (h *RulesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	list, err := h.book.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateCategory handles POST /api/v1/categories.
func (h *RulesHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var p rules.CategoryParams
	if !decode(w, r, &p) {
		return
	}
	cat, err := h.book.CreateCategory(r.Context(), p)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, cat)
}
