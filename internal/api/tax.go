package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/tax"
)

// TaxConfigsHandler serves tax configurations.
type TaxConfigsHandler struct {
	calc *tax.Calculator
	log  *slog.Logger
}

// NewTaxConfigsHandler creates a new TaxConfigsHandler.
func NewTaxConfigsHandler(c *tax.Calculator, logger *slog.Logger) *TaxConfigsHandler {
	return &TaxConfigsHandler{calc: c, log: logger}
}

// List handles GET /api/v1/tax-configs.
func (h *TaxConfigsHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.calc.List(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Create handles POST /api/v1/tax-configs.
func (h *TaxConfigsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var p tax.Params
	if !decode(w, r, &p) {
		return
	}
	cfg, err := h.calc.Create(r.Context(), p)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

// Update handles PUT /api/v1/tax-configs/{id}.
func (h *TaxConfigsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var p tax.Patch
	if !decode(w, r, &p) {
		return
	}
	cfg, err := h.calc.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// ComputeRequest is the body of POST /api/v1/tax-configs/{id}/compute.
type ComputeRequest struct {
	Base decimal.Decimal `json:"base"`
}

// Compute handles POST /api/v1/tax-configs/{id}/compute. Nothing is posted.
func (h *TaxConfigsHandler) Compute(w http.ResponseWriter, r *http.Request) {
	var req ComputeRequest
	if !decode(w, r, &req) {
		return
	}
	lines, err := h.calc.ComputeTaxLines(r.Context(), chi.URLParam(r, "id"), req.Base)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}
