package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/bank"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/reconcile"
)

// BankHandler serves bank accounts, their transactions and reconciliation.
type BankHandler struct {
	ledger    *bank.Ledger
	reconcile *reconcile.Coordinator
	log       *slog.Logger
}

// NewBankHandler creates a new BankHandler.
func NewBankHandler(l *bank.Ledger, c *reconcile.Coordinator, logger *slog.Logger) *BankHandler {
	return &BankHandler{ledger: l, reconcile: c, log: logger}
}

// ListAccounts handles GET /api/v1/bank/accounts, optionally filtered by
// ?owner=.
func (h *BankHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.ListAccounts(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateAccount handles POST /api/v1/bank/accounts.
func (h *BankHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var p bank.AccountParams
	if !decode(w, r, &p) {
		return
	}
	acct, err := h.ledger.CreateAccount(r.Context(), p)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

// RecordRequest is the body of POST /api/v1/bank/transactions.
type RecordRequest struct {
	BankAccountID string              `json:"bank_account_id"`
	Date          Date                `json:"date"`
	Merchant      string              `json:"merchant"`
	Description   string              `json:"description,omitempty"`
	Amount        decimal.Decimal     `json:"amount"`
	ExternalRef   string              `json:"external_ref,omitempty"`
	Status        model.BankTxnStatus `json:"status,omitempty"`
}

// ListTransactions handles GET /api/v1/bank/transactions.
//
// Query parameters: account, status, unreconciled, from, to.
func (h *BankHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, ok := queryDate(w, r, "from")
	if !ok {
		return
	}
	to, ok := queryDate(w, r, "to")
	if !ok {
		return
	}
	f := bank.TransactionFilter{
		BankAccountID: q.Get("account"),
		Status:        model.BankTxnStatus(q.Get("status")),
		Unreconciled:  q.Get("unreconciled") == "true",
		From:          from,
		To:            to,
	}
	list, err := h.ledger.ListTransactions(r.Context(), f)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if list == nil {
		list = []model.BankTransaction{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetTransaction handles GET /api/v1/bank/transactions/{id}.
func (h *BankHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.ledger.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// RecordTransaction handles POST /api/v1/bank/transactions.
func (h *BankHandler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if !decode(w, r, &req) {
		return
	}
	txn, err := h.ledger.RecordTransaction(r.Context(), bank.RecordParams{
		BankAccountID: req.BankAccountID,
		Date:          req.Date.Time,
		Merchant:      req.Merchant,
		Description:   req.Description,
		Amount:        req.Amount,
		ExternalRef:   req.ExternalRef,
		Status:        req.Status,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// TransactionPatchRequest is the body of PATCH /api/v1/bank/transactions/{id}.
type TransactionPatchRequest struct {
	Date        *Date                `json:"date,omitempty"`
	Merchant    *string              `json:"merchant,omitempty"`
	Description *string              `json:"description,omitempty"`
	Amount      *decimal.Decimal     `json:"amount,omitempty"`
	Status      *model.BankTxnStatus `json:"status,omitempty"`
	Category    *string              `json:"category,omitempty"`
	ReceiptRef  *string              `json:"receipt_ref,omitempty"`
}

// UpdateTransaction handles PATCH /api/v1/bank/transactions/{id}.
func (h *BankHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionPatchRequest
	if !decode(w, r, &req) {
		return
	}
	p := bank.TransactionPatch{
		Merchant:    req.Merchant,
		Description: req.Description,
		Amount:      req.Amount,
		Status:      req.Status,
		Category:    req.Category,
		ReceiptRef:  req.ReceiptRef,
	}
	if req.Date != nil {
		d := req.Date.Time
		p.Date = &d
	}
	txn, err := h.ledger.UpdateTransaction(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// ReconcileRequest is the optional body of
// POST /api/v1/bank/transactions/{id}/reconcile.
type ReconcileRequest struct {
	Category string `json:"category,omitempty"`
}

// Reconcile handles POST /api/v1/bank/transactions/{id}/reconcile. An empty
// body lets rules and keywords pick the category.
func (h *BankHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := decodeOptional(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body: "+err.Error())
		return
	}
	txn, err := h.reconcile.Reconcile(r.Context(), chi.URLParam(r, "id"), req.Category)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// Suggest handles GET /api/v1/bank/transactions/{id}/suggestion.
func (h *BankHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	s, err := h.reconcile.Suggest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func decodeOptional(r *http.Request, v any) error {
	err := jsonDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
