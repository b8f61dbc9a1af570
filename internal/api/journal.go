package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/model"
)

// JournalHandler serves journal entries.
type JournalHandler struct {
	engine *journal.Engine
	log    *slog.Logger
}

// NewJournalHandler creates a new JournalHandler.
func NewJournalHandler(e *journal.Engine, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{engine: e, log: logger}
}

// PostRequest is the body of POST /api/v1/journal. Draft saves the entry
// without posting it.
type PostRequest struct {
	Date        Date              `json:"date"`
	Description string            `json:"description"`
	Reference   string            `json:"reference,omitempty"`
	Lines       []model.LineInput `json:"lines"`
	Draft       bool              `json:"draft,omitempty"`
}

// List handles GET /api/v1/journal.
//
// Query parameters: from, to, status, account, reference, limit.
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, ok := queryDate(w, r, "from")
	if !ok {
		return
	}
	to, ok := queryDate(w, r, "to")
	if !ok {
		return
	}
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid limit parameter")
			return
		}
		limit = n
	}

	f := journal.Filter{
		From:      from,
		To:        to,
		Status:    model.EntryStatus(q.Get("status")),
		AccountID: q.Get("account"),
		Reference: q.Get("reference"),
	}
	entries := []model.JournalEntry{}
	for entry, err := range h.engine.List(r.Context(), f) {
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		entries = append(entries, entry)
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Get handles GET /api/v1/journal/{id}.
func (h *JournalHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Post handles POST /api/v1/journal.
func (h *JournalHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req PostRequest
	if !decode(w, r, &req) {
		return
	}
	p := journal.PostParams{
		Date:        req.Date.Time,
		Description: req.Description,
		Reference:   req.Reference,
		Lines:       req.Lines,
		Source:      model.SourceManual,
	}

	var (
		entry model.JournalEntry
		err   error
	)
	if req.Draft {
		entry, err = h.engine.SaveDraft(r.Context(), p)
	} else {
		entry, err = h.engine.Post(r.Context(), p)
	}
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// PostDraft handles POST /api/v1/journal/{id}/post.
func (h *JournalHandler) PostDraft(w http.ResponseWriter, r *http.Request) {
	entry, err := h.engine.PostDraft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Void handles POST /api/v1/journal/{id}/void and returns the reversing
// entry.
func (h *JournalHandler) Void(w http.ResponseWriter, r *http.Request) {
	reversal, err := h.engine.Void(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, reversal)
}
