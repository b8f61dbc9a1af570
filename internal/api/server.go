// Package api serves the ledger over HTTP for the CRM gateway.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cleared-dev/ledger/internal/app"
)

// RequestTimeout bounds each API request.
const RequestTimeout = 60 * time.Second

// NewRouter builds the HTTP handler for a.
func NewRouter(a *app.App, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = a.Log
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	accountsHandler := NewAccountsHandler(a.Accounts, logger)
	journalHandler := NewJournalHandler(a.Journal, logger)
	bankHandler := NewBankHandler(a.Bank, a.Reconcile, logger)
	rulesHandler := NewRulesHandler(a.Rules, logger)
	taxHandler := NewTaxConfigsHandler(a.Tax, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(PrincipalMiddleware)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", accountsHandler.List)
			r.Post("/", accountsHandler.Create)
			r.Get("/{id}", accountsHandler.Get)
			r.Patch("/{id}", accountsHandler.Update)
			r.Post("/{id}/archive", accountsHandler.Archive)
		})
		r.Get("/trial-balance", accountsHandler.TrialBalance)

		r.Route("/journal", func(r chi.Router) {
			r.Get("/", journalHandler.List)
			r.Post("/", journalHandler.Post)
			r.Get("/{id}", journalHandler.Get)
			r.Post("/{id}/void", journalHandler.Void)
			r.Post("/{id}/post", journalHandler.PostDraft)
		})

		r.Route("/bank", func(r chi.Router) {
			r.Get("/accounts", bankHandler.ListAccounts)
			r.Post("/accounts", bankHandler.CreateAccount)
			r.Get("/transactions", bankHandler.ListTransactions)
			r.Post("/transactions", bankHandler.RecordTransaction)
			r.Get("/transactions/{id}", bankHandler.GetTransaction)
			r.Patch("/transactions/{id}", bankHandler.UpdateTransaction)
			r.Get("/transactions/{id}/suggestion", bankHandler.Suggest)
			r.Post("/transactions/{id}/reconcile", bankHandler.Reconcile)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", rulesHandler.List)
			r.Post("/", rulesHandler.Create)
			r.Put("/{id}", rulesHandler.Update)
			r.Delete("/{id}", rulesHandler.Delete)
		})
		r.Get("/categories", rulesHandler.ListCategories)
		r.Post("/categories", rulesHandler.CreateCategory)

		r.Route("/tax-configs", func(r chi.Router) {
			r.Get("/", taxHandler.List)
			r.Post("/", taxHandler.Create)
			r.Put("/{id}", taxHandler.Update)
			r.Post("/{id}/compute", taxHandler.Compute)
		})
	})

	return r
}

// requestLogger logs each request through slog once it completes.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
