package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cleared-dev/ledger/internal/auth"
	"github.com/cleared-dev/ledger/internal/bank"
	"github.com/cleared-dev/ledger/internal/model"
)

// Principal headers are set by the gateway in front of the ledger and are
// trusted as given.
const (
	HeaderPrincipalID   = "X-Principal-ID"
	HeaderPrincipalRole = "X-Principal-Role"
)

// PrincipalMiddleware attaches the calling principal to the request context.
// Requests without a principal ID are rejected.
func PrincipalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderPrincipalID))
		if id == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing "+HeaderPrincipalID+" header")
			return
		}
		role := auth.ParseRole(r.Header.Get(HeaderPrincipalRole))
		ctx := auth.WithPrincipal(r.Context(), auth.Principal{ID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// DataResponse wraps a successful payload.
type DataResponse struct {
	Data any `json:"data"`
}

func writeJSONError(w http.ResponseWriter, status int, kind, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            kind,
		ErrorDescription: description,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(DataResponse{Data: data})
}

// errorStatus maps a service error to an HTTP status and error kind.
func errorStatus(err error) (int, string) {
	var (
		notFound      model.NotFoundError
		dupCode       model.DuplicateCodeError
		unbalanced    model.UnbalancedEntryError
		invalidLine   model.InvalidLineError
		reconciled    model.AlreadyReconciledError
		void          model.AlreadyVoidError
		uncategorized model.UncategorizedTransactionError
		unknownTax    model.UnknownTaxConfigError
		authz         model.AuthorizationError
		validation    model.ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &dupCode):
		return http.StatusConflict, "duplicate_code"
	case errors.As(err, &reconciled):
		return http.StatusConflict, "already_reconciled"
	case errors.As(err, &void):
		return http.StatusConflict, "already_void"
	case errors.Is(err, bank.ErrDuplicate):
		return http.StatusConflict, "duplicate_transaction"
	case errors.As(err, &unbalanced):
		return http.StatusUnprocessableEntity, "unbalanced_entry"
	case errors.As(err, &invalidLine):
		return http.StatusUnprocessableEntity, "invalid_line"
	case errors.As(err, &uncategorized):
		return http.StatusUnprocessableEntity, "uncategorized_transaction"
	case errors.As(err, &unknownTax):
		return http.StatusUnprocessableEntity, "unknown_tax_config"
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.As(err, &authz):
		return http.StatusForbidden, "forbidden"
	}
	return http.StatusInternalServerError, "server_error"
}

// writeError renders err. Unexpected errors are logged and their text is
// not sent to the caller.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, kind := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSONError(w, status, kind, "Internal server error")
		return
	}
	writeJSONError(w, status, kind, err.Error())
}

// decode reads a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := jsonDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func jsonDecoder(r io.Reader) *json.Decoder {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec
}

const dateLayout = "2006-01-02"

// Date accepts either a calendar date or an RFC 3339 timestamp.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := parseDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// queryDate parses an optional date query parameter, writing a 400 when it
// is malformed.
func queryDate(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return time.Time{}, true
	}
	t, err := parseDate(s)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid "+name+" parameter")
		return time.Time{}, false
	}
	return t, true
}
