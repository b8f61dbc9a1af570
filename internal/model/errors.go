package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NotFoundError reports an entity id that did not resolve.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// DuplicateCodeError reports an account code collision.
type DuplicateCodeError struct {
	Code string
}

func (e DuplicateCodeError) Error() string {
	return fmt.Sprintf("account code %q already exists", e.Code)
}

// UnbalancedEntryError reports an entry whose debits differ from its credits.
// Delta is debits minus credits.
type UnbalancedEntryError struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
	Delta   decimal.Decimal
}

func (e UnbalancedEntryError) Error() string {
	return fmt.Sprintf("unbalanced entry: debits (%s) != credits (%s), delta %s",
		e.Debits.StringFixed(CurrencyPlaces), e.Credits.StringFixed(CurrencyPlaces), e.Delta.StringFixed(CurrencyPlaces))
}

// InvalidLineError reports a malformed journal line. Line is the zero-based
// position, or -1 when the problem is not tied to one line.
type InvalidLineError struct {
	Line   int
	Reason string
}

func (e InvalidLineError) Error() string {
	if e.Line < 0 {
		return "invalid entry: " + e.Reason
	}
	return fmt.Sprintf("invalid line %d: %s", e.Line, e.Reason)
}

// AlreadyReconciledError reports a second reconciliation of a bank transaction.
type AlreadyReconciledError struct {
	TransactionID string
}

func (e AlreadyReconciledError) Error() string {
	return fmt.Sprintf("bank transaction %q is already reconciled", e.TransactionID)
}

// AlreadyVoidError reports a second void of a journal entry.
type AlreadyVoidError struct {
	EntryID string
}

func (e AlreadyVoidError) Error() string {
	return fmt.Sprintf("journal entry %q is already void", e.EntryID)
}

// UncategorizedTransactionError reports a transaction no rule or keyword
// could categorize; the caller must supply a category.
type UncategorizedTransactionError struct {
	TransactionID string
}

func (e UncategorizedTransactionError) Error() string {
	return fmt.Sprintf("bank transaction %q has no category: supply one explicitly", e.TransactionID)
}

// UnknownTaxConfigError reports a tax config id that did not resolve.
type UnknownTaxConfigError struct {
	ID string
}

func (e UnknownTaxConfigError) Error() string {
	return fmt.Sprintf("unknown tax config %q", e.ID)
}

// AuthorizationError reports a principal lacking the role for an action.
type AuthorizationError struct {
	PrincipalID string
	Role        string
	Action      string
}

func (e AuthorizationError) Error() string {
	if e.PrincipalID == "" {
		return fmt.Sprintf("%s: no authenticated principal", e.Action)
	}
	return fmt.Sprintf("%s: principal %q with role %q is not allowed", e.Action, e.PrincipalID, e.Role)
}

// ValidationError reports input rejected at a component boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}
