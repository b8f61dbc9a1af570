package journal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
)

// ValidateLines checks line shape and the balance law. It does not look at
// the chart of accounts; posting does that inside the store transaction.
//
// Line rules: an account reference, non-negative amounts with at most two
// decimal places, and exactly one of debit or credit non-zero.
func ValidateLines(lines []model.LineInput) error {
	if err := validateShape(lines); err != nil {
		return err
	}
	return checkBalance(lines)
}

func validateShape(lines []model.LineInput) error {
	if len(lines) == 0 {
		return model.InvalidLineError{Line: -1, Reason: "entry has no lines"}
	}
	for i, l := range lines {
		if strings.TrimSpace(l.AccountID) == "" {
			return model.InvalidLineError{Line: i, Reason: "missing account"}
		}
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return model.InvalidLineError{Line: i, Reason: "amounts must not be negative"}
		}
		hasDebit := !l.Debit.IsZero()
		hasCredit := !l.Credit.IsZero()
		if hasDebit && hasCredit {
			return model.InvalidLineError{Line: i, Reason: "line has both a debit and a credit"}
		}
		if !hasDebit && !hasCredit {
			return model.InvalidLineError{Line: i, Reason: "line has neither a debit nor a credit"}
		}
		if !model.HasCurrencyPrecision(l.Debit) || !model.HasCurrencyPrecision(l.Credit) {
			return model.InvalidLineError{Line: i, Reason: fmt.Sprintf("amount has more than %d decimal places", model.CurrencyPlaces)}
		}
	}
	return nil
}

func checkBalance(lines []model.LineInput) error {
	debits, credits := decimal.Zero, decimal.Zero
	for _, l := range lines {
		debits = debits.Add(l.Debit)
		credits = credits.Add(l.Credit)
	}
	if !debits.Equal(credits) {
		return model.UnbalancedEntryError{Debits: debits, Credits: credits, Delta: debits.Sub(credits)}
	}
	return nil
}

// Reverse returns lines that undo e: every debit becomes a credit and vice
// versa, in the original order.
func Reverse(e model.JournalEntry) []model.LineInput {
	out := make([]model.LineInput, len(e.Lines))
	for i, l := range e.Lines {
		out[i] = model.LineInput{
			AccountID: l.AccountID,
			Debit:     l.Credit,
			Credit:    l.Debit,
			Memo:      l.Memo,
			AdvisorID: l.AdvisorID,
		}
	}
	return out
}
