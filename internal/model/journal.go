package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryStatus represents the lifecycle state of a journal entry.
type EntryStatus string

const (
	StatusDraft  EntryStatus = "draft"
	StatusPosted EntryStatus = "posted"
	StatusVoid   EntryStatus = "void"
)

// EntrySource records which flow produced an entry.
type EntrySource string

const (
	SourceManual         EntrySource = "manual"
	SourceReconciliation EntrySource = "reconciliation"
	SourceReversal       EntrySource = "reversal"
)

// JournalEntry is a dated group of lines whose debits equal its credits.
type JournalEntry struct {
	ID          string        `json:"id"` // "YYYY-MM-NNN"
	Date        time.Time     `json:"date"`
	Description string        `json:"description"`
	Reference   string        `json:"reference,omitempty"`
	Status      EntryStatus   `json:"status"`
	Source      EntrySource   `json:"source"`
	ReversalOf  string        `json:"reversal_of,omitempty"`
	ReversedBy  string        `json:"reversed_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	Lines       []JournalLine `json:"lines"`
}

// Totals returns the sum of debits and credits across the entry's lines.
func (e JournalEntry) Totals() (debits, credits decimal.Decimal) {
	debits, credits = decimal.Zero, decimal.Zero
	for _, l := range e.Lines {
		debits = debits.Add(l.Debit)
		credits = credits.Add(l.Credit)
	}
	return debits, credits
}

// JournalLine is one side of a double entry against a single account.
type JournalLine struct {
	ID        string          `json:"id"` // entry ID + leg letter
	EntryID   string          `json:"entry_id"`
	Position  int             `json:"position"`
	AccountID string          `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo,omitempty"`
	AdvisorID string          `json:"advisor_id,omitempty"`
}

// LineInput is a line submitted for posting, before it is numbered.
type LineInput struct {
	AccountID string          `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo,omitempty"`
	AdvisorID string          `json:"advisor_id,omitempty"`
}

// DebitLine is shorthand for a debit-side line input.
func DebitLine(accountID string, amount decimal.Decimal, memo string) LineInput {
	return LineInput{AccountID: accountID, Debit: amount, Memo: memo}
}

// CreditLine is shorthand for a credit-side line input.
func CreditLine(accountID string, amount decimal.Decimal, memo string) LineInput {
	return LineInput{AccountID: accountID, Credit: amount, Memo: memo}
}
