package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FirmOwner owns bank accounts and rules that are not tied to one advisor.
const FirmOwner = "firm"

// BankAccountType is the kind of account held at the institution.
type BankAccountType string

const (
	BankChecking   BankAccountType = "checking"
	BankSavings    BankAccountType = "savings"
	BankCreditCard BankAccountType = "credit_card"
)

// BankAccountStatus is the feed connection state of a bank account.
type BankAccountStatus string

const (
	BankActive       BankAccountStatus = "active"
	BankError        BankAccountStatus = "error"
	BankDisconnected BankAccountStatus = "disconnected"
)

// BankAccount mirrors an account at an external financial institution.
type BankAccount struct {
	ID              string            `json:"id"`
	Owner           string            `json:"owner"`
	Institution     string            `json:"institution"`
	Name            string            `json:"name"`
	Mask            string            `json:"mask"` // last four digits
	Type            BankAccountType   `json:"type"`
	Balance         decimal.Decimal   `json:"balance"`
	LastSyncedAt    time.Time         `json:"last_synced_at,omitzero"`
	Status          BankAccountStatus `json:"status"`
	LedgerAccountID string            `json:"ledger_account_id,omitempty"` // clearing GL account
	CreatedAt       time.Time         `json:"created_at"`
}

// BankTxnStatus is the lifecycle state of a bank transaction.
type BankTxnStatus string

const (
	TxnPending    BankTxnStatus = "pending"
	TxnPosted     BankTxnStatus = "posted"
	TxnReconciled BankTxnStatus = "reconciled"
)

// BankTransaction is a raw transaction delivered by a bank feed.
type BankTransaction struct {
	ID             string          `json:"id"`
	BankAccountID  string          `json:"bank_account_id"`
	Date           time.Time       `json:"date"`
	Merchant       string          `json:"merchant"`
	Description    string          `json:"description,omitempty"`
	Amount         decimal.Decimal `json:"amount"` // negative = outflow
	Status         BankTxnStatus   `json:"status"`
	Category       string          `json:"category,omitempty"`
	ReceiptRef     string          `json:"receipt_ref,omitempty"`
	JournalEntryID string          `json:"journal_entry_id,omitempty"`
	AutoMatched    bool            `json:"auto_matched"`
	MatchedRuleID  string          `json:"matched_rule_id,omitempty"`
	ExternalRef    string          `json:"external_ref,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Outflow reports whether money left the bank account.
func (t BankTransaction) Outflow() bool {
	return t.Amount.IsNegative()
}

// Reconciled reports whether the transaction has been matched to the ledger.
func (t BankTransaction) Reconciled() bool {
	return t.Status == TxnReconciled
}
