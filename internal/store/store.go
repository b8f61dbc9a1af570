// Package store defines the transactional persistence boundary shared by the
// ledger components. Every mutation happens inside Update, so an entry and
// the balance changes it causes become visible together or not at all.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cleared-dev/ledger/internal/model"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("record already exists")

	// ErrReadOnly is returned when a write is attempted inside View.
	ErrReadOnly = errors.New("write in read-only transaction")
)

// Store opens read and read-write transactions.
type Store interface {
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(Tx) error) error
	// Update runs fn in a read-write transaction. The transaction commits
	// only if fn returns nil and ctx is still live; otherwise every write
	// made through the Tx is discarded.
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// Tx is the set of record operations available inside a transaction.
type Tx interface {
	InsertAccount(a model.Account) error
	GetAccount(id string) (model.Account, error)
	GetAccountByCode(code string) (model.Account, error)
	UpdateAccount(a model.Account) error
	ListAccounts() ([]model.Account, error)

	// NextEntrySeq reserves the next entry sequence number of a period.
	NextEntrySeq(period string) (int, error)
	InsertEntry(e model.JournalEntry) error
	GetEntry(id string) (model.JournalEntry, error)
	UpdateEntry(e model.JournalEntry) error
	ListEntries(f EntryFilter) ([]model.JournalEntry, error)

	InsertBankAccount(a model.BankAccount) error
	GetBankAccount(id string) (model.BankAccount, error)
	UpdateBankAccount(a model.BankAccount) error
	ListBankAccounts(owner string) ([]model.BankAccount, error)

	InsertBankTransaction(t model.BankTransaction) error
	GetBankTransaction(id string) (model.BankTransaction, error)
	FindBankTransactionByRef(bankAccountID, ref string) (model.BankTransaction, error)
	UpdateBankTransaction(t model.BankTransaction) error
	ListBankTransactions(f TransactionFilter) ([]model.BankTransaction, error)

	InsertRule(r model.BankRule) error
	GetRule(id string) (model.BankRule, error)
	UpdateRule(r model.BankRule) error
	DeleteRule(id string) error
	ListRules(owner string) ([]model.BankRule, error)

	InsertCategory(c model.ExpenseCategory) error
	GetCategory(id string) (model.ExpenseCategory, error)
	GetCategoryByName(name string) (model.ExpenseCategory, error)
	ListCategories() ([]model.ExpenseCategory, error)

	InsertTaxConfig(c model.TaxConfig) error
	GetTaxConfig(id string) (model.TaxConfig, error)
	UpdateTaxConfig(c model.TaxConfig) error
	ListTaxConfigs() ([]model.TaxConfig, error)
}

// EntryFilter selects journal entries. Results are ordered by date
// descending, then entry ID descending. Zero values do not filter.
type EntryFilter struct {
	From      time.Time // inclusive
	To        time.Time // inclusive
	Status    model.EntryStatus
	AccountID string
	Reference string
	// After keeps only entries that sort after the cursor, so a reader can
	// page with a stable position while new entries are posted.
	After  *EntryCursor
	Limit  int
	Offset int
}

// EntryCursor is a position in the (date desc, id desc) entry order.
type EntryCursor struct {
	Date time.Time
	ID   string
}

// CursorOf returns the cursor positioned at e.
func CursorOf(e model.JournalEntry) *EntryCursor {
	return &EntryCursor{Date: e.Date, ID: e.ID}
}

// Follows reports whether e sorts strictly after c.
func (c EntryCursor) Follows(e model.JournalEntry) bool {
	if !e.Date.Equal(c.Date) {
		return e.Date.Before(c.Date)
	}
	return e.ID < c.ID
}

// Match reports whether e passes every non-zero criterion except Limit and
// Offset.
func (f EntryFilter) Match(e model.JournalEntry) bool {
	if f.After != nil && !f.After.Follows(e) {
		return false
	}
	if !f.From.IsZero() && e.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Date.After(f.To) {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Reference != "" && e.Reference != f.Reference {
		return false
	}
	if f.AccountID != "" {
		for _, l := range e.Lines {
			if l.AccountID == f.AccountID {
				return true
			}
		}
		return false
	}
	return true
}

// TransactionFilter selects bank transactions. Results are ordered by date
// descending, then creation time descending.
type TransactionFilter struct {
	BankAccountID string
	Status        model.BankTxnStatus
	Unreconciled  bool
	From          time.Time
	To            time.Time
}

// Match reports whether t passes every non-zero criterion.
func (f TransactionFilter) Match(t model.BankTransaction) bool {
	if f.BankAccountID != "" && t.BankAccountID != f.BankAccountID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Unreconciled && t.Reconciled() {
		return false
	}
	if !f.From.IsZero() && t.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.Date.After(f.To) {
		return false
	}
	return true
}
