// Package bank records bank accounts and the raw transactions delivered by
// bank feeds, and tracks their reconciliation state.
package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/auth"
	"github.com/cleared-dev/ledger/internal/events"
	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

// ErrDuplicate is returned when a feed record's external reference was
// already recorded for the bank account.
var ErrDuplicate = errors.New("duplicate bank transaction")

// TransactionFilter selects transactions for ListTransactions.
type TransactionFilter = store.TransactionFilter

// Ledger is the bank side of reconciliation.
type Ledger struct {
	store store.Store
	pub   events.Publisher
	log   *slog.Logger
	now   func() time.Time
}

// NewLedger creates a Ledger over s.
func NewLedger(s store.Store, pub events.Publisher, logger *slog.Logger) *Ledger {
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: s, pub: pub, log: logger, now: time.Now}
}

// AccountParams describes a bank account. LedgerAccountID is the clearing
// GL account (ID or chart code) that reconciliation posts against.
type AccountParams struct {
	Owner           string                `json:"owner,omitempty" yaml:"owner"`
	Institution     string                `json:"institution" yaml:"institution"`
	Name            string                `json:"name" yaml:"name"`
	Mask            string                `json:"mask,omitempty" yaml:"mask"`
	Type            model.BankAccountType `json:"type" yaml:"type"`
	Balance         decimal.Decimal       `json:"balance" yaml:"balance"`
	LedgerAccountID string                `json:"ledger_account_id,omitempty" yaml:"ledger_account"`
}

// AccountPatch lists the bank account fields an update may change.
type AccountPatch struct {
	Name            *string                  `json:"name,omitempty"`
	Status          *model.BankAccountStatus `json:"status,omitempty"`
	Balance         *decimal.Decimal         `json:"balance,omitempty"`
	LastSyncedAt    *time.Time               `json:"last_synced_at,omitempty"`
	LedgerAccountID *string                  `json:"ledger_account_id,omitempty"`
}

// CreateAccount adds a bank account. Without an explicit owner, accounts
// created by an ADMIN belong to the firm and others to their creator.
func (l *Ledger) CreateAccount(ctx context.Context, p AccountParams) (model.BankAccount, error) {
	principal, err := auth.Require(ctx, "create bank account")
	if err != nil {
		return model.BankAccount{}, err
	}
	if strings.TrimSpace(p.Name) == "" {
		return model.BankAccount{}, model.ValidationError{Field: "name", Reason: "required"}
	}
	if p.Type == "" {
		p.Type = model.BankChecking
	}
	switch p.Type {
	case model.BankChecking, model.BankSavings, model.BankCreditCard:
	default:
		return model.BankAccount{}, model.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown bank account type %q", p.Type)}
	}
	if p.Owner == "" {
		p.Owner = principal.ID
		if principal.Role == auth.RoleAdmin {
			p.Owner = model.FirmOwner
		}
	}

	acct := model.BankAccount{
		ID:          id.New(),
		Owner:       p.Owner,
		Institution: p.Institution,
		Name:        strings.TrimSpace(p.Name),
		Mask:        p.Mask,
		Type:        p.Type,
		Balance:     p.Balance,
		Status:      model.BankActive,
		CreatedAt:   l.now().UTC(),
	}
	err = l.store.Update(ctx, func(tx store.Tx) error {
		if p.LedgerAccountID != "" {
			var err error
			if acct.LedgerAccountID, err = resolveLedgerAccount(tx, p.LedgerAccountID); err != nil {
				return err
			}
		}
		return tx.InsertBankAccount(acct)
	})
	if err != nil {
		return model.BankAccount{}, err
	}
	l.log.Info("bank account created", "id", acct.ID, "name", acct.Name, "owner", acct.Owner)
	return acct, nil
}

func resolveLedgerAccount(tx store.Tx, ref string) (string, error) {
	acct, err := tx.GetAccount(ref)
	if errors.Is(err, store.ErrNotFound) {
		acct, err = tx.GetAccountByCode(ref)
	}
	if errors.Is(err, store.ErrNotFound) {
		return "", model.NotFoundError{Kind: "account", ID: ref}
	}
	if err != nil {
		return "", err
	}
	return acct.ID, nil
}

// GetAccount returns a bank account.
func (l *Ledger) GetAccount(ctx context.Context, bankAccountID string) (model.BankAccount, error) {
	var acct model.BankAccount
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		acct, err = LookupAccount(tx, bankAccountID)
		return err
	})
	return acct, err
}

// LookupAccount loads a bank account inside tx.
func LookupAccount(tx store.Tx, bankAccountID string) (model.BankAccount, error) {
	acct, err := tx.GetBankAccount(bankAccountID)
	if errors.Is(err, store.ErrNotFound) {
		return model.BankAccount{}, model.NotFoundError{Kind: "bank account", ID: bankAccountID}
	}
	return acct, err
}

// ListAccounts returns the bank accounts of owner, or all when owner is "".
func (l *Ledger) ListAccounts(ctx context.Context, owner string) ([]model.BankAccount, error) {
	var out []model.BankAccount
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListBankAccounts(owner)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing bank accounts: %w", err)
	}
	return out, nil
}

// UpdateAccount applies p to a bank account.
func (l *Ledger) UpdateAccount(ctx context.Context, bankAccountID string, p AccountPatch) (model.BankAccount, error) {
	if _, err := auth.Require(ctx, "update bank account"); err != nil {
		return model.BankAccount{}, err
	}
	if p.Status != nil {
		switch *p.Status {
		case model.BankActive, model.BankError, model.BankDisconnected:
		default:
			return model.BankAccount{}, model.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *p.Status)}
		}
	}

	var acct model.BankAccount
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		acct, err = LookupAccount(tx, bankAccountID)
		if err != nil {
			return err
		}
		if p.Name != nil {
			acct.Name = strings.TrimSpace(*p.Name)
		}
		if p.Status != nil {
			acct.Status = *p.Status
		}
		if p.Balance != nil {
			acct.Balance = *p.Balance
		}
		if p.LastSyncedAt != nil {
			acct.LastSyncedAt = p.LastSyncedAt.UTC()
		}
		if p.LedgerAccountID != nil {
			acct.LedgerAccountID = ""
			if *p.LedgerAccountID != "" {
				if acct.LedgerAccountID, err = resolveLedgerAccount(tx, *p.LedgerAccountID); err != nil {
					return err
				}
			}
		}
		return tx.UpdateBankAccount(acct)
	})
	if err != nil {
		return model.BankAccount{}, err
	}
	return acct, nil
}

// RecordParams is one transaction as delivered by a bank feed.
type RecordParams struct {
	BankAccountID string              `json:"bank_account_id"`
	Date          time.Time           `json:"date"`
	Merchant      string              `json:"merchant"`
	Description   string              `json:"description,omitempty"`
	Amount        decimal.Decimal     `json:"amount"`
	ExternalRef   string              `json:"external_ref,omitempty"`
	Status        model.BankTxnStatus `json:"status,omitempty"`
}

// Validate rejects malformed feed records before they reach storage.
func (p RecordParams) Validate() error {
	switch {
	case p.BankAccountID == "":
		return model.ValidationError{Field: "bank_account_id", Reason: "required"}
	case p.Date.IsZero():
		return model.ValidationError{Field: "date", Reason: "required"}
	case strings.TrimSpace(p.Merchant) == "":
		return model.ValidationError{Field: "merchant", Reason: "required"}
	case p.Amount.IsZero():
		return model.ValidationError{Field: "amount", Reason: "must not be zero"}
	case !model.HasCurrencyPrecision(p.Amount):
		return model.ValidationError{Field: "amount", Reason: fmt.Sprintf("more than %d decimal places", model.CurrencyPlaces)}
	}
	switch p.Status {
	case "", model.TxnPending, model.TxnPosted:
	default:
		return model.ValidationError{Field: "status", Reason: fmt.Sprintf("feed status must be pending or posted, got %q", p.Status)}
	}
	return nil
}

// RecordTransaction stores a feed transaction. A record whose external
// reference was already seen for the account fails with ErrDuplicate.
func (l *Ledger) RecordTransaction(ctx context.Context, p RecordParams) (model.BankTransaction, error) {
	principal, err := auth.Require(ctx, "record bank transaction")
	if err != nil {
		return model.BankTransaction{}, err
	}
	if err := p.Validate(); err != nil {
		return model.BankTransaction{}, err
	}
	if p.Status == "" {
		p.Status = model.TxnPending
	}

	now := l.now().UTC()
	txn := model.BankTransaction{
		ID:            id.New(),
		BankAccountID: p.BankAccountID,
		Date:          p.Date.UTC(),
		Merchant:      strings.TrimSpace(p.Merchant),
		Description:   p.Description,
		Amount:        p.Amount,
		Status:        p.Status,
		ExternalRef:   p.ExternalRef,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = l.store.Update(ctx, func(tx store.Tx) error {
		acct, err := tx.GetBankAccount(p.BankAccountID)
		if errors.Is(err, store.ErrNotFound) {
			return model.ValidationError{Field: "bank_account_id", Reason: fmt.Sprintf("unknown bank account %q", p.BankAccountID)}
		}
		if err != nil {
			return err
		}
		if acct.Status == model.BankDisconnected {
			return model.ValidationError{Field: "bank_account_id", Reason: fmt.Sprintf("bank account %q is disconnected", acct.Name)}
		}
		err = tx.InsertBankTransaction(txn)
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("%w: %s on %s", ErrDuplicate, p.ExternalRef, acct.Name)
		}
		return err
	})
	if err != nil {
		return model.BankTransaction{}, err
	}

	l.log.Debug("bank transaction recorded", "id", txn.ID, "merchant", txn.Merchant, "amount", txn.Amount.String())
	l.Publish(ctx, events.ForTransaction(events.TransactionRecorded, principal.ID, txn))
	return txn, nil
}

// TransactionPatch lists the transaction fields an update may change.
// Reconciliation state is changed only through MarkReconciled.
type TransactionPatch struct {
	Date        *time.Time           `json:"date,omitempty"`
	Merchant    *string              `json:"merchant,omitempty"`
	Description *string              `json:"description,omitempty"`
	Amount      *decimal.Decimal     `json:"amount,omitempty"`
	Status      *model.BankTxnStatus `json:"status,omitempty"`
	Category    *string              `json:"category,omitempty"`
	ReceiptRef  *string              `json:"receipt_ref,omitempty"`
}

// UpdateTransaction applies p. Reconciled transactions keep their date,
// amount, status and category, since a posted entry depends on them.
func (l *Ledger) UpdateTransaction(ctx context.Context, txnID string, p TransactionPatch) (model.BankTransaction, error) {
	if _, err := auth.Require(ctx, "update bank transaction"); err != nil {
		return model.BankTransaction{}, err
	}

	var txn model.BankTransaction
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		txn, err = LookupTransaction(tx, txnID)
		if err != nil {
			return err
		}
		if err := applyPatch(&txn, p); err != nil {
			return err
		}
		txn.UpdatedAt = l.now().UTC()
		return tx.UpdateBankTransaction(txn)
	})
	if err != nil {
		return model.BankTransaction{}, err
	}
	return txn, nil
}

func applyPatch(txn *model.BankTransaction, p TransactionPatch) error {
	if txn.Reconciled() {
		switch {
		case p.Date != nil:
			return model.ValidationError{Field: "date", Reason: "transaction is reconciled"}
		case p.Amount != nil:
			return model.ValidationError{Field: "amount", Reason: "transaction is reconciled"}
		case p.Status != nil:
			return model.ValidationError{Field: "status", Reason: "transaction is reconciled"}
		case p.Category != nil:
			return model.ValidationError{Field: "category", Reason: "transaction is reconciled"}
		}
	}
	if p.Date != nil {
		if p.Date.IsZero() {
			return model.ValidationError{Field: "date", Reason: "required"}
		}
		txn.Date = p.Date.UTC()
	}
	if p.Merchant != nil {
		if strings.TrimSpace(*p.Merchant) == "" {
			return model.ValidationError{Field: "merchant", Reason: "required"}
		}
		txn.Merchant = strings.TrimSpace(*p.Merchant)
	}
	if p.Description != nil {
		txn.Description = *p.Description
	}
	if p.Amount != nil {
		if p.Amount.IsZero() || !model.HasCurrencyPrecision(*p.Amount) {
			return model.ValidationError{Field: "amount", Reason: "must be a non-zero amount in cents"}
		}
		txn.Amount = *p.Amount
	}
	if p.Status != nil && *p.Status != txn.Status {
		if txn.Status != model.TxnPending || *p.Status != model.TxnPosted {
			return model.ValidationError{Field: "status", Reason: fmt.Sprintf("cannot move from %s to %s", txn.Status, *p.Status)}
		}
		txn.Status = *p.Status
	}
	if p.Category != nil {
		txn.Category = *p.Category
	}
	if p.ReceiptRef != nil {
		txn.ReceiptRef = *p.ReceiptRef
	}
	return nil
}

// GetTransaction returns a bank transaction.
func (l *Ledger) GetTransaction(ctx context.Context, txnID string) (model.BankTransaction, error) {
	var txn model.BankTransaction
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		txn, err = LookupTransaction(tx, txnID)
		return err
	})
	return txn, err
}

// LookupTransaction loads a bank transaction inside tx.
func LookupTransaction(tx store.Tx, txnID string) (model.BankTransaction, error) {
	txn, err := tx.GetBankTransaction(txnID)
	if errors.Is(err, store.ErrNotFound) {
		return model.BankTransaction{}, model.NotFoundError{Kind: "bank transaction", ID: txnID}
	}
	return txn, err
}

// ListTransactions returns transactions newest first.
func (l *Ledger) ListTransactions(ctx context.Context, f TransactionFilter) ([]model.BankTransaction, error) {
	var out []model.BankTransaction
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListBankTransactions(f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing bank transactions: %w", err)
	}
	return out, nil
}

// Match is the outcome of reconciling a transaction.
type Match struct {
	Category       string
	JournalEntryID string
	AutoMatched    bool
	RuleID         string
}

// MarkReconciled records that txnID was matched to a journal entry.
func (l *Ledger) MarkReconciled(ctx context.Context, txnID, category, journalEntryID string) (model.BankTransaction, error) {
	principal, err := auth.Require(ctx, "reconcile bank transaction")
	if err != nil {
		return model.BankTransaction{}, err
	}

	var txn model.BankTransaction
	err = l.store.Update(ctx, func(tx store.Tx) error {
		_, err := tx.GetEntry(journalEntryID)
		if errors.Is(err, store.ErrNotFound) {
			return model.NotFoundError{Kind: "journal entry", ID: journalEntryID}
		}
		if err != nil {
			return fmt.Errorf("loading journal entry %s: %w", journalEntryID, err)
		}
		txn, err = l.MarkReconciledTx(tx, txnID, Match{Category: category, JournalEntryID: journalEntryID})
		return err
	})
	if err != nil {
		return model.BankTransaction{}, err
	}
	l.Publish(ctx, events.ForTransaction(events.TransactionReconciled, principal.ID, txn))
	return txn, nil
}

// MarkReconciledTx marks a transaction reconciled inside a caller's
// transaction. A second call for the same transaction fails with
// AlreadyReconciledError.
func (l *Ledger) MarkReconciledTx(tx store.Tx, txnID string, m Match) (model.BankTransaction, error) {
	txn, err := LookupTransaction(tx, txnID)
	if err != nil {
		return model.BankTransaction{}, err
	}
	if txn.Reconciled() {
		return model.BankTransaction{}, model.AlreadyReconciledError{TransactionID: txn.ID}
	}
	if m.JournalEntryID == "" {
		return model.BankTransaction{}, model.ValidationError{Field: "journal_entry_id", Reason: "required"}
	}

	txn.Status = model.TxnReconciled
	txn.Category = m.Category
	txn.JournalEntryID = m.JournalEntryID
	txn.AutoMatched = m.AutoMatched
	txn.MatchedRuleID = m.RuleID
	txn.UpdatedAt = l.now().UTC()
	if err := tx.UpdateBankTransaction(txn); err != nil {
		return model.BankTransaction{}, fmt.Errorf("marking %s reconciled: %w", txn.ID, err)
	}
	return txn, nil
}

// Publish sends an event, logging failures.
func (l *Ledger) Publish(ctx context.Context, ev events.Event) {
	if err := l.pub.Publish(ctx, ev); err != nil {
		l.log.Warn("publishing event failed", "kind", ev.Kind, "subject", ev.SubjectID, "err", err)
	}
}
