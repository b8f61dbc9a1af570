// Package reconcile turns bank transactions into journal entries. Posting
// the entry and marking the transaction reconciled commit together.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cleared-dev/ledger/internal/auth"
	"github.com/cleared-dev/ledger/internal/bank"
	"github.com/cleared-dev/ledger/internal/events"
	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/rules"
	"github.com/cleared-dev/ledger/internal/store"
	"github.com/cleared-dev/ledger/internal/tax"
)

// Coordinator reconciles bank transactions against the ledger.
type Coordinator struct {
	store   store.Store
	journal *journal.Engine
	bank    *bank.Ledger
	tax     *tax.Calculator
	log     *slog.Logger
}

// New creates a Coordinator. All services must share s.
func New(s store.Store, j *journal.Engine, b *bank.Ledger, t *tax.Calculator, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: s, journal: j, bank: b, tax: t, log: logger}
}

// Result is a reconciled transaction and the entry posted for it.
type Result struct {
	Transaction model.BankTransaction `json:"transaction"`
	Entry       model.JournalEntry    `json:"entry"`
	Decision    rules.Decision        `json:"decision"`
}

// Reconcile categorizes a bank transaction, posts the matching journal
// entry and marks the transaction reconciled, all in one store
// transaction. explicitCategory, when set, overrides rules and keywords.
func (c *Coordinator) Reconcile(ctx context.Context, txnID, explicitCategory string) (model.BankTransaction, error) {
	res, err := c.reconcile(ctx, txnID, explicitCategory)
	return res.Transaction, err
}

func (c *Coordinator) reconcile(ctx context.Context, txnID, explicitCategory string) (Result, error) {
	principal, err := auth.Require(ctx, "reconcile bank transaction")
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = c.store.Update(ctx, func(tx store.Tx) error {
		var err error
		res, err = c.reconcileTx(tx, txnID, explicitCategory)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	c.log.Info("transaction reconciled",
		"txn", res.Transaction.ID,
		"entry", res.Entry.ID,
		"category", res.Decision.Category.Name,
		"source", res.Decision.Source,
		"principal", principal.ID)
	c.journal.Publish(ctx, events.ForEntry(events.EntryPosted, principal.ID, res.Entry))
	c.bank.Publish(ctx, events.ForTransaction(events.TransactionReconciled, principal.ID, res.Transaction))
	return res, nil
}

func (c *Coordinator) reconcileTx(tx store.Tx, txnID, explicitCategory string) (Result, error) {
	txn, err := bank.LookupTransaction(tx, txnID)
	if err != nil {
		return Result{}, err
	}
	if txn.Reconciled() {
		return Result{}, model.AlreadyReconciledError{TransactionID: txn.ID}
	}
	acct, err := bank.LookupAccount(tx, txn.BankAccountID)
	if err != nil {
		return Result{}, err
	}

	d, err := decide(tx, txn, acct.Owner, explicitCategory)
	if err != nil {
		return Result{}, err
	}
	if acct.LedgerAccountID == "" {
		return Result{}, model.InvalidLineError{Line: -1, Reason: fmt.Sprintf("bank account %q has no clearing account", acct.Name)}
	}

	var taxLines *model.TaxLines
	if d.Category.TaxConfigID != "" {
		tl, err := c.tax.ComputeTaxLinesTx(tx, d.Category.TaxConfigID, txn.Amount)
		if err != nil {
			return Result{}, err
		}
		if tl.Amount.IsPositive() {
			taxLines = &tl
		}
	}

	advisor := ""
	if acct.Owner != model.FirmOwner {
		advisor = acct.Owner
	}
	entry, err := c.journal.PostTx(tx, journal.PostParams{
		Date:        txn.Date,
		Description: txn.Merchant,
		Reference:   txn.ID,
		Lines:       Lines(txn, d.Category, acct.LedgerAccountID, taxLines, advisor),
		Source:      model.SourceReconciliation,
	})
	if err != nil {
		return Result{}, err
	}

	txn, err = c.bank.MarkReconciledTx(tx, txn.ID, bank.Match{
		Category:       d.Category.Name,
		JournalEntryID: entry.ID,
		AutoMatched:    d.Auto(),
		RuleID:         d.RuleID,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Transaction: txn, Entry: entry, Decision: d}, nil
}

func decide(tx store.Tx, txn model.BankTransaction, owner, explicit string) (rules.Decision, error) {
	if explicit != "" {
		return rules.Explicit(tx, explicit)
	}
	d, ok, err := rules.Categorize(tx, txn, owner)
	if err != nil {
		return rules.Decision{}, err
	}
	if !ok {
		return rules.Decision{}, model.UncategorizedTransactionError{TransactionID: txn.ID}
	}
	return d, nil
}

// Lines builds the entry for a transaction. An outflow debits the category
// account and credits clearing; an inflow does the reverse. Tax lines, when
// given, follow the two base lines.
func Lines(txn model.BankTransaction, cat model.ExpenseCategory, clearingID string, taxLines *model.TaxLines, advisorID string) []model.LineInput {
	amount := txn.Amount.Abs()
	var lines []model.LineInput
	if txn.Outflow() {
		lines = []model.LineInput{
			model.DebitLine(cat.AccountID, amount, cat.Name),
			model.CreditLine(clearingID, amount, txn.Merchant),
		}
	} else {
		lines = []model.LineInput{
			model.DebitLine(clearingID, amount, txn.Merchant),
			model.CreditLine(cat.AccountID, amount, cat.Name),
		}
	}
	if taxLines != nil {
		lines = append(lines, taxLines.Expense, taxLines.Liability)
	}
	for i := range lines {
		lines[i].AdvisorID = advisorID
	}
	return lines
}

// Suggestion is what Reconcile would do for a transaction without an
// explicit category.
type Suggestion struct {
	Transaction model.BankTransaction `json:"transaction"`
	Decision    rules.Decision        `json:"decision"`
	Matched     bool                  `json:"matched"`
}

// Suggest reports the category a transaction would be reconciled under.
// Nothing is written.
func (c *Coordinator) Suggest(ctx context.Context, txnID string) (Suggestion, error) {
	if _, err := auth.Require(ctx, "suggest category"); err != nil {
		return Suggestion{}, err
	}
	var s Suggestion
	err := c.store.View(ctx, func(tx store.Tx) error {
		txn, err := bank.LookupTransaction(tx, txnID)
		if err != nil {
			return err
		}
		acct, err := bank.LookupAccount(tx, txn.BankAccountID)
		if err != nil {
			return err
		}
		d, ok, err := rules.Categorize(tx, txn, acct.Owner)
		if err != nil {
			return err
		}
		s = Suggestion{Transaction: txn, Decision: d, Matched: ok}
		return nil
	})
	return s, err
}

// Report summarizes a bulk reconciliation.
type Report struct {
	Reconciled    []Result `json:"reconciled"`
	Uncategorized []string `json:"uncategorized"`
}

// ReconcileAll reconciles every unreconciled transaction selected by f.
// Transactions nothing categorizes are listed in the report and skipped.
// Any other failure stops the run and is returned with the partial report.
func (c *Coordinator) ReconcileAll(ctx context.Context, f bank.TransactionFilter) (Report, error) {
	if _, err := auth.Require(ctx, "reconcile bank transactions"); err != nil {
		return Report{}, err
	}
	f.Unreconciled = true
	txns, err := c.bank.ListTransactions(ctx, f)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	// Oldest first so entry numbers follow the bank statement.
	for i := len(txns) - 1; i >= 0; i-- {
		res, err := c.reconcile(ctx, txns[i].ID, "")
		var uncategorized model.UncategorizedTransactionError
		var already model.AlreadyReconciledError
		switch {
		case err == nil:
			rep.Reconciled = append(rep.Reconciled, res)
		case errors.As(err, &uncategorized):
			rep.Uncategorized = append(rep.Uncategorized, txns[i].ID)
		case errors.As(err, &already):
		default:
			return rep, fmt.Errorf("reconciling %s: %w", txns[i].ID, err)
		}
	}
	c.log.Info("bulk reconcile finished", "reconciled", len(rep.Reconciled), "uncategorized", len(rep.Uncategorized))
	return rep, nil
}
