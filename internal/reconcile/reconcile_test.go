package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/auth"
	"github.com/cleared-dev/ledger/internal/bank"
	"github.com/cleared-dev/ledger/internal/events"
	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/rules"
	"github.com/cleared-dev/ledger/internal/store"
	"github.com/cleared-dev/ledger/internal/store/memory"
	"github.com/cleared-dev/ledger/internal/tax"
)

var (
	adminCtx   = auth.WithPrincipal(context.Background(), auth.Principal{ID: "admin-1", Role: auth.RoleAdmin})
	advisorCtx = auth.WithPrincipal(context.Background(), auth.Principal{ID: "adv-1", Role: auth.RoleAdvisor})
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y, m, d int) time.Time { return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC) }

// cancelOnUpdate cancels the caller's context after the transaction body
// runs and before the store decides whether to commit.
type cancelOnUpdate struct {
	store.Store
	cancel context.CancelFunc
}

func (s cancelOnUpdate) Update(ctx context.Context, fn func(store.Tx) error) error {
	return s.Store.Update(ctx, func(tx store.Tx) error {
		err := fn(tx)
		s.cancel()
		return err
	})
}

type fixture struct {
	store    store.Store
	reg      *accounts.Registry
	journal  *journal.Engine
	bank     *bank.Ledger
	book     *rules.Book
	tax      *tax.Calculator
	coord    *Coordinator
	events   *events.Recorder
	checking model.BankAccount
	coffee   model.BankRule
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, memory.New())
}

func newFixtureOn(t *testing.T, s store.Store) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := &events.Recorder{}
	f := &fixture{store: s, events: rec}

	f.reg = accounts.NewRegistry(s, logger)
	_, err := f.reg.Import(adminCtx, accounts.DefaultChart(accounts.EntitySoleProp))
	require.NoError(t, err)

	f.journal = journal.NewEngine(s, f.reg, rec, logger)
	f.bank = bank.NewLedger(s, rec, logger)
	f.book = rules.NewBook(s, logger)
	f.tax = tax.NewCalculator(s, logger)
	f.coord = New(s, f.journal, f.bank, f.tax, logger)

	salesTax, err := f.tax.Create(adminCtx, tax.Params{Name: "State sales tax", Rate: dec("0.0825"), LiabilityAccountID: "2200", ExpenseAccountID: "5900"})
	require.NoError(t, err)

	for _, p := range []rules.CategoryParams{
		{Name: "Meals", AccountID: "5100", TaxDeductible: true},
		{Name: "Office Supplies", AccountID: "5030", TaxDeductible: true, Keywords: []string{"staples"}, TaxConfigID: salesTax.ID},
		{Name: "Consulting Income", AccountID: "4010"},
	} {
		_, err := f.book.CreateCategory(adminCtx, p)
		require.NoError(t, err)
	}

	f.coffee, err = f.book.CreateRule(adminCtx, rules.RuleParams{
		Name:       "Coffee",
		Category:   "Meals",
		Conditions: []model.Condition{{Field: model.FieldMerchant, Operator: model.OpContains, Value: "STARBUCKS"}},
	})
	require.NoError(t, err)

	f.checking, err = f.bank.CreateAccount(adminCtx, bank.AccountParams{Institution: "Chase", Name: "Business Checking", LedgerAccountID: "1050"})
	require.NoError(t, err)
	return f
}

func (f *fixture) record(t *testing.T, merchant, amount string, day int) model.BankTransaction {
	t.Helper()
	txn, err := f.bank.RecordTransaction(advisorCtx, bank.RecordParams{
		BankAccountID: f.checking.ID,
		Date:          date(2025, 1, day),
		Merchant:      merchant,
		Amount:        dec(amount),
	})
	require.NoError(t, err)
	return txn
}

func (f *fixture) balance(t *testing.T, code string) decimal.Decimal {
	t.Helper()
	a, err := f.reg.GetByCode(context.Background(), code)
	require.NoError(t, err)
	return a.Balance
}

func (f *fixture) code(t *testing.T, accountID string) string {
	t.Helper()
	a, err := f.reg.Get(context.Background(), accountID)
	require.NoError(t, err)
	return a.Code
}

func (f *fixture) entriesFor(t *testing.T, txnID string) []model.JournalEntry {
	t.Helper()
	entries, err := f.journal.Collect(context.Background(), journal.Filter{Reference: txnID})
	require.NoError(t, err)
	return entries
}

func TestReconcileByRule(t *testing.T) {
	f := newFixture(t)
	txn := f.record(t, "STARBUCKS #4021", "-6.25", 10)

	got, err := f.coord.Reconcile(advisorCtx, txn.ID, "")
	require.NoError(t, err)
	assert.True(t, got.Reconciled())
	assert.Equal(t, "Meals", got.Category)
	assert.True(t, got.AutoMatched)
	assert.Equal(t, f.coffee.ID, got.MatchedRuleID)

	entries := f.entriesFor(t, txn.ID)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, got.JournalEntryID, e.ID)
	assert.Equal(t, "2025-01-001", e.ID)
	assert.Equal(t, model.SourceReconciliation, e.Source)
	assert.Equal(t, txn.Date, e.Date)
	require.Len(t, e.Lines, 2)
	assert.Equal(t, "5100", f.code(t, e.Lines[0].AccountID))
	assert.True(t, e.Lines[0].Debit.Equal(dec("6.25")))
	assert.Equal(t, "1050", f.code(t, e.Lines[1].AccountID))
	assert.True(t, e.Lines[1].Credit.Equal(dec("6.25")))

	assert.True(t, f.balance(t, "5100").Equal(dec("6.25")))
	assert.True(t, f.balance(t, "1050").Equal(dec("-6.25")))

	assert.Len(t, f.events.OfKind(events.TransactionReconciled), 1)
	assert.Len(t, f.events.OfKind(events.EntryPosted), 1)
}

func TestReconcileExplicitCategoryWithTax(t *testing.T) {
	f := newFixture(t)
	txn := f.record(t, "OFFICE DEPOT", "-100.00", 12)

	got, err := f.coord.Reconcile(advisorCtx, txn.ID, "office supplies")
	require.NoError(t, err)
	assert.Equal(t, "Office Supplies", got.Category)
	assert.False(t, got.AutoMatched)
	assert.Empty(t, got.MatchedRuleID)

	e := f.entriesFor(t, txn.ID)[0]
	require.Len(t, e.Lines, 4)
	want := []struct {
		code          string
		debit, credit string
	}{
		{"5030", "100.00", "0"},
		{"1050", "0", "100.00"},
		{"5900", "8.25", "0"},
		{"2200", "0", "8.25"},
	}
	for i, w := range want {
		assert.Equal(t, w.code, f.code(t, e.Lines[i].AccountID), "line %d", i)
		assert.True(t, e.Lines[i].Debit.Equal(dec(w.debit)), "line %d debit", i)
		assert.True(t, e.Lines[i].Credit.Equal(dec(w.credit)), "line %d credit", i)
	}
	assert.True(t, f.balance(t, "2200").Equal(dec("8.25")))
}

func TestReconcileInflow(t *testing.T) {
	f := newFixture(t)
	txn := f.record(t, "STRIPE TRANSFER", "1500.00", 15)

	_, err := f.coord.Reconcile(advisorCtx, txn.ID, "Consulting Income")
	require.NoError(t, err)

	e := f.entriesFor(t, txn.ID)[0]
	require.Len(t, e.Lines, 2)
	assert.Equal(t, "1050", f.code(t, e.Lines[0].AccountID))
	assert.True(t, e.Lines[0].Debit.Equal(dec("1500")))
	assert.Equal(t, "4010", f.code(t, e.Lines[1].AccountID))
	assert.True(t, e.Lines[1].Credit.Equal(dec("1500")))
	assert.True(t, f.balance(t, "4010").Equal(dec("1500")))
}

func TestReconcileKeywordFallback(t *testing.T) {
	f := newFixture(t)
	txn := f.record(t, "STAPLES 0042", "-20.00", 11)

	got, err := f.coord.Reconcile(advisorCtx, txn.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Office Supplies", got.Category)
	assert.True(t, got.AutoMatched)
	assert.Empty(t, got.MatchedRuleID)
	assert.Len(t, f.entriesFor(t, txn.ID)[0].Lines, 4, "category carries sales tax")
}

func TestReconcileExactlyOnce(t *testing.T) {
	f := newFixture(t)
	txn := f.record(t, "STARBUCKS #4021", "-6.25", 10)

	_, err := f.coord.Reconcile(advisorCtx, txn.ID, "")
	require.NoError(t, err)

	_, err = f.coord.Reconcile(advisorCtx, txn.ID, "Meals")
	var already model.AlreadyReconciledError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, txn.ID, already.TransactionID)

	assert.Len(t, f.entriesFor(t, txn.ID), 1)
	assert.True(t, f.balance(t, "5100").Equal(dec("6.25")))
}

func TestReconcileConcurrent(t *testing.T) {
	f := newFixture(t)
	txn := f.record(t, "STARBUCKS #4021", "-6.25", 10)

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.Reconcile(advisorCtx, txn.ID, "")
			mu.Lock()
			defer mu.Unlock()
			var already model.AlreadyReconciledError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &already):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, rejected)
	assert.Len(t, f.entriesFor(t, txn.ID), 1)
	assert.True(t, f.balance(t, "1050").Equal(dec("-6.25")))
}

func TestReconcileErrors(t *testing.T) {
	f := newFixture(t)
	rent := f.record(t, "LANDLORD LLC", "-2000.00", 1)

	_, err := f.coord.Reconcile(advisorCtx, rent.ID, "")
	var uncategorized model.UncategorizedTransactionError
	require.ErrorAs(t, err, &uncategorized)
	assert.Equal(t, rent.ID, uncategorized.TransactionID)

	_, err = f.coord.Reconcile(advisorCtx, rent.ID, "Rent")
	var nf model.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "expense category", nf.Kind)

	_, err = f.coord.Reconcile(advisorCtx, "missing", "Meals")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "bank transaction", nf.Kind)

	_, err = f.coord.Reconcile(context.Background(), rent.ID, "Meals")
	var authErr model.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	got, err := f.bank.GetTransaction(context.Background(), rent.ID)
	require.NoError(t, err)
	assert.False(t, got.Reconciled())
	assert.Empty(t, f.entriesFor(t, rent.ID))
}

func TestReconcileWithoutClearingAccount(t *testing.T) {
	f := newFixture(t)
	card, err := f.bank.CreateAccount(adminCtx, bank.AccountParams{Name: "Amex", Type: model.BankCreditCard})
	require.NoError(t, err)
	txn, err := f.bank.RecordTransaction(advisorCtx, bank.RecordParams{BankAccountID: card.ID, Date: date(2025, 1, 3), Merchant: "STARBUCKS", Amount: dec("-4.50")})
	require.NoError(t, err)

	_, err = f.coord.Reconcile(advisorCtx, txn.ID, "")
	var lineErr model.InvalidLineError
	require.ErrorAs(t, err, &lineErr)

	got, err := f.bank.GetTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.False(t, got.Reconciled())
}

func TestReconcileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(advisorCtx)
	defer cancel()
	s := cancelOnUpdate{Store: memory.New(), cancel: func() {}}
	f := newFixtureOn(t, s)
	txn := f.record(t, "STARBUCKS #4021", "-6.25", 10)

	s.cancel = cancel
	f.coord = New(s, f.journal, f.bank, f.tax, nil)

	_, err := f.coord.Reconcile(ctx, txn.ID, "")
	require.ErrorIs(t, err, context.Canceled)

	got, err := f.bank.GetTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TxnPending, got.Status)
	assert.Empty(t, got.JournalEntryID)
	assert.Empty(t, f.entriesFor(t, txn.ID))
	assert.True(t, f.balance(t, "1050").IsZero())
	assert.Empty(t, f.events.OfKind(events.TransactionReconciled))

	// The aborted attempt did not consume an entry number.
	f.coord = New(f.store, f.journal, f.bank, f.tax, nil)
	got, err = f.coord.Reconcile(advisorCtx, txn.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-001", got.JournalEntryID)
}

func TestSuggest(t *testing.T) {
	f := newFixture(t)
	coffee := f.record(t, "STARBUCKS #4021", "-6.25", 10)
	rent := f.record(t, "LANDLORD LLC", "-2000.00", 1)

	s, err := f.coord.Suggest(advisorCtx, coffee.ID)
	require.NoError(t, err)
	assert.True(t, s.Matched)
	assert.Equal(t, "Meals", s.Decision.Category.Name)
	assert.Equal(t, rules.SourceRule, s.Decision.Source)

	s, err = f.coord.Suggest(advisorCtx, rent.ID)
	require.NoError(t, err)
	assert.False(t, s.Matched)

	got, err := f.bank.GetTransaction(context.Background(), coffee.ID)
	require.NoError(t, err)
	assert.False(t, got.Reconciled(), "suggest writes nothing")
}

func TestReconcileAll(t *testing.T) {
	f := newFixture(t)
	rent := f.record(t, "LANDLORD LLC", "-2000.00", 1)
	coffee := f.record(t, "STARBUCKS #4021", "-6.25", 10)
	paper := f.record(t, "STAPLES 0042", "-20.00", 5)

	rep, err := f.coord.ReconcileAll(advisorCtx, bank.TransactionFilter{BankAccountID: f.checking.ID})
	require.NoError(t, err)
	require.Len(t, rep.Reconciled, 2)
	assert.Equal(t, []string{rent.ID}, rep.Uncategorized)

	assert.Equal(t, paper.ID, rep.Reconciled[0].Transaction.ID, "oldest first")
	assert.Equal(t, "2025-01-001", rep.Reconciled[0].Entry.ID)
	assert.Equal(t, coffee.ID, rep.Reconciled[1].Transaction.ID)
	assert.Equal(t, "2025-01-002", rep.Reconciled[1].Entry.ID)

	open, err := f.bank.ListTransactions(context.Background(), bank.TransactionFilter{Unreconciled: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, rent.ID, open[0].ID)

	rep, err = f.coord.ReconcileAll(advisorCtx, bank.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, rep.Reconciled)
	assert.Equal(t, []string{rent.ID}, rep.Uncategorized)
}

func TestLines(t *testing.T) {
	cat := model.ExpenseCategory{Name: "Meals", AccountID: "meals"}
	out := model.BankTransaction{Merchant: "CAFE", Amount: dec("-12.00")}
	lines := Lines(out, cat, "clearing", nil, "adv-1")
	require.Len(t, lines, 2)
	assert.Equal(t, "meals", lines[0].AccountID)
	assert.True(t, lines[0].Debit.Equal(dec("12")))
	assert.Equal(t, "clearing", lines[1].AccountID)
	assert.True(t, lines[1].Credit.Equal(dec("12")))
	assert.Equal(t, "adv-1", lines[1].AdvisorID)

	tl := tax.Compute(model.TaxConfig{Name: "VAT", Rate: dec("0.10"), LiabilityAccountID: "vat", ExpenseAccountID: "vat-exp"}, out.Amount)
	lines = Lines(out, cat, "clearing", &tl, "")
	require.Len(t, lines, 4)
	assert.Equal(t, "vat-exp", lines[2].AccountID)
	assert.True(t, lines[2].Debit.Equal(dec("1.20")))
	assert.Equal(t, "vat", lines[3].AccountID)
	assert.True(t, lines[3].Credit.Equal(dec("1.20")))
	require.NoError(t, journal.ValidateLines(lines))
}

func TestVoidReopensTransaction(t *testing.T) {
	f := newFixture(t)
	txn := f.record(t, "STARBUCKS #4021", "-6.25", 8)

	reconciled, err := f.coord.Reconcile(advisorCtx, txn.ID, "")
	require.NoError(t, err)

	reversal, err := f.journal.Void(advisorCtx, reconciled.JournalEntryID)
	require.NoError(t, err)
	assert.Equal(t, reconciled.JournalEntryID, reversal.ReversalOf)

	got, err := f.bank.GetTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TxnPosted, got.Status)
	assert.Empty(t, got.JournalEntryID)
	assert.Empty(t, got.Category)
	assert.Empty(t, got.MatchedRuleID)
	assert.False(t, got.AutoMatched)
	assert.True(t, f.balance(t, "5100").IsZero())
	assert.True(t, f.balance(t, "1050").IsZero())
	assert.Len(t, f.events.OfKind(events.TransactionReopened), 1)

	again, err := f.coord.Reconcile(advisorCtx, txn.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.TxnReconciled, again.Status)
	assert.NotEqual(t, reconciled.JournalEntryID, again.JournalEntryID)
	assert.True(t, f.balance(t, "5100").Equal(dec("6.25")))
	assert.Len(t, f.entriesFor(t, txn.ID), 3)
}
