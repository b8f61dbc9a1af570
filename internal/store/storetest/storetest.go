// Package storetest holds behavior tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

// Run exercises s. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("EntrySequence", func(t *testing.T) { testEntrySequence(t, newStore(t)) })
	t.Run("Entries", func(t *testing.T) { testEntries(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("ReadOnly", func(t *testing.T) { testReadOnly(t, newStore(t)) })
	t.Run("BankTransactions", func(t *testing.T) { testBankTransactions(t, newStore(t)) })
	t.Run("Rules", func(t *testing.T) { testRules(t, newStore(t)) })
	t.Run("CategoriesAndTax", func(t *testing.T) { testCategoriesAndTax(t, newStore(t)) })
}

var t0 = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func account(id, code string, typ model.AccountType) model.Account {
	return model.Account{
		ID:            id,
		Code:          code,
		Name:          "Account " + code,
		Type:          typ,
		NormalBalance: model.DefaultNormalBalance(typ),
		Balance:       decimal.Zero,
		Status:        model.AccountActive,
		CreatedAt:     t0,
	}
}

func update(t *testing.T, s store.Store, fn func(tx store.Tx) error) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), fn))
}

func testAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	update(t, s, func(tx store.Tx) error {
		if err := tx.InsertAccount(account("a2", "5000", model.AccountTypeExpense)); err != nil {
			return err
		}
		return tx.InsertAccount(account("a1", "1000", model.AccountTypeAsset))
	})

	err := s.Update(ctx, func(tx store.Tx) error {
		return tx.InsertAccount(account("a3", "1000", model.AccountTypeAsset))
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	update(t, s, func(tx store.Tx) error {
		a, err := tx.GetAccount("a1")
		if err != nil {
			return err
		}
		a.Balance = dec("12.50")
		a.Name = "Checking"
		return tx.UpdateAccount(a)
	})

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		a, err := tx.GetAccountByCode("1000")
		require.NoError(t, err)
		assert.Equal(t, "a1", a.ID)
		assert.Equal(t, "Checking", a.Name)
		assert.True(t, a.Balance.Equal(dec("12.5")))
		assert.Equal(t, model.NormalDebit, a.NormalBalance)
		assert.True(t, a.CreatedAt.Equal(t0))

		list, err := tx.ListAccounts()
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "1000", list[0].Code)
		assert.Equal(t, "5000", list[1].Code)

		_, err = tx.GetAccount("missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	}))

	err = s.Update(ctx, func(tx store.Tx) error {
		return tx.UpdateAccount(account("missing", "9999", model.AccountTypeAsset))
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testEntrySequence(t *testing.T, s store.Store) {
	var got []int
	update(t, s, func(tx store.Tx) error {
		for _, p := range []string{"2025-01", "2025-01", "2025-02", "2025-01"} {
			n, err := tx.NextEntrySeq(p)
			if err != nil {
				return err
			}
			got = append(got, n)
		}
		return nil
	})
	assert.Equal(t, []int{1, 2, 1, 3}, got)
}

func entry(id string, date time.Time, ref string, lines ...model.JournalLine) model.JournalEntry {
	for i := range lines {
		lines[i].EntryID = id
		lines[i].Position = i
		lines[i].ID = id + string(rune('a'+i))
	}
	return model.JournalEntry{
		ID:          id,
		Date:        date,
		Description: "entry " + id,
		Reference:   ref,
		Status:      model.StatusPosted,
		Source:      model.SourceManual,
		CreatedAt:   t0,
		Lines:       lines,
	}
}

func testEntries(t *testing.T, s store.Store) {
	ctx := context.Background()
	update(t, s, func(tx store.Tx) error {
		for _, a := range []model.Account{
			account("cash", "1000", model.AccountTypeAsset),
			account("rev", "4000", model.AccountTypeRevenue),
			account("exp", "5000", model.AccountTypeExpense),
		} {
			if err := tx.InsertAccount(a); err != nil {
				return err
			}
		}
		entries := []model.JournalEntry{
			entry("2025-01-001", t0, "INV-1",
				model.JournalLine{AccountID: "cash", Debit: dec("100"), Credit: decimal.Zero},
				model.JournalLine{AccountID: "rev", Debit: decimal.Zero, Credit: dec("100")}),
			entry("2025-01-002", t0, "",
				model.JournalLine{AccountID: "exp", Debit: dec("6.25"), Credit: decimal.Zero, Memo: "coffee"},
				model.JournalLine{AccountID: "cash", Debit: decimal.Zero, Credit: dec("6.25")}),
			entry("2025-01-003", t0.AddDate(0, 0, 5), "",
				model.JournalLine{AccountID: "exp", Debit: dec("1"), Credit: decimal.Zero},
				model.JournalLine{AccountID: "rev", Debit: decimal.Zero, Credit: dec("1")}),
		}
		for _, e := range entries {
			if err := tx.InsertEntry(e); err != nil {
				return err
			}
		}
		return nil
	})

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		e, err := tx.GetEntry("2025-01-002")
		require.NoError(t, err)
		require.Len(t, e.Lines, 2)
		assert.Equal(t, "exp", e.Lines[0].AccountID)
		assert.Equal(t, "coffee", e.Lines[0].Memo)
		assert.True(t, e.Lines[0].Debit.Equal(dec("6.25")))
		assert.Equal(t, "2025-01-002b", e.Lines[1].ID)

		all, err := tx.ListEntries(store.EntryFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "2025-01-003", all[0].ID)
		assert.Equal(t, "2025-01-002", all[1].ID)
		assert.Equal(t, "2025-01-001", all[2].ID)

		byAccount, err := tx.ListEntries(store.EntryFilter{AccountID: "cash"})
		require.NoError(t, err)
		assert.Len(t, byAccount, 2)

		byRef, err := tx.ListEntries(store.EntryFilter{Reference: "INV-1"})
		require.NoError(t, err)
		require.Len(t, byRef, 1)
		assert.Len(t, byRef[0].Lines, 2)

		paged, err := tx.ListEntries(store.EntryFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, paged, 1)
		assert.Equal(t, "2025-01-002", paged[0].ID)

		after, err := tx.ListEntries(store.EntryFilter{After: store.CursorOf(all[0])})
		require.NoError(t, err)
		require.Len(t, after, 2)
		assert.Equal(t, "2025-01-002", after[0].ID)

		tail, err := tx.ListEntries(store.EntryFilter{After: store.CursorOf(all[1]), Limit: 5})
		require.NoError(t, err)
		require.Len(t, tail, 1)
		assert.Equal(t, "2025-01-001", tail[0].ID)

		ranged, err := tx.ListEntries(store.EntryFilter{From: t0, To: t0})
		require.NoError(t, err)
		assert.Len(t, ranged, 2)

		_, err = tx.GetEntry("2025-09-001")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	}))

	update(t, s, func(tx store.Tx) error {
		e, err := tx.GetEntry("2025-01-001")
		if err != nil {
			return err
		}
		e.Status = model.StatusVoid
		e.ReversedBy = "2025-01-004"
		return tx.UpdateEntry(e)
	})
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		e, err := tx.GetEntry("2025-01-001")
		require.NoError(t, err)
		assert.Equal(t, model.StatusVoid, e.Status)
		assert.Equal(t, "2025-01-004", e.ReversedBy)
		assert.Len(t, e.Lines, 2)

		posted, err := tx.ListEntries(store.EntryFilter{Status: model.StatusPosted})
		require.NoError(t, err)
		assert.Len(t, posted, 2)
		return nil
	}))
}

func testRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	update(t, s, func(tx store.Tx) error {
		return tx.InsertAccount(account("cash", "1000", model.AccountTypeAsset))
	})

	err := s.Update(ctx, func(tx store.Tx) error {
		a, err := tx.GetAccount("cash")
		if err != nil {
			return err
		}
		a.Balance = dec("99")
		if err := tx.UpdateAccount(a); err != nil {
			return err
		}
		if err := tx.InsertAccount(account("other", "2000", model.AccountTypeLiability)); err != nil {
			return err
		}
		if _, err := tx.NextEntrySeq("2025-01"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	cctx, cancel := context.WithCancel(ctx)
	err = s.Update(cctx, func(tx store.Tx) error {
		a, err := tx.GetAccount("cash")
		if err != nil {
			return err
		}
		a.Balance = dec("42")
		if err := tx.UpdateAccount(a); err != nil {
			return err
		}
		cancel()
		return nil
	})
	assert.Error(t, err)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		a, err := tx.GetAccount("cash")
		require.NoError(t, err)
		assert.True(t, a.Balance.IsZero(), "balance %s", a.Balance)

		_, err = tx.GetAccount("other")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	}))

	var seq int
	update(t, s, func(tx store.Tx) error {
		var err error
		seq, err = tx.NextEntrySeq("2025-01")
		return err
	})
	assert.Equal(t, 1, seq)
}

func testReadOnly(t *testing.T, s store.Store) {
	err := s.View(context.Background(), func(tx store.Tx) error {
		return tx.InsertAccount(account("cash", "1000", model.AccountTypeAsset))
	})
	assert.ErrorIs(t, err, store.ErrReadOnly)
}

func testBankTransactions(t *testing.T, s store.Store) {
	ctx := context.Background()
	ba := model.BankAccount{
		ID:        "ba1",
		Owner:     model.FirmOwner,
		Name:      "Operating",
		Type:      model.BankChecking,
		Balance:   dec("1000"),
		Status:    model.BankActive,
		CreatedAt: t0,
	}
	txn := func(id string, day int, ref string) model.BankTransaction {
		return model.BankTransaction{
			ID:            id,
			BankAccountID: "ba1",
			Date:          t0.AddDate(0, 0, day),
			Merchant:      "STARBUCKS #" + id,
			Amount:        dec("-6.25"),
			Status:        model.TxnPending,
			ExternalRef:   ref,
			CreatedAt:     t0,
			UpdatedAt:     t0,
		}
	}

	update(t, s, func(tx store.Tx) error {
		if err := tx.InsertBankAccount(ba); err != nil {
			return err
		}
		for _, bt := range []model.BankTransaction{txn("t1", 0, "ref-1"), txn("t2", 2, ""), txn("t3", 1, "")} {
			if err := tx.InsertBankTransaction(bt); err != nil {
				return err
			}
		}
		return nil
	})

	err := s.Update(ctx, func(tx store.Tx) error {
		return tx.InsertBankTransaction(txn("t4", 0, "ref-1"))
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	update(t, s, func(tx store.Tx) error {
		bt, err := tx.GetBankTransaction("t1")
		if err != nil {
			return err
		}
		bt.Status = model.TxnReconciled
		bt.Category = "Meals"
		bt.JournalEntryID = "2025-01-001"
		bt.AutoMatched = true
		return tx.UpdateBankTransaction(bt)
	})

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		bt, err := tx.FindBankTransactionByRef("ba1", "ref-1")
		require.NoError(t, err)
		assert.Equal(t, "t1", bt.ID)
		assert.True(t, bt.AutoMatched)
		assert.Equal(t, model.TxnReconciled, bt.Status)
		assert.True(t, bt.Amount.Equal(dec("-6.25")))

		_, err = tx.FindBankTransactionByRef("ba1", "ref-2")
		assert.ErrorIs(t, err, store.ErrNotFound)

		all, err := tx.ListBankTransactions(store.TransactionFilter{BankAccountID: "ba1"})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"t2", "t3", "t1"}, []string{all[0].ID, all[1].ID, all[2].ID})

		open, err := tx.ListBankTransactions(store.TransactionFilter{Unreconciled: true})
		require.NoError(t, err)
		assert.Len(t, open, 2)

		accts, err := tx.ListBankAccounts(model.FirmOwner)
		require.NoError(t, err)
		require.Len(t, accts, 1)
		assert.True(t, accts[0].Balance.Equal(dec("1000")))
		assert.True(t, accts[0].LastSyncedAt.IsZero())

		none, err := tx.ListBankAccounts("advisor-7")
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	}))
}

func testRules(t *testing.T, s store.Store) {
	ctx := context.Background()
	rule := func(id string, priority int, created time.Time) model.BankRule {
		return model.BankRule{
			ID:       id,
			Owner:    model.FirmOwner,
			Name:     "rule " + id,
			Priority: priority,
			Conditions: []model.Condition{
				{Field: model.FieldMerchant, Operator: model.OpContains, Value: "STARBUCKS"},
			},
			Category:  "Meals",
			CreatedAt: created,
			UpdatedAt: created,
		}
	}
	update(t, s, func(tx store.Tx) error {
		for _, r := range []model.BankRule{
			rule("r1", 2, t0),
			rule("r2", 1, t0.Add(time.Hour)),
			rule("r3", 1, t0),
		} {
			if err := tx.InsertRule(r); err != nil {
				return err
			}
		}
		return nil
	})

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		list, err := tx.ListRules(model.FirmOwner)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{"r3", "r2", "r1"}, []string{list[0].ID, list[1].ID, list[2].ID})
		require.Len(t, list[0].Conditions, 1)
		assert.Equal(t, model.OpContains, list[0].Conditions[0].Operator)
		return nil
	}))

	update(t, s, func(tx store.Tx) error { return tx.DeleteRule("r2") })
	err := s.Update(ctx, func(tx store.Tx) error { return tx.DeleteRule("r2") })
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		_, err := tx.GetRule("r2")
		assert.ErrorIs(t, err, store.ErrNotFound)
		list, err := tx.ListRules("")
		require.NoError(t, err)
		assert.Len(t, list, 2)
		return nil
	}))
}

func testCategoriesAndTax(t *testing.T, s store.Store) {
	ctx := context.Background()
	update(t, s, func(tx store.Tx) error {
		for _, a := range []model.Account{
			account("meals", "5100", model.AccountTypeExpense),
			account("liab", "2200", model.AccountTypeLiability),
		} {
			if err := tx.InsertAccount(a); err != nil {
				return err
			}
		}
		if err := tx.InsertTaxConfig(model.TaxConfig{
			ID: "vat", Name: "VAT", Rate: dec("0.2"), LiabilityAccountID: "liab", ExpenseAccountID: "meals",
			CreatedAt: t0, UpdatedAt: t0,
		}); err != nil {
			return err
		}
		return tx.InsertCategory(model.ExpenseCategory{
			ID: "c1", Name: "Meals", AccountID: "meals", TaxDeductible: true,
			Keywords: []string{"coffee", "starbucks"}, TaxConfigID: "vat",
		})
	})

	err := s.Update(ctx, func(tx store.Tx) error {
		return tx.InsertCategory(model.ExpenseCategory{ID: "c2", Name: "MEALS", AccountID: "meals"})
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	update(t, s, func(tx store.Tx) error {
		c, err := tx.GetTaxConfig("vat")
		if err != nil {
			return err
		}
		c.Rate = dec("0.125")
		return tx.UpdateTaxConfig(c)
	})

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		c, err := tx.GetCategoryByName("meals")
		require.NoError(t, err)
		assert.Equal(t, "c1", c.ID)
		assert.True(t, c.TaxDeductible)
		assert.Equal(t, []string{"coffee", "starbucks"}, c.Keywords)
		assert.Equal(t, "vat", c.TaxConfigID)

		cats, err := tx.ListCategories()
		require.NoError(t, err)
		assert.Len(t, cats, 1)

		tc, err := tx.GetTaxConfig("vat")
		require.NoError(t, err)
		assert.True(t, tc.Rate.Equal(dec("0.125")))

		tcs, err := tx.ListTaxConfigs()
		require.NoError(t, err)
		assert.Len(t, tcs, 1)
		return nil
	}))
}
