package journal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/auth"
	"github.com/cleared-dev/ledger/internal/events"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
	"github.com/cleared-dev/ledger/internal/store/memory"
	"github.com/cleared-dev/ledger/internal/store/sqlstore"
)

var (
	adminCtx   = auth.WithPrincipal(context.Background(), auth.Principal{ID: "admin-1", Role: auth.RoleAdmin})
	advisorCtx = auth.WithPrincipal(context.Background(), auth.Principal{ID: "adv-1", Role: auth.RoleAdvisor})
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y, m, d int) time.Time { return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC) }

type fixture struct {
	store  store.Store
	reg    *accounts.Registry
	engine *Engine
	events *events.Recorder
	a1, a2 model.Account
}

func newFixture(t *testing.T, s store.Store) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := &events.Recorder{}
	reg := accounts.NewRegistry(s, logger)

	a1, err := reg.Create(adminCtx, accounts.CreateParams{Code: "1010", Name: "Bank - Checking", Type: model.AccountTypeAsset})
	require.NoError(t, err)
	a2, err := reg.Create(adminCtx, accounts.CreateParams{Code: "5030", Name: "Office Supplies", Type: model.AccountTypeExpense})
	require.NoError(t, err)

	return &fixture{
		store:  s,
		reg:    reg,
		engine: NewEngine(s, reg, rec, logger),
		events: rec,
		a1:     a1,
		a2:     a2,
	}
}

func (f *fixture) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	a, err := f.reg.Get(context.Background(), accountID)
	require.NoError(t, err)
	return a.Balance
}

func (f *fixture) supplies(amount string) PostParams {
	return PostParams{
		Date:        date(2025, 1, 15),
		Description: "Printer paper",
		Lines: []model.LineInput{
			model.DebitLine(f.a2.ID, dec(amount), ""),
			model.CreditLine(f.a1.ID, dec(amount), ""),
		},
	}
}

func TestPost(t *testing.T) {
	f := newFixture(t, memory.New())

	entry, err := f.engine.Post(advisorCtx, f.supplies("50.00"))
	require.NoError(t, err)

	assert.Equal(t, "2025-01-001", entry.ID)
	assert.Equal(t, model.StatusPosted, entry.Status)
	assert.Equal(t, model.SourceManual, entry.Source)
	require.Len(t, entry.Lines, 2)
	assert.Equal(t, "2025-01-001a", entry.Lines[0].ID)
	assert.Equal(t, "2025-01-001b", entry.Lines[1].ID)

	assert.True(t, f.balance(t, f.a1.ID).Equal(dec("-50.00")))
	assert.True(t, f.balance(t, f.a2.ID).Equal(dec("50.00")))

	posted := f.events.OfKind(events.EntryPosted)
	require.Len(t, posted, 1)
	assert.Equal(t, "2025-01-001", posted[0].SubjectID)
	assert.Equal(t, "adv-1", posted[0].PrincipalID)
}

func TestPost_Unbalanced(t *testing.T) {
	f := newFixture(t, memory.New())

	p := f.supplies("50.00")
	p.Lines[1].Credit = dec("40.00")
	_, err := f.engine.Post(advisorCtx, p)

	var unbalanced model.UnbalancedEntryError
	require.ErrorAs(t, err, &unbalanced)
	assert.True(t, unbalanced.Delta.Equal(dec("10.00")))
	assert.True(t, f.balance(t, f.a1.ID).IsZero())
	assert.True(t, f.balance(t, f.a2.ID).IsZero())

	all, err := f.engine.Collect(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.events.Events())
}

func TestPost_UnknownAccount(t *testing.T) {
	f := newFixture(t, memory.New())

	p := f.supplies("5.00")
	p.Lines[1].AccountID = "no-such-account"
	_, err := f.engine.Post(advisorCtx, p)

	var invalid model.InvalidLineError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 1, invalid.Line)
	assert.True(t, f.balance(t, f.a2.ID).IsZero(), "no partial posting")

	// The failed posting does not consume an entry number.
	entry, err := f.engine.Post(advisorCtx, f.supplies("5.00"))
	require.NoError(t, err)
	assert.Equal(t, "2025-01-001", entry.ID)
}

func TestPost_ArchivedAccount(t *testing.T) {
	f := newFixture(t, memory.New())
	_, err := f.reg.Archive(adminCtx, f.a2.ID)
	require.NoError(t, err)

	_, err = f.engine.Post(advisorCtx, f.supplies("5.00"))
	var invalid model.InvalidLineError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 0, invalid.Line)
	assert.Contains(t, invalid.Reason, "archived")
}

func TestPost_ByCode(t *testing.T) {
	f := newFixture(t, memory.New())

	entry, err := f.engine.Post(advisorCtx, PostParams{
		Date:        date(2025, 1, 2),
		Description: "Pens",
		Lines: []model.LineInput{
			model.DebitLine("5030", dec("3.10"), ""),
			model.CreditLine("1010", dec("3.10"), ""),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, f.a2.ID, entry.Lines[0].AccountID)
	assert.Equal(t, f.a1.ID, entry.Lines[1].AccountID)
}

func TestPost_RequiresPrincipal(t *testing.T) {
	f := newFixture(t, memory.New())

	_, err := f.engine.Post(context.Background(), f.supplies("1.00"))
	var authErr model.AuthorizationError
	assert.ErrorAs(t, err, &authErr)
}

func TestPost_Validation(t *testing.T) {
	f := newFixture(t, memory.New())

	p := f.supplies("1.00")
	p.Date = time.Time{}
	_, err := f.engine.Post(advisorCtx, p)
	var ve model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "date", ve.Field)

	p = f.supplies("1.00")
	p.Description = "  "
	_, err = f.engine.Post(advisorCtx, p)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "description", ve.Field)
}

func TestPost_SequencePerMonth(t *testing.T) {
	f := newFixture(t, memory.New())

	var ids []string
	for _, d := range []time.Time{date(2025, 1, 3), date(2025, 1, 20), date(2025, 2, 1), date(2025, 1, 9)} {
		p := f.supplies("1.00")
		p.Date = d
		e, err := f.engine.Post(advisorCtx, p)
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"2025-01-001", "2025-01-002", "2025-02-001", "2025-01-003"}, ids)
}

func TestBalanceInvariant(t *testing.T) {
	f := newFixture(t, memory.New())
	rev, err := f.reg.Create(adminCtx, accounts.CreateParams{Code: "4010", Name: "Service Revenue", Type: model.AccountTypeRevenue})
	require.NoError(t, err)

	posts := []PostParams{
		{Date: date(2025, 1, 1), Description: "Invoice", Lines: []model.LineInput{
			model.DebitLine(f.a1.ID, dec("1200.00"), ""), model.CreditLine(rev.ID, dec("1200.00"), ""),
		}},
		{Date: date(2025, 1, 2), Description: "Supplies", Lines: []model.LineInput{
			model.DebitLine(f.a2.ID, dec("45.50"), ""), model.CreditLine(f.a1.ID, dec("45.50"), ""),
		}},
		{Date: date(2025, 1, 3), Description: "Split", Lines: []model.LineInput{
			model.DebitLine(f.a2.ID, dec("10.01"), ""),
			model.DebitLine(f.a2.ID, dec("0.99"), ""),
			model.CreditLine(f.a1.ID, dec("11.00"), ""),
		}},
		{Date: date(2025, 1, 4), Description: "Refund", Lines: []model.LineInput{
			model.DebitLine(rev.ID, dec("200.00"), ""), model.CreditLine(f.a1.ID, dec("200.00"), ""),
		}},
	}

	expected := map[string]decimal.Decimal{}
	normals := map[string]model.NormalBalance{f.a1.ID: model.NormalDebit, f.a2.ID: model.NormalDebit, rev.ID: model.NormalCredit}
	for _, p := range posts {
		_, err := f.engine.Post(advisorCtx, p)
		require.NoError(t, err)
		for _, l := range p.Lines {
			expected[l.AccountID] = expected[l.AccountID].Add(model.BalanceDelta(normals[l.AccountID], l.Debit, l.Credit))
		}
	}

	for accountID, want := range expected {
		got := f.balance(t, accountID)
		assert.True(t, got.Equal(want), "account %s: got %s want %s", accountID, got, want)
	}

	tb, err := f.reg.TrialBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, tb.Balanced())
}

func TestVoid(t *testing.T) {
	f := newFixture(t, memory.New())
	entry, err := f.engine.Post(advisorCtx, f.supplies("50.00"))
	require.NoError(t, err)

	reversal, err := f.engine.Void(advisorCtx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-002", reversal.ID)
	assert.Equal(t, model.StatusPosted, reversal.Status)

	assert.True(t, f.balance(t, f.a1.ID).IsZero())
	assert.True(t, f.balance(t, f.a2.ID).IsZero())

	voided, err := f.engine.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVoid, voided.Status)
	assert.Equal(t, reversal.ID, voided.ReversedBy)
	assert.Equal(t, model.SourceReversal, reversal.Source)
	assert.Equal(t, entry.ID, reversal.ReversalOf)
	require.Len(t, reversal.Lines, 2)
	assert.True(t, reversal.Lines[0].Credit.Equal(dec("50.00")))
	assert.True(t, reversal.Lines[1].Debit.Equal(dec("50.00")))

	// Original lines are untouched.
	original, err := f.engine.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.True(t, original.Lines[0].Debit.Equal(dec("50.00")))

	_, err = f.engine.Void(advisorCtx, entry.ID)
	var already model.AlreadyVoidError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, entry.ID, already.EntryID)

	assert.Len(t, f.events.OfKind(events.EntryVoided), 1)
}

func TestVoid_ArchivedAccount(t *testing.T) {
	f := newFixture(t, memory.New())
	entry, err := f.engine.Post(advisorCtx, f.supplies("8.00"))
	require.NoError(t, err)
	_, err = f.reg.Archive(adminCtx, f.a2.ID)
	require.NoError(t, err)

	_, err = f.engine.Void(advisorCtx, entry.ID)
	require.NoError(t, err)
	assert.True(t, f.balance(t, f.a2.ID).IsZero())
}

func TestVoid_NotFound(t *testing.T) {
	f := newFixture(t, memory.New())
	_, err := f.engine.Void(advisorCtx, "2025-01-999")
	var nf model.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestDrafts(t *testing.T) {
	f := newFixture(t, memory.New())

	p := f.supplies("20.00")
	p.Lines[1].Credit = dec("15.00")
	draft, err := f.engine.SaveDraft(advisorCtx, p)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, draft.Status)
	assert.True(t, f.balance(t, f.a2.ID).IsZero())

	_, err = f.engine.PostDraft(advisorCtx, draft.ID)
	var unbalanced model.UnbalancedEntryError
	require.ErrorAs(t, err, &unbalanced)
	assert.True(t, unbalanced.Delta.Equal(dec("5.00")))

	got, err := f.engine.Get(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, got.Status)

	_, err = f.engine.Void(advisorCtx, draft.ID)
	var ve model.ValidationError
	require.ErrorAs(t, err, &ve)

	balanced, err := f.engine.SaveDraft(advisorCtx, f.supplies("20.00"))
	require.NoError(t, err)
	posted, err := f.engine.PostDraft(advisorCtx, balanced.ID)
	require.NoError(t, err)
	assert.Equal(t, balanced.ID, posted.ID)
	assert.Equal(t, model.StatusPosted, posted.Status)
	assert.True(t, f.balance(t, f.a2.ID).Equal(dec("20.00")))

	_, err = f.engine.PostDraft(advisorCtx, balanced.ID)
	require.ErrorAs(t, err, &ve)
}

func TestList(t *testing.T) {
	f := newFixture(t, memory.New())
	f.engine.PageSize = 2

	days := []int{5, 1, 5, 3, 9}
	for _, d := range days {
		p := f.supplies("1.00")
		p.Date = date(2025, 3, d)
		_, err := f.engine.Post(advisorCtx, p)
		require.NoError(t, err)
	}

	var ids []string
	for e, err := range f.engine.List(context.Background(), Filter{}) {
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"2025-03-005", "2025-03-003", "2025-03-001", "2025-03-004", "2025-03-002"}, ids)

	// Restartable: a second range sees the same sequence.
	again, err := f.engine.Collect(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, again, len(days))

	// Early termination stops paging.
	n := 0
	for range f.engine.List(context.Background(), Filter{}) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)

	// Posting between pages neither repeats nor skips entries.
	var seen []string
	for e, err := range f.engine.List(context.Background(), Filter{}) {
		require.NoError(t, err)
		seen = append(seen, e.ID)
		if len(seen) == 2 {
			p := f.supplies("1.00")
			p.Date = date(2025, 3, 20)
			_, err := f.engine.Post(advisorCtx, p)
			require.NoError(t, err)
		}
	}
	assert.Equal(t, ids, seen)

	ranged, err := f.engine.Collect(context.Background(), Filter{From: date(2025, 3, 2), To: date(2025, 3, 5)})
	require.NoError(t, err)
	assert.Len(t, ranged, 3)
}

func TestFindByReference(t *testing.T) {
	f := newFixture(t, memory.New())
	p := f.supplies("2.00")
	p.Reference = "INV-42"
	_, err := f.engine.Post(advisorCtx, p)
	require.NoError(t, err)
	_, err = f.engine.Post(advisorCtx, f.supplies("2.00"))
	require.NoError(t, err)

	found, err := f.engine.FindByReference(context.Background(), "INV-42")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "INV-42", found[0].Reference)
}

func TestConcurrentPosts(t *testing.T) {
	f := newFixture(t, memory.New())

	const n = 25
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := f.engine.Post(advisorCtx, f.supplies("1.00"))
			ids[i], errs[i] = e.ID, err
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range n {
		require.NoError(t, errs[i])
		assert.False(t, seen[ids[i]], "duplicate entry number %s", ids[i])
		seen[ids[i]] = true
	}
	assert.True(t, f.balance(t, f.a2.ID).Equal(dec(fmt.Sprint(n))))
	assert.True(t, f.balance(t, f.a1.ID).Equal(dec(fmt.Sprint(-n))))
}

func TestPostAndVoid_SQLite(t *testing.T) {
	s, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	f := newFixture(t, s)

	entry, err := f.engine.Post(advisorCtx, f.supplies("50.00"))
	require.NoError(t, err)
	assert.True(t, f.balance(t, f.a1.ID).Equal(dec("-50")))

	p := f.supplies("50.00")
	p.Lines[1].Credit = dec("40.00")
	_, err = f.engine.Post(advisorCtx, p)
	var unbalanced model.UnbalancedEntryError
	require.ErrorAs(t, err, &unbalanced)

	_, err = f.engine.Void(advisorCtx, entry.ID)
	require.NoError(t, err)
	assert.True(t, f.balance(t, f.a1.ID).IsZero())
	assert.True(t, f.balance(t, f.a2.ID).IsZero())

	all, err := f.engine.Collect(context.Background(), Filter{AccountID: f.a1.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2025-01-002", all[0].ID)
	assert.Equal(t, model.StatusVoid, all[1].Status)
}
