// Package memory is an in-process store.Store. Update holds an exclusive lock
// for the whole transaction and undoes its writes on failure, so readers in
// View never see a partially applied transaction.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

// Store is an in-memory store.Store.
type Store struct {
	mu sync.RWMutex

	accounts     map[string]model.Account
	accountCodes map[string]string // code -> id
	entries      map[string]model.JournalEntry
	seqs         map[string]int
	bankAccounts map[string]model.BankAccount
	bankTxns     map[string]model.BankTransaction
	rules        map[string]model.BankRule
	categories   map[string]model.ExpenseCategory
	taxConfigs   map[string]model.TaxConfig
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts:     make(map[string]model.Account),
		accountCodes: make(map[string]string),
		entries:      make(map[string]model.JournalEntry),
		seqs:         make(map[string]int),
		bankAccounts: make(map[string]model.BankAccount),
		bankTxns:     make(map[string]model.BankTransaction),
		rules:        make(map[string]model.BankRule),
		categories:   make(map[string]model.ExpenseCategory),
		taxConfigs:   make(map[string]model.TaxConfig),
	}
}

// View runs fn under a shared lock.
func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{s: s})
}

// Update runs fn under the exclusive lock and rolls back on error or
// cancellation.
func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{s: s, writable: true}
	err := fn(t)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		t.rollback()
		return err
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

type tx struct {
	s        *Store
	writable bool
	undo     []func()
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// put records the previous state of key in m before overwriting it.
func put[V any](t *tx, m map[string]V, key string, v V) {
	prev, existed := m[key]
	t.undo = append(t.undo, func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
	m[key] = v
}

func del[V any](t *tx, m map[string]V, key string) {
	prev, existed := m[key]
	if !existed {
		return
	}
	t.undo = append(t.undo, func() { m[key] = prev })
	delete(m, key)
}

func (t *tx) check() error {
	if !t.writable {
		return store.ErrReadOnly
	}
	return nil
}

// --- Accounts ---

func (t *tx) InsertAccount(a model.Account) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.s.accounts[a.ID]; ok {
		return store.ErrConflict
	}
	if _, ok := t.s.accountCodes[a.Code]; ok {
		return store.ErrConflict
	}
	put(t, t.s.accounts, a.ID, a)
	put(t, t.s.accountCodes, a.Code, a.ID)
	return nil
}

func (t *tx) GetAccount(id string) (model.Account, error) {
	a, ok := t.s.accounts[id]
	if !ok {
		return model.Account{}, store.ErrNotFound
	}
	return a, nil
}

func (t *tx) GetAccountByCode(code string) (model.Account, error) {
	id, ok := t.s.accountCodes[code]
	if !ok {
		return model.Account{}, store.ErrNotFound
	}
	return t.GetAccount(id)
}

func (t *tx) UpdateAccount(a model.Account) error {
	if err := t.check(); err != nil {
		return err
	}
	prev, ok := t.s.accounts[a.ID]
	if !ok {
		return store.ErrNotFound
	}
	if prev.Code != a.Code {
		return store.ErrNotFound
	}
	put(t, t.s.accounts, a.ID, a)
	return nil
}

func (t *tx) ListAccounts() ([]model.Account, error) {
	out := make([]model.Account, 0, len(t.s.accounts))
	for _, a := range t.s.accounts {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b model.Account) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

// --- Journal ---

func (t *tx) NextEntrySeq(period string) (int, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	next := t.s.seqs[period] + 1
	put(t, t.s.seqs, period, next)
	return next, nil
}

func (t *tx) InsertEntry(e model.JournalEntry) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.s.entries[e.ID]; ok {
		return store.ErrConflict
	}
	put(t, t.s.entries, e.ID, cloneEntry(e))
	return nil
}

func (t *tx) GetEntry(id string) (model.JournalEntry, error) {
	e, ok := t.s.entries[id]
	if !ok {
		return model.JournalEntry{}, store.ErrNotFound
	}
	return cloneEntry(e), nil
}

func (t *tx) UpdateEntry(e model.JournalEntry) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.s.entries[e.ID]; !ok {
		return store.ErrNotFound
	}
	put(t, t.s.entries, e.ID, cloneEntry(e))
	return nil
}

func (t *tx) ListEntries(f store.EntryFilter) ([]model.JournalEntry, error) {
	var out []model.JournalEntry
	for _, e := range t.s.entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b model.JournalEntry) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	out = page(out, f.Offset, f.Limit)
	for i := range out {
		out[i] = cloneEntry(out[i])
	}
	return out, nil
}

// --- Bank accounts ---

func (t *tx) InsertBankAccount(a model.BankAccount) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.s.bankAccounts[a.ID]; ok {
		return store.ErrConflict
	}
	put(t, t.s.bankAccounts, a.ID, a)
	return nil
}

func (t *tx) GetBankAccount(id string) (model.BankAccount, error) {
	a, ok := t.s.bankAccounts[id]
	if !ok {
		return model.BankAccount{}, store.ErrNotFound
	}
	return a, nil
}

func (t *tx) UpdateBankAccount(a model.BankAccount) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.s.bankAccounts[a.ID]; !ok {
		return store.ErrNotFound
	}
	put(t, t.s.bankAccounts, a.ID, a)
	return nil
}

func (t *tx) ListBankAccounts(owner string) ([]model.BankAccount, error) {
	var out []model.BankAccount
	for _, a := range t.s.bankAccounts {
		if owner == "" || a.Owner == owner {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b model.BankAccount) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// --- Bank transactions ---

func (t *tx) InsertBankTransaction(bt model.BankTransaction) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.s.bankTxns[bt.ID]; ok {
		return store.ErrConflict
	}
	if bt.ExternalRef != "" {
		if _, err := t.FindBankTransactionByRef(bt.BankAccountID, bt.ExternalRef); err == nil {
			return store.ErrConflict
		}
	}
	put(t, t.s.bankTxns, bt.ID, bt)
	return nil
}

func (t *tx) GetBankTransaction(id string) (model.BankTransaction, error) {
	bt, ok := t.s.bankTxns[id]
	if !ok {
		return model.BankTransaction{}, store.ErrNotFound
	}
	return bt, nil
}

func (t *tx) FindBankTransactionByRef(bankAccountID, ref string) (model.BankTransaction, error) {
	for _, bt := range t.s.bankTxns {
		if bt.BankAccountID == bankAccountID && bt.ExternalRef == ref {
			return bt, nil
		}
	}
	return model.BankTransaction{}, store.ErrNotFound
}

func (t *tx) UpdateBankTransaction(bt model.BankTransaction) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.s.bankTxns[bt.ID]; !ok {
		return store.ErrNotFound
	}
	put(t, t.s.bankTxns, bt.ID, bt)
	return nil
}

func (t *tx) ListBankTransactions(f store.TransactionFilter) ([]model.BankTransaction, error) {
	var out []model.BankTransaction
	for _, bt := range t.s.bankTxns {
		if f.Match(bt) {
			out = append(out, bt)
		}
	}
	slices.SortFunc(out, func(a, b model.BankTransaction) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out, nil
}

// --- Rules ---

func (t *tx) InsertRule(r model.BankRule) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.s.rules[r.ID]; ok {
		return store.ErrConflict
	}
	r.Conditions = slices.Clone(r.Conditions)
	put(t, t.s.rules, r.ID, r)
	return nil
}

func (t *tx) GetRule(id string) (model.BankRule, error) {
	r, ok := t.s.rules[id]
	if !ok {
		return model.BankRule{}, store.ErrNotFound
	}
	r.Conditions = slices.Clone(r.Conditions)
	return r, nil
}

func (t *tx) UpdateRule(r model.BankRule) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.s.rules[r.ID]; !ok {
		return store.ErrNotFound
	}
	r.Conditions = slices.Clone(r.Conditions)
	put(t, t.s.rules, r.ID, r)
	return nil
}

func (t *tx) DeleteRule(id string) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.s.rules[id]; !ok {
		return store.ErrNotFound
	}
	del(t, t.s.rules, id)
	return nil
}

func (t *tx) ListRules(owner string) ([]model.BankRule, error) {
	var out []model.BankRule
	for _, r := range t.s.rules {
		if owner == "" || r.Owner == owner {
			r.Conditions = slices.Clone(r.Conditions)
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b model.BankRule) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// --- Expense categories ---

func (t *tx) InsertCategory(c model.ExpenseCategory) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.s.categories[c.ID]; ok {
		return store.ErrConflict
	}
	if _, err := t.GetCategoryByName(c.Name); err == nil {
		return store.ErrConflict
	}
	c.Keywords = slices.Clone(c.Keywords)
	put(t, t.s.categories, c.ID, c)
	return nil
}

func (t *tx) GetCategory(id string) (model.ExpenseCategory, error) {
	c, ok := t.s.categories[id]
	if !ok {
		return model.ExpenseCategory{}, store.ErrNotFound
	}
	c.Keywords = slices.Clone(c.Keywords)
	return c, nil
}

func (t *tx) GetCategoryByName(name string) (model.ExpenseCategory, error) {
	for _, c := range t.s.categories {
		if strings.EqualFold(c.Name, name) {
			c.Keywords = slices.Clone(c.Keywords)
			return c, nil
		}
	}
	return model.ExpenseCategory{}, store.ErrNotFound
}

func (t *tx) ListCategories() ([]model.ExpenseCategory, error) {
	out := make([]model.ExpenseCategory, 0, len(t.s.categories))
	for _, c := range t.s.categories {
		c.Keywords = slices.Clone(c.Keywords)
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b model.ExpenseCategory) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// --- Tax configs ---

func (t *tx) InsertTaxConfig(c model.TaxConfig) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.s.taxConfigs[c.ID]; ok {
		return store.ErrConflict
	}
	put(t, t.s.taxConfigs, c.ID, c)
	return nil
}

func (t *tx) GetTaxConfig(id string) (model.TaxConfig, error) {
	c, ok := t.s.taxConfigs[id]
	if !ok {
		return model.TaxConfig{}, store.ErrNotFound
	}
	return c, nil
}

func (t *tx) UpdateTaxConfig(c model.TaxConfig) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.s.taxConfigs[c.ID]; !ok {
		return store.ErrNotFound
	}
	put(t, t.s.taxConfigs, c.ID, c)
	return nil
}

func (t *tx) ListTaxConfigs() ([]model.TaxConfig, error) {
	out := make([]model.TaxConfig, 0, len(t.s.taxConfigs))
	for _, c := range t.s.taxConfigs {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b model.TaxConfig) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func cloneEntry(e model.JournalEntry) model.JournalEntry {
	e.Lines = slices.Clone(e.Lines)
	return e
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var _ store.Store = (*Store)(nil)
