package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/auth"
	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

// Registry owns the chart of accounts and the running balances.
type Registry struct {
	store store.Store
	log   *slog.Logger
	now   func() time.Time
}

// NewRegistry creates a Registry over s. A nil logger uses slog.Default.
func NewRegistry(s store.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: s, log: logger, now: time.Now}
}

// CreateParams describes a new account. NormalBalance defaults from Type.
type CreateParams struct {
	Code          string              `json:"code"`
	Name          string              `json:"name"`
	Type          model.AccountType   `json:"type"`
	Category      string              `json:"category,omitempty"`
	NormalBalance model.NormalBalance `json:"normal_balance,omitempty"`
	Description   string              `json:"description,omitempty"`
}

// Patch lists the account fields an update may change. Nil fields are left
// alone; code, type and normal balance are fixed at creation.
type Patch struct {
	Name        *string `json:"name,omitempty"`
	Category    *string `json:"category,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Create adds an account with a zero balance. Requires ADMIN.
func (r *Registry) Create(ctx context.Context, p CreateParams) (model.Account, error) {
	if _, err := auth.RequireAdmin(ctx, "create account"); err != nil {
		return model.Account{}, err
	}
	acct, err := r.newAccount(p)
	if err != nil {
		return model.Account{}, err
	}

	err = r.store.Update(ctx, func(tx store.Tx) error {
		return insert(tx, acct)
	})
	if err != nil {
		return model.Account{}, err
	}

	r.log.Info("account created", "id", acct.ID, "code", acct.Code, "type", acct.Type)
	return acct, nil
}

func (r *Registry) newAccount(p CreateParams) (model.Account, error) {
	p.Code = strings.TrimSpace(p.Code)
	p.Name = strings.TrimSpace(p.Name)
	if p.Code == "" {
		return model.Account{}, model.ValidationError{Field: "code", Reason: "required"}
	}
	if p.Name == "" {
		return model.Account{}, model.ValidationError{Field: "name", Reason: "required"}
	}
	if !p.Type.Valid() {
		return model.Account{}, model.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown account type %q", p.Type)}
	}
	if p.NormalBalance == "" {
		p.NormalBalance = model.DefaultNormalBalance(p.Type)
	}
	if !p.NormalBalance.Valid() {
		return model.Account{}, model.ValidationError{Field: "normal_balance", Reason: fmt.Sprintf("must be debit or credit, got %q", p.NormalBalance)}
	}

	return model.Account{
		ID:            id.New(),
		Code:          p.Code,
		Name:          p.Name,
		Type:          p.Type,
		Category:      p.Category,
		NormalBalance: p.NormalBalance,
		Balance:       decimal.Zero,
		Description:   p.Description,
		Status:        model.AccountActive,
		CreatedAt:     r.now().UTC(),
	}, nil
}

func insert(tx store.Tx, acct model.Account) error {
	err := tx.InsertAccount(acct)
	if errors.Is(err, store.ErrConflict) {
		return model.DuplicateCodeError{Code: acct.Code}
	}
	return err
}

// Get returns an account by ID.
func (r *Registry) Get(ctx context.Context, accountID string) (model.Account, error) {
	var acct model.Account
	err := r.store.View(ctx, func(tx store.Tx) error {
		var err error
		acct, err = Lookup(tx, accountID)
		return err
	})
	return acct, err
}

// GetByCode returns an account by its chart code.
func (r *Registry) GetByCode(ctx context.Context, code string) (model.Account, error) {
	var acct model.Account
	err := r.store.View(ctx, func(tx store.Tx) error {
		var err error
		acct, err = tx.GetAccountByCode(code)
		if errors.Is(err, store.ErrNotFound) {
			return model.NotFoundError{Kind: "account", ID: code}
		}
		return err
	})
	return acct, err
}

// Resolve accepts either an account ID or a chart code.
func (r *Registry) Resolve(ctx context.Context, ref string) (model.Account, error) {
	acct, err := r.Get(ctx, ref)
	var nf model.NotFoundError
	if errors.As(err, &nf) {
		return r.GetByCode(ctx, ref)
	}
	return acct, err
}

// List returns every account ordered by code.
func (r *Registry) List(ctx context.Context) ([]model.Account, error) {
	var out []model.Account
	err := r.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListAccounts()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return out, nil
}

// ByType returns all accounts of the given type.
func (r *Registry) ByType(ctx context.Context, accountType model.AccountType) ([]model.Account, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var result []model.Account
	for _, a := range all {
		if a.Type == accountType {
			result = append(result, a)
		}
	}
	return result, nil
}

// Update applies p to an account. Requires ADMIN.
func (r *Registry) Update(ctx context.Context, accountID string, p Patch) (model.Account, error) {
	if _, err := auth.RequireAdmin(ctx, "update account"); err != nil {
		return model.Account{}, err
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return model.Account{}, model.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return r.modify(ctx, accountID, func(a *model.Account) {
		if p.Name != nil {
			a.Name = strings.TrimSpace(*p.Name)
		}
		if p.Category != nil {
			a.Category = *p.Category
		}
		if p.Description != nil {
			a.Description = *p.Description
		}
	})
}

// Archive soft-disables an account; it keeps its balance and history but
// rejects new postings. Requires ADMIN.
func (r *Registry) Archive(ctx context.Context, accountID string) (model.Account, error) {
	if _, err := auth.RequireAdmin(ctx, "archive account"); err != nil {
		return model.Account{}, err
	}
	acct, err := r.modify(ctx, accountID, func(a *model.Account) { a.Status = model.AccountArchived })
	if err == nil {
		r.log.Info("account archived", "id", acct.ID, "code", acct.Code)
	}
	return acct, err
}

// Restore re-activates an archived account. Requires ADMIN.
func (r *Registry) Restore(ctx context.Context, accountID string) (model.Account, error) {
	if _, err := auth.RequireAdmin(ctx, "restore account"); err != nil {
		return model.Account{}, err
	}
	return r.modify(ctx, accountID, func(a *model.Account) { a.Status = model.AccountActive })
}

func (r *Registry) modify(ctx context.Context, accountID string, fn func(*model.Account)) (model.Account, error) {
	var acct model.Account
	err := r.store.Update(ctx, func(tx store.Tx) error {
		var err error
		acct, err = Lookup(tx, accountID)
		if err != nil {
			return err
		}
		fn(&acct)
		return tx.UpdateAccount(acct)
	})
	return acct, err
}

// ApplyBalanceDelta adds the effect of one posted line to an account's
// balance. It only runs inside a store transaction and is reserved for the
// journal engine.
func (r *Registry) ApplyBalanceDelta(tx store.Tx, accountID string, debit, credit decimal.Decimal) (model.Account, error) {
	acct, err := tx.GetAccount(accountID)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Error("balance delta against missing account",
			"account_id", accountID, "debit", debit.String(), "credit", credit.String())
		return model.Account{}, model.NotFoundError{Kind: "account", ID: accountID}
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("loading account %s: %w", accountID, err)
	}

	acct.Balance = acct.Balance.Add(model.BalanceDelta(acct.NormalBalance, debit, credit))
	if err := tx.UpdateAccount(acct); err != nil {
		return model.Account{}, fmt.Errorf("updating balance of %s: %w", acct.Code, err)
	}
	return acct, nil
}

// Lookup loads an account inside tx, translating a miss into NotFoundError.
func Lookup(tx store.Tx, accountID string) (model.Account, error) {
	acct, err := tx.GetAccount(accountID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Account{}, model.NotFoundError{Kind: "account", ID: accountID}
	}
	return acct, err
}

// TrialBalanceRow places one account's balance in the debit or credit column.
type TrialBalanceRow struct {
	Account model.Account   `json:"account"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
}

// TrialBalance lists every account with a non-zero balance. When the books
// are consistent, Debits equals Credits.
type TrialBalance struct {
	Rows    []TrialBalanceRow `json:"rows"`
	Debits  decimal.Decimal   `json:"debits"`
	Credits decimal.Decimal   `json:"credits"`
}

// Balanced reports whether the debit and credit columns agree.
func (tb TrialBalance) Balanced() bool {
	return tb.Debits.Equal(tb.Credits)
}

// TrialBalance builds a trial balance from current account balances.
func (r *Registry) TrialBalance(ctx context.Context) (TrialBalance, error) {
	all, err := r.List(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := TrialBalance{Debits: decimal.Zero, Credits: decimal.Zero}
	for _, a := range all {
		if a.Balance.IsZero() {
			continue
		}
		row := TrialBalanceRow{Account: a, Debit: decimal.Zero, Credit: decimal.Zero}
		debitSide := a.NormalBalance == model.NormalDebit
		if a.Balance.IsNegative() {
			debitSide = !debitSide
		}
		if debitSide {
			row.Debit = a.Balance.Abs()
		} else {
			row.Credit = a.Balance.Abs()
		}
		tb.Debits = tb.Debits.Add(row.Debit)
		tb.Credits = tb.Credits.Add(row.Credit)
		tb.Rows = append(tb.Rows, row)
	}
	return tb, nil
}

// Import creates each account whose code is not yet in the chart and
// returns how many were created. Existing codes are skipped. Requires ADMIN.
func (r *Registry) Import(ctx context.Context, chart []model.Account) (int, error) {
	if _, err := auth.RequireAdmin(ctx, "import chart of accounts"); err != nil {
		return 0, err
	}
	accts := make([]model.Account, 0, len(chart))
	for _, a := range chart {
		acct, err := r.newAccount(CreateParams{
			Code:          a.Code,
			Name:          a.Name,
			Type:          a.Type,
			Category:      a.Category,
			NormalBalance: a.NormalBalance,
			Description:   a.Description,
		})
		if err != nil {
			return 0, fmt.Errorf("account %s: %w", a.Code, err)
		}
		accts = append(accts, acct)
	}

	created := 0
	err := r.store.Update(ctx, func(tx store.Tx) error {
		created = 0
		for _, acct := range accts {
			_, err := tx.GetAccountByCode(acct.Code)
			if err == nil {
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("looking up account %s: %w", acct.Code, err)
			}
			if err := insert(tx, acct); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("importing chart of accounts: %w", err)
	}
	r.log.Info("chart of accounts imported", "created", created, "skipped", len(accts)-created)
	return created, nil
}

// ChartPath is where a project keeps its chart of accounts.
func ChartPath(root string) string {
	return filepath.Join(root, "accounts", "chart-of-accounts.csv")
}

// LoadChart reads accounts/chart-of-accounts.csv from a project root.
func LoadChart(root string) ([]model.Account, error) {
	f, err := os.Open(ChartPath(root))
	if err != nil {
		return nil, fmt.Errorf("opening chart of accounts: %w", err)
	}
	defer f.Close()

	accts, err := ReadAccounts(f)
	if err != nil {
		return nil, fmt.Errorf("reading chart of accounts: %w", err)
	}
	return accts, nil
}

// SaveChart writes the chart of accounts to accounts/chart-of-accounts.csv.
func SaveChart(root string, chart []model.Account) error {
	path := ChartPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating accounts dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chart of accounts file: %w", err)
	}
	defer f.Close()

	if err := WriteAccounts(f, chart); err != nil {
		return fmt.Errorf("writing chart of accounts: %w", err)
	}
	return nil
}
