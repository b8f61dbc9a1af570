// Package tax computes tax lines from configured rates and manages the
// rate configurations.
package tax

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/auth"
	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

// Compute returns the liability and expense lines for base under cfg. The
// tax amount is |base| * rate rounded half away from zero to the cent. The
// liability account is credited and the expense account debited.
func Compute(cfg model.TaxConfig, base decimal.Decimal) model.TaxLines {
	amount := model.RoundCurrency(base.Abs().Mul(cfg.Rate))
	memo := cfg.Name
	return model.TaxLines{
		Amount:    amount,
		Liability: model.CreditLine(cfg.LiabilityAccountID, amount, memo),
		Expense:   model.DebitLine(cfg.ExpenseAccountID, amount, memo),
	}
}

// Calculator resolves tax configs and manages them.
type Calculator struct {
	store store.Store
	log   *slog.Logger
	now   func() time.Time
}

// NewCalculator creates a Calculator over s.
func NewCalculator(s store.Store, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{store: s, log: logger, now: time.Now}
}

// ComputeTaxLines resolves a tax config and computes its lines for base.
func (c *Calculator) ComputeTaxLines(ctx context.Context, taxConfigID string, base decimal.Decimal) (model.TaxLines, error) {
	var lines model.TaxLines
	err := c.store.View(ctx, func(tx store.Tx) error {
		var err error
		lines, err = c.ComputeTaxLinesTx(tx, taxConfigID, base)
		return err
	})
	return lines, err
}

// ComputeTaxLinesTx is ComputeTaxLines inside a caller's transaction.
func (c *Calculator) ComputeTaxLinesTx(tx store.Tx, taxConfigID string, base decimal.Decimal) (model.TaxLines, error) {
	cfg, err := lookup(tx, taxConfigID)
	if err != nil {
		return model.TaxLines{}, err
	}
	return Compute(cfg, base), nil
}

func lookup(tx store.Tx, taxConfigID string) (model.TaxConfig, error) {
	cfg, err := tx.GetTaxConfig(taxConfigID)
	if errors.Is(err, store.ErrNotFound) {
		return model.TaxConfig{}, model.UnknownTaxConfigError{ID: taxConfigID}
	}
	if err != nil {
		return model.TaxConfig{}, fmt.Errorf("loading tax config %s: %w", taxConfigID, err)
	}
	return cfg, nil
}

// Params describes a tax config. Account fields accept an account ID or a
// chart code.
type Params struct {
	Name               string          `json:"name" yaml:"name"`
	Rate               decimal.Decimal `json:"rate" yaml:"rate"`
	LiabilityAccountID string          `json:"liability_account_id" yaml:"liability_account"`
	ExpenseAccountID   string          `json:"expense_account_id" yaml:"expense_account"`
	Jurisdiction       string          `json:"jurisdiction,omitempty" yaml:"jurisdiction"`
}

// Patch lists the tax config fields an update may change.
type Patch struct {
	Name               *string          `json:"name,omitempty"`
	Rate               *decimal.Decimal `json:"rate,omitempty"`
	LiabilityAccountID *string          `json:"liability_account_id,omitempty"`
	ExpenseAccountID   *string          `json:"expense_account_id,omitempty"`
	Jurisdiction       *string          `json:"jurisdiction,omitempty"`
}

var one = decimal.NewFromInt(1)

// Create adds a tax config. Requires ADMIN.
func (c *Calculator) Create(ctx context.Context, p Params) (model.TaxConfig, error) {
	if _, err := auth.RequireAdmin(ctx, "create tax config"); err != nil {
		return model.TaxConfig{}, err
	}
	now := c.now().UTC()
	cfg := model.TaxConfig{
		ID:                 id.New(),
		Name:               strings.TrimSpace(p.Name),
		Rate:               p.Rate,
		LiabilityAccountID: p.LiabilityAccountID,
		ExpenseAccountID:   p.ExpenseAccountID,
		Jurisdiction:       p.Jurisdiction,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := c.store.Update(ctx, func(tx store.Tx) error {
		if err := validate(tx, &cfg); err != nil {
			return err
		}
		return tx.InsertTaxConfig(cfg)
	})
	if err != nil {
		return model.TaxConfig{}, err
	}
	c.log.Info("tax config created", "id", cfg.ID, "name", cfg.Name, "rate", cfg.Rate.String())
	return cfg, nil
}

// Update applies p to a tax config. Requires ADMIN.
func (c *Calculator) Update(ctx context.Context, taxConfigID string, p Patch) (model.TaxConfig, error) {
	if _, err := auth.RequireAdmin(ctx, "update tax config"); err != nil {
		return model.TaxConfig{}, err
	}

	var cfg model.TaxConfig
	err := c.store.Update(ctx, func(tx store.Tx) error {
		var err error
		cfg, err = lookup(tx, taxConfigID)
		if err != nil {
			return err
		}
		if p.Name != nil {
			cfg.Name = strings.TrimSpace(*p.Name)
		}
		if p.Rate != nil {
			cfg.Rate = *p.Rate
		}
		if p.LiabilityAccountID != nil {
			cfg.LiabilityAccountID = *p.LiabilityAccountID
		}
		if p.ExpenseAccountID != nil {
			cfg.ExpenseAccountID = *p.ExpenseAccountID
		}
		if p.Jurisdiction != nil {
			cfg.Jurisdiction = *p.Jurisdiction
		}
		cfg.UpdatedAt = c.now().UTC()
		if err := validate(tx, &cfg); err != nil {
			return err
		}
		return tx.UpdateTaxConfig(cfg)
	})
	if err != nil {
		return model.TaxConfig{}, err
	}
	return cfg, nil
}

// validate checks the rate range and resolves both accounts, rewriting
// chart codes to account IDs.
func validate(tx store.Tx, cfg *model.TaxConfig) error {
	if cfg.Name == "" {
		return model.ValidationError{Field: "name", Reason: "required"}
	}
	if cfg.Rate.IsNegative() || cfg.Rate.GreaterThan(one) {
		return model.ValidationError{Field: "rate", Reason: fmt.Sprintf("must be between 0 and 1, got %s", cfg.Rate)}
	}
	var err error
	if cfg.LiabilityAccountID, err = resolveAccount(tx, "liability_account_id", cfg.LiabilityAccountID); err != nil {
		return err
	}
	if cfg.ExpenseAccountID, err = resolveAccount(tx, "expense_account_id", cfg.ExpenseAccountID); err != nil {
		return err
	}
	return nil
}

func resolveAccount(tx store.Tx, field, ref string) (string, error) {
	if ref == "" {
		return "", model.ValidationError{Field: field, Reason: "required"}
	}
	acct, err := accounts.Lookup(tx, ref)
	var nf model.NotFoundError
	if errors.As(err, &nf) {
		acct, err = tx.GetAccountByCode(ref)
		if errors.Is(err, store.ErrNotFound) {
			return "", nf
		}
	}
	if err != nil {
		return "", err
	}
	return acct.ID, nil
}

// Get returns a tax config.
func (c *Calculator) Get(ctx context.Context, taxConfigID string) (model.TaxConfig, error) {
	var cfg model.TaxConfig
	err := c.store.View(ctx, func(tx store.Tx) error {
		var err error
		cfg, err = lookup(tx, taxConfigID)
		return err
	})
	return cfg, err
}

// List returns every tax config ordered by name.
func (c *Calculator) List(ctx context.Context) ([]model.TaxConfig, error) {
	var out []model.TaxConfig
	err := c.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListTaxConfigs()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing tax configs: %w", err)
	}
	return out, nil
}
