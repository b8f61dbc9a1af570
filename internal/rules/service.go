package rules

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/ledger/internal/auth"
	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

// Book stores bank rules and expense categories.
type Book struct {
	store store.Store
	log   *slog.Logger
	now   func() time.Time
}

// NewBook creates a Book over s.
func NewBook(s store.Store, logger *slog.Logger) *Book {
	if logger == nil {
		logger = slog.Default()
	}
	return &Book{store: s, log: logger, now: time.Now}
}

// RuleParams defines a rule. Category names an expense category.
type RuleParams struct {
	Owner      string            `json:"owner,omitempty" yaml:"owner"`
	Name       string            `json:"name" yaml:"name"`
	Priority   int               `json:"priority" yaml:"priority"`
	Conditions []model.Condition `json:"conditions" yaml:"conditions"`
	Category   string            `json:"category" yaml:"category"`
}

// RulePatch lists the rule fields an update may change. Nil Conditions
// leaves them unchanged.
type RulePatch struct {
	Name       *string           `json:"name,omitempty"`
	Priority   *int              `json:"priority,omitempty"`
	Conditions []model.Condition `json:"conditions,omitempty"`
	Category   *string           `json:"category,omitempty"`
}

// ValidateConditions rejects empty condition lists, unknown fields and
// operators, and non-numeric values for numeric amount comparisons.
func ValidateConditions(conds []model.Condition) error {
	if len(conds) == 0 {
		return model.ValidationError{Field: "conditions", Reason: "a rule needs at least one condition"}
	}
	for i, c := range conds {
		field := fmt.Sprintf("conditions[%d]", i)
		switch c.Field {
		case model.FieldMerchant, model.FieldDescription, model.FieldAmount:
		default:
			return model.ValidationError{Field: field, Reason: fmt.Sprintf("unknown field %q", c.Field)}
		}
		switch c.Operator {
		case model.OpContains, model.OpEquals:
		case model.OpGreaterThan:
			if c.Field != model.FieldAmount {
				return model.ValidationError{Field: field, Reason: "greater_than applies only to amount"}
			}
		default:
			return model.ValidationError{Field: field, Reason: fmt.Sprintf("unknown operator %q", c.Operator)}
		}
		if strings.TrimSpace(c.Value) == "" {
			return model.ValidationError{Field: field, Reason: "value is required"}
		}
		if c.Field == model.FieldAmount && c.Operator != model.OpContains {
			if _, err := decimal.NewFromString(strings.TrimSpace(c.Value)); err != nil {
				return model.ValidationError{Field: field, Reason: fmt.Sprintf("amount %q is not a number", c.Value)}
			}
		}
	}
	return nil
}

// CreateRule stores a rule. Without an explicit owner, rules created by an
// ADMIN are firm-wide and others belong to their creator.
func (b *Book) CreateRule(ctx context.Context, p RuleParams) (model.BankRule, error) {
	principal, err := auth.Require(ctx, "create rule")
	if err != nil {
		return model.BankRule{}, err
	}
	var r model.BankRule
	err = b.store.Update(ctx, func(tx store.Tx) error {
		var err error
		r, err = b.createRuleTx(tx, principal, p, b.now().UTC())
		return err
	})
	if err != nil {
		return model.BankRule{}, err
	}
	b.log.Info("rule created", "id", r.ID, "name", r.Name, "owner", r.Owner, "category", r.Category)
	return r, nil
}

func (b *Book) createRuleTx(tx store.Tx, principal auth.Principal, p RuleParams, now time.Time) (model.BankRule, error) {
	if strings.TrimSpace(p.Name) == "" {
		return model.BankRule{}, model.ValidationError{Field: "name", Reason: "required"}
	}
	if err := ValidateConditions(p.Conditions); err != nil {
		return model.BankRule{}, err
	}
	cat, err := lookupCategory(tx, p.Category)
	if err != nil {
		return model.BankRule{}, err
	}
	if p.Owner == "" {
		p.Owner = principal.ID
		if principal.Role == auth.RoleAdmin {
			p.Owner = model.FirmOwner
		}
	}
	if err := auth.RequireOwner(principal, p.Owner, "create rule for "+p.Owner); err != nil {
		return model.BankRule{}, err
	}

	r := model.BankRule{
		ID:         id.New(),
		Owner:      p.Owner,
		Name:       strings.TrimSpace(p.Name),
		Priority:   p.Priority,
		Conditions: p.Conditions,
		Category:   cat.Name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.InsertRule(r); err != nil {
		return model.BankRule{}, fmt.Errorf("inserting rule: %w", err)
	}
	return r, nil
}

func lookupCategory(tx store.Tx, name string) (model.ExpenseCategory, error) {
	if strings.TrimSpace(name) == "" {
		return model.ExpenseCategory{}, model.ValidationError{Field: "category", Reason: "required"}
	}
	cat, err := tx.GetCategoryByName(strings.TrimSpace(name))
	if errors.Is(err, store.ErrNotFound) {
		return model.ExpenseCategory{}, model.NotFoundError{Kind: "expense category", ID: name}
	}
	return cat, err
}

// UpdateRule applies p to a rule. CreatedAt is kept, so an update never
// moves a rule among others of the same priority.
func (b *Book) UpdateRule(ctx context.Context, ruleID string, p RulePatch) (model.BankRule, error) {
	principal, err := auth.Require(ctx, "update rule")
	if err != nil {
		return model.BankRule{}, err
	}
	var r model.BankRule
	err = b.store.Update(ctx, func(tx store.Tx) error {
		var err error
		r, err = getRule(tx, ruleID)
		if err != nil {
			return err
		}
		if err := auth.RequireOwner(principal, r.Owner, "update rule"); err != nil {
			return err
		}
		if p.Name != nil {
			if strings.TrimSpace(*p.Name) == "" {
				return model.ValidationError{Field: "name", Reason: "required"}
			}
			r.Name = strings.TrimSpace(*p.Name)
		}
		if p.Priority != nil {
			r.Priority = *p.Priority
		}
		if p.Conditions != nil {
			if err := ValidateConditions(p.Conditions); err != nil {
				return err
			}
			r.Conditions = p.Conditions
		}
		if p.Category != nil {
			cat, err := lookupCategory(tx, *p.Category)
			if err != nil {
				return err
			}
			r.Category = cat.Name
		}
		r.UpdatedAt = b.now().UTC()
		return tx.UpdateRule(r)
	})
	if err != nil {
		return model.BankRule{}, err
	}
	return r, nil
}

// DeleteRule removes a rule.
func (b *Book) DeleteRule(ctx context.Context, ruleID string) error {
	principal, err := auth.Require(ctx, "delete rule")
	if err != nil {
		return err
	}
	err = b.store.Update(ctx, func(tx store.Tx) error {
		r, err := getRule(tx, ruleID)
		if err != nil {
			return err
		}
		if err := auth.RequireOwner(principal, r.Owner, "delete rule"); err != nil {
			return err
		}
		if err := tx.DeleteRule(ruleID); err != nil {
			return fmt.Errorf("deleting rule: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.log.Info("rule deleted", "id", ruleID, "principal", principal.ID)
	return nil
}

func getRule(tx store.Tx, ruleID string) (model.BankRule, error) {
	r, err := tx.GetRule(ruleID)
	if errors.Is(err, store.ErrNotFound) {
		return model.BankRule{}, model.NotFoundError{Kind: "rule", ID: ruleID}
	}
	return r, err
}

// ListRules returns the rules of owner, or all rules when owner is "", in
// evaluation order.
func (b *Book) ListRules(ctx context.Context, owner string) ([]model.BankRule, error) {
	var out []model.BankRule
	err := b.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListRules(owner)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	return out, nil
}

// File is the YAML layout of rules/categorization-rules.yaml.
type File struct {
	Rules []RuleParams `yaml:"rules"`
}

// ReadFile decodes a rules file.
func ReadFile(r io.Reader) (File, error) {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("parsing rules: %w", err)
	}
	return f, nil
}

// ImportRules creates every rule in a YAML rules file for owner. The
// import is all or nothing. Rules of equal priority keep their file order.
func (b *Book) ImportRules(ctx context.Context, owner string, r io.Reader) ([]model.BankRule, error) {
	principal, err := auth.Require(ctx, "import rules")
	if err != nil {
		return nil, err
	}
	f, err := ReadFile(r)
	if err != nil {
		return nil, err
	}

	var created []model.BankRule
	now := b.now().UTC()
	err = b.store.Update(ctx, func(tx store.Tx) error {
		for i, p := range f.Rules {
			if owner != "" {
				p.Owner = owner
			}
			rule, err := b.createRuleTx(tx, principal, p, now.Add(time.Duration(i)*time.Microsecond))
			if err != nil {
				return fmt.Errorf("rule %d (%s): %w", i+1, p.Name, err)
			}
			created = append(created, rule)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.log.Info("rules imported", "count", len(created))
	return created, nil
}

// CategoryParams defines an expense category. AccountID accepts an account
// ID or chart code.
type CategoryParams struct {
	Name          string   `json:"name" yaml:"name"`
	AccountID     string   `json:"account_id" yaml:"account"`
	TaxDeductible bool     `json:"tax_deductible" yaml:"tax_deductible"`
	Keywords      []string `json:"keywords,omitempty" yaml:"keywords"`
	TaxConfigID   string   `json:"tax_config_id,omitempty" yaml:"tax_config"`
}

// CreateCategory stores an expense category. Names are unique ignoring case.
func (b *Book) CreateCategory(ctx context.Context, p CategoryParams) (model.ExpenseCategory, error) {
	if _, err := auth.RequireAdmin(ctx, "create expense category"); err != nil {
		return model.ExpenseCategory{}, err
	}
	if strings.TrimSpace(p.Name) == "" {
		return model.ExpenseCategory{}, model.ValidationError{Field: "name", Reason: "required"}
	}

	c := model.ExpenseCategory{
		ID:            id.New(),
		Name:          strings.TrimSpace(p.Name),
		TaxDeductible: p.TaxDeductible,
		TaxConfigID:   p.TaxConfigID,
	}
	for _, kw := range p.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			c.Keywords = append(c.Keywords, kw)
		}
	}
	err := b.store.Update(ctx, func(tx store.Tx) error {
		acct, err := tx.GetAccount(p.AccountID)
		if errors.Is(err, store.ErrNotFound) {
			acct, err = tx.GetAccountByCode(p.AccountID)
		}
		if errors.Is(err, store.ErrNotFound) {
			return model.NotFoundError{Kind: "account", ID: p.AccountID}
		}
		if err != nil {
			return err
		}
		c.AccountID = acct.ID

		if c.TaxConfigID != "" {
			if _, err := tx.GetTaxConfig(c.TaxConfigID); errors.Is(err, store.ErrNotFound) {
				return model.UnknownTaxConfigError{ID: c.TaxConfigID}
			} else if err != nil {
				return err
			}
		}
		err = tx.InsertCategory(c)
		if errors.Is(err, store.ErrConflict) {
			return model.ValidationError{Field: "name", Reason: fmt.Sprintf("category %q already exists", c.Name)}
		}
		return err
	})
	if err != nil {
		return model.ExpenseCategory{}, err
	}
	b.log.Info("category created", "id", c.ID, "name", c.Name)
	return c, nil
}

// ListCategories returns every expense category ordered by name.
func (b *Book) ListCategories(ctx context.Context) ([]model.ExpenseCategory, error) {
	var out []model.ExpenseCategory
	err := b.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListCategories()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return out, nil
}

// GetCategoryByName looks a category up ignoring case.
func (b *Book) GetCategoryByName(ctx context.Context, name string) (model.ExpenseCategory, error) {
	var c model.ExpenseCategory
	err := b.store.View(ctx, func(tx store.Tx) error {
		d, err := Explicit(tx, name)
		c = d.Category
		return err
	})
	return c, err
}
