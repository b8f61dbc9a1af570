// Package rules categorizes bank transactions with user-defined matching
// rules and falls back to expense category keywords.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

// Evaluate returns the first rule in rules whose conditions all match txn.
// The result depends only on its arguments.
func Evaluate(txn model.BankTransaction, rules []model.BankRule) (model.BankRule, bool) {
	for _, r := range rules {
		if Matches(txn, r) {
			return r, true
		}
	}
	return model.BankRule{}, false
}

// Matches reports whether every condition of r holds for txn. A rule
// without conditions never matches.
func Matches(txn model.BankTransaction, r model.BankRule) bool {
	if len(r.Conditions) == 0 {
		return false
	}
	for _, c := range r.Conditions {
		if !matchCondition(txn, c) {
			return false
		}
	}
	return true
}

func matchCondition(txn model.BankTransaction, c model.Condition) bool {
	if c.Field == model.FieldAmount {
		return matchAmount(txn.Amount.Abs(), c)
	}

	var field string
	switch c.Field {
	case model.FieldMerchant:
		field = txn.Merchant
	case model.FieldDescription:
		field = txn.Description
	default:
		return false
	}
	switch c.Operator {
	case model.OpContains:
		return strings.Contains(strings.ToLower(field), strings.ToLower(c.Value))
	case model.OpEquals:
		return field == c.Value
	}
	return false
}

// matchAmount compares the magnitude of a transaction amount, so a rule
// written as "greater_than 100" applies to both inflows and outflows.
func matchAmount(amount decimal.Decimal, c model.Condition) bool {
	if c.Operator == model.OpContains {
		return strings.Contains(amount.StringFixed(model.CurrencyPlaces), strings.TrimSpace(c.Value))
	}
	v, err := decimal.NewFromString(strings.TrimSpace(c.Value))
	if err != nil {
		return false
	}
	switch c.Operator {
	case model.OpEquals:
		return amount.Equal(v.Abs())
	case model.OpGreaterThan:
		return amount.GreaterThan(v)
	}
	return false
}

// MatchKeywords returns the first category, in list order, having a
// keyword that occurs in merchant ignoring case.
func MatchKeywords(merchant string, categories []model.ExpenseCategory) (model.ExpenseCategory, bool) {
	m := strings.ToLower(merchant)
	for _, c := range categories {
		for _, kw := range c.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(m, kw) {
				return c, true
			}
		}
	}
	return model.ExpenseCategory{}, false
}

// Source says how a category was chosen for a transaction.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceRule     Source = "rule"
	SourceKeyword  Source = "keyword"
)

// Decision is a resolved category for a transaction.
type Decision struct {
	Category model.ExpenseCategory `json:"category"`
	Source   Source                `json:"source"`
	RuleID   string                `json:"rule_id,omitempty"`
}

// Auto reports whether the category was chosen without the caller naming it.
func (d Decision) Auto() bool { return d.Source != SourceExplicit }

// Candidates returns the rules that apply to a bank account owner: the
// owner's own rules first, then the firm-wide rules.
func Candidates(tx store.Tx, owner string) ([]model.BankRule, error) {
	var out []model.BankRule
	if owner != "" && owner != model.FirmOwner {
		own, err := tx.ListRules(owner)
		if err != nil {
			return nil, fmt.Errorf("listing rules of %s: %w", owner, err)
		}
		out = own
	}
	firm, err := tx.ListRules(model.FirmOwner)
	if err != nil {
		return nil, fmt.Errorf("listing firm rules: %w", err)
	}
	return append(out, firm...), nil
}

// Categorize picks a category for txn from the owner's rules, then the
// firm rules, then category keywords. The bool is false when nothing
// matched.
func Categorize(tx store.Tx, txn model.BankTransaction, owner string) (Decision, bool, error) {
	candidates, err := Candidates(tx, owner)
	if err != nil {
		return Decision{}, false, err
	}
	if r, ok := Evaluate(txn, candidates); ok {
		cat, err := tx.GetCategoryByName(r.Category)
		if errors.Is(err, store.ErrNotFound) {
			return Decision{}, false, model.NotFoundError{Kind: "expense category", ID: r.Category}
		}
		if err != nil {
			return Decision{}, false, err
		}
		return Decision{Category: cat, Source: SourceRule, RuleID: r.ID}, true, nil
	}

	categories, err := tx.ListCategories()
	if err != nil {
		return Decision{}, false, fmt.Errorf("listing categories: %w", err)
	}
	if cat, ok := MatchKeywords(txn.Merchant, categories); ok {
		return Decision{Category: cat, Source: SourceKeyword}, true, nil
	}
	return Decision{}, false, nil
}

// Explicit resolves a category named by the caller.
func Explicit(tx store.Tx, name string) (Decision, error) {
	cat, err := tx.GetCategoryByName(strings.TrimSpace(name))
	if errors.Is(err, store.ErrNotFound) {
		return Decision{}, model.NotFoundError{Kind: "expense category", ID: name}
	}
	if err != nil {
		return Decision{}, err
	}
	return Decision{Category: cat, Source: SourceExplicit}, nil
}
