package rules

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/cleared-dev/ledger/internal/model"
)

func txn(merchant, desc, amount string) model.BankTransaction {
	return model.BankTransaction{
		ID:          "t1",
		Merchant:    merchant,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		Date:        time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
	}
}

func cond(f model.RuleField, op model.RuleOperator, v string) model.Condition {
	return model.Condition{Field: f, Operator: op, Value: v}
}

func TestMatches(t *testing.T) {
	coffee := txn("STARBUCKS #4021", "Card purchase 01/10", "-6.25")
	deposit := txn("STRIPE TRANSFER", "", "1500.00")

	tests := []struct {
		name string
		txn  model.BankTransaction
		cond model.Condition
		want bool
	}{
		{"merchant contains ignores case", coffee, cond(model.FieldMerchant, model.OpContains, "starbucks"), true},
		{"merchant contains misses", coffee, cond(model.FieldMerchant, model.OpContains, "peet"), false},
		{"merchant equals exact", coffee, cond(model.FieldMerchant, model.OpEquals, "STARBUCKS #4021"), true},
		{"merchant equals is case sensitive", coffee, cond(model.FieldMerchant, model.OpEquals, "starbucks #4021"), false},
		{"description contains", coffee, cond(model.FieldDescription, model.OpContains, "CARD"), true},
		{"empty description", deposit, cond(model.FieldDescription, model.OpContains, "x"), false},
		{"amount equals magnitude", coffee, cond(model.FieldAmount, model.OpEquals, "6.25"), true},
		{"amount equals signed value", coffee, cond(model.FieldAmount, model.OpEquals, "-6.25"), true},
		{"amount equals trailing zeros", deposit, cond(model.FieldAmount, model.OpEquals, "1500"), true},
		{"amount greater than outflow", coffee, cond(model.FieldAmount, model.OpGreaterThan, "5"), true},
		{"amount greater than is strict", coffee, cond(model.FieldAmount, model.OpGreaterThan, "6.25"), false},
		{"amount greater than inflow", deposit, cond(model.FieldAmount, model.OpGreaterThan, "1000"), true},
		{"amount contains text form", deposit, cond(model.FieldAmount, model.OpContains, "500.00"), true},
		{"non-numeric amount value", coffee, cond(model.FieldAmount, model.OpGreaterThan, "lots"), false},
		{"greater than on merchant", coffee, cond(model.FieldMerchant, model.OpGreaterThan, "A"), false},
		{"unknown field", coffee, cond("memo", model.OpContains, "x"), false},
		{"unknown operator", coffee, cond(model.FieldMerchant, "starts_with", "STAR"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := model.BankRule{ID: "r", Conditions: []model.Condition{tt.cond}}
			assert.Equal(t, tt.want, Matches(tt.txn, r))
		})
	}
}

func TestMatchesAllConditions(t *testing.T) {
	coffee := txn("STARBUCKS #4021", "", "-6.25")
	r := model.BankRule{Conditions: []model.Condition{
		cond(model.FieldMerchant, model.OpContains, "starbucks"),
		cond(model.FieldAmount, model.OpGreaterThan, "10"),
	}}
	assert.False(t, Matches(coffee, r))

	r.Conditions[1].Value = "5"
	assert.True(t, Matches(coffee, r))

	assert.False(t, Matches(coffee, model.BankRule{}), "rule without conditions never matches")
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	coffee := txn("STARBUCKS #4021", "", "-6.25")
	broad := model.BankRule{ID: "broad", Category: "Meals", Conditions: []model.Condition{cond(model.FieldMerchant, model.OpContains, "star")}}
	narrow := model.BankRule{ID: "narrow", Category: "Travel", Conditions: []model.Condition{cond(model.FieldMerchant, model.OpContains, "starbucks")}}
	other := model.BankRule{ID: "other", Category: "Software", Conditions: []model.Condition{cond(model.FieldMerchant, model.OpContains, "github")}}

	r, ok := Evaluate(coffee, []model.BankRule{other, broad, narrow})
	assert.True(t, ok)
	assert.Equal(t, "broad", r.ID)

	r, ok = Evaluate(coffee, []model.BankRule{other, narrow, broad})
	assert.True(t, ok)
	assert.Equal(t, "narrow", r.ID, "reordering changes the winner")

	_, ok = Evaluate(coffee, []model.BankRule{other})
	assert.False(t, ok)

	_, ok = Evaluate(coffee, nil)
	assert.False(t, ok)
}

func TestEvaluateDeterministic(t *testing.T) {
	list := []model.BankRule{
		{ID: "a", Conditions: []model.Condition{cond(model.FieldAmount, model.OpGreaterThan, "100")}},
		{ID: "b", Conditions: []model.Condition{cond(model.FieldMerchant, model.OpContains, "shell")}},
		{ID: "c", Conditions: []model.Condition{cond(model.FieldMerchant, model.OpContains, "")}},
	}
	fuel := txn("SHELL OIL 5521", "", "-48.10")
	first, _ := Evaluate(fuel, list)
	for range 50 {
		got, ok := Evaluate(fuel, list)
		assert.True(t, ok)
		assert.Equal(t, first.ID, got.ID)
	}
	assert.Equal(t, "b", first.ID)
}

func TestMatchKeywords(t *testing.T) {
	cats := []model.ExpenseCategory{
		{Name: "Meals", Keywords: []string{"starbucks", "chipotle"}},
		{Name: "Software", Keywords: []string{" GitHub ", ""}},
		{Name: "Travel", Keywords: []string{"uber", "star"}},
	}

	c, ok := MatchKeywords("STARBUCKS #4021", cats)
	assert.True(t, ok)
	assert.Equal(t, "Meals", c.Name, "first category in list order wins")

	c, ok = MatchKeywords("github.com sponsors", cats)
	assert.True(t, ok)
	assert.Equal(t, "Software", c.Name)

	_, ok = MatchKeywords("LANDLORD LLC", cats)
	assert.False(t, ok, "empty keywords never match")
}
