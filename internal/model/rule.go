package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleField is the transaction attribute a condition inspects.
type RuleField string

const (
	FieldMerchant    RuleField = "merchant"
	FieldAmount      RuleField = "amount"
	FieldDescription RuleField = "description"
)

// RuleOperator is the comparison a condition applies.
type RuleOperator string

const (
	OpContains    RuleOperator = "contains"
	OpEquals      RuleOperator = "equals"
	OpGreaterThan RuleOperator = "greater_than"
)

// Condition is one predicate of a bank rule.
type Condition struct {
	Field    RuleField    `json:"field" yaml:"field"`
	Operator RuleOperator `json:"operator" yaml:"operator"`
	Value    string       `json:"value" yaml:"value"`
}

// BankRule assigns a category to transactions matching all its conditions.
// Rules are evaluated in (Priority, CreatedAt) order.
type BankRule struct {
	ID         string      `json:"id"`
	Owner      string      `json:"owner"`
	Name       string      `json:"name"`
	Priority   int         `json:"priority"`
	Conditions []Condition `json:"conditions"`
	Category   string      `json:"category"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// ExpenseCategory links a reconciliation category to a GL account.
type ExpenseCategory struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	AccountID     string   `json:"account_id"`
	TaxDeductible bool     `json:"tax_deductible"`
	Keywords      []string `json:"keywords,omitempty"`
	TaxConfigID   string   `json:"tax_config_id,omitempty"`
}

// TaxConfig describes a tax rate and where its liability and cost accrue.
type TaxConfig struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Rate               decimal.Decimal `json:"rate"` // fraction, e.g. 0.0825
	LiabilityAccountID string          `json:"liability_account_id"`
	ExpenseAccountID   string          `json:"expense_account_id"`
	Jurisdiction       string          `json:"jurisdiction,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TaxLines are the two balanced lines produced for a tax amount.
type TaxLines struct {
	Amount    decimal.Decimal `json:"amount"`
	Liability LineInput       `json:"liability_line"`
	Expense   LineInput       `json:"expense_line"`
}
