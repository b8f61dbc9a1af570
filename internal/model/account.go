package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies accounts in the chart of accounts.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// Valid reports whether t is one of the five account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// NormalBalance is the side on which an account's balance increases.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "debit"
	NormalCredit NormalBalance = "credit"
)

// Valid reports whether n is debit or credit.
func (n NormalBalance) Valid() bool {
	return n == NormalDebit || n == NormalCredit
}

// DefaultNormalBalance returns the conventional normal side for an account type.
func DefaultNormalBalance(t AccountType) NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalDebit
	default:
		return NormalCredit
	}
}

// AccountStatus is the soft-disable state of an account.
type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountArchived AccountStatus = "archived"
)

// Account is a general-ledger account with its running balance.
type Account struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Type          AccountType     `json:"type"`
	Category      string          `json:"category,omitempty"`
	NormalBalance NormalBalance   `json:"normal_balance"`
	Balance       decimal.Decimal `json:"balance"`
	Description   string          `json:"description,omitempty"`
	Status        AccountStatus   `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Active reports whether the account accepts postings.
func (a Account) Active() bool {
	return a.Status != AccountArchived
}

// BalanceDelta is the change in balance caused by one line posted against an
// account with the given normal side.
func BalanceDelta(normal NormalBalance, debit, credit decimal.Decimal) decimal.Decimal {
	if normal == NormalDebit {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}
