package accounts

import "github.com/cleared-dev/ledger/internal/model"

// Entity types with a built-in chart.
const (
	EntityAdvisoryFirm = "advisory_firm"
	EntitySoleProp     = "sole_proprietor"
)

// DefaultChart returns the default chart of accounts for an entity type.
func DefaultChart(entityType string) []model.Account {
	chart := baseChart()
	if entityType == EntityAdvisoryFirm {
		chart = append(chart, advisoryAccounts()...)
	}
	for i := range chart {
		chart[i].NormalBalance = model.DefaultNormalBalance(chart[i].Type)
		chart[i].Status = model.AccountActive
	}
	return chart
}

func baseChart() []model.Account {
	return []model.Account{
		{Code: "1010", Name: "Business Checking", Type: model.AccountTypeAsset, Category: "cash", Description: "Primary checking account"},
		{Code: "1020", Name: "Business Savings", Type: model.AccountTypeAsset, Category: "cash", Description: "Savings account"},
		{Code: "1050", Name: "Bank Clearing", Type: model.AccountTypeAsset, Category: "cash", Description: "Bank feed clearing account"},
		{Code: "1200", Name: "Accounts Receivable", Type: model.AccountTypeAsset, Category: "receivables"},
		{Code: "2010", Name: "Credit Card", Type: model.AccountTypeLiability, Category: "current", Description: "Business credit card"},
		{Code: "2200", Name: "Sales Tax Payable", Type: model.AccountTypeLiability, Category: "tax"},
		{Code: "3010", Name: "Owner's Equity", Type: model.AccountTypeEquity, Description: "Owner's equity"},
		{Code: "4010", Name: "Service Revenue", Type: model.AccountTypeRevenue},
		{Code: "5010", Name: "Advertising & Marketing", Type: model.AccountTypeExpense, Category: "operating", Description: "Advertising costs"},
		{Code: "5020", Name: "Software & SaaS", Type: model.AccountTypeExpense, Category: "operating", Description: "Software subscriptions"},
		{Code: "5030", Name: "Office Supplies", Type: model.AccountTypeExpense, Category: "operating", Description: "Office supplies and expenses"},
		{Code: "5040", Name: "Professional Services", Type: model.AccountTypeExpense, Category: "operating", Description: "Legal, accounting, consulting"},
		{Code: "5100", Name: "Meals", Type: model.AccountTypeExpense, Category: "travel"},
		{Code: "5110", Name: "Travel", Type: model.AccountTypeExpense, Category: "travel"},
		{Code: "5900", Name: "Sales Tax Expense", Type: model.AccountTypeExpense, Category: "tax"},
	}
}

func advisoryAccounts() []model.Account {
	return []model.Account{
		{Code: "4100", Name: "Advisory Fees", Type: model.AccountTypeRevenue, Description: "Fees billed to clients"},
		{Code: "5200", Name: "Client Entertainment", Type: model.AccountTypeExpense, Category: "travel"},
	}
}
