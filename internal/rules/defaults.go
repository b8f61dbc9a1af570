package rules

// DefaultCategories returns expense categories matching the default chart
// of accounts, keyed by chart code.
func DefaultCategories() []CategoryParams {
	return []CategoryParams{
		{Name: "Advertising", AccountID: "5010", TaxDeductible: true, Keywords: []string{"google ads", "facebk", "linkedin"}},
		{Name: "Meals", AccountID: "5100", TaxDeductible: true, Keywords: []string{"starbucks", "chipotle", "doordash"}},
		{Name: "Office Supplies", AccountID: "5030", TaxDeductible: true, Keywords: []string{"staples", "office depot"}},
		{Name: "Professional Services", AccountID: "5040", TaxDeductible: true},
		{Name: "Software", AccountID: "5020", TaxDeductible: true, Keywords: []string{"github", "aws", "dropbox"}},
		{Name: "Travel", AccountID: "5110", TaxDeductible: true, Keywords: []string{"uber", "lyft", "delta air"}},
		{Name: "Income", AccountID: "4010", Keywords: []string{"invoice", "stripe"}},
	}
}

// FilePath is where a books directory keeps its seed rules.
const FilePath = "rules/categorization-rules.yaml"
