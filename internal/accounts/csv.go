package accounts

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/cleared-dev/ledger/internal/model"
)

const (
	numFields   = 6
	colCode     = 0
	colName     = 1
	colType     = 2
	colCategory = 3
	colNormal   = 4
	colDesc     = 5
)

var header = []string{"code", "name", "type", "category", "normal_balance", "description"}

// ReadAccounts reads chart-of-accounts.csv. Balances and IDs are not part of
// the file; they are assigned when the chart is imported.
func ReadAccounts(r io.Reader) ([]model.Account, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	var accounts []model.Account
	for i, rec := range records[1:] {
		acct, err := UnmarshalAccount(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// WriteAccounts writes chart-of-accounts.csv.
func WriteAccounts(w io.Writer, accounts []model.Account) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, acct := range accounts {
		if err := cw.Write(MarshalAccount(acct)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalAccount converts an Account to a CSV row.
func MarshalAccount(acct model.Account) []string {
	row := make([]string, numFields)
	row[colCode] = acct.Code
	row[colName] = acct.Name
	row[colType] = string(acct.Type)
	row[colCategory] = acct.Category
	row[colNormal] = string(acct.NormalBalance)
	row[colDesc] = acct.Description
	return row
}

// UnmarshalAccount converts a CSV row to an Account. An empty normal_balance
// takes the default for the account type.
func UnmarshalAccount(record []string) (model.Account, error) {
	if len(record) != numFields {
		return model.Account{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}
	if record[colCode] == "" {
		return model.Account{}, fmt.Errorf("empty code")
	}

	typ := model.AccountType(record[colType])
	if !typ.Valid() {
		return model.Account{}, fmt.Errorf("unknown account type %q", record[colType])
	}

	normal := model.NormalBalance(record[colNormal])
	if normal == "" {
		normal = model.DefaultNormalBalance(typ)
	}
	if !normal.Valid() {
		return model.Account{}, fmt.Errorf("unknown normal balance %q", record[colNormal])
	}

	return model.Account{
		Code:          record[colCode],
		Name:          record[colName],
		Type:          typ,
		Category:      record[colCategory],
		NormalBalance: normal,
		Description:   record[colDesc],
		Status:        model.AccountActive,
	}, nil
}
