package importer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledger/internal/auth"
	"github.com/cleared-dev/ledger/internal/bank"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store/memory"
)

const chaseHeader = "Details,Posting Date,Description,Amount,Type,Balance,Check or Slip #\n"

func parseFile(t *testing.T, p Parser, name string) []Record {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	defer f.Close()
	recs, err := p.Parse(f)
	require.NoError(t, err)
	return recs
}

func TestChaseParser_Parse(t *testing.T) {
	recs := parseFile(t, &ChaseParser{}, "chase_checking.csv")
	require.Len(t, recs, 6)

	// First: GITHUB subscription
	assert.Equal(t, "GITHUB *PRO SUBSCRIPTION", recs[0].Merchant)
	assert.Equal(t, "-4.00", recs[0].Amount.StringFixed(2))
	assert.Equal(t, "ACH_DEBIT", recs[0].Type)
	assert.Equal(t, 2025, recs[0].Date.Year())
	assert.Equal(t, 1, int(recs[0].Date.Month()))
	assert.Equal(t, 3, recs[0].Date.Day())

	// Fourth: ACME income (positive)
	assert.Equal(t, "ACME CONSULTING INVOICE 1042", recs[3].Merchant)
	assert.True(t, recs[3].Amount.IsPositive())
	assert.Equal(t, "3500.00", recs[3].Amount.StringFixed(2))

	assert.Equal(t, 22, recs[5].Date.Day())
}

func TestChaseParser_NegativePositiveAmounts(t *testing.T) {
	for _, rec := range parseFile(t, &ChaseParser{}, "chase_checking.csv") {
		if rec.Merchant == "ACME CONSULTING INVOICE 1042" {
			assert.True(t, rec.Amount.IsPositive())
		} else {
			assert.True(t, rec.Amount.IsNegative(), "expected negative for %s", rec.Merchant)
		}
	}
}

func TestChaseParser_EmptyFile(t *testing.T) {
	p := &ChaseParser{}
	recs, err := p.Parse(strings.NewReader(chaseHeader))
	require.NoError(t, err)
	assert.Nil(t, recs)
}

func TestChaseParser_BadRows(t *testing.T) {
	tests := []struct {
		name string
		row  string
		want string
	}{
		{"bad date", "DEBIT,NOTADATE,desc,-4.00,ACH_DEBIT,100.00,", "parsing date"},
		{"bad amount", "DEBIT,01/03/2025,desc,NOTANUMBER,ACH_DEBIT,100.00,", "parsing amount"},
		{"short row", "DEBIT,01/03/2025,desc", "reading chase CSV"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &ChaseParser{}
			_, err := p.Parse(strings.NewReader(chaseHeader + tt.row + "\n"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestChaseParser_Reference(t *testing.T) {
	recs := parseFile(t, &ChaseParser{}, "chase_checking.csv")

	// Reference format: chase_YYYYMMDD_<prefix>
	assert.Equal(t, "chase_20250103_GITHUBPROS", recs[0].ExternalRef)
}

func TestChaseParser_SameDayRepeats(t *testing.T) {
	in := chaseHeader +
		"DEBIT,01/06/2025,STARBUCKS #4021,-6.25,DEBIT_CARD,100.00,\n" +
		"DEBIT,01/06/2025,STARBUCKS #4021,-3.10,DEBIT_CARD,96.90,\n"
	p := &ChaseParser{}
	recs, err := p.Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "chase_20250106_STARBUCKS4", recs[0].ExternalRef)
	assert.Equal(t, "chase_20250106_STARBUCKS4_2", recs[1].ExternalRef)
}

func TestGenericParser(t *testing.T) {
	recs := parseFile(t, &GenericParser{}, "generic.csv")
	require.Len(t, recs, 3)

	assert.Equal(t, "SHELL OIL 5521", recs[0].Merchant)
	assert.Equal(t, "Fuel", recs[0].Description)
	assert.Equal(t, "gen-001", recs[0].ExternalRef)
	assert.Equal(t, "-48.10", recs[0].Amount.StringFixed(2))

	assert.True(t, recs[1].Amount.IsPositive())
	assert.Equal(t, 3, recs[1].Date.Day())

	assert.Equal(t, "generic_20250204_CHIPOTLE11", recs[2].ExternalRef)
}

func TestGenericParser_HeaderVariants(t *testing.T) {
	in := "Date,Description,Amount\n01/31/2025,Wire fee,-15.00\n"
	p := &GenericParser{}
	recs, err := p.Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Wire fee", recs[0].Merchant, "description fills in for merchant")
	assert.Equal(t, 31, recs[0].Date.Day())

	_, err = p.Parse(strings.NewReader("when,amount,merchant\n"))
	assert.ErrorContains(t, err, `missing "date" column`)

	_, err = p.Parse(strings.NewReader("date,amount\n"))
	assert.ErrorContains(t, err, "merchant")

	_, err = p.Parse(strings.NewReader("date,merchant,amount\nyesterday,X,-1.00\n"))
	assert.ErrorContains(t, err, "row 2: parsing date")

	recs, err = p.Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Nil(t, recs)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get("nonexistent"))

	r.Register(&ChaseParser{})
	p := r.Get("chase")
	require.NotNil(t, p)
	assert.Equal(t, "chase", p.Format())
	assert.NotNil(t, r.Get("CHASE"))
	assert.Panics(t, func() { r.Register(&ChaseParser{}) })

	d := DefaultRegistry()
	assert.NotNil(t, d.Get("chase"))
	assert.NotNil(t, d.Get("generic"))
}

func TestScan_FindsCSVs(t *testing.T) {
	dir := t.TempDir()
	importDir := filepath.Join(dir, "import")
	processedDir := filepath.Join(importDir, "processed")
	require.NoError(t, os.MkdirAll(processedDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(importDir, "bank.CSV"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(importDir, "other.txt"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(processedDir, "old.csv"), []byte("data"), 0o644))

	files, err := Scan(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "bank.CSV", files[0].Name)
	assert.Equal(t, int64(4), files[0].Size)
}

func TestScan_EmptyDir(t *testing.T) {
	files, err := Scan(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, files)
}

func TestMarkProcessed(t *testing.T) {
	dir := t.TempDir()
	importDir := filepath.Join(dir, "import")
	require.NoError(t, os.MkdirAll(importDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(importDir, "bank.csv"), []byte("data"), 0o644))

	require.NoError(t, MarkProcessed(dir, "bank.csv"))

	assert.NoFileExists(t, filepath.Join(importDir, "bank.csv"))
	assert.FileExists(t, filepath.Join(dir, "import", "processed", "bank.csv"))

	err := MarkProcessed(dir, "bank.csv")
	assert.ErrorContains(t, err, "moving bank.csv to processed")
}

func TestSeenIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "import.db")
	idx, err := OpenIndex(path)
	require.NoError(t, err)

	seen, err := idx.Seen("acct-1", "ref-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, idx.Mark("acct-1", "ref-1", "txn-1"))
	require.NoError(t, idx.Mark("acct-1", "ref-1", "txn-2"))

	seen, err = idx.Seen("acct-1", "ref-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = idx.Seen("acct-2", "ref-1")
	require.NoError(t, err)
	assert.False(t, seen, "references are per bank account")

	e, ok, err := idx.Lookup("acct-1", "ref-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "txn-1", e.TransactionID, "first mark wins")
	require.NoError(t, idx.Close())

	// Survives reopening.
	idx, err = OpenIndex(path)
	require.NoError(t, err)
	defer idx.Close()
	n, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type ingestFixture struct {
	ledger  *bank.Ledger
	account model.BankAccount
	index   *SeenIndex
	in      *Ingester
}

var operatorCtx = auth.WithPrincipal(context.Background(), auth.Principal{ID: "ops", Role: auth.RoleAdmin})

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := bank.NewLedger(memory.New(), nil, logger)
	acct, err := l.CreateAccount(operatorCtx, bank.AccountParams{Institution: "Chase", Name: "Checking"})
	require.NoError(t, err)

	idx, err := OpenIndex(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	return &ingestFixture{ledger: l, account: acct, index: idx, in: NewIngester(l, idx, logger)}
}

func TestIngest(t *testing.T) {
	f := newIngestFixture(t)
	recs := parseFile(t, &ChaseParser{}, "chase_checking.csv")

	res, err := f.in.Ingest(operatorCtx, f.account.ID, recs)
	require.NoError(t, err)
	assert.Len(t, res.Recorded, 6)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, model.TxnPosted, res.Recorded[0].Status)
	assert.Equal(t, "chase_20250103_GITHUBPROS", res.Recorded[0].ExternalRef)

	res, err = f.in.Ingest(operatorCtx, f.account.ID, recs)
	require.NoError(t, err)
	assert.Empty(t, res.Recorded)
	assert.Equal(t, 6, res.Skipped)

	txns, err := f.ledger.ListTransactions(context.Background(), bank.TransactionFilter{BankAccountID: f.account.ID})
	require.NoError(t, err)
	assert.Len(t, txns, 6)
}

func TestIngest_StoreDedupesWithoutIndex(t *testing.T) {
	f := newIngestFixture(t)
	in := NewIngester(f.ledger, nil, nil)
	recs := parseFile(t, &GenericParser{}, "generic.csv")

	_, err := in.Ingest(operatorCtx, f.account.ID, recs)
	require.NoError(t, err)
	res, err := in.Ingest(operatorCtx, f.account.ID, recs)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Skipped)
}

func TestIngest_InvalidRecord(t *testing.T) {
	f := newIngestFixture(t)
	recs := parseFile(t, &GenericParser{}, "generic.csv")
	recs[1].Merchant = ""

	res, err := f.in.Ingest(operatorCtx, f.account.ID, recs)
	var vErr model.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, err.Error(), "record 2")
	assert.Len(t, res.Recorded, 1)
}

func TestImportDir(t *testing.T) {
	f := newIngestFixture(t)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "import"), 0o755))
	data, err := os.ReadFile(filepath.Join("testdata", "chase_checking.csv"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "import", "jan.csv"), data, 0o644))

	results, err := f.in.ImportDir(operatorCtx, root, f.account.ID, &ChaseParser{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "jan.csv", results[0].File)
	assert.Len(t, results[0].Recorded, 6)
	assert.FileExists(t, filepath.Join(root, "import", "processed", "jan.csv"))

	// Dropping the same export again records nothing.
	require.NoError(t, os.WriteFile(filepath.Join(root, "import", "jan-again.csv"), data, 0o644))
	results, err = f.in.ImportDir(operatorCtx, root, f.account.ID, &ChaseParser{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Recorded)
	assert.Equal(t, 6, results[0].Skipped)
}

func TestImportDir_BadFileStays(t *testing.T) {
	f := newIngestFixture(t)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "import"), 0o755))
	bad := filepath.Join(root, "import", "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte(chaseHeader+"DEBIT,NOTADATE,x,-1.00,ACH,1.00,\n"), 0o644))

	_, err := f.in.ImportDir(operatorCtx, root, f.account.ID, &ChaseParser{})
	assert.ErrorContains(t, err, "importing bad.csv")
	assert.FileExists(t, bad)
}
