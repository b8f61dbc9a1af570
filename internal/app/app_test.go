package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/auditlog"
	"github.com/cleared-dev/ledger/internal/auth"
	"github.com/cleared-dev/ledger/internal/bank"
	"github.com/cleared-dev/ledger/internal/config"
	"github.com/cleared-dev/ledger/internal/events"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/rules"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testConfig(driver string) *config.Config {
	cfg := config.Default("Test Biz", accounts.EntitySoleProp)
	cfg.Storage.Driver = driver
	cfg.BankAccounts = []config.BankAccount{
		{Name: "Chase Checking", Institution: "Chase", Type: "checking", LastFour: "4021", LedgerAccount: "1050"},
	}
	return cfg
}

const seedRules = `rules:
  - name: Coffee
    category: Meals
    conditions:
      - field: merchant
        operator: contains
        value: starbucks
`

func openApp(t *testing.T, dir string, cfg *config.Config) *App {
	t.Helper()
	a, err := Open(context.Background(), dir, cfg, discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestBootstrap(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "rules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, rules.FilePath), []byte(seedRules), 0o644))

	a := openApp(t, dir, testConfig(config.DriverMemory))
	ctx := context.Background()
	require.NoError(t, a.Bootstrap(ctx))
	require.NoError(t, a.Bootstrap(ctx), "bootstrap is idempotent")

	accts, err := a.Accounts.List(ctx)
	require.NoError(t, err)
	assert.Len(t, accts, len(accounts.DefaultChart(accounts.EntitySoleProp)))

	cats, err := a.Rules.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, len(rules.DefaultCategories()))

	banks, err := a.Bank.ListAccounts(ctx, model.FirmOwner)
	require.NoError(t, err)
	require.Len(t, banks, 1)
	clearing, err := a.Accounts.GetByCode(ctx, "1050")
	require.NoError(t, err)
	assert.Equal(t, clearing.ID, banks[0].LedgerAccountID)

	rs, err := a.Rules.ListRules(ctx, model.FirmOwner)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "Coffee", rs[0].Name)
}

func TestBootstrapUsesChartFile(t *testing.T) {
	dir := t.TempDir()
	chart := []model.Account{
		{Code: "1050", Name: "Clearing", Type: model.AccountTypeAsset, NormalBalance: model.NormalDebit},
		{Code: "5100", Name: "Meals", Type: model.AccountTypeExpense, NormalBalance: model.NormalDebit},
	}
	require.NoError(t, accounts.SaveChart(dir, chart))

	a := openApp(t, dir, testConfig(config.DriverMemory))
	require.NoError(t, a.Bootstrap(context.Background()))

	accts, err := a.Accounts.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, accts, 2)

	cats, err := a.Rules.ListCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 1, "categories without a chart account are skipped")
	assert.Equal(t, "Meals", cats[0].Name)
}

func TestOperator(t *testing.T) {
	cfg := testConfig(config.DriverMemory)
	cfg.Operator = config.OperatorConfig{ID: "adv-3", Role: "advisor"}
	a := openApp(t, t.TempDir(), cfg)

	p, ok := auth.FromContext(a.AsOperator(context.Background()))
	require.True(t, ok)
	assert.Equal(t, "adv-3", p.ID)
	assert.Equal(t, auth.RoleAdvisor, p.Role)
}

func TestSQLiteReconcileWritesAuditLog(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(config.DriverSQLite)
	a := openApp(t, dir, cfg)
	ctx := a.AsOperator(context.Background())
	require.NoError(t, a.Bootstrap(ctx))
	assert.FileExists(t, filepath.Join(dir, ".ledger", "ledger.db"))

	banks, err := a.Bank.ListAccounts(ctx, "")
	require.NoError(t, err)
	require.Len(t, banks, 1)

	txn, err := a.Bank.RecordTransaction(ctx, bank.RecordParams{
		BankAccountID: banks[0].ID,
		Date:          time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		Merchant:      "STARBUCKS #4021",
		Amount:        decimal.RequireFromString("-6.25"),
		ExternalRef:   "chase_20250106_STARBUCKS4",
	})
	require.NoError(t, err)

	got, err := a.Reconcile.Reconcile(ctx, txn.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Meals", got.Category, "keyword fallback")

	entries, err := auditlog.Read(config.Path(dir, cfg.Events.AuditLog))
	require.NoError(t, err)
	var kinds []events.Kind
	for _, e := range entries {
		kinds = append(kinds, e.Action)
	}
	assert.Equal(t, []events.Kind{events.TransactionRecorded, events.EntryPosted, events.TransactionReconciled}, kinds)

	codes, err := a.AccountCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1050", codes[banks[0].LedgerAccountID])
}

func TestIngester(t *testing.T) {
	dir := t.TempDir()
	a := openApp(t, dir, testConfig(config.DriverMemory))

	in, idx, err := a.Ingester()
	require.NoError(t, err)
	require.NotNil(t, in)
	require.NoError(t, idx.Close())
	assert.FileExists(t, filepath.Join(dir, ".ledger", "import.db"))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), t.TempDir(), testConfig("mongo"), discard())
	assert.ErrorContains(t, err, "unknown storage driver")
}
