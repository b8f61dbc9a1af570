package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initBooks(t *testing.T) string {
	t.Helper()
	requireGit(t)
	dir := t.TempDir()
	_, err := runLedger(t, "init", dir, "--name", "Test Biz")
	require.NoError(t, err)
	_, err = runLedger(t, "-C", dir, "bank", "account-add",
		"--name", "Chase Checking", "--institution", "Chase", "--mask", "4021", "--ledger-account", "1050")
	require.NoError(t, err)
	return dir
}

func TestBankRecordAndReconcile(t *testing.T) {
	dir := initBooks(t)

	out, err := runLedger(t, "-C", dir, "bank", "record",
		"--date", "2025-01-08", "--merchant", "STARBUCKS #4021", "--amount", "-6.25")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded")

	_, err = runLedger(t, "-C", dir, "bank", "record",
		"--date", "2025-01-09", "--merchant", "LANDLORD LLC", "--amount", "-2000")
	require.NoError(t, err)

	out, err = runLedger(t, "-C", dir, "reconcile", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "as Meals (entry 2025-01-001)")
	assert.Contains(t, out, "1 reconciled, 1 need a category")

	out, err = runLedger(t, "-C", dir, "bank", "list", "--unreconciled")
	require.NoError(t, err)
	assert.Contains(t, out, "LANDLORD LLC")
	assert.NotContains(t, out, "STARBUCKS")

	out, err = runLedger(t, "-C", dir, "journal", "export")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-01-001")
	assert.Contains(t, out, "5100")
	assert.Contains(t, out, "1050")

	audit, err := os.ReadFile(filepath.Join(dir, "logs", "activity-log.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(audit), "reconciled")
}

func TestReconcileDryRun(t *testing.T) {
	dir := initBooks(t)

	out, err := runLedger(t, "-C", dir, "bank", "record",
		"--date", "2025-01-08", "--merchant", "STARBUCKS #4021", "--amount", "-6.25")
	require.NoError(t, err)
	fields := strings.Fields(out)
	require.GreaterOrEqual(t, len(fields), 2)
	txnID := fields[1]

	out, err = runLedger(t, "-C", dir, "reconcile", txnID, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, txnID+": Meals (")
	assert.NotContains(t, out, "{")

	out, err = runLedger(t, "-C", dir, "bank", "list", "--unreconciled")
	require.NoError(t, err)
	assert.Contains(t, out, "STARBUCKS")
}

func TestReconcileArgs(t *testing.T) {
	dir := initBooks(t)

	_, err := runLedger(t, "-C", dir, "reconcile")
	require.Error(t, err)

	_, err = runLedger(t, "-C", dir, "reconcile", "--all", "--category", "Meals")
	require.Error(t, err)
}

func TestJournalPostAndVoid(t *testing.T) {
	dir := initBooks(t)

	out, err := runLedger(t, "-C", dir, "journal", "post",
		"--date", "2025-02-03", "--description", "Owner contribution",
		"--debit", "1010=500", "--credit", "3010=500")
	require.NoError(t, err)
	assert.Contains(t, out, "Posted 2025-02-001")

	_, err = runLedger(t, "-C", dir, "journal", "post",
		"--date", "2025-02-03", "--description", "Lopsided",
		"--debit", "1010=500", "--credit", "3010=499")
	require.Error(t, err)

	out, err = runLedger(t, "-C", dir, "journal", "void", "2025-02-001")
	require.NoError(t, err)
	assert.Contains(t, out, "reversal 2025-02-002")

	out, err = runLedger(t, "-C", dir, "account", "trial-balance")
	require.NoError(t, err)
	assert.Contains(t, out, "TOTAL")
}

func TestRuleAndTaxCommands(t *testing.T) {
	dir := initBooks(t)

	out, err := runLedger(t, "-C", dir, "rule", "add", "--name", "SaaS", "--category", "Software",
		"--when", "merchant:contains:github")
	require.NoError(t, err)
	assert.Contains(t, out, "Added rule SaaS")

	_, err = runLedger(t, "-C", dir, "rule", "add", "--name", "Bad", "--category", "Software",
		"--when", "merchant")
	require.Error(t, err)

	out, err = runLedger(t, "-C", dir, "rule", "list")
	require.NoError(t, err)
	assert.Contains(t, out, `merchant contains "github"`)

	out, err = runLedger(t, "-C", dir, "tax", "add", "--name", "Texas", "--rate", "0.0825",
		"--liability", "2200", "--expense", "5900")
	require.NoError(t, err)
	assert.Contains(t, out, "Added tax config Texas")

	out, err = runLedger(t, "-C", dir, "category", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Meals")
}

func TestImportCommand(t *testing.T) {
	dir := initBooks(t)
	src, err := os.ReadFile(filepath.Join("..", "importer", "testdata", "chase_checking.csv"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "import", "jan.csv"), src, 0o644))

	out, err := runLedger(t, "-C", dir, "import")
	require.NoError(t, err)
	assert.Contains(t, out, "jan.csv: 6 recorded, 0 skipped")

	_, err = os.Stat(filepath.Join(dir, "import", "processed", "jan.csv"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "import", "jan-again.csv"), src, 0o644))
	out, err = runLedger(t, "-C", dir, "import")
	require.NoError(t, err)
	assert.Contains(t, out, "jan-again.csv: 0 recorded, 6 skipped")
}

func TestExportCommit(t *testing.T) {
	dir := initBooks(t)
	_, err := runLedger(t, "-C", dir, "journal", "post",
		"--date", "2025-03-01", "--description", "Seed",
		"--debit", "1010=100", "--credit", "3010=100")
	require.NoError(t, err)

	out, err := runLedger(t, "-C", dir, "export", "--commit")
	require.NoError(t, err)
	assert.Contains(t, out, "Committed")

	_, err = os.Stat(filepath.Join(dir, "journal", "2025", "03", "journal.csv"))
	require.NoError(t, err)
	assert.Contains(t, gitLog(t, dir, "%s"), "export: Update books")

	out, err = runLedger(t, "-C", dir, "export", "--commit")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing changed")
}
