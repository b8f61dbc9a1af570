package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
	"github.com/cleared-dev/ledger/internal/store/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "db", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTemp(t) })
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(context.Background(), DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file:/b/l.db?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000",
		sqliteDSN("/b/l.db", "immediate", false))
	assert.Equal(t, "file:/b/l.db?_txlock=deferred&_busy_timeout=5000&_query_only=on",
		sqliteDSN("/b/l.db", "deferred", true))
}

func TestViewDoesNotBlockWriters(t *testing.T) {
	s := openTemp(t)
	require.NotSame(t, s.db, s.read)
	ctx := context.Background()

	acct := model.Account{
		ID:            "a1",
		Code:          "1000",
		Name:          "Cash",
		Type:          model.AccountTypeAsset,
		NormalBalance: model.DefaultNormalBalance(model.AccountTypeAsset),
		Balance:       decimal.Zero,
		Status:        model.AccountActive,
		CreatedAt:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	err := s.View(ctx, func(tx store.Tx) error {
		before, err := tx.ListAccounts()
		require.NoError(t, err)
		assert.Empty(t, before)

		// A writer commits while this read transaction is still open.
		require.NoError(t, s.Update(ctx, func(wtx store.Tx) error {
			return wtx.InsertAccount(acct)
		}))

		// The read keeps its snapshot.
		during, err := tx.ListAccounts()
		require.NoError(t, err)
		assert.Empty(t, during)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		got, err := tx.GetAccount("a1")
		require.NoError(t, err)
		assert.Equal(t, "Cash", got.Name)
		return nil
	}))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x")
	assert.ErrorContains(t, err, "unsupported driver")
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE b = ? AND c IN (?, ?)"
	assert.Equal(t, q, rebind(DriverSQLite, q))
	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c IN ($2, $3)", rebind(DriverPostgres, q))
}

func TestLimitClause(t *testing.T) {
	lite := &tx{driver: DriverSQLite}
	pg := &tx{driver: DriverPostgres}

	assert.Equal(t, "", lite.limitClause(0, 0))
	assert.Equal(t, " LIMIT 10 OFFSET 20", lite.limitClause(10, 20))
	assert.Equal(t, " LIMIT -1 OFFSET 5", lite.limitClause(0, 5))
	assert.Equal(t, " OFFSET 5", pg.limitClause(0, 5))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
