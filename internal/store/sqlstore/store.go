// Package sqlstore implements store.Store over database/sql for SQLite
// (mattn/go-sqlite3) and PostgreSQL (lib/pq).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/cleared-dev/ledger/internal/store"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// maxSerializationRetries bounds retries of PostgreSQL serialization failures.
const maxSerializationRetries = 3

// Store is a database/sql backed store.Store.
type Store struct {
	db *sql.DB
	// read serves View. For SQLite files it is a separate pool of deferred,
	// query-only connections so readers never take the write lock.
	read   *sql.DB
	driver string
}

// sqliteDSN builds a go-sqlite3 connection string for path with the given
// _txlock mode. Query-only connections refuse writes at the SQLite level and
// leave the journal mode, which WAL keeps in the file, to the writer.
func sqliteDSN(path, txlock string, queryOnly bool) string {
	if queryOnly {
		return fmt.Sprintf("file:%s?_txlock=%s&_busy_timeout=5000&_query_only=on", path, txlock)
	}
	return fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_txlock=%s&_busy_timeout=5000", path, txlock)
}

// Open connects to the database and initializes the schema. For SQLite, dsn
// is a file path; the parent directory is created if needed.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var connStr string
	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		// Writers take the lock at BEGIN so read-modify-write transactions
		// serialize instead of failing at commit.
		connStr = sqliteDSN(dsn, "immediate", false)
	case DriverPostgres:
		connStr = dsn
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if driver == DriverSQLite && dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	s := &Store{db: db, read: db, driver: driver}
	if driver == DriverSQLite && dsn != ":memory:" {
		read, err := sql.Open(driver, sqliteDSN(dsn, "deferred", true))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("opening read pool: %w", err)
		}
		if err := read.PingContext(ctx); err != nil {
			read.Close()
			db.Close()
			return nil, fmt.Errorf("pinging read pool: %w", err)
		}
		s.read = read
	}
	return s, nil
}

// Close closes the database connections.
func (s *Store) Close() error {
	var readErr error
	if s.read != s.db {
		readErr = s.read.Close()
	}
	return errors.Join(s.db.Close(), readErr)
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	return s.run(ctx, false, fn)
}

// Update runs fn in a serializable read-write transaction.
func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxSerializationRetries; attempt++ {
		err = s.run(ctx, true, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (s *Store) run(ctx context.Context, writable bool, fn func(store.Tx) error) error {
	opts := &sql.TxOptions{ReadOnly: !writable}
	if s.driver == DriverPostgres && writable {
		opts.Isolation = sql.LevelSerializable
	}
	if s.driver == DriverSQLite {
		// go-sqlite3 locking is controlled by _txlock, not TxOptions.
		opts = nil
	}

	db := s.db
	if !writable {
		db = s.read
	}
	sqlTx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	t := &tx{ctx: ctx, tx: sqlTx, driver: s.driver, writable: writable}
	if err := fn(t); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if !writable {
		return sqlTx.Rollback()
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type tx struct {
	ctx      context.Context
	tx       *sql.Tx
	driver   string
	writable bool
}

func (t *tx) check() error {
	if !t.writable {
		return store.ErrReadOnly
	}
	return nil
}

func (t *tx) exec(query string, args ...any) (sql.Result, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	res, err := t.tx.ExecContext(t.ctx, rebind(t.driver, query), args...)
	if isUniqueViolation(err) {
		return nil, store.ErrConflict
	}
	return res, err
}

// execOne is exec for statements that must touch exactly one row.
func (t *tx) execOne(query string, args ...any) error {
	res, err := t.exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(t.ctx, rebind(t.driver, query), args...)
}

func (t *tx) queryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(t.ctx, rebind(t.driver, query), args...)
}

// limitClause renders paging for the dialect; SQLite needs a LIMIT before
// OFFSET.
func (t *tx) limitClause(limit, offset int) string {
	switch {
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case offset > 0 && t.driver == DriverSQLite:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
	case offset > 0:
		return fmt.Sprintf(" OFFSET %d", offset)
	}
	return ""
}

// rebind rewrites ? placeholders to $1..$n for PostgreSQL.
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "40001"
}

const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}

var _ store.Store = (*Store)(nil)
