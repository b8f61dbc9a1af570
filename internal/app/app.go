// Package app wires configuration, storage and the ledger services into
// one value shared by the CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/auditlog"
	"github.com/cleared-dev/ledger/internal/auth"
	"github.com/cleared-dev/ledger/internal/bank"
	"github.com/cleared-dev/ledger/internal/config"
	"github.com/cleared-dev/ledger/internal/events"
	"github.com/cleared-dev/ledger/internal/importer"
	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/reconcile"
	"github.com/cleared-dev/ledger/internal/rules"
	"github.com/cleared-dev/ledger/internal/store"
	"github.com/cleared-dev/ledger/internal/store/memory"
	"github.com/cleared-dev/ledger/internal/store/sqlstore"
	"github.com/cleared-dev/ledger/internal/tax"
)

// App holds the services of one books directory.
type App struct {
	Dir    string
	Config *config.Config
	Log    *slog.Logger
	Store  store.Store
	Events events.Publisher

	Accounts  *accounts.Registry
	Journal   *journal.Engine
	Tax       *tax.Calculator
	Bank      *bank.Ledger
	Rules     *rules.Book
	Reconcile *reconcile.Coordinator

	closers []io.Closer
}

// Open builds an App for dir using cfg.
func Open(ctx context.Context, dir string, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := openStore(ctx, dir, cfg.Storage)
	if err != nil {
		return nil, err
	}

	a := &App{Dir: dir, Config: cfg, Log: logger, Store: s}
	a.closers = append(a.closers, s)

	pubs := events.Multi{}
	if cfg.Events.AuditLog != "" {
		pubs = append(pubs, auditlog.NewPublisher(config.Path(dir, cfg.Events.AuditLog)))
	}
	if len(cfg.Events.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.TopicPrefix)
		pubs = append(pubs, kp)
		a.closers = append(a.closers, kp)
		logger.Debug("publishing events to kafka", "brokers", cfg.Events.Brokers)
	}
	a.Events = pubs

	a.Accounts = accounts.NewRegistry(s, logger)
	a.Journal = journal.NewEngine(s, a.Accounts, pubs, logger)
	a.Tax = tax.NewCalculator(s, logger)
	a.Bank = bank.NewLedger(s, pubs, logger)
	a.Rules = rules.NewBook(s, logger)
	a.Reconcile = reconcile.New(s, a.Journal, a.Bank, a.Tax, logger)
	return a, nil
}

func openStore(ctx context.Context, dir string, sc config.StorageConfig) (store.Store, error) {
	switch sc.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		return sqlstore.Open(ctx, sqlstore.DriverSQLite, config.Path(dir, sc.DSN))
	case config.DriverPostgres:
		return sqlstore.Open(ctx, sqlstore.DriverPostgres, sc.DSN)
	}
	return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
}

// Close releases the store and publishers.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Operator returns the principal configured for CLI use.
func (a *App) Operator() auth.Principal {
	return auth.Principal{ID: a.Config.Operator.ID, Role: auth.ParseRole(a.Config.Operator.Role)}
}

// AsOperator returns ctx carrying the configured operator.
func (a *App) AsOperator(ctx context.Context) context.Context {
	return auth.WithPrincipal(ctx, a.Operator())
}

// Ingester opens the import dedupe index and returns an Ingester using it.
// The caller closes the index.
func (a *App) Ingester() (*importer.Ingester, *importer.SeenIndex, error) {
	idx, err := importer.OpenIndex(config.Path(a.Dir, a.Config.Import.SeenDB))
	if err != nil {
		return nil, nil, err
	}
	return importer.NewIngester(a.Bank, idx, a.Log), idx, nil
}

var system = auth.Principal{ID: "system", Role: auth.RoleAdmin}

// Bootstrap seeds an empty store: the chart of accounts (from the books
// directory if present, else the default chart), default expense
// categories, configured bank accounts and the seed rules file. Parts
// that already hold data are left alone.
func (a *App) Bootstrap(ctx context.Context) error {
	ctx = auth.WithPrincipal(ctx, system)

	existing, err := a.Accounts.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		chart, err := accounts.LoadChart(a.Dir)
		if errors.Is(err, os.ErrNotExist) {
			chart = accounts.DefaultChart(a.Config.Business.EntityType)
		} else if err != nil {
			return err
		}
		n, err := a.Accounts.Import(ctx, chart)
		if err != nil {
			return fmt.Errorf("seeding chart of accounts: %w", err)
		}
		a.Log.Info("seeded chart of accounts", "accounts", n)
	}

	cats, err := a.Rules.ListCategories(ctx)
	if err != nil {
		return err
	}
	if len(cats) == 0 {
		for _, p := range rules.DefaultCategories() {
			if _, err := a.Rules.CreateCategory(ctx, p); err != nil {
				var nf model.NotFoundError
				if errors.As(err, &nf) {
					a.Log.Debug("skipping default category", "name", p.Name, "err", err)
					continue
				}
				return fmt.Errorf("seeding category %s: %w", p.Name, err)
			}
		}
	}

	if err := a.seedBankAccounts(ctx); err != nil {
		return err
	}
	return a.seedRules(ctx)
}

func (a *App) seedBankAccounts(ctx context.Context) error {
	have, err := a.Bank.ListAccounts(ctx, "")
	if err != nil {
		return err
	}
	names := make(map[string]bool, len(have))
	for _, b := range have {
		names[b.Name] = true
	}
	for _, b := range a.Config.BankAccounts {
		if names[b.Name] {
			continue
		}
		_, err := a.Bank.CreateAccount(ctx, bank.AccountParams{
			Owner:           model.FirmOwner,
			Institution:     b.Institution,
			Name:            b.Name,
			Mask:            b.LastFour,
			Type:            model.BankAccountType(b.Type),
			LedgerAccountID: b.LedgerAccount,
		})
		if err != nil {
			return fmt.Errorf("seeding bank account %s: %w", b.Name, err)
		}
	}
	return nil
}

func (a *App) seedRules(ctx context.Context) error {
	have, err := a.Rules.ListRules(ctx, "")
	if err != nil || len(have) > 0 {
		return err
	}
	f, err := os.Open(filepath.Join(a.Dir, rules.FilePath))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening rules: %w", err)
	}
	defer f.Close()

	created, err := a.Rules.ImportRules(ctx, model.FirmOwner, f)
	if err != nil {
		return fmt.Errorf("seeding rules: %w", err)
	}
	if len(created) > 0 {
		a.Log.Info("seeded rules", "rules", len(created))
	}
	return nil
}

// AccountCodes maps account IDs to chart codes for exports.
func (a *App) AccountCodes(ctx context.Context) (map[string]string, error) {
	list, err := a.Accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	codes := make(map[string]string, len(list))
	for _, acct := range list {
		codes[acct.ID] = acct.Code
	}
	return codes, nil
}
