package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file at the root of a books directory.
const FileName = "ledger.yaml"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents the top-level ledger.yaml configuration.
type Config struct {
	Business     BusinessConfig `yaml:"business"`
	Fiscal       FiscalConfig   `yaml:"fiscal"`
	Storage      StorageConfig  `yaml:"storage"`
	Server       ServerConfig   `yaml:"server"`
	Events       EventsConfig   `yaml:"events"`
	Import       ImportConfig   `yaml:"import"`
	Operator     OperatorConfig `yaml:"operator"`
	BankAccounts []BankAccount  `yaml:"bank_accounts,omitempty"`
	Git          GitConfig      `yaml:"git"`
}

// BusinessConfig identifies the business entity.
type BusinessConfig struct {
	Name       string `yaml:"name"`
	EntityType string `yaml:"entity_type"`
}

// FiscalConfig defines the fiscal year boundaries.
type FiscalConfig struct {
	YearStart string `yaml:"year_start"` // "MM-DD" format, e.g. "01-01"
}

// StorageConfig selects the ledger database. For sqlite, DSN is a file
// path relative to the books directory.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn,omitempty"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// EventsConfig controls where domain events go. With no brokers, events
// only reach the audit log.
type EventsConfig struct {
	Brokers     []string `yaml:"brokers,omitempty"`
	TopicPrefix string   `yaml:"topic_prefix"`
	AuditLog    string   `yaml:"audit_log"`
}

// ImportConfig controls bank feed imports.
type ImportConfig struct {
	Format string `yaml:"format"`
	SeenDB string `yaml:"seen_db"`
}

// OperatorConfig is the principal CLI commands act as.
type OperatorConfig struct {
	ID   string `yaml:"id"`
	Role string `yaml:"role"`
}

// BankAccount seeds a bank feed account on init. LedgerAccount is the
// chart code of its clearing account.
type BankAccount struct {
	Name          string `yaml:"name"`
	Institution   string `yaml:"institution,omitempty"`
	Type          string `yaml:"type"`
	LastFour      string `yaml:"last_four"`
	LedgerAccount string `yaml:"ledger_account"`
}

// GitConfig controls git integration.
type GitConfig struct {
	AutoCommit  bool   `yaml:"auto_commit"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// Load reads a ledger.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default("", "")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default(businessName, entityType string) *Config {
	return &Config{
		Business: BusinessConfig{
			Name:       businessName,
			EntityType: entityType,
		},
		Fiscal: FiscalConfig{
			YearStart: "01-01",
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			DSN:    ".ledger/ledger.db",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Events: EventsConfig{
			TopicPrefix: "ledger.",
			AuditLog:    "logs/activity-log.csv",
		},
		Import: ImportConfig{
			Format: "chase",
			SeenDB: ".ledger/import.db",
		},
		Operator: OperatorConfig{
			ID:   "operator",
			Role: "ADMIN",
		},
		Git: GitConfig{
			AutoCommit:  true,
			AuthorName:  "Ledger",
			AuthorEmail: "ledger@localhost",
		},
	}
}

// Environment variables that override ledger.yaml.
const (
	EnvStorageDriver = "LEDGER_STORAGE_DRIVER"
	EnvDatabaseURL   = "LEDGER_DATABASE_URL"
	EnvHTTPAddr      = "LEDGER_HTTP_ADDR"
	EnvKafkaBrokers  = "LEDGER_KAFKA_BROKERS"
	EnvOperatorID    = "LEDGER_OPERATOR_ID"
	EnvOperatorRole  = "LEDGER_OPERATOR_ROLE"
	EnvAuditLog      = "LEDGER_AUDIT_LOG"
)

// ApplyEnv overrides fields from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvStorageDriver, &c.Storage.Driver)
	set(EnvDatabaseURL, &c.Storage.DSN)
	set(EnvHTTPAddr, &c.Server.Addr)
	set(EnvOperatorID, &c.Operator.ID)
	set(EnvOperatorRole, &c.Operator.Role)
	set(EnvAuditLog, &c.Events.AuditLog)

	if v, ok := lookup(EnvKafkaBrokers); ok && strings.TrimSpace(v) != "" {
		c.Events.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Events.Brokers = append(c.Events.Brokers, b)
			}
		}
	}
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// Resolve loads dir/ledger.yaml, then dir/.env, then the process
// environment, later sources winning. A missing ledger.yaml yields the
// defaults; a missing .env is ignored.
func Resolve(dir string) (*Config, error) {
	cfg, err := Load(filepath.Join(dir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default("", "")
	} else if err != nil {
		return nil, err
	}

	// godotenv never overrides variables already set in the process.
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path resolves p against the books directory unless it is absolute.
func Path(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
