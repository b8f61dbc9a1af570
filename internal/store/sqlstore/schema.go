package sqlstore

// Schema creates every table if missing. It is valid for both SQLite and
// PostgreSQL: money is stored as decimal text and timestamps as fixed-width
// UTC text so that lexical order is chronological order.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    normal_balance TEXT NOT NULL,
    balance TEXT NOT NULL DEFAULT '0',
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'active',
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS journal_entries (
    id TEXT PRIMARY KEY,                -- YYYY-MM-NNN
    date TEXT NOT NULL,
    description TEXT NOT NULL,
    reference TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    source TEXT NOT NULL,
    reversal_of TEXT NOT NULL DEFAULT '',
    reversed_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_journal_entries_date
    ON journal_entries(date);

CREATE INDEX IF NOT EXISTS idx_journal_entries_reference
    ON journal_entries(reference);

CREATE TABLE IF NOT EXISTS journal_lines (
    id TEXT PRIMARY KEY,                -- entry id + leg letter
    entry_id TEXT NOT NULL REFERENCES journal_entries(id),
    position INTEGER NOT NULL,
    account_id TEXT NOT NULL REFERENCES accounts(id),
    debit TEXT NOT NULL DEFAULT '0',
    credit TEXT NOT NULL DEFAULT '0',
    memo TEXT NOT NULL DEFAULT '',
    advisor_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_journal_lines_entry
    ON journal_lines(entry_id);

CREATE INDEX IF NOT EXISTS idx_journal_lines_account
    ON journal_lines(account_id);

CREATE TABLE IF NOT EXISTS entry_seqs (
    period TEXT PRIMARY KEY,            -- YYYY-MM
    seq INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS bank_accounts (
    id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    institution TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    mask TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    balance TEXT NOT NULL DEFAULT '0',
    last_synced_at TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    ledger_account_id TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bank_transactions (
    id TEXT PRIMARY KEY,
    bank_account_id TEXT NOT NULL REFERENCES bank_accounts(id),
    date TEXT NOT NULL,
    merchant TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    amount TEXT NOT NULL,
    status TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    receipt_ref TEXT NOT NULL DEFAULT '',
    journal_entry_id TEXT NOT NULL DEFAULT '',
    auto_matched BOOLEAN NOT NULL DEFAULT FALSE,
    matched_rule_id TEXT NOT NULL DEFAULT '',
    external_ref TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bank_transactions_account
    ON bank_transactions(bank_account_id, status);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bank_transactions_ref
    ON bank_transactions(bank_account_id, external_ref)
    WHERE external_ref <> '';

CREATE TABLE IF NOT EXISTS bank_rules (
    id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    name TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    conditions TEXT NOT NULL,           -- JSON array
    category TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS expense_categories (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    name_key TEXT NOT NULL UNIQUE,      -- lower(name)
    account_id TEXT NOT NULL REFERENCES accounts(id),
    tax_deductible BOOLEAN NOT NULL DEFAULT FALSE,
    keywords TEXT NOT NULL DEFAULT '[]', -- JSON array
    tax_config_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tax_configs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    rate TEXT NOT NULL,
    liability_account_id TEXT NOT NULL REFERENCES accounts(id),
    expense_account_id TEXT NOT NULL REFERENCES accounts(id),
    jurisdiction TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`
