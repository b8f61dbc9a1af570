package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

const bankAccountColumns = `id, owner, institution, name, mask, type, balance, last_synced_at, status, ledger_account_id, created_at`

const bankTxnColumns = `id, bank_account_id, date, merchant, description, amount, status, category, receipt_ref,
	journal_entry_id, auto_matched, matched_rule_id, external_ref, created_at, updated_at`

func (t *tx) InsertBankAccount(a model.BankAccount) error {
	_, err := t.exec(`INSERT INTO bank_accounts (`+bankAccountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Owner, a.Institution, a.Name, a.Mask, string(a.Type), a.Balance.String(),
		formatTime(a.LastSyncedAt), string(a.Status), a.LedgerAccountID, formatTime(a.CreatedAt),
	)
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("inserting bank account: %w", err)
	}
	return err
}

func (t *tx) GetBankAccount(id string) (model.BankAccount, error) {
	return scanBankAccount(t.queryRow(`SELECT `+bankAccountColumns+` FROM bank_accounts WHERE id = ?`, id))
}

func (t *tx) UpdateBankAccount(a model.BankAccount) error {
	err := t.execOne(`UPDATE bank_accounts
		SET owner = ?, institution = ?, name = ?, mask = ?, type = ?, balance = ?,
			last_synced_at = ?, status = ?, ledger_account_id = ?
		WHERE id = ?`,
		a.Owner, a.Institution, a.Name, a.Mask, string(a.Type), a.Balance.String(),
		formatTime(a.LastSyncedAt), string(a.Status), a.LedgerAccountID, a.ID,
	)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("updating bank account: %w", err)
	}
	return err
}

func (t *tx) ListBankAccounts(owner string) ([]model.BankAccount, error) {
	q := `SELECT ` + bankAccountColumns + ` FROM bank_accounts`
	var args []any
	if owner != "" {
		q += ` WHERE owner = ?`
		args = append(args, owner)
	}
	q += ` ORDER BY created_at, id`

	rows, err := t.query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing bank accounts: %w", err)
	}
	defer rows.Close()

	var out []model.BankAccount
	for rows.Next() {
		a, err := scanBankAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *tx) InsertBankTransaction(bt model.BankTransaction) error {
	_, err := t.exec(`INSERT INTO bank_transactions (`+bankTxnColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bt.ID, bt.BankAccountID, formatTime(bt.Date), bt.Merchant, bt.Description, bt.Amount.String(),
		string(bt.Status), bt.Category, bt.ReceiptRef, bt.JournalEntryID, bt.AutoMatched,
		bt.MatchedRuleID, bt.ExternalRef, formatTime(bt.CreatedAt), formatTime(bt.UpdatedAt),
	)
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("inserting bank transaction: %w", err)
	}
	return err
}

func (t *tx) GetBankTransaction(id string) (model.BankTransaction, error) {
	return scanBankTxn(t.queryRow(`SELECT `+bankTxnColumns+` FROM bank_transactions WHERE id = ?`, id))
}

func (t *tx) FindBankTransactionByRef(bankAccountID, ref string) (model.BankTransaction, error) {
	return scanBankTxn(t.queryRow(`SELECT `+bankTxnColumns+` FROM bank_transactions
		WHERE bank_account_id = ? AND external_ref = ?`, bankAccountID, ref))
}

func (t *tx) UpdateBankTransaction(bt model.BankTransaction) error {
	err := t.execOne(`UPDATE bank_transactions
		SET date = ?, merchant = ?, description = ?, amount = ?, status = ?, category = ?,
			receipt_ref = ?, journal_entry_id = ?, auto_matched = ?, matched_rule_id = ?, updated_at = ?
		WHERE id = ?`,
		formatTime(bt.Date), bt.Merchant, bt.Description, bt.Amount.String(), string(bt.Status),
		bt.Category, bt.ReceiptRef, bt.JournalEntryID, bt.AutoMatched, bt.MatchedRuleID,
		formatTime(bt.UpdatedAt), bt.ID,
	)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("updating bank transaction: %w", err)
	}
	return err
}

func (t *tx) ListBankTransactions(f store.TransactionFilter) ([]model.BankTransaction, error) {
	var where []string
	var args []any
	if f.BankAccountID != "" {
		where = append(where, "bank_account_id = ?")
		args = append(args, f.BankAccountID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Unreconciled {
		where = append(where, "status <> ?")
		args = append(args, string(model.TxnReconciled))
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, formatTime(f.To))
	}

	q := `SELECT ` + bankTxnColumns + ` FROM bank_transactions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY date DESC, created_at DESC, id DESC"

	rows, err := t.query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing bank transactions: %w", err)
	}
	defer rows.Close()

	var out []model.BankTransaction
	for rows.Next() {
		bt, err := scanBankTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bt)
	}
	return out, rows.Err()
}

func scanBankAccount(s scanner) (model.BankAccount, error) {
	var a model.BankAccount
	var typ, synced, status, created string
	err := s.Scan(&a.ID, &a.Owner, &a.Institution, &a.Name, &a.Mask, &typ, &a.Balance, &synced, &status, &a.LedgerAccountID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BankAccount{}, store.ErrNotFound
	}
	if err != nil {
		return model.BankAccount{}, fmt.Errorf("scanning bank account: %w", err)
	}
	a.Type = model.BankAccountType(typ)
	a.Status = model.BankAccountStatus(status)
	if a.LastSyncedAt, err = parseTime(synced); err != nil {
		return model.BankAccount{}, err
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return model.BankAccount{}, err
	}
	return a, nil
}

func scanBankTxn(s scanner) (model.BankTransaction, error) {
	var bt model.BankTransaction
	var date, status, created, updated string
	err := s.Scan(&bt.ID, &bt.BankAccountID, &date, &bt.Merchant, &bt.Description, &bt.Amount, &status,
		&bt.Category, &bt.ReceiptRef, &bt.JournalEntryID, &bt.AutoMatched, &bt.MatchedRuleID,
		&bt.ExternalRef, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BankTransaction{}, store.ErrNotFound
	}
	if err != nil {
		return model.BankTransaction{}, fmt.Errorf("scanning bank transaction: %w", err)
	}
	bt.Status = model.BankTxnStatus(status)
	if bt.Date, err = parseTime(date); err != nil {
		return model.BankTransaction{}, err
	}
	if bt.CreatedAt, err = parseTime(created); err != nil {
		return model.BankTransaction{}, err
	}
	if bt.UpdatedAt, err = parseTime(updated); err != nil {
		return model.BankTransaction{}, err
	}
	return bt, nil
}
