package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

const accountColumns = `id, code, name, type, category, normal_balance, balance, description, status, created_at`

func (t *tx) InsertAccount(a model.Account) error {
	_, err := t.exec(`INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Code, a.Name, string(a.Type), a.Category, string(a.NormalBalance),
		a.Balance.String(), a.Description, string(a.Status), formatTime(a.CreatedAt),
	)
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("inserting account: %w", err)
	}
	return err
}

func (t *tx) GetAccount(id string) (model.Account, error) {
	return scanAccount(t.queryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
}

func (t *tx) GetAccountByCode(code string) (model.Account, error) {
	return scanAccount(t.queryRow(`SELECT `+accountColumns+` FROM accounts WHERE code = ?`, code))
}

// UpdateAccount rewrites every mutable column. The code is part of the WHERE
// clause so it can never change.
func (t *tx) UpdateAccount(a model.Account) error {
	err := t.execOne(`UPDATE accounts
		SET name = ?, category = ?, balance = ?, description = ?, status = ?
		WHERE id = ? AND code = ?`,
		a.Name, a.Category, a.Balance.String(), a.Description, string(a.Status), a.ID, a.Code,
	)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("updating account: %w", err)
	}
	return err
}

func (t *tx) ListAccounts() ([]model.Account, error) {
	rows, err := t.query(`SELECT ` + accountColumns + ` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (model.Account, error) {
	var a model.Account
	var typ, normal, status, created string
	err := s.Scan(&a.ID, &a.Code, &a.Name, &typ, &a.Category, &normal, &a.Balance, &a.Description, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, store.ErrNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("scanning account: %w", err)
	}
	a.Type = model.AccountType(typ)
	a.NormalBalance = model.NormalBalance(normal)
	a.Status = model.AccountStatus(status)
	if a.CreatedAt, err = parseTime(created); err != nil {
		return model.Account{}, err
	}
	return a, nil
}
