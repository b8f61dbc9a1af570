package sqlstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

const ruleColumns = `id, owner, name, priority, conditions, category, created_at, updated_at`

const categoryColumns = `id, name, account_id, tax_deductible, keywords, tax_config_id`

const taxColumns = `id, name, rate, liability_account_id, expense_account_id, jurisdiction, created_at, updated_at`

// --- Rules ---

func (t *tx) InsertRule(r model.BankRule) error {
	conds, err := json.Marshal(r.Conditions)
	if err != nil {
		return fmt.Errorf("marshaling conditions: %w", err)
	}
	_, err = t.exec(`INSERT INTO bank_rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Owner, r.Name, r.Priority, string(conds), r.Category, formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("inserting rule: %w", err)
	}
	return err
}

func (t *tx) GetRule(id string) (model.BankRule, error) {
	return scanRule(t.queryRow(`SELECT `+ruleColumns+` FROM bank_rules WHERE id = ?`, id))
}

func (t *tx) UpdateRule(r model.BankRule) error {
	conds, err := json.Marshal(r.Conditions)
	if err != nil {
		return fmt.Errorf("marshaling conditions: %w", err)
	}
	err = t.execOne(`UPDATE bank_rules
		SET owner = ?, name = ?, priority = ?, conditions = ?, category = ?, updated_at = ?
		WHERE id = ?`,
		r.Owner, r.Name, r.Priority, string(conds), r.Category, formatTime(r.UpdatedAt), r.ID,
	)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("updating rule: %w", err)
	}
	return err
}

func (t *tx) DeleteRule(id string) error {
	err := t.execOne(`DELETE FROM bank_rules WHERE id = ?`, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("deleting rule: %w", err)
	}
	return err
}

func (t *tx) ListRules(owner string) ([]model.BankRule, error) {
	q := `SELECT ` + ruleColumns + ` FROM bank_rules`
	var args []any
	if owner != "" {
		q += ` WHERE owner = ?`
		args = append(args, owner)
	}
	q += ` ORDER BY priority, created_at, id`

	rows, err := t.query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	var out []model.BankRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRule(s scanner) (model.BankRule, error) {
	var r model.BankRule
	var conds, created, updated string
	err := s.Scan(&r.ID, &r.Owner, &r.Name, &r.Priority, &conds, &r.Category, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BankRule{}, store.ErrNotFound
	}
	if err != nil {
		return model.BankRule{}, fmt.Errorf("scanning rule: %w", err)
	}
	if err := json.Unmarshal([]byte(conds), &r.Conditions); err != nil {
		return model.BankRule{}, fmt.Errorf("parsing conditions of rule %s: %w", r.ID, err)
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return model.BankRule{}, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return model.BankRule{}, err
	}
	return r, nil
}

// --- Expense categories ---

func (t *tx) InsertCategory(c model.ExpenseCategory) error {
	keywords := c.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	kw, err := json.Marshal(keywords)
	if err != nil {
		return fmt.Errorf("marshaling keywords: %w", err)
	}
	_, err = t.exec(`INSERT INTO expense_categories (id, name, name_key, account_id, tax_deductible, keywords, tax_config_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, strings.ToLower(c.Name), c.AccountID, c.TaxDeductible, string(kw), c.TaxConfigID,
	)
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("inserting category: %w", err)
	}
	return err
}

func (t *tx) GetCategory(id string) (model.ExpenseCategory, error) {
	return scanCategory(t.queryRow(`SELECT `+categoryColumns+` FROM expense_categories WHERE id = ?`, id))
}

func (t *tx) GetCategoryByName(name string) (model.ExpenseCategory, error) {
	return scanCategory(t.queryRow(`SELECT `+categoryColumns+` FROM expense_categories WHERE name_key = ?`, strings.ToLower(name)))
}

func (t *tx) ListCategories() ([]model.ExpenseCategory, error) {
	rows, err := t.query(`SELECT ` + categoryColumns + ` FROM expense_categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	var out []model.ExpenseCategory
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCategory(s scanner) (model.ExpenseCategory, error) {
	var c model.ExpenseCategory
	var kw string
	err := s.Scan(&c.ID, &c.Name, &c.AccountID, &c.TaxDeductible, &kw, &c.TaxConfigID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ExpenseCategory{}, store.ErrNotFound
	}
	if err != nil {
		return model.ExpenseCategory{}, fmt.Errorf("scanning category: %w", err)
	}
	if err := json.Unmarshal([]byte(kw), &c.Keywords); err != nil {
		return model.ExpenseCategory{}, fmt.Errorf("parsing keywords of category %s: %w", c.Name, err)
	}
	if len(c.Keywords) == 0 {
		c.Keywords = nil
	}
	return c, nil
}

// --- Tax configs ---

func (t *tx) InsertTaxConfig(c model.TaxConfig) error {
	_, err := t.exec(`INSERT INTO tax_configs (`+taxColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Rate.String(), c.LiabilityAccountID, c.ExpenseAccountID, c.Jurisdiction,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("inserting tax config: %w", err)
	}
	return err
}

func (t *tx) GetTaxConfig(id string) (model.TaxConfig, error) {
	return scanTaxConfig(t.queryRow(`SELECT `+taxColumns+` FROM tax_configs WHERE id = ?`, id))
}

func (t *tx) UpdateTaxConfig(c model.TaxConfig) error {
	err := t.execOne(`UPDATE tax_configs
		SET name = ?, rate = ?, liability_account_id = ?, expense_account_id = ?, jurisdiction = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Rate.String(), c.LiabilityAccountID, c.ExpenseAccountID, c.Jurisdiction, formatTime(c.UpdatedAt), c.ID,
	)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("updating tax config: %w", err)
	}
	return err
}

func (t *tx) ListTaxConfigs() ([]model.TaxConfig, error) {
	rows, err := t.query(`SELECT ` + taxColumns + ` FROM tax_configs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tax configs: %w", err)
	}
	defer rows.Close()

	var out []model.TaxConfig
	for rows.Next() {
		c, err := scanTaxConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanTaxConfig(s scanner) (model.TaxConfig, error) {
	var c model.TaxConfig
	var created, updated string
	err := s.Scan(&c.ID, &c.Name, &c.Rate, &c.LiabilityAccountID, &c.ExpenseAccountID, &c.Jurisdiction, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TaxConfig{}, store.ErrNotFound
	}
	if err != nil {
		return model.TaxConfig{}, fmt.Errorf("scanning tax config: %w", err)
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return model.TaxConfig{}, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return model.TaxConfig{}, err
	}
	return c, nil
}
