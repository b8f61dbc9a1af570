package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

const entryColumns = `id, date, description, reference, status, source, reversal_of, reversed_by, created_at`

const lineColumns = `id, entry_id, position, account_id, debit, credit, memo, advisor_id`

func (t *tx) NextEntrySeq(period string) (int, error) {
	if _, err := t.exec(`INSERT INTO entry_seqs (period, seq) VALUES (?, 1)
		ON CONFLICT (period) DO UPDATE SET seq = entry_seqs.seq + 1`, period); err != nil {
		return 0, fmt.Errorf("reserving entry sequence: %w", err)
	}
	var seq int
	if err := t.queryRow(`SELECT seq FROM entry_seqs WHERE period = ?`, period).Scan(&seq); err != nil {
		return 0, fmt.Errorf("reading entry sequence: %w", err)
	}
	return seq, nil
}

func (t *tx) InsertEntry(e model.JournalEntry) error {
	_, err := t.exec(`INSERT INTO journal_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, formatTime(e.Date), e.Description, e.Reference, string(e.Status), string(e.Source),
		e.ReversalOf, e.ReversedBy, formatTime(e.CreatedAt),
	)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return err
		}
		return fmt.Errorf("inserting entry: %w", err)
	}
	return t.insertLines(e.Lines)
}

func (t *tx) insertLines(lines []model.JournalLine) error {
	for _, l := range lines {
		_, err := t.exec(`INSERT INTO journal_lines (`+lineColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.EntryID, l.Position, l.AccountID, l.Debit.String(), l.Credit.String(), l.Memo, l.AdvisorID,
		)
		if err != nil {
			return fmt.Errorf("inserting line %s: %w", l.ID, err)
		}
	}
	return nil
}

func (t *tx) GetEntry(id string) (model.JournalEntry, error) {
	e, err := scanEntry(t.queryRow(`SELECT `+entryColumns+` FROM journal_entries WHERE id = ?`, id))
	if err != nil {
		return model.JournalEntry{}, err
	}
	entries := []model.JournalEntry{e}
	if err := t.attachLines(entries); err != nil {
		return model.JournalEntry{}, err
	}
	return entries[0], nil
}

// UpdateEntry rewrites the entry header and replaces its lines.
func (t *tx) UpdateEntry(e model.JournalEntry) error {
	err := t.execOne(`UPDATE journal_entries
		SET date = ?, description = ?, reference = ?, status = ?, reversal_of = ?, reversed_by = ?
		WHERE id = ?`,
		formatTime(e.Date), e.Description, e.Reference, string(e.Status), e.ReversalOf, e.ReversedBy, e.ID,
	)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("updating entry: %w", err)
	}
	if _, err := t.exec(`DELETE FROM journal_lines WHERE entry_id = ?`, e.ID); err != nil {
		return fmt.Errorf("replacing lines: %w", err)
	}
	return t.insertLines(e.Lines)
}

func (t *tx) ListEntries(f store.EntryFilter) ([]model.JournalEntry, error) {
	var where []string
	var args []any
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, formatTime(f.To))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Reference != "" {
		where = append(where, "reference = ?")
		args = append(args, f.Reference)
	}
	if f.AccountID != "" {
		where = append(where, "id IN (SELECT entry_id FROM journal_lines WHERE account_id = ?)")
		args = append(args, f.AccountID)
	}
	if f.After != nil {
		where = append(where, "(date < ? OR (date = ? AND id < ?))")
		d := formatTime(f.After.Date)
		args = append(args, d, d, f.After.ID)
	}

	q := `SELECT ` + entryColumns + ` FROM journal_entries`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY date DESC, id DESC" + t.limitClause(f.Limit, f.Offset)

	rows, err := t.query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	var out []model.JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := t.attachLines(out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachLines loads the lines of entries in one query.
func (t *tx) attachLines(entries []model.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]any, len(entries))
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		index[e.ID] = i
	}

	rows, err := t.query(`SELECT `+lineColumns+` FROM journal_lines
		WHERE entry_id IN (`+placeholders(len(ids))+`)
		ORDER BY entry_id, position`, ids...)
	if err != nil {
		return fmt.Errorf("loading lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l model.JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.Position, &l.AccountID, &l.Debit, &l.Credit, &l.Memo, &l.AdvisorID); err != nil {
			return fmt.Errorf("scanning line: %w", err)
		}
		i := index[l.EntryID]
		entries[i].Lines = append(entries[i].Lines, l)
	}
	return rows.Err()
}

func scanEntry(s scanner) (model.JournalEntry, error) {
	var e model.JournalEntry
	var date, status, source, created string
	err := s.Scan(&e.ID, &date, &e.Description, &e.Reference, &status, &source, &e.ReversalOf, &e.ReversedBy, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.JournalEntry{}, store.ErrNotFound
	}
	if err != nil {
		return model.JournalEntry{}, fmt.Errorf("scanning entry: %w", err)
	}
	e.Status = model.EntryStatus(status)
	e.Source = model.EntrySource(source)
	if e.Date, err = parseTime(date); err != nil {
		return model.JournalEntry{}, err
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return model.JournalEntry{}, err
	}
	return e, nil
}
