package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cleared-dev/ledger/internal/model"
)

// Header is the CSV header for journal.csv. Each row is one line of an entry.
const Header = "entry_id,line_id,date,account_code,description,debit,credit,memo,reference,status,source,reversal_of"

const (
	numFields    = 12
	dateFormat   = "2006-01-02"
	colEntryID   = 0
	colLineID    = 1
	colDate      = 2
	colAcctCode  = 3
	colDesc      = 4
	colDebit     = 5
	colCredit    = 6
	colMemo      = 7
	colRef       = 8
	colStatus    = 9
	colSource    = 10
	colReversal  = 11
)

// WriteEntries writes entries to a journal.csv writer (including header).
// codes maps account IDs to chart codes; unknown IDs are written as-is.
func WriteEntries(w io.Writer, entries []model.JournalEntry, codes map[string]string) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	row := 2
	for _, e := range entries {
		for _, l := range e.Lines {
			if err := cw.Write(MarshalLine(e, l, codes)); err != nil {
				return fmt.Errorf("writing row %d: %w", row, err)
			}
			row++
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalLine converts one line of an entry to a CSV row.
func MarshalLine(e model.JournalEntry, l model.JournalLine, codes map[string]string) []string {
	row := make([]string, numFields)
	row[colEntryID] = e.ID
	row[colLineID] = l.ID
	row[colDate] = e.Date.Format(dateFormat)

	row[colAcctCode] = l.AccountID
	if code, ok := codes[l.AccountID]; ok {
		row[colAcctCode] = code
	}
	row[colDesc] = e.Description

	if !l.Debit.IsZero() {
		row[colDebit] = l.Debit.StringFixed(model.CurrencyPlaces)
	}
	if !l.Credit.IsZero() {
		row[colCredit] = l.Credit.StringFixed(model.CurrencyPlaces)
	}

	row[colMemo] = l.Memo
	row[colRef] = e.Reference
	row[colStatus] = string(e.Status)
	row[colSource] = string(e.Source)
	row[colReversal] = e.ReversalOf
	return row
}

// MonthPath is where the journal of one month lives under root:
// root/YYYY/MM/journal.csv.
func MonthPath(root string, year, month int) string {
	return filepath.Join(root, fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", month), "journal.csv")
}

// WriteMonths writes one journal.csv per month under root, entries in
// number order, and returns the paths written.
func WriteMonths(root string, entries []model.JournalEntry, codes map[string]string) ([]string, error) {
	byMonth := make(map[string][]model.JournalEntry)
	for _, e := range entries {
		path := MonthPath(root, e.Date.Year(), int(e.Date.Month()))
		byMonth[path] = append(byMonth[path], e)
	}

	paths := make([]string, 0, len(byMonth))
	for path := range byMonth {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		month := byMonth[path]
		sort.Slice(month, func(i, j int) bool { return month[i].ID < month[j].ID })
		if err := writeFile(path, month, codes); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func writeFile(path string, entries []model.JournalEntry, codes map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating journal dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating journal %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteEntries(f, entries, codes); err != nil {
		return fmt.Errorf("writing journal %s: %w", path, err)
	}
	return nil
}
