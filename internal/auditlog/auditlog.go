// Package auditlog keeps an append-only CSV record of ledger activity.
package auditlog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/events"
	"github.com/cleared-dev/ledger/internal/model"
)

// DefaultPath is where the activity log lives inside a books directory.
const DefaultPath = "logs/activity-log.csv"

// Entry is one row in the activity log.
type Entry struct {
	Timestamp time.Time
	Principal string
	Action    events.Kind
	SubjectID string
	Amount    decimal.Decimal
	Summary   string
}

// Header is the CSV header for activity-log.csv.
const Header = "timestamp,principal,action,subject_id,amount,summary"

const (
	numFields    = 6
	colTimestamp = 0
	colPrincipal = 1
	colAction    = 2
	colSubject   = 3
	colAmount    = 4
	colSummary   = 5
)

// FromEvent converts a domain event to a log entry.
func FromEvent(ev events.Event) Entry {
	return Entry{
		Timestamp: ev.OccurredAt,
		Principal: ev.PrincipalID,
		Action:    ev.Kind,
		SubjectID: ev.SubjectID,
		Amount:    ev.Amount,
		Summary:   ev.Summary,
	}
}

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.UTC().Format(time.RFC3339)
	row[colPrincipal] = e.Principal
	row[colAction] = string(e.Action)
	row[colSubject] = e.SubjectID
	row[colAmount] = e.Amount.StringFixed(model.CurrencyPlaces)
	row[colSummary] = e.Summary
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}
	amount, err := decimal.NewFromString(record[colAmount])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing amount %q: %w", record[colAmount], err)
	}

	return Entry{
		Timestamp: ts,
		Principal: record[colPrincipal],
		Action:    events.Kind(record[colAction]),
		SubjectID: record[colSubject],
		Amount:    amount,
		Summary:   record[colSummary],
	}, nil
}

// Append writes entries to the log at path, creating the file and header
// if needed.
func Append(path string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}

	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Read returns all entries of the log at path. A missing file yields none.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading activity log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Publisher appends every published event to a log file.
type Publisher struct {
	mu   sync.Mutex
	path string
}

// NewPublisher returns a Publisher writing to path.
func NewPublisher(path string) *Publisher {
	return &Publisher{path: path}
}

// Path returns the log file location.
func (p *Publisher) Path() string { return p.path }

func (p *Publisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Append(p.path, []Entry{FromEvent(ev)})
}
