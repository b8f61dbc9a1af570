// Package importer turns bank feed exports into bank transactions. Files
// dropped in <root>/import/ are parsed, deduplicated against a persistent
// index and moved to import/processed/ once ingested.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/bank"
	"github.com/cleared-dev/ledger/internal/model"
)

// Record is one parsed feed row.
type Record struct {
	Date        time.Time
	Merchant    string
	Description string
	Amount      decimal.Decimal
	Type        string
	ExternalRef string
}

// Parser converts a bank CSV file into records.
type Parser interface {
	Parse(r io.Reader) ([]Record, error)
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// FileInfo describes a CSV file in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&ChaseParser{})
	r.Register(&GenericParser{})
	return r
}

// importDir is the subdirectory for import CSVs.
const importDir = "import"

// processedDir is the subdirectory for processed CSVs.
const processedDir = "import/processed"

// Scan returns CSV files in <root>/import/.
func Scan(root string) ([]FileInfo, error) {
	dir := filepath.Join(root, importDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a file from import/ to import/processed/.
func MarkProcessed(root, fileName string) error {
	src := filepath.Join(root, importDir, fileName)
	dstDir := filepath.Join(root, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}

// makeRef creates a reference like chase_20250103_GITHUBPROS.
func makeRef(source string, date time.Time, desc string) string {
	prefix := strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, desc)
	if len(prefix) > 10 {
		prefix = prefix[:10]
	}
	return fmt.Sprintf("%s_%s_%s", source, date.Format("20060102"), prefix)
}

// uniqueRefs suffixes repeated references within one file with _2, _3...
// so two same-day purchases at one merchant stay distinct.
func uniqueRefs(recs []Record) []Record {
	seen := make(map[string]int, len(recs))
	for i := range recs {
		ref := recs[i].ExternalRef
		seen[ref]++
		if n := seen[ref]; n > 1 {
			recs[i].ExternalRef = fmt.Sprintf("%s_%d", ref, n)
		}
	}
	return recs
}

// Ingester records parsed feed rows as bank transactions, skipping rows
// whose reference was already ingested for the account.
type Ingester struct {
	bank  *bank.Ledger
	index *SeenIndex
	log   *slog.Logger
}

// NewIngester creates an Ingester. index may be nil, in which case only
// the store's unique reference check deduplicates.
func NewIngester(b *bank.Ledger, index *SeenIndex, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{bank: b, index: index, log: logger}
}

// Result counts what an ingest did.
type Result struct {
	File         string                  `json:"file,omitempty"`
	Recorded     []model.BankTransaction `json:"recorded"`
	Skipped      int                     `json:"skipped"`
	Transactions int                     `json:"transactions"`
}

// Ingest records recs against a bank account. A validation failure stops
// the ingest; rows recorded before it stay recorded.
func (in *Ingester) Ingest(ctx context.Context, bankAccountID string, recs []Record) (Result, error) {
	res := Result{Transactions: len(recs)}
	for i, rec := range recs {
		if in.index != nil && rec.ExternalRef != "" {
			seen, err := in.index.Seen(bankAccountID, rec.ExternalRef)
			if err != nil {
				return res, err
			}
			if seen {
				res.Skipped++
				continue
			}
		}

		txn, err := in.bank.RecordTransaction(ctx, bank.RecordParams{
			BankAccountID: bankAccountID,
			Date:          rec.Date,
			Merchant:      rec.Merchant,
			Description:   rec.Description,
			Amount:        rec.Amount,
			ExternalRef:   rec.ExternalRef,
			Status:        model.TxnPosted,
		})
		switch {
		case errors.Is(err, bank.ErrDuplicate):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("record %d (%s): %w", i+1, rec.ExternalRef, err)
		default:
			res.Recorded = append(res.Recorded, txn)
		}

		if in.index != nil && rec.ExternalRef != "" {
			if err := in.index.Mark(bankAccountID, rec.ExternalRef, txn.ID); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// ImportDir parses every CSV in <root>/import/ with the named format,
// ingests it into bankAccountID and moves it to import/processed/. A file
// that fails to parse or ingest is left in place.
func (in *Ingester) ImportDir(ctx context.Context, root, bankAccountID string, p Parser) ([]Result, error) {
	files, err := Scan(root)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, fi := range files {
		res, err := in.importFile(ctx, fi, bankAccountID, p)
		if err != nil {
			return results, fmt.Errorf("importing %s: %w", fi.Name, err)
		}
		if err := MarkProcessed(root, fi.Name); err != nil {
			return results, err
		}
		in.log.Info("imported bank file", "file", fi.Name, "recorded", len(res.Recorded), "skipped", res.Skipped)
		results = append(results, res)
	}
	return results, nil
}

func (in *Ingester) importFile(ctx context.Context, fi FileInfo, bankAccountID string, p Parser) (Result, error) {
	f, err := os.Open(fi.Path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	recs, err := p.Parse(f)
	if err != nil {
		return Result{}, err
	}
	res, err := in.Ingest(ctx, bankAccountID, recs)
	res.File = fi.Name
	return res, err
}
