package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ChaseParser parses Chase bank checking CSV exports.
type ChaseParser struct{}

const (
	chaseDateFormat = "01/02/2006"
	chaseNumFields  = 7
	chaseColDate    = 1
	chaseColDesc    = 2
	chaseColAmount  = 3
	chaseColType    = 4
)

// Format returns the parser name.
func (p *ChaseParser) Format() string { return "chase" }

// Parse reads a Chase CSV.
func (p *ChaseParser) Parse(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = chaseNumFields

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading chase CSV: %w", err)
	}

	if len(rows) <= 1 {
		return nil, nil
	}

	var recs []Record
	for i, row := range rows[1:] {
		rec, err := parseChaseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		recs = append(recs, rec)
	}
	return uniqueRefs(recs), nil
}

func parseChaseRow(row []string) (Record, error) {
	date, err := time.Parse(chaseDateFormat, row[chaseColDate])
	if err != nil {
		return Record{}, fmt.Errorf("parsing date %q: %w", row[chaseColDate], err)
	}

	amount, err := decimal.NewFromString(row[chaseColAmount])
	if err != nil {
		return Record{}, fmt.Errorf("parsing amount %q: %w", row[chaseColAmount], err)
	}

	desc := strings.TrimSpace(row[chaseColDesc])
	return Record{
		Date:        date,
		Merchant:    desc,
		Amount:      amount,
		Type:        row[chaseColType],
		ExternalRef: makeRef("chase", date, desc),
	}, nil
}
