package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GenericParser parses CSV files with a header naming at least date,
// amount and one of merchant or description. A reference column, when
// present and filled, becomes the external reference.
type GenericParser struct{}

var genericDateFormats = []string{"2006-01-02", "01/02/2006", "2006/01/02"}

// Format returns the parser name.
func (p *GenericParser) Format() string { return "generic" }

// Parse reads a generic CSV.
func (p *GenericParser) Parse(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, need := range []string{"date", "amount"} {
		if _, ok := cols[need]; !ok {
			return nil, fmt.Errorf("missing %q column", need)
		}
	}
	_, hasMerchant := cols["merchant"]
	_, hasDesc := cols["description"]
	if !hasMerchant && !hasDesc {
		return nil, errors.New(`missing "merchant" or "description" column`)
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var recs []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		date, err := parseDate(field(row, "date"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		amount, err := decimal.NewFromString(field(row, "amount"))
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing amount %q: %w", line, field(row, "amount"), err)
		}
		rec := Record{
			Date:        date,
			Merchant:    field(row, "merchant"),
			Description: field(row, "description"),
			Amount:      amount,
			Type:        field(row, "type"),
			ExternalRef: field(row, "reference"),
		}
		if rec.Merchant == "" {
			rec.Merchant = rec.Description
		}
		if rec.ExternalRef == "" {
			rec.ExternalRef = makeRef("generic", date, rec.Merchant)
		}
		recs = append(recs, rec)
	}
	return uniqueRefs(recs), nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range genericDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing date %q", s)
}
