// Package bankcsv parses bank statement CSV exports from Bolivian banks.
package bankcsv

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	enc "github.com/luisfernandobanegasro/parcial/internal/encoding"
	"github.com/luisfernandobanegasro/parcial/internal/reconcile"
)

// Parser auto-detects the bank layout by matching column headers against
// known profiles. Both ';' and ',' delimited files are accepted.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(r io.Reader) (*reconcile.Statement, error) {
	utf8r, charset, err := enc.NewUTF8Reader(r)
	if err != nil {
		return nil, fmt.Errorf("detect encoding: %w", err)
	}

	data, err := io.ReadAll(utf8r)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	profile, cols, headerIdx := detectProfile(rows)
	if profile == nil {
		return nil, errors.New("no matching bank format found: expected columns for bnb, union or mercantil")
	}

	lines, err := parseRows(profile, cols, rows[headerIdx+1:], headerIdx)
	if err != nil {
		return nil, err
	}

	return &reconcile.Statement{Profile: profile.Name, Charset: charset, Lines: lines}, nil
}

// sniffDelimiter picks ';' when the first lines use it, ',' otherwise.
func sniffDelimiter(data []byte) rune {
	head := data
	if len(head) > 2048 {
		head = head[:2048]
	}

	if bytes.Count(head, []byte{';'}) > 0 {
		return ';'
	}

	return ','
}

// colIndex maps column names to their index in the row.
type colIndex map[string]int

func detectProfile(rows [][]string) (*Profile, colIndex, int) {
	for rowIdx, row := range rows {
		cols := make(colIndex)

		for i, cell := range row {
			name := strings.TrimSpace(cell)
			if name != "" {
				cols[name] = i
			}
		}

		for i := range profiles {
			if matchesProfile(&profiles[i], cols) {
				return &profiles[i], cols, rowIdx
			}
		}
	}

	return nil, nil, 0
}

func matchesProfile(p *Profile, cols colIndex) bool {
	for _, name := range p.requiredCols() {
		if _, ok := cols[name]; !ok {
			return false
		}
	}

	return true
}

// parseRows converts data rows after the header. headerRowNum is the 0-based
// index of the header record; reported rows are 1-based record numbers, which
// skip the blank lines encoding/csv drops.
func parseRows(p *Profile, cols colIndex, rows [][]string, headerRowNum int) ([]reconcile.Line, error) {
	dateIdx := cols[p.DateCol]
	descIdx := cols[p.DescCol]

	refIdx := -1
	if p.RefCol != "" {
		refIdx = cols[p.RefCol]
	}

	var lines []reconcile.Line

	for i, row := range rows {
		rowNum := headerRowNum + i + 2

		date, ok := parseDate(cellValue(row, dateIdx))
		if !ok {
			continue
		}

		desc := cellValue(row, descIdx)
		if desc == "" {
			return nil, fmt.Errorf("row %d: missing description", rowNum)
		}

		amount, credit, ok := rowAmount(p, cols, row)
		if !ok {
			continue
		}

		ref := cellValue(row, refIdx)
		if ref == "" {
			ref = referenceFromDescription(desc)
		}

		lines = append(lines, reconcile.Line{
			Row:         rowNum,
			Date:        date,
			Description: desc,
			Reference:   ref,
			Amount:      amount,
			Credit:      credit,
		})
	}

	return lines, nil
}

var dateLayouts = []string{"02/01/2006", "02-01-2006", time.DateOnly, "02/01/2006 15:04:05", "02/01/2006 15:04"}

// parseDate returns false for empty or non-date cells, which covers footer rows.
func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}

	return time.Time{}, false
}

var refPattern = regexp.MustCompile(`(?i)\b(?:REF|TRX|NRO|COMP)\b[.:#\s-]*([A-Z0-9][A-Z0-9-]{3,})`)

// referenceFromDescription pulls a transfer reference such as "REF: TRX-00123"
// out of free text.
func referenceFromDescription(desc string) string {
	m := refPattern.FindStringSubmatch(desc)
	if m == nil {
		return ""
	}

	return strings.ToUpper(m[1])
}

func rowAmount(p *Profile, cols colIndex, row []string) (decimal.Decimal, bool, bool) {
	switch p.AmountMode {
	case amountSingle:
		return singleAmount(cellValue(row, cols[p.AmountCol]))
	case amountSplit:
		return splitAmount(cellValue(row, cols[p.DebitCol]), cellValue(row, cols[p.CreditCol]))
	}

	return decimal.Zero, false, false
}

// singleAmount handles one signed column; positive means credit.
func singleAmount(s string) (decimal.Decimal, bool, bool) {
	if s == "" {
		return decimal.Zero, false, false
	}

	d, err := parseAmount(s)
	if err != nil || d.IsZero() {
		return decimal.Zero, false, false
	}

	return d.Abs(), d.IsPositive(), true
}

func splitAmount(debit, credit string) (decimal.Decimal, bool, bool) {
	if credit != "" {
		if d, err := parseAmount(credit); err == nil && !d.IsZero() {
			return d.Abs(), true, true
		}
	}

	if debit != "" {
		if d, err := parseAmount(debit); err == nil && !d.IsZero() {
			return d.Abs(), false, true
		}
	}

	return decimal.Zero, false, false
}

// cellValue safely gets a trimmed cell value from a row.
func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}

	return strings.TrimSpace(row[idx])
}
