package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// IDColumn is the identifier column every node and edge table must carry.
const IDColumn = "id"

// Probe failures. Each one makes a table, and its sibling, ineligible for merge.
var (
	ErrEmptyTable      = errors.New("table is empty")
	ErrMissingIDColumn = errors.New("table has no id column")
	ErrMalformedTable  = errors.New("table is malformed")
)

// TableInfo describes what a probe learned about a table.
type TableInfo struct {
	Columns []string
	// Rows counts data rows after the header.
	Rows int
}

// HasColumn reports whether the header contains name.
func (t TableInfo) HasColumn(name string) bool {
	return slices.Contains(t.Columns, name)
}

// Prober inspects a tabular file without loading it in full.
type Prober interface {
	Probe(path string) (TableInfo, error)
}

// TSVProber reads tab-separated tables with a header row. Quoting follows
// the rule the concat merge loads tables with: a field is either unquoted
// and free of double quotes, or fully quoted with "" as the escape.
type TSVProber struct{}

// Probe parses the whole table and counts data rows. Blank lines are
// skipped. The first row with too many fields or a quoting error fails the
// probe, wherever it occurs in the file.
func (p TSVProber) Probe(path string) (TableInfo, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from a directory listing
	if err != nil {
		return TableInfo{}, fmt.Errorf("failed to open table: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return TableInfo{}, ErrEmptyTable
	}
	if err != nil {
		return TableInfo{}, fmt.Errorf("%w: %w", ErrMalformedTable, err)
	}

	info := TableInfo{Columns: slices.Clone(header)}
	info.Columns[0] = strings.TrimPrefix(info.Columns[0], "\ufeff")
	if !info.HasColumn(IDColumn) {
		return info, ErrMissingIDColumn
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return info, fmt.Errorf("%w: %w", ErrMalformedTable, err)
		}
		if len(record) > len(info.Columns) {
			line, _ := r.FieldPos(0)
			return info, fmt.Errorf("%w: line %d has %d fields, header has %d",
				ErrMalformedTable, line, len(record), len(info.Columns))
		}
		info.Rows++
	}

	return info, nil
}
