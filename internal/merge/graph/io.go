package graph

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/kgforge/internal/catalog"
)

// LoadSource reads a source's node and edge tables into a new graph. Tables
// are told apart by their _nodes.tsv / _edges.tsv suffix.
func LoadSource(files []string) (*Graph, error) {
	g := New()
	for _, path := range files {
		kind := catalog.Classify(path)
		if kind == catalog.KindUnknown {
			return nil, fmt.Errorf("cannot tell whether %s holds nodes or edges", path)
		}
		if err := readTable(path, func(cols []string) {
			if kind == catalog.KindNodes {
				g.nodes.addColumns(cols)
			} else {
				g.edges.addColumns(cols)
			}
		}, func(rec Record) {
			if kind == catalog.KindNodes {
				g.AddNode(rec)
			} else {
				g.AddEdge(rec)
			}
		}); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func readTable(path string, onHeader func([]string), onRecord func(Record)) error {
	f, err := os.Open(path) //nolint:gosec // paths come from the merge config
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: %w", path, catalog.ErrEmptyTable)
	}
	if err != nil {
		return fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	onHeader(header)

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if len(row) > len(header) {
			line, _ := r.FieldPos(0)
			return fmt.Errorf("%s line %d: %w", path, line, catalog.ErrMalformedTable)
		}
		rec := make(Record, len(header))
		for i, val := range row {
			rec[header[i]] = val
		}
		onRecord(rec)
	}
}

// WriteTables writes the graph to <prefix>_nodes.tsv and <prefix>_edges.tsv
// and returns both paths.
func (g *Graph) WriteTables(prefix string) (nodesPath, edgesPath string, err error) {
	if err := os.MkdirAll(filepath.Dir(prefix), 0o750); err != nil {
		return "", "", fmt.Errorf("failed to create output directory: %w", err)
	}

	nodesPath = prefix + catalog.NodesSuffix
	edgesPath = prefix + catalog.EdgesSuffix

	if err := writeTable(nodesPath, g.nodes, "id", "category", "name"); err != nil {
		return "", "", err
	}
	if err := writeTable(edgesPath, g.edges, "id", "subject", "predicate", "object"); err != nil {
		return "", "", err
	}
	return nodesPath, edgesPath, nil
}

func writeTable(path string, t *table, lead ...string) (err error) {
	f, err := os.Create(path) //nolint:gosec // destination chosen by the merge config
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	w := csv.NewWriter(f)
	w.Comma = '\t'

	cols := orderedColumns(t.columns, lead...)
	if err := w.Write(cols); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	row := make([]string, len(cols))
	for _, key := range t.keys {
		rec := t.rows[key]
		for i, c := range cols {
			row[i] = rec[c]
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
