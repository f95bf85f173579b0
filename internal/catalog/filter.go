package catalog

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultMinRows is the number of data rows a table needs to be merged.
const DefaultMinRows = 2

// Rejection records a table that will not be merged and why.
type Rejection struct {
	Path   string
	Kind   Kind
	Reason string
	// Sibling is the other half of the pair, dropped along with this table.
	Sibling string
	// Cascaded is true when the table itself was fine but its sibling was not.
	Cascaded bool
}

// Result is the outcome of a filter run. Paths are sorted.
type Result struct {
	Sources  []string
	Nodes    []string
	Edges    []string
	Rejected []Rejection
}

// Filter selects node and edge tables under Root that are fit to merge.
type Filter struct {
	// Root is the transformed data directory holding one directory per source.
	Root string

	// MinRows is the minimum number of data rows. Zero means DefaultMinRows.
	MinRows int

	// Prober inspects each table. Nil means a TSVProber.
	Prober Prober

	Logger *slog.Logger
}

// candidate is a classified table awaiting the sibling pass.
type candidate struct {
	path string
	kind Kind
}

// Run walks the selected sources and splits their tables into accepted node
// and edge lists. A table is dropped when it cannot be probed or is too
// short, and its sibling is dropped with it whichever of the two was listed
// first.
func (f *Filter) Run(sel Selection) (*Result, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	minRows := f.MinRows
	if minRows <= 0 {
		minRows = DefaultMinRows
	}
	prober := f.Prober
	if prober == nil {
		prober = TSVProber{}
	}

	if sel.All {
		logger.Debug("merge_all requested; all selected sources are merged by default")
	}

	sources, err := SelectSources(f.Root, sel)
	if err != nil {
		return nil, err
	}

	result := &Result{Sources: sources}
	var passed []candidate
	rejected := make(map[string]Rejection)

	for _, source := range sources {
		logger.Info("validating source", slog.String("source", source))

		tables, err := ListTables(filepath.Join(f.Root, source))
		if err != nil {
			return nil, err
		}

		for _, path := range tables {
			kind := Classify(path)
			if kind == KindUnknown {
				logger.Debug("skipping table with unrecognised suffix", slog.String("path", path))
				continue
			}

			reason := checkTable(prober, path, kind, minRows)
			if reason == "" {
				passed = append(passed, candidate{path: path, kind: kind})
				continue
			}

			rej := Rejection{Path: path, Kind: kind, Reason: reason, Sibling: SiblingPath(path)}
			rejected[path] = rej
			logger.Warn("ignoring table",
				slog.String("path", path),
				slog.String("sibling", rej.Sibling),
				slog.String("reason", reason))
		}
	}

	// Sibling pass. Decided only after every table was probed, so the
	// outcome does not depend on directory listing order.
	for _, c := range passed {
		sibling := SiblingPath(c.path)
		if _, ok := rejected[sibling]; ok {
			rej := Rejection{
				Path:     c.path,
				Kind:     c.kind,
				Reason:   fmt.Sprintf("sibling %s was rejected", filepath.Base(sibling)),
				Sibling:  sibling,
				Cascaded: true,
			}
			result.Rejected = append(result.Rejected, rej)
			logger.Warn("ignoring table because its sibling was rejected",
				slog.String("path", c.path),
				slog.String("sibling", sibling))
			continue
		}

		switch c.kind {
		case KindNodes:
			result.Nodes = append(result.Nodes, c.path)
		case KindEdges:
			result.Edges = append(result.Edges, c.path)
		}
	}

	for _, rej := range rejected {
		result.Rejected = append(result.Rejected, rej)
	}

	slices.Sort(result.Nodes)
	slices.Sort(result.Edges)
	slices.SortFunc(result.Rejected, func(a, b Rejection) int {
		return strings.Compare(a.Path, b.Path)
	})

	logger.Info("table validation complete",
		slog.Int("sources", len(result.Sources)),
		slog.Int("nodes", len(result.Nodes)),
		slog.Int("edges", len(result.Edges)),
		slog.Int("rejected", len(result.Rejected)))

	return result, nil
}

// checkTable returns a rejection reason, or "" when the table is usable.
func checkTable(p Prober, path string, kind Kind, minRows int) string {
	info, err := p.Probe(path)
	if err != nil {
		return fmt.Sprintf("parse error: %v", err)
	}
	if info.Rows < minRows {
		return fmt.Sprintf("contains %d %s rows, need at least %d", info.Rows, kind, minRows)
	}
	return ""
}
