package kgx

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/kgforge/internal/catalog"
)

// ListDelimiter joins multi-valued columns.
const ListDelimiter = "|"

// NodeColumns and EdgeColumns are the fixed headers of the written tables.
var (
	NodeColumns = []string{"id", "category", "name", "description", "xref", "provided_by", "synonym"}
	EdgeColumns = []string{"id", "subject", "predicate", "object", "category", "relation", "provided_by"}
)

// Node is one row of a node table.
type Node struct {
	ID          string
	Category    string
	Name        string
	Description string
	Xref        []string
	ProvidedBy  []string
	Synonym     []string
}

// Edge is one row of an edge table. A blank ID is filled with EdgeID.
type Edge struct {
	ID         string
	Subject    string
	Predicate  string
	Object     string
	Category   string
	Relation   string
	ProvidedBy []string
}

// TableWriter writes <dir>/<name>_nodes.tsv and <dir>/<name>_edges.tsv.
// Nodes are deduplicated by id and edges by id, first write wins.
type TableWriter struct {
	nodesPath string
	edgesPath string

	nodesFile *os.File
	edgesFile *os.File
	nodes     *csv.Writer
	edges     *csv.Writer

	seenNodes map[string]struct{}
	seenEdges map[string]struct{}
}

// NewTableWriter creates dir if needed and opens both tables.
func NewTableWriter(dir, name string) (*TableWriter, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	w := &TableWriter{
		nodesPath: filepath.Join(dir, name+catalog.NodesSuffix),
		edgesPath: filepath.Join(dir, name+catalog.EdgesSuffix),
		seenNodes: make(map[string]struct{}),
		seenEdges: make(map[string]struct{}),
	}

	var err error
	if w.nodesFile, err = os.Create(w.nodesPath); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", w.nodesPath, err)
	}
	if w.edgesFile, err = os.Create(w.edgesPath); err != nil {
		_ = w.nodesFile.Close()
		return nil, fmt.Errorf("failed to create %s: %w", w.edgesPath, err)
	}

	w.nodes = newTSVWriter(w.nodesFile)
	w.edges = newTSVWriter(w.edgesFile)
	if err := w.nodes.Write(NodeColumns); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.edges.Write(EdgeColumns); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func newTSVWriter(f *os.File) *csv.Writer {
	cw := csv.NewWriter(f)
	cw.Comma = '\t'
	return cw
}

// WriteNode appends n unless a node with the same id was already written.
func (w *TableWriter) WriteNode(n Node) error {
	if n.ID == "" {
		return fmt.Errorf("node without id")
	}
	if _, ok := w.seenNodes[n.ID]; ok {
		return nil
	}
	w.seenNodes[n.ID] = struct{}{}

	category := n.Category
	if category == "" {
		category = GuessCategory(n.ID)
	}
	return w.nodes.Write([]string{
		n.ID,
		category,
		clean(n.Name),
		clean(n.Description),
		join(n.Xref),
		join(n.ProvidedBy),
		join(n.Synonym),
	})
}

// WriteEdge appends e unless an edge with the same id was already written.
func (w *TableWriter) WriteEdge(e Edge) error {
	if e.Subject == "" || e.Predicate == "" || e.Object == "" {
		return fmt.Errorf("edge %q is missing subject, predicate or object", e.ID)
	}
	if e.ID == "" {
		e.ID = EdgeID(e.Subject, e.Predicate, e.Object)
	}
	if _, ok := w.seenEdges[e.ID]; ok {
		return nil
	}
	w.seenEdges[e.ID] = struct{}{}

	category := e.Category
	if category == "" {
		category = EdgeCategory
	}
	return w.edges.Write([]string{
		e.ID,
		e.Subject,
		e.Predicate,
		e.Object,
		category,
		e.Relation,
		join(e.ProvidedBy),
	})
}

// NodeCount returns the number of distinct nodes written.
func (w *TableWriter) NodeCount() int { return len(w.seenNodes) }

// EdgeCount returns the number of distinct edges written.
func (w *TableWriter) EdgeCount() int { return len(w.seenEdges) }

// Paths returns the node and edge table paths.
func (w *TableWriter) Paths() (nodes, edges string) { return w.nodesPath, w.edgesPath }

// Close flushes and closes both tables.
func (w *TableWriter) Close() error {
	var firstErr error
	for _, pair := range []struct {
		cw *csv.Writer
		f  *os.File
	}{{w.nodes, w.nodesFile}, {w.edges, w.edgesFile}} {
		if pair.f == nil {
			continue
		}
		if pair.cw != nil {
			pair.cw.Flush()
			if err := pair.cw.Error(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to write %s: %w", pair.f.Name(), err)
			}
		}
		if err := pair.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", pair.f.Name(), err)
		}
	}
	return firstErr
}

// clean keeps free text on a single TSV line.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func join(vals []string) string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = clean(v); v != "" {
			out = append(out, strings.ReplaceAll(v, ListDelimiter, " "))
		}
	}
	return strings.Join(out, ListDelimiter)
}
