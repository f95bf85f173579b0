// Package catmerge concatenates node and edge tables into a single merged
// graph, in the manner of a tabular "cat" merge: rows are stacked, columns
// are aligned by name, and nothing is deduplicated. A QC report records what
// a consumer of the merged tables would want to know about duplicates and
// dangling references.
package catmerge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/kgforge/internal/adapter"
	"github.com/leapstack-labs/kgforge/internal/merge"
)

// DefaultName is the merged graph name used by the catmerge command.
const DefaultName = "merged-kg"

// ReportFile is the QC report written next to the merged tables.
const ReportFile = "qc_report.yaml"

// ErrNothingToMerge is returned when no node or no edge tables are given.
var ErrNothingToMerge = errors.New("nothing to merge")

// Options configures a concat merge.
type Options struct {
	Name      string
	Nodes     []string
	Edges     []string
	OutputDir string

	// Threads caps the DuckDB worker threads. Zero uses the engine default.
	Threads int

	// SkipArchive disables the <name>.tar.gz bundle.
	SkipArchive bool

	Logger *slog.Logger
}

// Report is the QC summary of a merged graph.
type Report struct {
	Name             string   `yaml:"name"`
	Nodes            int64    `yaml:"nodes"`
	Edges            int64    `yaml:"edges"`
	DuplicateNodeIDs int64    `yaml:"duplicate_node_ids"`
	DanglingEdges    int64    `yaml:"dangling_edges"`
	NodeFiles        []string `yaml:"node_files"`
	EdgeFiles        []string `yaml:"edge_files"`
}

// Result lists the files a merge produced.
type Result struct {
	NodesPath   string
	EdgesPath   string
	ReportPath  string
	ArchivePath string
	Report      Report
}

// Merge loads every node and edge table into DuckDB, stacks them, and writes
// <OutputDir>/<Name>_nodes.tsv and <Name>_edges.tsv ordered by id.
func Merge(ctx context.Context, opts Options) (*Result, error) {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if len(opts.Nodes) == 0 || len(opts.Edges) == 0 {
		return nil, fmt.Errorf("%w: %d node tables, %d edge tables", ErrNothingToMerge, len(opts.Nodes), len(opts.Edges))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(opts.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	db := adapter.NewDuckDBAdapter(logger)
	if err := db.Connect(ctx, adapter.Config{Path: ":memory:", Threads: opts.Threads}); err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	logger.Info("loading tables",
		slog.Int("node_files", len(opts.Nodes)),
		slog.Int("edge_files", len(opts.Edges)))

	if err := db.LoadTSV(ctx, "nodes", opts.Nodes); err != nil {
		return nil, err
	}
	if err := db.LoadTSV(ctx, "edges", opts.Edges); err != nil {
		return nil, err
	}

	res := &Result{
		NodesPath:  filepath.Join(opts.OutputDir, opts.Name+"_nodes.tsv"),
		EdgesPath:  filepath.Join(opts.OutputDir, opts.Name+"_edges.tsv"),
		ReportPath: filepath.Join(opts.OutputDir, ReportFile),
	}

	if err := db.ExportTSV(ctx, "SELECT * FROM nodes ORDER BY id", res.NodesPath); err != nil {
		return nil, err
	}
	if err := db.ExportTSV(ctx, "SELECT * FROM edges ORDER BY id", res.EdgesPath); err != nil {
		return nil, err
	}

	report, err := buildReport(ctx, db, opts)
	if err != nil {
		return nil, err
	}
	res.Report = *report

	if err := writeReport(res.ReportPath, report); err != nil {
		return nil, err
	}

	if !opts.SkipArchive {
		res.ArchivePath = filepath.Join(opts.OutputDir, opts.Name+".tar.gz")
		if err := merge.WriteTarGz(res.ArchivePath, []string{res.NodesPath, res.EdgesPath}); err != nil {
			return nil, err
		}
	}

	logger.Info("merged graph written",
		slog.String("nodes_path", res.NodesPath),
		slog.String("edges_path", res.EdgesPath),
		slog.Int64("nodes", report.Nodes),
		slog.Int64("edges", report.Edges),
		slog.Int64("duplicate_node_ids", report.DuplicateNodeIDs),
		slog.Int64("dangling_edges", report.DanglingEdges))

	return res, nil
}

func buildReport(ctx context.Context, db adapter.Adapter, opts Options) (*Report, error) {
	nodes, err := db.GetTableMetadata(ctx, "nodes")
	if err != nil {
		return nil, err
	}
	edges, err := db.GetTableMetadata(ctx, "edges")
	if err != nil {
		return nil, err
	}

	report := &Report{
		Name:      opts.Name,
		Nodes:     nodes.RowCount,
		Edges:     edges.RowCount,
		NodeFiles: opts.Nodes,
		EdgeFiles: opts.Edges,
	}

	report.DuplicateNodeIDs, err = db.QueryInt(ctx,
		"SELECT COUNT(*) FROM (SELECT id FROM nodes GROUP BY id HAVING COUNT(*) > 1)")
	if err != nil {
		return nil, err
	}

	// Edge tables without subject/object columns cannot dangle.
	if edges.HasColumn("subject") && edges.HasColumn("object") {
		report.DanglingEdges, err = db.QueryInt(ctx, `
			SELECT COUNT(*) FROM edges e
			WHERE NOT EXISTS (SELECT 1 FROM nodes n WHERE n.id = e.subject)
			   OR NOT EXISTS (SELECT 1 FROM nodes n WHERE n.id = e.object)`)
		if err != nil {
			return nil, err
		}
	}

	return report, nil
}

func writeReport(path string, report *Report) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode QC report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write QC report: %w", err)
	}
	return nil
}
