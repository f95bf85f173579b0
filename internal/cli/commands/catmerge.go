package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/kgforge/internal/catalog"
	"github.com/leapstack-labs/kgforge/internal/cli/config"
	"github.com/leapstack-labs/kgforge/internal/cli/output"
	"github.com/leapstack-labs/kgforge/internal/merge/catmerge"
	"github.com/leapstack-labs/kgforge/internal/state"
)

// CatmergeOptions holds options for the catmerge command.
type CatmergeOptions struct {
	MergeAll    bool
	IncludeOnly string
	Exclude     string
}

// NewCatmergeCommand creates the catmerge command.
func NewCatmergeCommand() *cobra.Command {
	opts := &CatmergeOptions{}

	cmd := &cobra.Command{
		Use:   "catmerge",
		Short: "Concatenate transformed tables into one graph",
		Long: `Validate every node and edge table under the transformed data directory
and stack the usable ones into a single merged graph.

A table is dropped when it cannot be parsed, has no id column, or has fewer
than catmerge.min_rows data rows. Dropping a table also drops its sibling:
foo_nodes.tsv and foo_edges.tsv are merged together or not at all.

--include_only takes precedence over --exclude.`,
		Example: `  # Merge every transformed source
  kgforge catmerge

  # Merge only two sources
  kgforge catmerge --include_only reactome,ontology

  # Merge everything except one source
  kgforge catmerge --exclude ontology`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCatmerge(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.MergeAll, "merge_all", false, "Merge all transformed sources (the default)")
	cmd.Flags().StringVar(&opts.IncludeOnly, "include_only", "", "Comma-separated sources to include; all others are skipped")
	cmd.Flags().StringVar(&opts.Exclude, "exclude", "", "Comma-separated sources to skip")

	return cmd
}

func runCatmerge(cmd *cobra.Command, opts *CatmergeOptions) (err error) {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	if err := config.ValidateDirectory("transformed", cc.Cfg.TransformedDir); err != nil {
		return err
	}

	ledger := cc.StartRun(ctx, "catmerge", cmd.Flags())
	defer func() { ledger.Finish(ctx, err) }()

	filter := &catalog.Filter{
		Root:    cc.Cfg.TransformedDir,
		MinRows: cc.Cfg.Catmerge.MinRows,
		Logger:  cc.Logger,
	}
	selected, err := filter.Run(catalog.Selection{
		IncludeOnly: catalog.ParseList(opts.IncludeOnly),
		Exclude:     catalog.ParseList(opts.Exclude),
		All:         opts.MergeAll,
	})
	if err != nil {
		return err
	}

	ledger.Record(ctx, filterRecords(selected))
	if err := renderFilter(cc.Renderer, cc.Cfg.TransformedDir, selected); err != nil {
		return err
	}
	if n := len(selected.Rejected); n > 0 {
		cc.Renderer.Warn("%d tables were left out of the merge", n)
	}

	res, err := catmerge.Merge(ctx, catmerge.Options{
		Name:      cc.Cfg.Catmerge.Name,
		Nodes:     selected.Nodes,
		Edges:     selected.Edges,
		OutputDir: cc.Cfg.MergedDir,
		Threads:   cc.Cfg.Catmerge.Threads,
		Logger:    cc.Logger,
	})
	if err != nil {
		return err
	}

	written := []state.FileRecord{
		{Path: res.NodesPath, Kind: string(catalog.KindNodes), Outcome: state.OutcomeWritten, Detail: res.Report.Name},
		{Path: res.EdgesPath, Kind: string(catalog.KindEdges), Outcome: state.OutcomeWritten, Detail: res.Report.Name},
		{Path: res.ReportPath, Kind: "report", Outcome: state.OutcomeWritten, Detail: res.Report.Name},
	}
	if res.ArchivePath != "" {
		written = append(written, state.FileRecord{Path: res.ArchivePath, Kind: "archive", Outcome: state.OutcomeWritten, Detail: res.Report.Name})
	}
	ledger.Record(ctx, written)

	return renderCatmerge(cc.Renderer, res)
}

func filterRecords(res *catalog.Result) []state.FileRecord {
	files := make([]state.FileRecord, 0, len(res.Nodes)+len(res.Edges)+len(res.Rejected))
	for _, path := range res.Nodes {
		files = append(files, state.FileRecord{Path: path, Kind: string(catalog.KindNodes), Outcome: state.OutcomeAccepted})
	}
	for _, path := range res.Edges {
		files = append(files, state.FileRecord{Path: path, Kind: string(catalog.KindEdges), Outcome: state.OutcomeAccepted})
	}
	for _, rej := range res.Rejected {
		files = append(files, state.FileRecord{Path: rej.Path, Kind: string(rej.Kind), Outcome: state.OutcomeRejected, Detail: rej.Reason})
	}
	return files
}

func renderFilter(r *output.Renderer, root string, res *catalog.Result) error {
	t := output.Table{
		Title:  "Transformed tables",
		Header: []string{"file", "kind", "status", "reason"},
	}
	for _, path := range res.Nodes {
		t.Rows = append(t.Rows, []any{relTo(root, path), string(catalog.KindNodes), state.OutcomeAccepted, ""})
	}
	for _, path := range res.Edges {
		t.Rows = append(t.Rows, []any{relTo(root, path), string(catalog.KindEdges), state.OutcomeAccepted, ""})
	}
	for _, rej := range res.Rejected {
		t.Rows = append(t.Rows, []any{relTo(root, rej.Path), string(rej.Kind), state.OutcomeRejected, rej.Reason})
	}
	t.Caption = fmt.Sprintf("sources: %s; %d accepted, %d rejected",
		strings.Join(res.Sources, ", "), len(res.Nodes)+len(res.Edges), len(res.Rejected))
	return r.Render(t)
}

func renderCatmerge(r *output.Renderer, res *catmerge.Result) error {
	rep := res.Report
	t := output.Table{
		Title:  "Merged graph " + rep.Name,
		Header: []string{"nodes", "edges", "duplicate node ids", "dangling edges"},
		Rows:   [][]any{{rep.Nodes, rep.Edges, rep.DuplicateNodeIDs, rep.DanglingEdges}},
	}
	t.Caption = "written: " + strings.Join(nonEmpty(res.NodesPath, res.EdgesPath, res.ReportPath, res.ArchivePath), ", ")
	return r.Render(t)
}

func nonEmpty(values ...string) []string {
	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
