package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/kgforge/internal/cli/config"
	"github.com/leapstack-labs/kgforge/internal/cli/output"
	"github.com/leapstack-labs/kgforge/internal/merge/graph"
	"github.com/leapstack-labs/kgforge/internal/state"
)

// MergeOptions holds options for the merge command.
type MergeOptions struct {
	YAML      string
	Processes int
}

// NewMergeCommand creates the merge command.
func NewMergeCommand() *cobra.Command {
	opts := &MergeOptions{}

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge transformed sources into one graph",
		Long: `Load the sources named in the merge file, merge them into one graph and
write every configured destination.

Nodes are merged by id; list-valued properties such as provided_by are
unioned. Edges are merged by subject, predicate, object and id.`,
		Example: `  # Merge using merge.yaml
  kgforge merge

  # Load four sources at a time
  kgforge merge -y config/merge.yaml -p 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMerge(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.YAML, "yaml", "y", "merge.yaml", "Merge configuration file")
	cmd.Flags().IntVarP(&opts.Processes, "processes", "p", 1, "Number of sources to load concurrently")

	return cmd
}

func runMerge(cmd *cobra.Command, opts *MergeOptions) (err error) {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	if opts.Processes < 1 {
		return fmt.Errorf("--processes must be at least 1, got %d", opts.Processes)
	}
	yamlPath := resolvePath(cmd, "yaml", opts.YAML, cc.Cfg.ProjectRoot)
	if err := config.ValidateFile("merge", yamlPath); err != nil {
		return err
	}

	ledger := cc.StartRun(ctx, "merge", cmd.Flags())
	defer func() { ledger.Finish(ctx, err) }()

	summary, err := graph.NewEngine(cc.Logger).LoadAndMerge(ctx, yamlPath, opts.Processes)
	if err != nil {
		return err
	}

	files := make([]state.FileRecord, 0, len(summary.Outputs))
	for _, path := range summary.Outputs {
		files = append(files, state.FileRecord{Path: path, Kind: fileKind(path), Outcome: state.OutcomeWritten, Detail: summary.Name})
	}
	ledger.Record(ctx, files)

	return renderMerge(cc.Renderer, summary)
}

func renderMerge(r *output.Renderer, s *graph.Summary) error {
	t := output.Table{
		Title:  "Merge " + s.Name,
		Header: []string{"graph", "sources", "nodes", "edges", "outputs"},
		Rows: [][]any{
			{s.Name, strings.Join(s.Sources, ", "), s.Nodes, s.Edges, strings.Join(s.Outputs, ", ")},
		},
	}
	return r.Render(t)
}
