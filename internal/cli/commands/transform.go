package commands

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/kgforge/internal/catalog"
	"github.com/leapstack-labs/kgforge/internal/cli/config"
	"github.com/leapstack-labs/kgforge/internal/cli/output"
	"github.com/leapstack-labs/kgforge/internal/state"
	"github.com/leapstack-labs/kgforge/internal/transform"
)

// TransformOptions holds options for the transform command.
type TransformOptions struct {
	Input   string
	Output  string
	Sources []string
}

// NewTransformCommand creates the transform command.
func NewTransformCommand() *cobra.Command {
	opts := &TransformOptions{}

	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Transform raw data into KGX node and edge tables",
		Long: `Run per-source transforms over the raw data directory.

Each source writes <output>/<source>/<name>_nodes.tsv and <name>_edges.tsv.
Without --source every registered source runs, in name order. Run
"kgforge sources" to list them.`,
		Example: `  # Transform every source
  kgforge transform

  # Transform two sources from a custom input directory
  kgforge transform -i data/raw-snippets -s reactome -s ontology`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTransform(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Input directory (default: <data_dir>/raw)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output directory (default: <data_dir>/transformed)")
	cmd.Flags().StringArrayVarP(&opts.Sources, "source", "s", nil, "Source to transform (repeatable; default: all)")

	_ = cmd.RegisterFlagCompletionFunc("source", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return transform.Names(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runTransform(cmd *cobra.Command, opts *TransformOptions) (err error) {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	for _, name := range opts.Sources {
		if _, ok := transform.Lookup(name); !ok {
			return &transform.UnknownSourceError{Name: name, Available: transform.Names()}
		}
	}

	inDir := opts.Input
	if inDir == "" {
		inDir = cc.Cfg.RawDir
	}
	if err := config.ValidateDirectory("input", inDir); err != nil {
		return err
	}
	outDir := opts.Output
	if outDir == "" {
		outDir = cc.Cfg.TransformedDir
	}

	ledger := cc.StartRun(ctx, "transform", cmd.Flags())
	defer func() { ledger.Finish(ctx, err) }()

	requested := unique(opts.Sources)
	if len(requested) == 0 {
		requested = transform.Names()
	}

	ran, runErr := transform.Run(ctx, cc.Logger, inDir, outDir, requested)

	results := transformResults(ctx, cc.Logger, outDir, requested, ran, runErr)
	var files []state.FileRecord
	for _, res := range results {
		files = append(files, res.files...)
	}
	ledger.Record(ctx, files)

	if rerr := renderTransform(cc.Renderer, outDir, results); rerr != nil {
		return errors.Join(runErr, rerr)
	}
	return runErr
}

type transformResult struct {
	source string
	status string
	files  []state.FileRecord
}

// transformResults pairs each requested source with what happened to it. The
// source after the last one that ran is the one that failed.
func transformResults(ctx context.Context, logger *slog.Logger, outDir string, requested, ran []string, runErr error) []transformResult {
	done := make(map[string]bool, len(ran))
	for _, name := range ran {
		done[name] = true
	}

	var results []transformResult
	failedOne := false
	for _, name := range requested {
		if done[name] {
			tables, err := catalog.ListTables(filepath.Join(outDir, name))
			if err != nil {
				logger.DebugContext(ctx, "no tables listed for source", slog.String("source", name), slog.String("error", err.Error()))
			}
			res := transformResult{source: name, status: "done"}
			for _, path := range tables {
				res.files = append(res.files, state.FileRecord{Path: path, Kind: fileKind(path), Outcome: state.OutcomeWritten, Detail: name})
			}
			results = append(results, res)
			continue
		}
		if runErr == nil || failedOne {
			results = append(results, transformResult{source: name, status: "skipped"})
			continue
		}
		failedOne = true
		results = append(results, transformResult{source: name, status: "failed",
			files: []state.FileRecord{{Path: name, Kind: "source", Outcome: state.OutcomeFailed, Detail: runErr.Error()}}})
	}
	return results
}

func renderTransform(r *output.Renderer, outDir string, results []transformResult) error {
	t := output.Table{
		Title:  "Transform",
		Header: []string{"source", "status", "tables"},
	}
	for _, res := range results {
		var names []string
		for _, f := range res.files {
			if f.Outcome == state.OutcomeWritten {
				names = append(names, relTo(outDir, f.Path))
			}
		}
		tables := "-"
		if len(names) > 0 {
			tables = strings.Join(names, ", ")
		}
		t.Rows = append(t.Rows, []any{res.source, res.status, tables})
	}
	t.Caption = "output: " + outDir
	return r.Render(t)
}

// unique returns names without repeats, keeping first occurrences in order.
func unique(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
