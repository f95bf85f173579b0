package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/kgforge/internal/cli/output"
	"github.com/leapstack-labs/kgforge/internal/state"
)

// RunsOptions holds options for the runs command.
type RunsOptions struct {
	Limit int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show recorded pipeline runs",
		Long: `List the most recent runs recorded in the state database, newest first.

With a run id, list the files that run accepted, rejected, fetched or wrote.`,
		Example: `  # Last 20 runs
  kgforge runs

  # Files touched by one run
  kgforge runs 2f6b0c1e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd, opts, args)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")

	return cmd
}

func runRuns(cmd *cobra.Command, opts *RunsOptions, args []string) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	store := state.NewSQLiteStore(cc.Logger)
	if err := store.Open(cc.Cfg.StatePath); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if len(args) == 1 {
		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			return fmt.Errorf("run %s: %w", args[0], err)
		}
		files, err := store.ListFiles(ctx, run.ID)
		if err != nil {
			return err
		}
		t := output.Table{
			Title:  fmt.Sprintf("Run %s (%s, %s)", run.ID, run.Command, run.Status),
			Header: []string{"path", "kind", "outcome", "detail"},
		}
		for _, f := range files {
			t.Rows = append(t.Rows, []any{f.Path, f.Kind, f.Outcome, f.Detail})
		}
		if err := cc.Renderer.Render(t); err != nil {
			return err
		}
		if run.Error != "" {
			cc.Renderer.Println("Error:", run.Error)
		}
		return nil
	}

	runs, err := store.ListRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}
	t := output.Table{
		Title:  "Runs",
		Header: []string{"id", "command", "status", "started", "duration", "args", "error"},
	}
	for _, run := range runs {
		duration := "-"
		if run.CompletedAt != nil {
			duration = run.Duration().Round(time.Millisecond).String()
		}
		t.Rows = append(t.Rows, []any{
			run.ID, run.Command, string(run.Status),
			run.StartedAt.Local().Format(time.DateTime), duration, run.Args, run.Error,
		})
	}
	return cc.Renderer.Render(t)
}
