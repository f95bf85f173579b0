package commands

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/kgforge/internal/catalog"
	"github.com/leapstack-labs/kgforge/internal/cli/config"
	"github.com/leapstack-labs/kgforge/internal/cli/output"
	"github.com/leapstack-labs/kgforge/internal/state"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext builds a CommandContext from the command's context.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := config.FromContext(cmd.Context())
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}
}

// Ledger records one command invocation in the state store. A ledger that
// failed to open is inert: every method logs and returns.
type Ledger struct {
	store  *state.SQLiteStore
	run    *state.Run
	logger *slog.Logger
}

// StartRun opens the state store and records a running run for command.
func (c *CommandContext) StartRun(ctx context.Context, command string, flags *pflag.FlagSet) *Ledger {
	l := &Ledger{logger: c.Logger}

	store := state.NewSQLiteStore(c.Logger)
	if err := store.Open(c.Cfg.StatePath); err != nil {
		c.Logger.Warn("run ledger unavailable", slog.String("path", c.Cfg.StatePath), slog.String("error", err.Error()))
		return l
	}
	run, err := store.CreateRun(ctx, command, flagArgs(flags))
	if err != nil {
		c.Logger.Warn("failed to record run", slog.String("error", err.Error()))
		_ = store.Close()
		return l
	}

	l.store, l.run = store, run
	c.Logger.Debug("run started", slog.String("run_id", run.ID), slog.String("command", command))
	return l
}

// Record stores per-file outcomes for the run.
func (l *Ledger) Record(ctx context.Context, files []state.FileRecord) {
	if l.store == nil || len(files) == 0 {
		return
	}
	if err := l.store.RecordFiles(context.WithoutCancel(ctx), l.run.ID, files); err != nil {
		l.logger.Warn("failed to record run files", slog.String("run_id", l.run.ID), slog.String("error", err.Error()))
	}
}

// Finish marks the run completed or failed and closes the store.
func (l *Ledger) Finish(ctx context.Context, runErr error) {
	if l.store == nil {
		return
	}
	defer func() { _ = l.store.Close() }()

	status, msg := state.RunStatusCompleted, ""
	if runErr != nil {
		status, msg = state.RunStatusFailed, runErr.Error()
	}
	if err := l.store.CompleteRun(context.WithoutCancel(ctx), l.run.ID, status, msg); err != nil {
		l.logger.Warn("failed to complete run", slog.String("run_id", l.run.ID), slog.String("error", err.Error()))
	}
}

// flagArgs renders the flags set on the command line as "--name=value".
func flagArgs(flags *pflag.FlagSet) string {
	if flags == nil {
		return ""
	}
	var parts []string
	flags.Visit(func(f *pflag.Flag) {
		parts = append(parts, "--"+f.Name+"="+f.Value.String())
	})
	return strings.Join(parts, " ")
}

// resolvePath returns value as given when the user set it on the command
// line and otherwise resolves it against base.
func resolvePath(cmd *cobra.Command, flag, value, base string) string {
	if value == "" || filepath.IsAbs(value) || cmd.Flags().Changed(flag) {
		return value
	}
	return filepath.Join(base, value)
}

// fileKind names the kind of a file for the ledger.
func fileKind(path string) string {
	if kind := catalog.Classify(path); kind != catalog.KindUnknown {
		return string(kind)
	}
	if strings.HasSuffix(path, ".tar.gz") {
		return "archive"
	}
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

// relTo shortens path for display when it lies under base.
func relTo(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
