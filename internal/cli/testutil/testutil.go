// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/kgforge/internal/cli/config"
	"github.com/leapstack-labs/kgforge/internal/cli/output"
	"github.com/leapstack-labs/kgforge/internal/testutil"
)

// SetupTestProject creates a temporary project whose config points every
// directory and the state database inside it. Output is markdown so tests
// can assert on plain text.
func SetupTestProject(t *testing.T) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Defaults()
	cfg.ProjectRoot = root
	cfg.DataDir = filepath.Join(root, "data")
	cfg.RawDir = filepath.Join(cfg.DataDir, "raw")
	cfg.TransformedDir = filepath.Join(cfg.DataDir, "transformed")
	cfg.MergedDir = filepath.Join(cfg.DataDir, "merged")
	cfg.StatePath = filepath.Join(root, ".kgforge", "state.db")
	cfg.OutputFormat = string(output.ModeMarkdown)

	for _, dir := range []string{cfg.RawDir, cfg.TransformedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("failed to create directory %s: %v", dir, err)
		}
	}
	return cfg
}

// WriteFile writes content to dir/name, creating dir, and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create directory %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// Result is the captured output of a command run.
type Result struct {
	Out    string
	ErrOut string
	Err    error
}

// Execute runs cmd with args under a context carrying cfg and a test logger,
// the way the root command's pre-run would set it up.
func Execute(t *testing.T, cmd *cobra.Command, cfg *config.Config, args ...string) Result {
	t.Helper()

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)

	ctx := config.WithLogger(context.Background(), testutil.NewTestLogger(t))
	ctx = config.WithConfig(ctx, cfg)
	err := cmd.ExecuteContext(ctx)

	return Result{Out: out.String(), ErrOut: errOut.String(), Err: err}
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// markdownSeparator matches the alignment row under a markdown table header.
var markdownSeparator = regexp.MustCompile(`^\|(\s*:?-{3,}:?\s*\|)+$`)

// MarkdownRows returns the header and body rows of every markdown table in
// md, each row split into trimmed cells.
func MarkdownRows(md string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "|") || markdownSeparator.MatchString(line) {
			continue
		}
		cells := strings.Split(strings.Trim(line, "|"), "|")
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		rows = append(rows, cells)
	}
	return rows
}
