package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/kgforge/internal/cli/config"
	clitest "github.com/leapstack-labs/kgforge/internal/cli/testutil"
	"github.com/leapstack-labs/kgforge/internal/merge/catmerge"
	"github.com/leapstack-labs/kgforge/internal/state"
	"github.com/leapstack-labs/kgforge/internal/testutil"
	"github.com/leapstack-labs/kgforge/internal/transform"
)

func openLedger(t *testing.T, cfg *config.Config) *state.SQLiteStore {
	t.Helper()
	store := state.NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(cfg.StatePath))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func latestRun(t *testing.T, cfg *config.Config) (*state.Run, []state.FileRecord) {
	t.Helper()
	store := openLedger(t, cfg)
	runs, err := store.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	files, err := store.ListFiles(context.Background(), runs[0].ID)
	require.NoError(t, err)
	return runs[0], files
}

func outcomes(files []state.FileRecord) map[string]string {
	m := make(map[string]string, len(files))
	for _, f := range files {
		m[filepath.Base(f.Path)] = f.Outcome
	}
	return m
}

func TestCommandMetadata(t *testing.T) {
	download := NewDownloadCommand()
	assert.Equal(t, "download", download.Use)
	for _, f := range []string{"yaml", "output", "snippet-only", "ignore-cache"} {
		assert.NotNil(t, download.Flags().Lookup(f), "download flag %q", f)
	}
	assert.Equal(t, "y", download.Flags().Lookup("yaml").Shorthand)
	assert.Equal(t, "download.yaml", download.Flags().Lookup("yaml").DefValue)

	tr := NewTransformCommand()
	assert.Equal(t, "transform", tr.Use)
	for _, f := range []string{"input", "output", "source"} {
		assert.NotNil(t, tr.Flags().Lookup(f), "transform flag %q", f)
	}

	m := NewMergeCommand()
	assert.Equal(t, "merge", m.Use)
	assert.Equal(t, "1", m.Flags().Lookup("processes").DefValue)
	assert.Equal(t, "merge.yaml", m.Flags().Lookup("yaml").DefValue)

	cm := NewCatmergeCommand()
	assert.Equal(t, "catmerge", cm.Use)
	for _, f := range []string{"merge_all", "include_only", "exclude"} {
		assert.NotNil(t, cm.Flags().Lookup(f), "catmerge flag %q", f)
	}

	for _, cmd := range []interface{ Name() string }{NewSourcesCommand(), NewRunsCommand()} {
		assert.NotEmpty(t, cmd.Name())
	}
}

func TestDownloadCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprintf(w, "payload for %s", r.URL.Path)
	}))
	t.Cleanup(srv.Close)

	cfg := clitest.SetupTestProject(t)
	clitest.WriteFile(t, cfg.ProjectRoot, "download.yaml",
		"- url: "+srv.URL+"/ChEBI2Reactome.txt\n"+
			"- url: "+srv.URL+"/ontology/go-basic.json\n  local_name: go.json\n")

	res := clitest.Execute(t, NewDownloadCommand(), cfg)
	require.NoError(t, res.Err)
	data, err := os.ReadFile(filepath.Join(cfg.RawDir, "go.json"))
	require.NoError(t, err)
	assert.Equal(t, "payload for /ontology/go-basic.json", string(data))
	assert.Contains(t, res.Out, "| ChEBI2Reactome.txt | downloaded |")
	clitest.AssertNoANSI(t, res.Out)

	res = clitest.Execute(t, NewDownloadCommand(), cfg)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Out, "| go.json | cached |")

	run, files := latestRun(t, cfg)
	assert.Equal(t, "download", run.Command)
	assert.Equal(t, state.RunStatusCompleted, run.Status)
	assert.Equal(t, map[string]string{"ChEBI2Reactome.txt": "cached", "go.json": "cached"}, outcomes(files))
}

func TestDownloadCommand_PartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprint(w, "ok")
	}))
	t.Cleanup(srv.Close)

	cfg := clitest.SetupTestProject(t)
	list := clitest.WriteFile(t, t.TempDir(), "sources.yaml",
		"- url: "+srv.URL+"/missing.txt\n- url: "+srv.URL+"/present.txt\n")
	out := filepath.Join(t.TempDir(), "raw")

	res := clitest.Execute(t, NewDownloadCommand(), cfg, "-y", list, "-o", out)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "download incomplete")
	assert.FileExists(t, filepath.Join(out, "present.txt"))
	assert.NoFileExists(t, filepath.Join(out, "missing.txt"))
	assert.Contains(t, res.Out, "| missing.txt | failed |")

	run, files := latestRun(t, cfg)
	assert.Equal(t, state.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "404")
	assert.Equal(t, map[string]string{"missing.txt": "failed", "present.txt": "downloaded"}, outcomes(files))
}

func TestDownloadCommand_MissingYAML(t *testing.T) {
	cfg := clitest.SetupTestProject(t)
	res := clitest.Execute(t, NewDownloadCommand(), cfg)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "download file does not exist")
}

func writeReactome(t *testing.T, dir string) {
	t.Helper()
	clitest.WriteFile(t, dir, "ChEBI2Reactome.txt",
		"10033\tR-BTA-6806664\thttps://reactome.org/PathwayBrowser/#/R-BTA-6806664\tMetabolism of vitamin K\tIEA\tBos taurus\n")
}

func TestTransformCommand(t *testing.T) {
	cfg := clitest.SetupTestProject(t)
	writeReactome(t, cfg.RawDir)

	res := clitest.Execute(t, NewTransformCommand(), cfg, "-s", transform.ReactomeName, "-s", transform.ReactomeName)
	require.NoError(t, res.Err)
	assert.FileExists(t, filepath.Join(cfg.TransformedDir, "reactome", "reactome_nodes.tsv"))
	assert.FileExists(t, filepath.Join(cfg.TransformedDir, "reactome", "reactome_edges.tsv"))

	rows := clitest.MarkdownRows(res.Out)
	require.Len(t, rows, 2, "header plus one row per distinct source")
	assert.Equal(t, []string{"reactome", "done", "reactome/reactome_edges.tsv, reactome/reactome_nodes.tsv"}, rows[1])

	run, files := latestRun(t, cfg)
	assert.Equal(t, state.RunStatusCompleted, run.Status)
	assert.Contains(t, run.Args, "--source=")
	assert.Equal(t, map[string]string{"reactome_nodes.tsv": "written", "reactome_edges.tsv": "written"}, outcomes(files))
}

func TestTransformCommand_Errors(t *testing.T) {
	cfg := clitest.SetupTestProject(t)

	res := clitest.Execute(t, NewTransformCommand(), cfg, "-s", "bogus")
	var unknown *transform.UnknownSourceError
	require.True(t, errors.As(res.Err, &unknown))
	assert.Equal(t, "bogus", unknown.Name)

	res = clitest.Execute(t, NewTransformCommand(), cfg, "-i", filepath.Join(cfg.ProjectRoot, "nope"))
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "input directory does not exist")
}

func TestTransformCommand_SourceFailureStopsRun(t *testing.T) {
	cfg := clitest.SetupTestProject(t)
	writeReactome(t, cfg.RawDir)

	// No ontology files are present, so the first source in name order fails.
	res := clitest.Execute(t, NewTransformCommand(), cfg)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "transform ontology")

	rows := clitest.MarkdownRows(res.Out)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ontology", "failed", "-"}, rows[1])
	assert.Equal(t, []string{"reactome", "skipped", "-"}, rows[2])

	run, _ := latestRun(t, cfg)
	assert.Equal(t, state.RunStatusFailed, run.Status)
}

func writeTransformed(t *testing.T, cfg *config.Config) {
	t.Helper()
	foo := filepath.Join(cfg.TransformedDir, "foo")
	clitest.WriteFile(t, foo, "foo_nodes.tsv", "id\tcategory\tname\nX:1\tbiolink:Gene\tone\nX:2\tbiolink:Gene\ttwo\nX:3\tbiolink:Gene\tthree\n")
	clitest.WriteFile(t, foo, "foo_edges.tsv", "id\tsubject\tpredicate\tobject\ne1\tX:1\tbiolink:interacts_with\tX:2\ne2\tX:2\tbiolink:interacts_with\tX:3\n")

	bar := filepath.Join(cfg.TransformedDir, "bar")
	clitest.WriteFile(t, bar, "bar_nodes.tsv", "id\tname\nY:1\twhy\n")
	clitest.WriteFile(t, bar, "bar_edges.tsv", "id\tsubject\tpredicate\tobject\ne3\tY:1\tbiolink:related_to\tX:1\ne4\tY:1\tbiolink:related_to\tX:2\n")
}

func TestMergeCommand(t *testing.T) {
	cfg := clitest.SetupTestProject(t)
	writeTransformed(t, cfg)
	clitest.WriteFile(t, cfg.ProjectRoot, "merge.yaml", `
configuration:
  output_directory: `+cfg.MergedDir+`
merged_graph:
  name: test-kg
  source:
    foo:
      input:
        filename:
          - `+filepath.Join(cfg.TransformedDir, "foo", "foo_nodes.tsv")+`
          - `+filepath.Join(cfg.TransformedDir, "foo", "foo_edges.tsv")+`
    bar:
      input:
        filename:
          - `+filepath.Join(cfg.TransformedDir, "bar", "bar_nodes.tsv")+`
          - `+filepath.Join(cfg.TransformedDir, "bar", "bar_edges.tsv")+`
`)

	res := clitest.Execute(t, NewMergeCommand(), cfg, "-p", "2")
	require.NoError(t, res.Err)
	assert.FileExists(t, filepath.Join(cfg.MergedDir, "test-kg_nodes.tsv"))

	rows := clitest.MarkdownRows(res.Out)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"test-kg", "bar, foo", "4", "4"}, rows[1][:4])

	run, files := latestRun(t, cfg)
	assert.Equal(t, "merge", run.Command)
	assert.Equal(t, state.RunStatusCompleted, run.Status)
	assert.Equal(t, map[string]string{"test-kg_nodes.tsv": "written", "test-kg_edges.tsv": "written"}, outcomes(files))
}

func TestMergeCommand_Errors(t *testing.T) {
	cfg := clitest.SetupTestProject(t)

	tests := []struct {
		name   string
		args   []string
		errSub string
	}{
		{"zero processes", []string{"-p", "0"}, "--processes must be at least 1"},
		{"negative processes", []string{"-p", "-3"}, "--processes must be at least 1"},
		{"missing yaml", nil, "merge file does not exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := clitest.Execute(t, NewMergeCommand(), cfg, tt.args...)
			require.Error(t, res.Err)
			assert.Contains(t, res.Err.Error(), tt.errSub)
		})
	}
}

func TestMergeCommand_LedgerUnavailable(t *testing.T) {
	cfg := clitest.SetupTestProject(t)
	writeTransformed(t, cfg)
	blocker := clitest.WriteFile(t, cfg.ProjectRoot, "blocker", "not a directory")
	cfg.StatePath = filepath.Join(blocker, "state.db")
	clitest.WriteFile(t, cfg.ProjectRoot, "merge.yaml", `
configuration:
  output_directory: `+cfg.MergedDir+`
merged_graph:
  source:
    foo:
      input:
        filename: `+filepath.Join(cfg.TransformedDir, "foo", "foo_nodes.tsv")+`
`)

	res := clitest.Execute(t, NewMergeCommand(), cfg)
	require.NoError(t, res.Err, "ledger failures are never fatal")
	assert.FileExists(t, filepath.Join(cfg.MergedDir, "merged-kg_nodes.tsv"))
}

func TestCatmergeCommand(t *testing.T) {
	cfg := clitest.SetupTestProject(t)
	writeTransformed(t, cfg)

	res := clitest.Execute(t, NewCatmergeCommand(), cfg, "--merge_all")
	require.NoError(t, res.Err)

	nodes := filepath.Join(cfg.MergedDir, "merged-kg_nodes.tsv")
	assert.FileExists(t, nodes)
	assert.FileExists(t, filepath.Join(cfg.MergedDir, catmerge.ReportFile))
	assert.FileExists(t, filepath.Join(cfg.MergedDir, "merged-kg.tar.gz"))
	data, err := os.ReadFile(nodes)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Y:1", "bar was rejected with its sibling")

	assert.Contains(t, res.Out, "| bar/bar_nodes.tsv | nodes | rejected | contains 1 nodes rows, need at least 2 |")
	assert.Contains(t, res.Out, "| bar/bar_edges.tsv | edges | rejected | sibling bar_nodes.tsv was rejected |")
	assert.Contains(t, res.Out, "| foo/foo_edges.tsv | edges | accepted |")
	assert.Contains(t, res.ErrOut, "Warning: 2 tables were left out of the merge")

	run, files := latestRun(t, cfg)
	assert.Equal(t, "catmerge", run.Command)
	assert.Equal(t, state.RunStatusCompleted, run.Status)
	got := outcomes(files)
	assert.Equal(t, state.OutcomeRejected, got["bar_nodes.tsv"])
	assert.Equal(t, state.OutcomeRejected, got["bar_edges.tsv"])
	assert.Equal(t, state.OutcomeAccepted, got["foo_nodes.tsv"])
	assert.Equal(t, state.OutcomeWritten, got["merged-kg_edges.tsv"])
	assert.Equal(t, state.OutcomeWritten, got["merged-kg.tar.gz"])
}

func TestCatmergeCommand_MalformedTablesSkipped(t *testing.T) {
	cfg := clitest.SetupTestProject(t)
	writeTransformed(t, cfg)

	quoted := filepath.Join(cfg.TransformedDir, "quoted")
	clitest.WriteFile(t, quoted, "quoted_nodes.tsv", "id\tcategory\tname\nQ:1\tbiolink:Gene\tone\nQ:2\tbiolink:Gene\ttwo\nQ:3\tbiolink:Gene\t\"unterminated\n")
	clitest.WriteFile(t, quoted, "quoted_edges.tsv", "id\tsubject\tpredicate\tobject\nq1\tQ:1\tbiolink:related_to\tQ:2\nq2\tQ:2\tbiolink:related_to\tQ:1\n")

	wide := filepath.Join(cfg.TransformedDir, "wide")
	clitest.WriteFile(t, wide, "wide_nodes.tsv", "id\tcategory\tname\nW:1\tbiolink:Gene\tone\nW:2\tbiolink:Gene\ttwo\n")
	clitest.WriteFile(t, wide, "wide_edges.tsv", "id\tsubject\tpredicate\tobject\nw1\tW:1\tbiolink:related_to\tW:2\nw2\tW:2\tbiolink:related_to\tW:1\nw3\tW:1\tbiolink:related_to\tW:2\textra\tmore\n")

	res := clitest.Execute(t, NewCatmergeCommand(), cfg)
	require.NoError(t, res.Err)

	data, err := os.ReadFile(filepath.Join(cfg.MergedDir, "merged-kg_nodes.tsv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "X:1")
	assert.NotContains(t, string(data), "Q:1")
	assert.NotContains(t, string(data), "W:1")

	assert.Contains(t, res.Out, "| quoted/quoted_edges.tsv | edges | rejected | sibling quoted_nodes.tsv was rejected |")
	assert.Contains(t, res.Out, "| wide/wide_nodes.tsv | nodes | rejected | sibling wide_edges.tsv was rejected |")
	assert.Contains(t, res.ErrOut, "Warning: 6 tables were left out of the merge")

	run, files := latestRun(t, cfg)
	assert.Equal(t, state.RunStatusCompleted, run.Status)
	got := outcomes(files)
	for _, name := range []string{"quoted_nodes.tsv", "quoted_edges.tsv", "wide_nodes.tsv", "wide_edges.tsv"} {
		assert.Equal(t, state.OutcomeRejected, got[name], name)
	}
	assert.Equal(t, state.OutcomeAccepted, got["foo_nodes.tsv"])
	assert.Equal(t, state.OutcomeAccepted, got["foo_edges.tsv"])
}

func TestCatmergeCommand_Selection(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantErr     error
		notInOutput string
	}{
		{"exclude", []string{"--exclude", "bar"}, nil, "bar/"},
		{"include only wins", []string{"--include_only", "foo", "--exclude", "foo"}, nil, "bar/"},
		{"only rejected source", []string{"--include_only", "bar"}, catmerge.ErrNothingToMerge, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := clitest.SetupTestProject(t)
			writeTransformed(t, cfg)

			res := clitest.Execute(t, NewCatmergeCommand(), cfg, tt.args...)
			if tt.wantErr != nil {
				require.ErrorIs(t, res.Err, tt.wantErr)
				run, _ := latestRun(t, cfg)
				assert.Equal(t, state.RunStatusFailed, run.Status)
				return
			}
			require.NoError(t, res.Err)
			assert.NotContains(t, res.Out, tt.notInOutput)
			assert.Contains(t, res.Out, "foo/foo_nodes.tsv")
		})
	}
}

func TestCatmergeCommand_MissingTransformedDir(t *testing.T) {
	cfg := clitest.SetupTestProject(t)
	cfg.TransformedDir = filepath.Join(cfg.ProjectRoot, "absent")
	res := clitest.Execute(t, NewCatmergeCommand(), cfg)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "transformed directory does not exist")
}

func TestSourcesCommand(t *testing.T) {
	cfg := clitest.SetupTestProject(t)
	res := clitest.Execute(t, NewSourcesCommand(), cfg)
	require.NoError(t, res.Err)

	rows := clitest.MarkdownRows(res.Out)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ontology", "go.json"}, rows[1])
	assert.Equal(t, []string{"reactome", "ChEBI2Reactome.txt, UniProt2Reactome.txt"}, rows[2])
}

func TestRunsCommand(t *testing.T) {
	cfg := clitest.SetupTestProject(t)
	ctx := context.Background()

	store := openLedger(t, cfg)
	first, err := store.CreateRun(ctx, "download", "")
	require.NoError(t, err)
	require.NoError(t, store.CompleteRun(ctx, first.ID, state.RunStatusFailed, "boom"))
	second, err := store.CreateRun(ctx, "catmerge", "--exclude=bar")
	require.NoError(t, err)
	require.NoError(t, store.RecordFiles(ctx, second.ID, []state.FileRecord{
		{Path: "foo/foo_nodes.tsv", Kind: "nodes", Outcome: state.OutcomeAccepted},
	}))
	require.NoError(t, store.CompleteRun(ctx, second.ID, state.RunStatusCompleted, ""))
	require.NoError(t, store.Close())

	res := clitest.Execute(t, NewRunsCommand(), cfg)
	require.NoError(t, res.Err)
	rows := clitest.MarkdownRows(res.Out)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{second.ID, "catmerge", "completed"}, rows[1][:3])
	assert.Equal(t, []string{first.ID, "download", "failed"}, rows[2][:3])
	assert.Equal(t, "boom", rows[2][6])

	res = clitest.Execute(t, NewRunsCommand(), cfg, "-n", "1")
	require.NoError(t, res.Err)
	assert.Len(t, clitest.MarkdownRows(res.Out), 2)

	res = clitest.Execute(t, NewRunsCommand(), cfg, second.ID)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Out, "| foo/foo_nodes.tsv | nodes | accepted |")
	assert.NotContains(t, res.Out, "Error:")

	res = clitest.Execute(t, NewRunsCommand(), cfg, first.ID)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Out, "Error: boom")

	res = clitest.Execute(t, NewRunsCommand(), cfg, "no-such-run")
	require.ErrorIs(t, res.Err, state.ErrRunNotFound)
}
