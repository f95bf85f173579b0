package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"download", "transform", "merge", "catmerge", "sources", "runs", "version", "completion"} {
		assert.Contains(t, names, want)
	}
	for _, flag := range []string{"config", "verbose", "log-format", "format", "data-dir", "state"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "persistent flag %q", flag)
	}
}

func TestRootCmd_LoadsConfigIntoContext(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	out, _, err := execRoot(t, "--format", "json", "sources")
	require.NoError(t, err)

	var doc struct {
		Rows []map[string]string `json:"rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Rows, 2)
	assert.Equal(t, "ontology", doc.Rows[0]["source"])
}

func TestRootCmd_ConfigFileAndLedger(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kgforge.yaml"), []byte("output: markdown\nlog_format: json\n"), 0o600))
	t.Chdir(dir)

	_, errOut, err := execRoot(t, "-v", "--state", "ledger.db", "runs")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "ledger.db"))
	assert.Contains(t, errOut, `"msg":"using config file"`)
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	_, _, err := execRoot(t, "--log-format", "xml", "sources")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_format must be one of")
}

func TestRootCmd_Completion(t *testing.T) {
	out, _, err := execRoot(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "kgforge")

	_, _, err = execRoot(t, "completion", "tcsh")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		format    string
		verbose   bool
		wantJSON  bool
		wantDebug bool
	}{
		{"auto off terminal is json", "auto", false, true, false},
		{"empty off terminal is json", "", false, true, false},
		{"text", "text", false, false, false},
		{"json verbose", "json", true, true, true},
		{"text verbose", "text", true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, tt.format, tt.verbose)
			logger.Debug("debug line")
			logger.Info("info line", "k", "v")

			s := buf.String()
			assert.Equal(t, tt.wantDebug, strings.Contains(s, "debug line"))
			assert.Contains(t, s, "info line")
			if tt.wantJSON {
				assert.Contains(t, s, `"k":"v"`)
			} else {
				assert.Contains(t, s, "k=v")
			}
		})
	}
}
