package catalog

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/kgforge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	nodeHeader = "id\tcategory\tname"
	edgeHeader = "id\tsubject\tpredicate\tobject"
)

// writeTable writes a header and rows under root/source/name.
func writeTable(t *testing.T, root, source, name, header string, rows ...string) string {
	t.Helper()
	dir := filepath.Join(root, source)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	lines := append([]string{header}, rows...)
	content := strings.Join(lines, "\n") + "\n"
	if header == "" && len(rows) == 0 {
		content = ""
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func nodeRows(n int) []string {
	rows := make([]string, n)
	for i := range rows {
		rows[i] = "X:" + string(rune('a'+i)) + "\tbiolink:NamedThing\tthing"
	}
	return rows
}

func edgeRows(n int) []string {
	rows := make([]string, n)
	for i := range rows {
		rows[i] = "e" + string(rune('a'+i)) + "\tX:a\tbiolink:related_to\tX:b"
	}
	return rows
}

func TestClassifyAndSibling(t *testing.T) {
	tests := []struct {
		path    string
		kind    Kind
		sibling string
	}{
		{"data/transformed/foo/foo_nodes.tsv", KindNodes, "data/transformed/foo/foo_edges.tsv"},
		{"data/transformed/foo/foo_edges.tsv", KindEdges, "data/transformed/foo/foo_nodes.tsv"},
		{"a/go_plus_nodes.tsv", KindNodes, "a/go_plus_edges.tsv"},
		{"a/foo.tsv", KindUnknown, ""},
		{"a/foo_nodes.csv", KindUnknown, ""},
		{"a/nodes.tsv", KindUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.kind, Classify(tt.path))
			assert.Equal(t, tt.sibling, SiblingPath(tt.path))
		})
	}
}

func TestParseList(t *testing.T) {
	assert.Nil(t, ParseList(""))
	assert.Equal(t, []string{"reactome"}, ParseList("reactome"))
	assert.Equal(t, []string{"reactome", "ontology"}, ParseList("reactome, ontology,"))
}

func TestSelectSources(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"reactome", "ontology", "chebi"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.tsv"), []byte("id\n"), 0o600))

	tests := []struct {
		name string
		sel  Selection
		want []string
	}{
		{"all by default", Selection{}, []string{"chebi", "ontology", "reactome"}},
		{"merge all flag", Selection{All: true}, []string{"chebi", "ontology", "reactome"}},
		{"include only", Selection{IncludeOnly: []string{"reactome"}}, []string{"reactome"}},
		{"include wins over exclude", Selection{IncludeOnly: []string{"reactome", "chebi"}, Exclude: []string{"reactome"}}, []string{"chebi", "reactome"}},
		{"exclude", Selection{Exclude: []string{"chebi"}}, []string{"ontology", "reactome"}},
		{"include unknown", Selection{IncludeOnly: []string{"missing"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectSources(root, tt.sel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectSources_MissingRoot(t *testing.T) {
	_, err := SelectSources(filepath.Join(t.TempDir(), "nope"), Selection{})
	assert.Error(t, err)
}

func TestListTables(t *testing.T) {
	root := t.TempDir()
	writeTable(t, root, "foo", "foo_nodes.tsv", nodeHeader)
	writeTable(t, root, "foo", "foo_edges.tsv", edgeHeader)
	writeTable(t, root, "foo", "notes.txt", "hello")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "foo", "nested.tsv"), 0o755))

	files, err := ListTables(filepath.Join(root, "foo"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "foo", "foo_edges.tsv"),
		filepath.Join(root, "foo", "foo_nodes.tsv"),
	}, files)
}

func TestTSVProber(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantRows int
		wantErr  error
	}{
		{name: "header and rows", content: "id\tname\nA\ta\nB\tb\nC\tc\n", wantRows: 3},
		{name: "quoted field", content: "id\tname\nA\t\"a\tb \"\"c\"\"\"\nB\tb\n", wantRows: 2},
		{name: "header only", content: "id\tname\n", wantRows: 0},
		{name: "blank lines skipped", content: "id\tname\n\nA\ta\n\n", wantRows: 1},
		{name: "fewer fields than header", content: "id\tname\tdesc\nA\ta\n", wantRows: 1},
		{name: "byte order mark", content: "\ufeffid\tname\nA\ta\n", wantRows: 1},
		{name: "empty file", content: "", wantErr: ErrEmptyTable},
		{name: "no id column", content: "curie\tname\nA\ta\n", wantErr: ErrMissingIDColumn},
		{name: "comma separated", content: "id,name\nA,a\n", wantErr: ErrMissingIDColumn},
		{name: "too many fields", content: "id\tname\nA\ta\textra\n", wantErr: ErrMalformedTable},
		{name: "too many fields after two rows", content: "id\tname\nA\ta\nB\tb\nC\tc\textra\tmore\n", wantErr: ErrMalformedTable},
		{name: "unterminated quote", content: "id\tname\nA\ta\nB\tb\nC\t\"unterminated\n", wantErr: ErrMalformedTable},
		{name: "bare quote", content: "id\tname\nA\tsay \"hi\"\n", wantErr: ErrMalformedTable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "t_nodes.tsv")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			info, err := TSVProber{}.Probe(path)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRows, info.Rows)
			assert.True(t, info.HasColumn("id"))
		})
	}
}

func TestFilter_AcceptsWellFormedPair(t *testing.T) {
	root := t.TempDir()
	nodes := writeTable(t, root, "foo", "foo_nodes.tsv", nodeHeader, nodeRows(3)...)
	edges := writeTable(t, root, "foo", "foo_edges.tsv", edgeHeader, edgeRows(2)...)

	f := &Filter{Root: root, Logger: testutil.NewTestLogger(t)}
	res, err := f.Run(Selection{})
	require.NoError(t, err)

	assert.Equal(t, []string{"foo"}, res.Sources)
	assert.Equal(t, []string{nodes}, res.Nodes)
	assert.Equal(t, []string{edges}, res.Edges)
	assert.Empty(t, res.Rejected)
}

func TestFilter_RejectsPairs(t *testing.T) {
	tests := []struct {
		name      string
		nodes     []string // header followed by rows; nil means empty file
		edges     []string
		wantCause Kind
	}{
		{
			name:      "header-only nodes",
			nodes:     []string{nodeHeader},
			edges:     append([]string{edgeHeader}, edgeRows(3)...),
			wantCause: KindNodes,
		},
		{
			name:      "single node row",
			nodes:     append([]string{nodeHeader}, nodeRows(1)...),
			edges:     append([]string{edgeHeader}, edgeRows(3)...),
			wantCause: KindNodes,
		},
		{
			name:      "empty nodes file",
			nodes:     nil,
			edges:     append([]string{edgeHeader}, edgeRows(3)...),
			wantCause: KindNodes,
		},
		{
			name:      "nodes without id column",
			nodes:     append([]string{"curie\tcategory\tname"}, nodeRows(3)...),
			edges:     append([]string{edgeHeader}, edgeRows(3)...),
			wantCause: KindNodes,
		},
		{
			name:      "edges without id column",
			nodes:     append([]string{nodeHeader}, nodeRows(3)...),
			edges:     append([]string{"subject\tpredicate\tobject"}, "X:a\tp\tX:b", "X:b\tp\tX:a"),
			wantCause: KindEdges,
		},
		{
			name:      "single edge row",
			nodes:     append([]string{nodeHeader}, nodeRows(3)...),
			edges:     append([]string{edgeHeader}, edgeRows(1)...),
			wantCause: KindEdges,
		},
		{
			name:      "malformed edges",
			nodes:     append([]string{nodeHeader}, nodeRows(3)...),
			edges:     []string{edgeHeader, "e1\tX:a\tp\tX:b\tX:c\tX:d", "e2\tX:a\tp\tX:b"},
			wantCause: KindEdges,
		},
		{
			name:      "nodes malformed after two good rows",
			nodes:     append(append([]string{nodeHeader}, nodeRows(2)...), "X:c\tc\tthing\textra\tmore"),
			edges:     append([]string{edgeHeader}, edgeRows(3)...),
			wantCause: KindNodes,
		},
		{
			name:      "unterminated quote in nodes",
			nodes:     append(append([]string{nodeHeader}, nodeRows(2)...), "X:c\tc\t\"unterminated"),
			edges:     append([]string{edgeHeader}, edgeRows(3)...),
			wantCause: KindNodes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			nodes := writeLines(t, root, "bar", "bar_nodes.tsv", tt.nodes)
			edges := writeLines(t, root, "bar", "bar_edges.tsv", tt.edges)

			logger, rec := testutil.NewRecorder()
			f := &Filter{Root: root, Logger: logger}
			res, err := f.Run(Selection{})
			require.NoError(t, err)

			assert.Empty(t, res.Nodes)
			assert.Empty(t, res.Edges)
			require.Len(t, res.Rejected, 2)

			byPath := map[string]Rejection{}
			for _, r := range res.Rejected {
				byPath[r.Path] = r
			}
			cause, sibling := nodes, edges
			if tt.wantCause == KindEdges {
				cause, sibling = edges, nodes
			}
			assert.False(t, byPath[cause].Cascaded)
			assert.Equal(t, sibling, byPath[cause].Sibling)
			assert.True(t, byPath[sibling].Cascaded)

			assert.Len(t, rec.Matching(slog.LevelWarn, "ignoring table"), 2)
		})
	}
}

func writeLines(t *testing.T, root, source, name string, lines []string) string {
	t.Helper()
	if len(lines) == 0 {
		return writeTable(t, root, source, name, "")
	}
	return writeTable(t, root, source, name, lines[0], lines[1:]...)
}

func TestFilter_MixedSources(t *testing.T) {
	root := t.TempDir()
	fooNodes := writeTable(t, root, "foo", "foo_nodes.tsv", nodeHeader, nodeRows(3)...)
	fooEdges := writeTable(t, root, "foo", "foo_edges.tsv", edgeHeader, edgeRows(2)...)
	writeTable(t, root, "bar", "bar_nodes.tsv", nodeHeader)
	writeTable(t, root, "bar", "bar_edges.tsv", edgeHeader, edgeRows(4)...)
	writeTable(t, root, "foo", "foo_metadata.tsv", "source\tversion")
	writeTable(t, root, "foo", "README.md", "# foo")

	f := &Filter{Root: root}
	res, err := f.Run(Selection{})
	require.NoError(t, err)

	assert.Equal(t, []string{"bar", "foo"}, res.Sources)
	assert.Equal(t, []string{fooNodes}, res.Nodes)
	assert.Equal(t, []string{fooEdges}, res.Edges)
	assert.Len(t, res.Rejected, 2)
	for _, r := range res.Rejected {
		assert.Contains(t, r.Path, "bar_")
	}
}

func TestFilter_Selection(t *testing.T) {
	root := t.TempDir()
	for _, src := range []string{"alpha", "beta", "gamma"} {
		writeTable(t, root, src, src+"_nodes.tsv", nodeHeader, nodeRows(2)...)
		writeTable(t, root, src, src+"_edges.tsv", edgeHeader, edgeRows(2)...)
	}

	tests := []struct {
		name string
		sel  Selection
		want []string
	}{
		{"include only", Selection{IncludeOnly: []string{"beta"}, Exclude: []string{"beta"}}, []string{"beta"}},
		{"exclude", Selection{Exclude: []string{"beta"}}, []string{"alpha", "gamma"}},
		{"all", Selection{All: true}, []string{"alpha", "beta", "gamma"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &Filter{Root: root}
			res, err := f.Run(tt.sel)
			require.NoError(t, err)

			assert.Equal(t, tt.want, res.Sources)
			require.Len(t, res.Nodes, len(tt.want))
			for i, src := range tt.want {
				assert.Equal(t, filepath.Join(root, src, src+"_nodes.tsv"), res.Nodes[i])
				assert.Equal(t, filepath.Join(root, src, src+"_edges.tsv"), res.Edges[i])
			}
		})
	}
}

func TestFilter_MinRows(t *testing.T) {
	root := t.TempDir()
	nodes := writeTable(t, root, "foo", "foo_nodes.tsv", nodeHeader, nodeRows(1)...)
	edges := writeTable(t, root, "foo", "foo_edges.tsv", edgeHeader, edgeRows(1)...)

	f := &Filter{Root: root, MinRows: 1}
	res, err := f.Run(Selection{})
	require.NoError(t, err)
	assert.Equal(t, []string{nodes}, res.Nodes)
	assert.Equal(t, []string{edges}, res.Edges)
}

type stubProber map[string]TableInfo

func (s stubProber) Probe(path string) (TableInfo, error) {
	info, ok := s[filepath.Base(path)]
	if !ok {
		return TableInfo{}, ErrMalformedTable
	}
	return info, nil
}

func TestFilter_CustomProber(t *testing.T) {
	root := t.TempDir()
	writeTable(t, root, "foo", "foo_nodes.tsv", nodeHeader)
	writeTable(t, root, "foo", "foo_edges.tsv", edgeHeader)

	f := &Filter{Root: root, Prober: stubProber{
		"foo_nodes.tsv": {Columns: []string{"id"}, Rows: 10},
	}}
	res, err := f.Run(Selection{})
	require.NoError(t, err)
	assert.Empty(t, res.Nodes)
	assert.Empty(t, res.Edges)
	assert.Len(t, res.Rejected, 2)
}
