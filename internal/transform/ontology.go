package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/kgforge/internal/transform/kgx"
)

// OntologyName is the registry name of the ontology transform.
const OntologyName = "ontology"

// Ontologies maps each ontology to its OBO Graph JSON file under the raw data
// directory. Output tables are named after the file stem.
var Ontologies = map[string]string{
	"GoTransform": "go.json",
}

const (
	oboPURL          = "http://purl.obolibrary.org/obo/"
	subClassRelation = "rdfs:subClassOf"
)

func init() {
	Register(OntologyName, func(logger *slog.Logger) Transform {
		return &OntologyTransform{logger: logger}
	})
}

// OntologyTransform converts OBO Graph JSON ontologies into class nodes and
// subclass edges.
type OntologyTransform struct {
	logger *slog.Logger
}

// oboDocument is the subset of the OBO Graph JSON format the transform reads.
type oboDocument struct {
	Graphs []oboGraph `json:"graphs"`
}

type oboGraph struct {
	ID    string    `json:"id"`
	Nodes []oboNode `json:"nodes"`
	Edges []oboEdge `json:"edges"`
}

type oboNode struct {
	ID    string   `json:"id"`
	Label string   `json:"lbl"`
	Type  string   `json:"type"`
	Meta  *oboMeta `json:"meta"`
}

type oboMeta struct {
	Definition *oboValue  `json:"definition"`
	Xrefs      []oboValue `json:"xrefs"`
	Synonyms   []oboValue `json:"synonyms"`
	Deprecated bool       `json:"deprecated"`
}

type oboValue struct {
	Val string `json:"val"`
}

type oboEdge struct {
	Sub  string `json:"sub"`
	Pred string `json:"pred"`
	Obj  string `json:"obj"`
}

// Name implements Transform.
func (t *OntologyTransform) Name() string { return OntologyName }

// Inputs implements InputLister.
func (t *OntologyTransform) Inputs() []string {
	out := make([]string, 0, len(Ontologies))
	for _, key := range sortedKeys(Ontologies) {
		out = append(out, Ontologies[key])
	}
	return out
}

// Run implements Transform.
func (t *OntologyTransform) Run(ctx context.Context, inputDir, outputDir string) error {
	found := 0
	for _, key := range sortedKeys(Ontologies) {
		if err := ctx.Err(); err != nil {
			return err
		}
		file := Ontologies[key]
		path := filepath.Join(inputDir, file)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			t.logger.Warn("ontology file not found, skipping", slog.String("ontology", key), slog.String("path", path))
			continue
		}
		found++
		name := strings.TrimSuffix(file, filepath.Ext(file))
		if err := t.transformFile(path, filepath.Join(outputDir, OntologyName), name); err != nil {
			return fmt.Errorf("ontology %s: %w", key, err)
		}
	}
	if found == 0 {
		return fmt.Errorf("no ontology files found in %s", inputDir)
	}
	return nil
}

func (t *OntologyTransform) transformFile(path, outputDir, name string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is under the raw data directory
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc oboDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(doc.Graphs) == 0 {
		return fmt.Errorf("%s contains no graphs", path)
	}

	w, err := kgx.NewTableWriter(outputDir, name)
	if err != nil {
		return err
	}
	provided := "infores:" + name

	for _, g := range doc.Graphs {
		for _, n := range g.Nodes {
			if n.Type != "" && n.Type != "CLASS" {
				continue
			}
			if n.Meta != nil && n.Meta.Deprecated {
				continue
			}
			id := CompactIRI(n.ID)
			node := kgx.Node{
				ID:         id,
				Category:   kgx.GuessCategory(id),
				Name:       n.Label,
				ProvidedBy: []string{provided},
			}
			if n.Meta != nil {
				if n.Meta.Definition != nil {
					node.Description = n.Meta.Definition.Val
				}
				node.Xref = values(n.Meta.Xrefs)
				node.Synonym = values(n.Meta.Synonyms)
			}
			if err := w.WriteNode(node); err != nil {
				_ = w.Close()
				return err
			}
		}
		for _, e := range g.Edges {
			if e.Pred != "is_a" {
				continue
			}
			if err := w.WriteEdge(kgx.Edge{
				Subject:    CompactIRI(e.Sub),
				Predicate:  kgx.PredicateSubclassOf,
				Object:     CompactIRI(e.Obj),
				Relation:   subClassRelation,
				ProvidedBy: []string{provided},
			}); err != nil {
				_ = w.Close()
				return err
			}
		}
	}

	if err := w.Close(); err != nil {
		return err
	}
	t.logger.Info("ontology transformed",
		slog.String("ontology", name),
		slog.Int("nodes", w.NodeCount()),
		slog.Int("edges", w.EdgeCount()))
	return nil
}

// CompactIRI turns an OBO PURL such as
// http://purl.obolibrary.org/obo/GO_0008150 into GO:0008150. Other
// identifiers are returned unchanged.
func CompactIRI(iri string) string {
	local, ok := strings.CutPrefix(iri, oboPURL)
	if !ok {
		return iri
	}
	if prefix, id, ok := strings.Cut(local, "_"); ok {
		return prefix + ":" + id
	}
	return local
}

func values(vs []oboValue) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Val)
	}
	return out
}
