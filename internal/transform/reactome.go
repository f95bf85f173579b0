package transform

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/kgforge/internal/transform/kgx"
)

// ReactomeName is the registry name of the Reactome transform.
const ReactomeName = "reactome"

// ReactomeSources maps each Reactome mapping table to its file under the raw
// data directory.
var ReactomeSources = map[string]string{
	"ChEBI2Reactome":   "ChEBI2Reactome.txt",
	"UniProt2Reactome": "UniProt2Reactome.txt",
}

// reactomePrefixes gives the CURIE prefix of the participant column of each
// mapping table.
var reactomePrefixes = map[string]string{
	"ChEBI2Reactome":   "CHEBI",
	"UniProt2Reactome": "UniProtKB",
}

const (
	reactomeRelation   = "RO:0000056"
	reactomeProvidedBy = "infores:reactome"
	reactomeMinFields  = 4
)

func init() {
	Register(ReactomeName, func(logger *slog.Logger) Transform {
		return &ReactomeTransform{logger: logger}
	})
}

// ReactomeTransform links chemicals and proteins to the Reactome pathways they
// participate in.
type ReactomeTransform struct {
	logger *slog.Logger
}

// Name implements Transform.
func (t *ReactomeTransform) Name() string { return ReactomeName }

// Inputs implements InputLister.
func (t *ReactomeTransform) Inputs() []string {
	out := make([]string, 0, len(ReactomeSources))
	for _, key := range sortedKeys(ReactomeSources) {
		out = append(out, ReactomeSources[key])
	}
	return out
}

// Run implements Transform.
func (t *ReactomeTransform) Run(ctx context.Context, inputDir, outputDir string) error {
	type mapping struct{ path, prefix string }
	var inputs []mapping
	for _, table := range sortedKeys(ReactomeSources) {
		path := filepath.Join(inputDir, ReactomeSources[table])
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			t.logger.Warn("reactome mapping file not found, skipping", slog.String("path", path))
			continue
		}
		inputs = append(inputs, mapping{path: path, prefix: reactomePrefixes[table]})
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no reactome mapping files found in %s", inputDir)
	}

	w, err := kgx.NewTableWriter(filepath.Join(outputDir, ReactomeName), ReactomeName)
	if err != nil {
		return err
	}
	for _, in := range inputs {
		if err := t.readMapping(ctx, w, in.path, in.prefix); err != nil {
			_ = w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	nodes, edges := w.Paths()
	t.logger.Info("reactome transformed",
		slog.Int("nodes", w.NodeCount()),
		slog.Int("edges", w.EdgeCount()),
		slog.String("nodes_file", nodes),
		slog.String("edges_file", edges))
	return nil
}

// readMapping reads one headerless Reactome mapping table:
// participant, pathway id, url, pathway name, evidence, species.
func (t *ReactomeTransform) readMapping(ctx context.Context, w *kgx.TableWriter, path, prefix string) error {
	f, err := os.Open(path) //nolint:gosec // path is under the raw data directory
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	skipped := 0
	for sc.Scan() {
		line++
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < reactomeMinFields || fields[0] == "" || fields[1] == "" {
			skipped++
			continue
		}

		participant := kgx.CollapseUniProtCURIE(prefix + ":" + strings.TrimSpace(fields[0]))
		pathway := "REACT:" + strings.TrimSpace(fields[1])

		if err := w.WriteNode(kgx.Node{
			ID:         participant,
			Category:   kgx.GuessCategory(participant),
			ProvidedBy: []string{reactomeProvidedBy},
		}); err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}

		if err := w.WriteNode(kgx.Node{
			ID:         pathway,
			Category:   kgx.CategoryPathway,
			Name:       fields[3],
			ProvidedBy: []string{reactomeProvidedBy},
		}); err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}

		if err := w.WriteEdge(kgx.Edge{
			Subject:    participant,
			Predicate:  kgx.PredicateParticipatesIn,
			Object:     pathway,
			Relation:   reactomeRelation,
			ProvidedBy: []string{reactomeProvidedBy},
		}); err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if skipped > 0 {
		t.logger.Warn("skipped malformed reactome rows", slog.String("path", path), slog.Int("rows", skipped))
	}
	return nil
}
