// Package catalog discovers transformed node/edge tables and decides which of
// them are fit to hand to a merge engine.
//
// Each source writes its output to its own directory under the transformed
// data root, as pairs of <prefix>_nodes.tsv and <prefix>_edges.tsv files. A
// table that cannot be parsed, lacks an id column, or has too few rows is
// dropped together with its sibling, so a merge never sees half of a pair.
package catalog

import (
	"path/filepath"
	"strings"
)

// Table filename suffixes.
const (
	NodesSuffix = "_nodes.tsv"
	EdgesSuffix = "_edges.tsv"
	TableExt    = ".tsv"
)

// Kind classifies a table file by its filename suffix.
type Kind string

// Table kinds.
const (
	KindUnknown Kind = ""
	KindNodes   Kind = "nodes"
	KindEdges   Kind = "edges"
)

// Classify returns the table kind implied by the file name.
func Classify(path string) Kind {
	name := filepath.Base(path)
	switch {
	case strings.HasSuffix(name, NodesSuffix):
		return KindNodes
	case strings.HasSuffix(name, EdgesSuffix):
		return KindEdges
	default:
		return KindUnknown
	}
}

// SiblingPath returns the path of the other half of a node/edge pair:
// foo_nodes.tsv maps to foo_edges.tsv and back. Unknown kinds return "".
func SiblingPath(path string) string {
	switch Classify(path) {
	case KindNodes:
		return strings.TrimSuffix(path, NodesSuffix) + EdgesSuffix
	case KindEdges:
		return strings.TrimSuffix(path, EdgesSuffix) + NodesSuffix
	default:
		return ""
	}
}
