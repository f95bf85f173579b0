// Package graph implements the graph-loading merge: every source subgraph is
// read into memory, nodes are unified by id, edges by id (or by their
// subject/predicate/object triple when they carry none), and the merged graph
// is written back out as node/edge tables.
package graph

import (
	"slices"
	"strings"
)

// ListDelimiter separates values in multi-valued columns.
const ListDelimiter = "|"

// listColumns are unioned on merge instead of first-value-wins.
var listColumns = map[string]bool{
	"category":                    true,
	"xref":                        true,
	"provided_by":                 true,
	"synonym":                     true,
	"same_as":                     true,
	"publications":                true,
	"knowledge_source":            true,
	"aggregator_knowledge_source": true,
}

// Record is one row of a node or edge table keyed by column name.
type Record map[string]string

// table is an insertion-ordered set of records with a stable column order.
type table struct {
	columns []string
	keys    []string
	rows    map[string]Record
}

func newTable() *table {
	return &table{rows: make(map[string]Record)}
}

func (t *table) addColumns(cols []string) {
	for _, c := range cols {
		if !slices.Contains(t.columns, c) {
			t.columns = append(t.columns, c)
		}
	}
}

// upsert merges rec into the row stored under key.
func (t *table) upsert(key string, rec Record) {
	existing, ok := t.rows[key]
	if !ok {
		t.keys = append(t.keys, key)
		t.rows[key] = rec
		return
	}
	for col, val := range rec {
		if val == "" {
			continue
		}
		cur := existing[col]
		switch {
		case cur == "":
			existing[col] = val
		case listColumns[col]:
			existing[col] = unionList(cur, val)
		}
	}
}

func (t *table) len() int { return len(t.keys) }

// Graph is an in-memory merged graph.
type Graph struct {
	nodes *table
	edges *table
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: newTable(), edges: newTable()}
}

// NodeCount returns the number of distinct nodes.
func (g *Graph) NodeCount() int { return g.nodes.len() }

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int { return g.edges.len() }

// Node returns the merged record for id.
func (g *Graph) Node(id string) (Record, bool) {
	r, ok := g.nodes.rows[id]
	return r, ok
}

// Edge returns the merged record stored under key (see EdgeKey).
func (g *Graph) Edge(key string) (Record, bool) {
	r, ok := g.edges.rows[key]
	return r, ok
}

// AddNode merges a node record; records without an id are ignored.
func (g *Graph) AddNode(rec Record) bool {
	id := rec["id"]
	if id == "" {
		return false
	}
	g.nodes.upsert(id, rec)
	return true
}

// AddEdge merges an edge record.
func (g *Graph) AddEdge(rec Record) {
	g.edges.upsert(EdgeKey(rec), rec)
}

// EdgeKey identifies an edge: its id, or its triple when the id is blank.
func EdgeKey(rec Record) string {
	if id := rec["id"]; id != "" {
		return id
	}
	return rec["subject"] + "\x1f" + rec["predicate"] + "\x1f" + rec["object"]
}

// Merge folds other into g. Records of other merge into records of g with
// the same key, in other's insertion order.
func (g *Graph) Merge(other *Graph) {
	g.nodes.addColumns(other.nodes.columns)
	for _, k := range other.nodes.keys {
		g.nodes.upsert(k, cloneRecord(other.nodes.rows[k]))
	}
	g.edges.addColumns(other.edges.columns)
	for _, k := range other.edges.keys {
		g.edges.upsert(k, cloneRecord(other.edges.rows[k]))
	}
}

func cloneRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func unionList(a, b string) string {
	vals := strings.Split(a, ListDelimiter)
	for _, v := range strings.Split(b, ListDelimiter) {
		if v != "" && !slices.Contains(vals, v) {
			vals = append(vals, v)
		}
	}
	return strings.Join(vals, ListDelimiter)
}

// orderedColumns puts lead columns first, then the rest in first-seen order.
func orderedColumns(cols []string, lead ...string) []string {
	out := make([]string, 0, len(cols))
	for _, l := range lead {
		if slices.Contains(cols, l) {
			out = append(out, l)
		}
	}
	for _, c := range cols {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}
