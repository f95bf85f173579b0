// Package adapter provides the tabular database adapter used by the merge
// engines to load, combine and export node/edge tables.
package adapter

import (
	"context"
	"strings"
)

// Config holds the configuration for connecting to a database.
type Config struct {
	// Path is the database file. Use ":memory:" or "" for an in-memory database.
	Path string

	// Threads caps the engine's worker threads. Zero leaves the engine default.
	Threads int
}

// Column represents a column in a database table.
type Column struct {
	Name     string
	Type     string
	Position int
}

// Metadata holds metadata about a database table.
type Metadata struct {
	Name     string
	Columns  []Column
	RowCount int64
}

// HasColumn reports whether the table has a column called name.
func (m *Metadata) HasColumn(name string) bool {
	for _, c := range m.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Adapter defines the operations the merge engines need from a tabular store.
type Adapter interface {
	// Connect establishes a connection using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the connection and releases resources.
	Close() error

	// Exec executes a statement that doesn't return rows.
	Exec(ctx context.Context, sql string) error

	// QueryInt runs a query returning a single integer.
	QueryInt(ctx context.Context, sql string) (int64, error)

	// LoadTSV loads one or more tab-separated files into a table, aligning
	// columns by name. Every column is loaded as text.
	LoadTSV(ctx context.Context, tableName string, filePaths []string) error

	// ExportTSV writes the result of a query to a tab-separated file with a header.
	ExportTSV(ctx context.Context, query string, filePath string) error

	// GetTableMetadata retrieves metadata for a table.
	GetTableMetadata(ctx context.Context, table string) (*Metadata, error)
}

// QuoteLiteral renders s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdent renders s as a double-quoted SQL identifier.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
