package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// DuckDBAdapter implements the Adapter interface for DuckDB.
type DuckDBAdapter struct {
	db     *sql.DB
	config Config
	logger *slog.Logger
}

// NewDuckDBAdapter creates a new DuckDB adapter instance.
// A nil logger discards adapter diagnostics.
func NewDuckDBAdapter(logger *slog.Logger) *DuckDBAdapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DuckDBAdapter{logger: logger}
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" as the path for an in-memory database.
func (a *DuckDBAdapter) Connect(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == ":memory:" {
		path = ""
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.db = db
	a.config = cfg

	if cfg.Threads > 0 {
		if err := a.Exec(ctx, fmt.Sprintf("SET threads = %d", cfg.Threads)); err != nil {
			_ = a.Close()
			return err
		}
	}

	a.logger.Debug("connected to duckdb", slog.String("path", cfg.Path), slog.Int("threads", cfg.Threads))
	return nil
}

// Close closes the DuckDB connection.
func (a *DuckDBAdapter) Close() error {
	if a.db != nil {
		err := a.db.Close()
		a.db = nil
		return err
	}
	return nil
}

// Exec executes a SQL statement that doesn't return rows.
func (a *DuckDBAdapter) Exec(ctx context.Context, sqlStr string) error {
	if a.db == nil {
		return fmt.Errorf("database connection not established")
	}

	if _, err := a.db.ExecContext(ctx, sqlStr); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// QueryInt runs a query that yields a single integer.
func (a *DuckDBAdapter) QueryInt(ctx context.Context, sqlStr string) (int64, error) {
	if a.db == nil {
		return 0, fmt.Errorf("database connection not established")
	}

	var n int64
	if err := a.db.QueryRowContext(ctx, sqlStr).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to execute query: %w", err)
	}
	return n, nil
}

// LoadTSV loads tab-separated files into tableName, replacing any existing
// table. Files may carry different column sets; missing columns become NULL.
// Fields are either unquoted or wrapped in double quotes with "" escapes,
// the same rule catalog.TSVProber accepts.
func (a *DuckDBAdapter) LoadTSV(ctx context.Context, tableName string, filePaths []string) error {
	if a.db == nil {
		return fmt.Errorf("database connection not established")
	}
	if len(filePaths) == 0 {
		return fmt.Errorf("no files to load into %s", tableName)
	}

	literals := make([]string, 0, len(filePaths))
	for _, p := range filePaths {
		absPath, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
		literals = append(literals, QuoteLiteral(absPath))
	}

	query := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv([%s], delim='\\t', quote='\"', escape='\"', header=true, all_varchar=true, union_by_name=true, null_padding=true)",
		QuoteIdent(tableName),
		strings.Join(literals, ", "),
	)

	a.logger.Debug("loading tables", slog.String("table", tableName), slog.Int("files", len(filePaths)))
	if err := a.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to load TSV into %s: %w", tableName, err)
	}
	return nil
}

// ExportTSV writes the rows of query to filePath with a header line.
func (a *DuckDBAdapter) ExportTSV(ctx context.Context, query string, filePath string) error {
	if a.db == nil {
		return fmt.Errorf("database connection not established")
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	stmt := fmt.Sprintf("COPY (%s) TO %s (FORMAT csv, DELIMITER '\\t', HEADER true)", query, QuoteLiteral(absPath))
	if err := a.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to export %s: %w", filePath, err)
	}
	return nil
}

// GetTableMetadata retrieves column and row count information for a table.
func (a *DuckDBAdapter) GetTableMetadata(ctx context.Context, table string) (*Metadata, error) {
	if a.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	query := `
		SELECT
			column_name,
			data_type,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = 'main' AND table_name = ?
		ORDER BY ordinal_position
	`

	rows, err := a.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var col Column
		if err := scanColumn(rows, &col); err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}

	rowCount, err := a.QueryInt(ctx, "SELECT COUNT(*) FROM "+QuoteIdent(table))
	if err != nil {
		return nil, err
	}

	return &Metadata{Name: table, Columns: columns, RowCount: rowCount}, nil
}

func scanColumn(s scanner, col *Column) error {
	if err := s.Scan(&col.Name, &col.Type, &col.Position); err != nil {
		return fmt.Errorf("failed to scan column metadata: %w", err)
	}
	return nil
}

// Ensure DuckDBAdapter implements Adapter interface
var _ Adapter = (*DuckDBAdapter)(nil)
