// internal/dataset/store.go
package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"research-agent/internal/common/config"
	"research-agent/internal/common/errors"
	"research-agent/internal/common/logger"
	"research-agent/internal/common/metrics"
)

// Column describes one column of the loaded dataset.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Position int    `json:"position"`
}

// Schema describes the loaded dataset table.
type Schema struct {
	Table    string   `json:"table"`
	Columns  []Column `json:"columns"`
	RowCount int64    `json:"row_count"`
}

// Describe renders the schema as prompt context for the analysis stages.
func (s *Schema) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table %q (%d rows):\n", s.Table, s.RowCount)
	for _, col := range s.Columns {
		fmt.Fprintf(&b, "  %s %s\n", col.Name, col.Type)
	}
	return b.String()
}

// Store holds the dataset in an embedded DuckDB database and answers
// read-only SQL queries against it.
type Store struct {
	db     *sql.DB
	config config.DatasetConfig
	logger logger.Logger
}

// Open creates an in-memory DuckDB instance and loads the configured
// CSV file into it.
func Open(ctx context.Context, cfg config.DatasetConfig, log logger.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.NewDatasetLoadFailedError(cfg.Path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.NewDatasetLoadFailedError(cfg.Path, err)
	}

	s := &Store{
		db:     db,
		config: cfg,
		logger: log.With(map[string]interface{}{
			"component": "dataset",
			"table":     cfg.Table,
		}),
	}

	if err := s.loadCSV(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the embedded database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// loadCSV imports the CSV with automatic schema detection.
func (s *Store) loadCSV(ctx context.Context) error {
	absPath, err := filepath.Abs(s.config.Path)
	if err != nil {
		return errors.NewDatasetLoadFailedError(s.config.Path, err)
	}

	stmt := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto('%s', header=true)",
		s.config.Table,
		absPath,
	)

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return errors.NewDatasetLoadFailedError(s.config.Path, err)
	}

	s.logger.Info("dataset loaded", map[string]interface{}{
		"path": s.config.Path,
	})

	return nil
}

// Schema reads the table layout from information_schema.
func (s *Store) Schema(ctx context.Context) (*Schema, error) {
	query := `
		SELECT
			column_name,
			data_type,
			is_nullable,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = 'main' AND table_name = ?
		ORDER BY ordinal_position
	`

	rows, err := s.db.QueryContext(ctx, query, s.config.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var col Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", s.config.Table)
	}

	var rowCount int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.config.Table)
	if err := s.db.QueryRowContext(ctx, countQuery).Scan(&rowCount); err != nil {
		rowCount = 0
	}

	return &Schema{
		Table:    s.config.Table,
		Columns:  columns,
		RowCount: rowCount,
	}, nil
}

// Query runs a read-only SELECT against the dataset and returns the rows
// as generic maps, capped at the configured row limit.
func (s *Store) Query(ctx context.Context, query string) ([]map[string]interface{}, error) {
	if err := ValidateReadOnly(query); err != nil {
		metrics.DatasetQueriesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		metrics.DatasetQueriesTotal.WithLabelValues("error").Inc()
		return nil, errors.NewSQLExecutionFailedError(err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		metrics.DatasetQueriesTotal.WithLabelValues("error").Inc()
		return nil, errors.NewSQLExecutionFailedError(err)
	}

	var results []map[string]interface{}
	for rows.Next() {
		if len(results) >= s.config.MaxRows {
			s.logger.Warn("query result truncated", map[string]interface{}{
				"maxRows": s.config.MaxRows,
			})
			break
		}

		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			metrics.DatasetQueriesTotal.WithLabelValues("error").Inc()
			return nil, errors.NewSQLExecutionFailedError(err)
		}

		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		metrics.DatasetQueriesTotal.WithLabelValues("error").Inc()
		return nil, errors.NewSQLExecutionFailedError(err)
	}

	metrics.DatasetQueriesTotal.WithLabelValues("success").Inc()
	return results, nil
}
