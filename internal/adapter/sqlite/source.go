// Package sqlite reads the field survey table out of a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/agri-data-etl/internal/domain"
)

// Source runs one query per extraction and returns every row as a RawRecord.
type Source struct {
	db      *sql.DB
	path    string
	query   string
	renames map[string]string
	logger  *slog.Logger
}

// Open connects to an existing database file. Renames map result column names
// to the names the cleaner expects and are applied simultaneously, so
// {"a": "b", "b": "a"} swaps two mislabelled columns.
func Open(path, query string, renames map[string]string, logger *slog.Logger) (*Source, error) {
	// The driver creates missing files, which would hide a bad path.
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open field database: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open field database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping field database: %w", err)
	}
	return &Source{db: db, path: path, query: query, renames: renames, logger: logger}, nil
}

// ExtractFields runs the configured query.
func (s *Source) ExtractFields(ctx context.Context) ([]domain.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	names, err := RenameColumns(cols, s.renames)
	if err != nil {
		return nil, err
	}

	var out []domain.RawRecord
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan field row: %w", err)
		}
		rec := make(domain.RawRecord, len(names))
		for i, name := range names {
			if b, ok := values[i].([]byte); ok {
				rec[name] = string(b)
				continue
			}
			rec[name] = values[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field rows: %w", err)
	}

	s.logger.Debug("field rows extracted", "path", s.path, "rows", len(out), "columns", len(names))
	return out, nil
}

// Close releases the database handle.
func (s *Source) Close() error {
	return s.db.Close()
}

// RenameColumns applies renames to every column at once. Two result columns
// ending up with the same name is an error.
func RenameColumns(cols []string, renames map[string]string) ([]string, error) {
	out := make([]string, len(cols))
	seen := make(map[string]string, len(cols))
	for i, col := range cols {
		name := col
		if to, ok := renames[col]; ok {
			name = to
		}
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("columns %q and %q both map to %q", prev, col, name)
		}
		seen[name] = col
		out[i] = name
	}
	return out, nil
}
