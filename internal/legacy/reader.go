// Package legacy reads the uploaded pre-migration SQLite database.
package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// ErrSourceNotFound indicates the supplied path does not resolve to a
// usable legacy database file.
var ErrSourceNotFound = errors.New("legacy source not found")

// Tables lists every legacy table the reader knows how to scan, in the
// order a transfer consumes them.
var Tables = []string{
	"staff",
	"engagement",
	"proposal",
	"non_billable",
	"hours_log",
	"leave_record",
	"utilization",
}

// Reader is a read-only connection to a legacy database file.
type Reader struct {
	conn *sql.DB
	path string
}

// Open verifies the legacy file exists and is non-empty, then opens a
// read-only connection to it. Callers must Close the reader on every
// exit path.
func Open(path string) (*Reader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is not a database file", ErrSourceNotFound, path)
	}

	conn, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open legacy source: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping legacy source: %w", err)
	}

	return &Reader{conn: conn, path: path}, nil
}

// Close releases the legacy connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// Path returns the filesystem path the reader was opened with.
func (r *Reader) Path() string {
	return r.path
}

// ScanTable runs a full, unfiltered scan of one legacy table and returns
// every row as an ordered tuple of column values in the table's native
// column order. The table name must be one of Tables.
func (r *Reader) ScanTable(ctx context.Context, table string) ([][]any, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("scan: unknown legacy table %q", table)
	}

	rows, err := r.conn.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("scan %s columns: %w", table, err)
	}

	var out [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	return out, nil
}

func knownTable(name string) bool {
	for _, t := range Tables {
		if t == name {
			return true
		}
	}
	return false
}
