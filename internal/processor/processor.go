package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
)

// ErrConvert is wrapped by every conversion failure.
var ErrConvert = errors.New("convert")

// Converter turns compressed CSV payloads into Parquet files using an in-memory DuckDB.
type Converter struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewConverter opens the in-memory DuckDB instance used for conversions.
func NewConverter(logger *slog.Logger) (*Converter, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open in-memory duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping in-memory duckdb: %w", err)
	}
	return &Converter{db: db, logger: logger.With(slog.String("component", "converter"))}, nil
}

// Close releases the DuckDB instance.
func (c *Converter) Close() error {
	return c.db.Close()
}

// Convert writes src as Parquet at dst, verifies the result and removes src.
// dst only appears once it is complete.
func (c *Converter) Convert(ctx context.Context, src, dst string) (int64, error) {
	start := time.Now()
	l := c.logger.With(slog.String("source", filepath.Base(src)))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("%w: create directory for %s: %w", ErrConvert, dst, err)
	}
	tmp := dst + ".tmp"
	copySQL := fmt.Sprintf(`COPY (SELECT * FROM read_csv_auto('%s')) TO '%s' (FORMAT PARQUET, COMPRESSION SNAPPY);`,
		sqlPath(src), sqlPath(tmp))

	l.Debug("Executing COPY TO command.", slog.String("output_path", tmp))
	if _, err := c.db.ExecContext(ctx, copySQL); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("%w: copy %s to parquet: %w", ErrConvert, src, err)
	}

	rows, err := RowCount(tmp)
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("%w: verify %s: %w", ErrConvert, tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("%w: rename %s: %w", ErrConvert, tmp, err)
	}
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		l.Warn("Failed to remove intermediate file.", "error", err)
	}

	l.Debug("Converted to parquet.", slog.Int64("rows", rows), slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return rows, nil
}

// sqlPath formats a filesystem path for a DuckDB string literal.
func sqlPath(p string) string {
	p = strings.ReplaceAll(p, `\`, `/`) // DuckDB needs forward slashes
	return strings.ReplaceAll(p, "'", "''")
}
