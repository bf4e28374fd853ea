package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // Register DuckDB driver

	"github.com/brensch/tripparquet/internal/shard"
)

// Schema holding the loaded tables.
const Schema = "prod"

// ErrLoad is wrapped by every load failure.
var ErrLoad = errors.New("load")

// TableLoad describes one loaded table.
type TableLoad struct {
	Category string
	Table    string
	Files    int
	Rows     int64
	Duration time.Duration
}

// Loader materializes per-category tables from the Parquet outputs on disk.
type Loader struct {
	db      *sql.DB
	dataDir string
	logger  *slog.Logger
}

func New(db *sql.DB, dataDir string, logger *slog.Logger) *Loader {
	return &Loader{db: db, dataDir: dataDir, logger: logger.With(slog.String("component", "loader"))}
}

// TableName is the fully qualified table for a category.
func TableName(category string) string {
	return fmt.Sprintf("%s.%s_tripdata", Schema, category)
}

// Load replaces the table of each category that has at least one output file.
// Categories without files are skipped. The first failure stops the load.
func (l *Loader) Load(ctx context.Context, categories []string) ([]TableLoad, error) {
	cats := slices.Clone(categories)
	slices.Sort(cats)
	cats = slices.Compact(cats)

	l.logger.Info("--- Starting table load ---", slog.Any("categories", cats))
	if _, err := l.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s;", Schema)); err != nil {
		return nil, fmt.Errorf("%w: create schema %s: %w", ErrLoad, Schema, err)
	}

	var loads []TableLoad
	for _, cat := range cats {
		if ctx.Err() != nil {
			return loads, fmt.Errorf("%w: %w", ErrLoad, ctx.Err())
		}
		// category names are interpolated into SQL identifiers
		if !shard.IsKnownCategory(cat) {
			return loads, fmt.Errorf("%w: unknown category %q", ErrLoad, cat)
		}
		tl, ok, err := l.loadCategory(ctx, cat)
		if err != nil {
			l.logger.Error("Failed to load category.", slog.String("category", cat), "error", err)
			return loads, err
		}
		if ok {
			loads = append(loads, tl)
		}
	}
	l.logger.Info("--- Table load finished ---", slog.Int("tables", len(loads)))
	return loads, nil
}

func (l *Loader) loadCategory(ctx context.Context, cat string) (TableLoad, bool, error) {
	lg := l.logger.With(slog.String("category", cat))
	start := time.Now()
	pattern := filepath.Join(l.dataDir, cat, "*"+shard.ColumnarExt)

	files, err := filepath.Glob(pattern)
	if err != nil {
		return TableLoad{}, false, fmt.Errorf("%w: glob %s: %w", ErrLoad, pattern, err)
	}
	if len(files) == 0 {
		lg.Info("No output files for category, skipping.", slog.String("pattern", pattern))
		return TableLoad{}, false, nil
	}

	table := TableName(cat)
	createSQL := fmt.Sprintf(`CREATE OR REPLACE TABLE %s AS SELECT * FROM read_parquet('%s', union_by_name=true);`,
		table, duckdbPath(pattern))
	lg.Debug("Executing CREATE TABLE command.", slog.String("table", table), slog.Int("files", len(files)))
	if _, err := l.db.ExecContext(ctx, createSQL); err != nil {
		return TableLoad{}, false, fmt.Errorf("%w: create %s: %w", ErrLoad, table, err)
	}

	var rows int64
	if err := l.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s;", table)).Scan(&rows); err != nil {
		return TableLoad{}, false, fmt.Errorf("%w: count %s: %w", ErrLoad, table, err)
	}

	tl := TableLoad{Category: cat, Table: table, Files: len(files), Rows: rows, Duration: time.Since(start)}
	lg.Info("Loaded table.", slog.String("table", table), slog.Int("files", tl.Files), slog.Int64("rows", rows),
		slog.Duration("duration", tl.Duration.Round(time.Millisecond)))
	return tl, true, nil
}

// Columns lists a loaded table's column names in table order.
func (l *Loader) Columns(ctx context.Context, category string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position;`,
		Schema, category+"_tripdata")
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", TableName(category), err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func duckdbPath(p string) string {
	p = strings.ReplaceAll(p, `\`, `/`) // DuckDB needs forward slashes
	return strings.ReplaceAll(p, "'", "''")
}
