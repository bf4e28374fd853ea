package inspector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/tripparquet/internal/processor"
	"github.com/brensch/tripparquet/internal/shard"
)

// Output filenames look like yellow_tripdata_2019-01.parquet.
var outputPatternRegex = regexp.MustCompile(`^([a-z]+)_tripdata_(\d{4})-(\d{2})\.parquet$`)

// parseOutputName recovers the shard key from an output filename.
func parseOutputName(filename string) (shard.Key, error) {
	m := outputPatternRegex.FindStringSubmatch(filename)
	if m == nil {
		return shard.Key{}, fmt.Errorf("filename '%s' does not match expected pattern (<category>_tripdata_YYYY-MM.parquet)", filename)
	}
	year, _ := strconv.Atoi(m[2])
	month, _ := strconv.Atoi(m[3])
	return shard.Key{Category: m[1], Year: year, Month: month}, nil
}

// CategorySummary aggregates the output files of one category.
type CategorySummary struct {
	Category string
	Files    int
	Rows     int64
	First    shard.Key
	Last     shard.Key
	// SchemaVariants is the number of distinct column lists seen across files.
	SchemaVariants int
	// Columns is the union of column names in first-seen order.
	Columns []string
	Errors         []error
}

type fileInfo struct {
	key     shard.Key
	rows    int64
	columns []string
	err     error
}

// Inspect summarizes the Parquet outputs of each category by reading file
// footers, at most concurrency files at a time. Unreadable files are reported
// in the summary and in the returned error.
func Inspect(ctx context.Context, layout shard.Layout, categories []string, concurrency int, logger *slog.Logger) ([]CategorySummary, error) {
	logger.Info("--- Starting Parquet Output Inspection ---", slog.String("data_dir", layout.DataDir))
	if concurrency < 1 {
		concurrency = 1
	}

	var summaries []CategorySummary
	var finalErr error
	for _, cat := range categories {
		l := logger.With(slog.String("category", cat))
		pattern := filepath.Join(layout.CategoryDir(cat), "*"+shard.ColumnarExt)
		paths, err := filepath.Glob(pattern)
		if err != nil {
			return summaries, fmt.Errorf("failed glob parquet files in %s: %w", layout.CategoryDir(cat), err)
		}
		if len(paths) == 0 {
			l.Info("No *.parquet files found.")
			continue
		}

		infos := make([]fileInfo, len(paths))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for i, p := range paths {
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				infos[i] = readFile(p)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return summaries, err
		}

		s := summarize(cat, infos)
		for _, e := range s.Errors {
			l.Warn("Problem reading output file.", "error", e)
			finalErr = errors.Join(finalErr, e)
		}
		l.Info("Category summarized.", slog.Int("files", s.Files), slog.Int64("rows", s.Rows), slog.Int("schema_variants", s.SchemaVariants))
		summaries = append(summaries, s)
	}
	logger.Info("--- Parquet Output Inspection Finished ---")
	return summaries, finalErr
}

func readFile(path string) fileInfo {
	base := filepath.Base(path)
	key, err := parseOutputName(base)
	if err != nil {
		return fileInfo{err: err}
	}
	rows, err := processor.RowCount(path)
	if err != nil {
		return fileInfo{key: key, err: fmt.Errorf("%s: %w", base, err)}
	}
	cols, err := processor.Columns(path)
	if err != nil {
		return fileInfo{key: key, err: fmt.Errorf("%s: %w", base, err)}
	}
	return fileInfo{key: key, rows: rows, columns: cols}
}

func summarize(cat string, infos []fileInfo) CategorySummary {
	s := CategorySummary{Category: cat}
	variants := map[string]struct{}{}
	seen := map[string]struct{}{}
	for _, fi := range infos {
		if fi.err != nil {
			s.Errors = append(s.Errors, fi.err)
			continue
		}
		s.Files++
		s.Rows += fi.rows
		if s.Files == 1 || shard.Compare(fi.key, s.First) < 0 {
			s.First = fi.key
		}
		if s.Files == 1 || shard.Compare(fi.key, s.Last) > 0 {
			s.Last = fi.key
		}
		variants[strings.Join(fi.columns, "\x00")] = struct{}{}
		for _, c := range fi.columns {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				s.Columns = append(s.Columns, c)
			}
		}
	}
	s.SchemaVariants = len(variants)
	return s
}

// Print writes the summaries as a table.
func Print(w io.Writer, summaries []CategorySummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No parquet outputs found.")
		return
	}
	fmt.Fprintln(w, "\n--- Aggregated Statistics ---")
	fmt.Fprintf(w, "%-10s | %-10s | %-15s | %-10s | %-10s | %-8s | %s\n", "Category", "File Count", "Total Rows", "First", "Last", "Schemas", "Errors")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, s := range summaries {
		first, last := "N/A", "N/A"
		if s.Files > 0 {
			first = fmt.Sprintf("%04d-%02d", s.First.Year, s.First.Month)
			last = fmt.Sprintf("%04d-%02d", s.Last.Year, s.Last.Month)
		}
		errorStr := ""
		if len(s.Errors) > 0 {
			errorStr = fmt.Sprintf("%d unreadable", len(s.Errors))
		}
		fmt.Fprintf(w, "%-10s | %-10d | %-15d | %-10s | %-10s | %-8d | %s\n", s.Category, s.Files, s.Rows, first, last, s.SchemaVariants, errorStr)
	}
	fmt.Fprintln(w, strings.Repeat("-", 90))

	for _, s := range summaries {
		if len(s.Columns) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n--- Columns (%s, union of %d schemas) ---\n", s.Category, s.SchemaVariants)
		for _, c := range s.Columns {
			fmt.Fprintf(w, "  - %s\n", c)
		}
	}
}
