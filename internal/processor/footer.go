package processor

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

// RowCount reads the row count recorded in a Parquet file's footer.
func RowCount(path string) (int64, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return 0, fmt.Errorf("open parquet file %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 1)
	if err != nil {
		return 0, fmt.Errorf("create parquet reader for %s: %w", path, err)
	}
	defer pr.ReadStop() // stops reader goroutines

	return pr.GetNumRows(), nil
}

// Columns lists the leaf column names of a Parquet file's schema as written
// in the file.
func Columns(path string) ([]string, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet reader for %s: %w", path, err)
	}
	defer pr.ReadStop()

	// the reader renames footer elements, ExName keeps the name from the file
	sh := pr.SchemaHandler
	var cols []string
	for i, el := range sh.SchemaElements {
		if i == 0 || (el.NumChildren != nil && *el.NumChildren > 0) {
			continue
		}
		cols = append(cols, sh.Infos[i].ExName)
	}
	return cols, nil
}
