package shard

import (
	"os"
	"path/filepath"
	"strings"
)

// File extensions of the remote payload and the converted output.
const (
	SourceExt   = ".csv.gz"
	ColumnarExt = ".parquet"
)

// Layout maps keys to remote URLs and local paths.
type Layout struct {
	BaseURL string
	DataDir string
}

// CategoryDir is the local directory holding a category's files.
func (l Layout) CategoryDir(category string) string {
	return filepath.Join(l.DataDir, category)
}

// OutputPath is the converted file whose existence marks the shard as materialized.
func (l Layout) OutputPath(k Key) string {
	return filepath.Join(l.CategoryDir(k.Category), k.Stem()+ColumnarExt)
}

// IntermediatePath is where the fetched payload is streamed before conversion.
func (l Layout) IntermediatePath(k Key) string {
	return filepath.Join(l.CategoryDir(k.Category), k.Stem()+SourceExt)
}

// RemoteURL is the download location of the shard's payload.
func (l Layout) RemoteURL(k Key) string {
	return strings.TrimRight(l.BaseURL, "/") + "/" + k.Category + "/" + k.Stem() + SourceExt
}

// Exists probes the output path. It is never cached.
func (l Layout) Exists(k Key) bool {
	info, err := os.Stat(l.OutputPath(k))
	return err == nil && !info.IsDir()
}

// Partition splits keys into those without an output file and those with one,
// preserving input order.
func (l Layout) Partition(keys []Key) (missing, present []Key) {
	for _, k := range keys {
		if l.Exists(k) {
			present = append(present, k)
		} else {
			missing = append(missing, k)
		}
	}
	return missing, present
}
