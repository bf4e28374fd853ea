package shard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestLayoutPaths(t *testing.T) {
	l := Layout{BaseURL: "https://example.com/releases/download/", DataDir: "data"}
	k := Key{Category: Green, Year: 2019, Month: 3}

	assert.Equal(t, filepath.Join("data", "green", "green_tripdata_2019-03.parquet"), l.OutputPath(k))
	assert.Equal(t, filepath.Join("data", "green", "green_tripdata_2019-03.csv.gz"), l.IntermediatePath(k))
	assert.Equal(t, "https://example.com/releases/download/green/green_tripdata_2019-03.csv.gz", l.RemoteURL(k))
	assert.Equal(t, "green/2019-03", k.String())
}

func TestPartitionAllMissing(t *testing.T) {
	l := Layout{DataDir: t.TempDir()}
	keys := []Key{{Yellow, 2019, 1}, {Green, 2019, 2}}

	missing, present := l.Partition(keys)
	assert.Equal(t, keys, missing)
	assert.Empty(t, present)
}

func TestPartitionAllPresent(t *testing.T) {
	l := Layout{DataDir: t.TempDir()}
	keys := []Key{{Yellow, 2019, 1}, {Green, 2019, 2}}
	for _, k := range keys {
		touch(t, l.OutputPath(k))
	}

	missing, present := l.Partition(keys)
	assert.Empty(t, missing)
	assert.Equal(t, keys, present)
}

func TestPartitionMixed(t *testing.T) {
	l := Layout{DataDir: t.TempDir()}
	keys := []Key{{Yellow, 2019, 1}, {Yellow, 2019, 2}, {Green, 2019, 1}}
	touch(t, l.OutputPath(keys[0]))
	// an intermediate file alone does not count as materialized
	touch(t, l.IntermediatePath(keys[2]))

	missing, present := l.Partition(keys)
	assert.Equal(t, []Key{keys[0]}, present)
	assert.Equal(t, []Key{keys[1], keys[2]}, missing)
}

func TestExistsIsEvaluatedEachCall(t *testing.T) {
	l := Layout{DataDir: t.TempDir()}
	k := Key{FHV, 2020, 7}
	assert.False(t, l.Exists(k))
	touch(t, l.OutputPath(k))
	assert.True(t, l.Exists(k))
}
