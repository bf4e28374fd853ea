package loader

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/tripparquet/internal/shard"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("duckdb", filepath.Join(t.TempDir(), "test.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeParquet(t *testing.T, conn *sql.DB, path, selectSQL string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	_, err := conn.Exec(fmt.Sprintf(`COPY (%s) TO '%s' (FORMAT PARQUET);`, selectSQL, duckdbPath(path)))
	require.NoError(t, err)
}

func testLoader(t *testing.T) (*Loader, *sql.DB, string) {
	t.Helper()
	conn := openTestDB(t)
	dir := t.TempDir()
	return New(conn, dir, slog.New(slog.NewTextHandler(io.Discard, nil))), conn, dir
}

func TestLoadUnionsDifferingColumns(t *testing.T) {
	l, conn, dir := testLoader(t)
	writeParquet(t, conn, filepath.Join(dir, "yellow", "yellow_tripdata_2019-01.parquet"),
		`SELECT 1 AS VendorID, 7.5 AS fare_amount UNION ALL SELECT 2, 9.0`)
	writeParquet(t, conn, filepath.Join(dir, "yellow", "yellow_tripdata_2019-02.parquet"),
		`SELECT 1 AS VendorID, 2.5 AS congestion_surcharge`)

	loads, err := l.Load(context.Background(), []string{shard.Yellow})
	require.NoError(t, err)
	require.Len(t, loads, 1)
	assert.Equal(t, "prod.yellow_tripdata", loads[0].Table)
	assert.Equal(t, 2, loads[0].Files)
	assert.Equal(t, int64(3), loads[0].Rows)

	cols, err := l.Columns(context.Background(), shard.Yellow)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"VendorID", "fare_amount", "congestion_surcharge"}, cols)
}

func TestLoadReplacesExistingTable(t *testing.T) {
	l, conn, dir := testLoader(t)
	path := filepath.Join(dir, "green", "green_tripdata_2020-01.parquet")
	writeParquet(t, conn, path, `SELECT 1 AS VendorID UNION ALL SELECT 2`)

	_, err := l.Load(context.Background(), []string{shard.Green})
	require.NoError(t, err)

	writeParquet(t, conn, filepath.Join(dir, "green", "green_tripdata_2020-02.parquet"), `SELECT 3 AS VendorID`)
	loads, err := l.Load(context.Background(), []string{shard.Green, shard.Green})
	require.NoError(t, err)
	require.Len(t, loads, 1)
	assert.Equal(t, int64(3), loads[0].Rows)
}

func TestLoadSkipsCategoriesWithoutFiles(t *testing.T) {
	l, conn, dir := testLoader(t)
	writeParquet(t, conn, filepath.Join(dir, "fhv", "fhv_tripdata_2019-01.parquet"), `SELECT 'B00001' AS dispatching_base_num`)

	loads, err := l.Load(context.Background(), []string{shard.Yellow, shard.FHV})
	require.NoError(t, err)
	require.Len(t, loads, 1)
	assert.Equal(t, shard.FHV, loads[0].Category)
}

func TestLoadFailsOnUnknownCategory(t *testing.T) {
	l, _, _ := testLoader(t)
	_, err := l.Load(context.Background(), []string{"yellow; DROP TABLE x"})
	require.ErrorIs(t, err, ErrLoad)
}

func TestLoadFailsOnCorruptFile(t *testing.T) {
	l, _, dir := testLoader(t)
	path := filepath.Join(dir, "fhvhv", "fhvhv_tripdata_2019-02.parquet")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not parquet"), 0o644))

	_, err := l.Load(context.Background(), []string{shard.FHVHV})
	require.ErrorIs(t, err, ErrLoad)
}
