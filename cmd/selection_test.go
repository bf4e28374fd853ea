package cmd

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/tripparquet/internal/orchestrator"
	"github.com/brensch/tripparquet/internal/shard"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeSelection(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "download_config.yml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestSelectShardsExpandsWithOverrides(t *testing.T) {
	path := writeSelection(t, `
datasets:
  - taxi_types: [yellow, green]
    years: [2019, 2020]
    months: [1, 2]
`)
	keys, err := selectShards(path, shard.Overrides{Category: shard.FHV, Month: 2}, discard())
	require.NoError(t, err)

	want := []shard.Key{
		{Category: shard.FHV, Year: 2019, Month: 2},
		{Category: shard.FHV, Year: 2020, Month: 2},
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("selectShards mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectShardsCollectsAllViolations(t *testing.T) {
	path := writeSelection(t, `
datasets:
  - taxi_types: [purple]
    years: [2001]
    months: [1]
`)
	_, err := selectShards(path, shard.Overrides{Month: 13}, discard())
	var ve *shard.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Violations, 3)
}

func TestSelectShardsEmptyDocument(t *testing.T) {
	path := writeSelection(t, "datasets: []\n")
	_, err := selectShards(path, shard.Overrides{}, discard())
	var ve *shard.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Violations, "no datasets defined")
	assert.NotErrorIs(t, err, orchestrator.ErrEmptySelection)
}

func TestPrintPlan(t *testing.T) {
	layout := shard.Layout{BaseURL: "https://example.test", DataDir: t.TempDir()}
	keys := []shard.Key{
		{Category: shard.Yellow, Year: 2019, Month: 1},
		{Category: shard.Yellow, Year: 2019, Month: 2},
	}
	require.NoError(t, os.MkdirAll(layout.CategoryDir(shard.Yellow), 0o755))
	require.NoError(t, os.WriteFile(layout.OutputPath(keys[1]), []byte("x"), 0o644))

	var buf bytes.Buffer
	printPlan(&buf, layout, keys, false)
	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "NEW")
	assert.Contains(t, lines[1], "yellow_tripdata_2019-01.csv.gz")
	assert.Contains(t, lines[2], "SKIP")
	assert.Contains(t, lines[3], "Would fetch 1 shards, skip 1 already present.")

	buf.Reset()
	printPlan(&buf, layout, keys, true)
	assert.Contains(t, buf.String(), "FORCE")
	assert.Contains(t, buf.String(), "(1 new, 1 forced)")
}

func TestCategoriesOf(t *testing.T) {
	keys := []shard.Key{{Category: "green"}, {Category: "yellow"}, {Category: "green"}}
	assert.Equal(t, []string{"green", "yellow"}, categoriesOf(keys))
}
