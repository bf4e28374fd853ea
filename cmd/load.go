package cmd

import (
	"github.com/spf13/cobra"

	"github.com/brensch/tripparquet/internal/shard"
)

var loadCategories []string

// loadCmd loads whatever outputs are on disk without fetching
var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load existing Parquet outputs into DuckDB tables",
	Long: `Creates or replaces prod.<category>_tripdata for each category that has at least
one Parquet output under the data directory. Columns are unioned by name across files.
No shards are fetched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		return loadAndReport(cmd.Context(), cmd, logger, getDB(), cfg.DataDir, loadCategories)
	},
}

func init() {
	loadCmd.Flags().StringSliceVar(&loadCategories, "category", shard.Categories(), "Categories to load")
}
