package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/tripparquet/internal/inspector"
	"github.com/brensch/tripparquet/internal/shard"
)

var inspectCategories []string

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarize the Parquet outputs per category from their footers",
	Long: `Reads the footer of every *.parquet output under the data directory and prints,
per category, the file count, total rows, first and last month present and how many
distinct column layouts were seen.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		layout := shard.Layout{BaseURL: cfg.BaseURL, DataDir: cfg.DataDir}

		summaries, err := inspector.Inspect(cmd.Context(), layout, inspectCategories, cfg.Concurrency, logger)
		inspector.Print(cmd.OutOrStdout(), summaries)
		if err != nil {
			logger.Error("Inspection completed with errors", "error", err)
			return fmt.Errorf("inspection failed: %w", err)
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringSliceVar(&inspectCategories, "category", shard.Categories(), "Categories to inspect")
}
