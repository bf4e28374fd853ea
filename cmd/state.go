package cmd

import (
	"github.com/spf13/cobra"

	"github.com/brensch/tripparquet/internal/db"
)

var (
	stateLimit       int
	stateFilterEvent string
	stateRunID       string
)

// stateCmd represents the command to view the shard event log
var stateCmd = &cobra.Command{
	Use:   "state [shard]",
	Short: "View the event log history of shards",
	Long: `Queries the DuckDB event log and displays the history of shard tasks and runs.
Pass a shard such as yellow/2019-01 to see only its events.
Use flags to filter by event type or run and to limit the output.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		f := db.HistoryFilter{Event: stateFilterEvent, RunID: stateRunID, Limit: stateLimit}
		if len(args) > 0 {
			f.Shard = args[0]
		}

		logger.Debug("Querying database event log", "shard", f.Shard, "event_filter", f.Event, "run_id", f.RunID, "limit", f.Limit)
		if err := db.DisplayShardHistory(cmd.Context(), getDB(), cmd.OutOrStdout(), f); err != nil {
			logger.Error("Failed to display state history", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Limit the number of log records displayed")
	stateCmd.Flags().StringVarP(&stateFilterEvent, "event", "e", "", "Filter records by event (e.g. done, failed, skipped, not_attempted, abort)")
	stateCmd.Flags().StringVar(&stateRunID, "run", "", "Filter records by run id")
}
