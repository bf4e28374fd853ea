package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/brensch/tripparquet/internal/app"
	"github.com/brensch/tripparquet/internal/config"
	"github.com/brensch/tripparquet/internal/db"
	"github.com/brensch/tripparquet/internal/downloader"
	"github.com/brensch/tripparquet/internal/loader"
	"github.com/brensch/tripparquet/internal/metrics"
	"github.com/brensch/tripparquet/internal/orchestrator"
	"github.com/brensch/tripparquet/internal/processor"
	"github.com/brensch/tripparquet/internal/shard"
)

// tuiLogFile receives logs while the progress view owns the terminal.
const tuiLogFile = "tripparquet.log"

// Flags for the run command
var (
	runDryRun      bool
	runNoLoad      bool
	runForce       bool
	runTUI         bool
	runFailOnError bool
	runOverrides   shard.Overrides
)

// runCmd represents the fetch, convert and load workflow
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, convert and load the selected trip data shards",
	Long: `Performs the complete data pipeline:
1. Expands the datasets in the selection document into monthly shards.
2. Skips shards whose Parquet output already exists (unless --force).
3. Fetches missing shards concurrently and converts each one to Parquet.
4. Loads every selected category into prod.<category>_tripdata in DuckDB.
After too many consecutive failures the remaining shards are not attempted.
Use --dry-run to see what would be fetched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		conn := getDB()
		cfg := getConfig()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		keys, err := selectShards(cfg.SelectionPath, runOverrides, logger)
		if err != nil {
			return fmt.Errorf("select shards: %w", err)
		}
		layout := shard.Layout{BaseURL: cfg.BaseURL, DataDir: cfg.DataDir}

		if runDryRun {
			printPlan(cmd.OutOrStdout(), layout, keys, runForce)
			return nil
		}

		entry := filepath.ToSlash(filepath.Clean(cfg.DataDir)) + "/"
		if added, err := config.EnsureIgnored(".gitignore", entry); err != nil {
			logger.Warn("Failed to update .gitignore.", "error", err)
		} else if added {
			logger.Info("Added data directory to .gitignore.", slog.String("entry", entry))
		}

		if runTUI && logsToTerminal() {
			f, err := openLogOutput(tuiLogFile)
			if err != nil {
				return err
			}
			logger = newLogger(f)
		}

		conv, err := processor.NewConverter(logger)
		if err != nil {
			return err
		}
		defer conv.Close()

		eventLog := db.NewEventLog(ctx, conn, logger)
		eventLog.Mark(db.EventRunStart, fmt.Sprintf("%d shards", len(keys)))
		logger.Info("Starting run.", slog.String("run_id", eventLog.RunID()), slog.Int("shards", len(keys)))

		opts := orchestrator.Options{
			Layout:                 layout,
			Fetcher:                downloader.NewClient(downloader.OptionsFromConfig(cfg), logger),
			Converter:              conv,
			Concurrency:            cfg.Concurrency,
			MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
			Force:                  runForce,
			Logger:                 logger,
		}
		observers := orchestrator.Observers{eventLog, metrics.Recorder{}}

		var res *orchestrator.Result
		var runErr error
		if runTUI {
			res, runErr = runWithProgressView(ctx, opts, observers, keys, newProgressView(ctx))
		} else {
			opts.Observer = observers
			res, runErr = orchestrator.New(opts).Run(ctx, keys)
		}
		if res == nil {
			return fmt.Errorf("run shards: %w", runErr)
		}

		c := res.Counts()
		eventLog.Mark(db.EventRunEnd, fmt.Sprintf("skipped=%d succeeded=%d failed=%d not_attempted=%d aborted=%t",
			c.Skipped, c.Succeeded, c.Failed, c.NotAttempted, res.Aborted))
		fmt.Fprint(cmd.OutOrStdout(), app.Summary(res))

		if cfg.MetricsFile != "" {
			if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
				logger.Warn("Failed to write metrics.", "error", err)
			}
		}
		if runErr != nil {
			return fmt.Errorf("run interrupted: %w", runErr)
		}

		if !runNoLoad {
			if err := loadAndReport(ctx, cmd, logger, conn, cfg.DataDir, categoriesOf(keys)); err != nil {
				return err
			}
		}

		if runFailOnError && c.Failed+c.NotAttempted > 0 {
			return fmt.Errorf("%d shards failed and %d were not attempted", c.Failed, c.NotAttempted)
		}
		return nil
	},
}

// progressView is the part of a Bubble Tea program the run drives.
type progressView interface {
	app.Sender
	Run() (tea.Model, error)
}

func newProgressView(ctx context.Context) func(tea.Model) progressView {
	return func(m tea.Model) progressView {
		return tea.NewProgram(m, tea.WithContext(ctx))
	}
}

// runWithProgressView runs the scheduler behind the progress view. If the view
// cannot run, the shards still run to completion without it.
func runWithProgressView(parent context.Context, opts orchestrator.Options, observers orchestrator.Observers, keys []shard.Key, newView func(tea.Model) progressView) (*orchestrator.Result, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// the view outlives a user cancel so it can show the run unwinding
	view := newView(app.NewRunModel(keys, cancel))
	opts.Observer = append(observers, app.Observer{Program: view})

	done := make(chan app.RunFinishedMsg, 1)
	go func() {
		start := time.Now()
		res, err := orchestrator.New(opts).Run(ctx, keys)
		msg := app.RunFinishedMsg{Result: res, Err: err, Start: start, End: time.Now()}
		done <- msg
		view.Send(msg)
	}()

	if _, err := view.Run(); err != nil {
		opts.Logger.Warn("Progress view stopped, continuing without it.", "error", err)
	}
	finished := <-done
	return finished.Result, finished.Err
}

func loadAndReport(ctx context.Context, cmd *cobra.Command, logger *slog.Logger, conn *sql.DB, dataDir string, categories []string) error {
	loads, err := loader.New(conn, dataDir, logger).Load(ctx, categories)
	for _, tl := range loads {
		fmt.Fprintf(cmd.OutOrStdout(), "Loaded %-22s %10d rows from %d files\n", tl.Table, tl.Rows, tl.Files)
	}
	if err != nil {
		return fmt.Errorf("load tables: %w", err)
	}
	return nil
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "List the shards that would be fetched or skipped and exit")
	runCmd.Flags().BoolVar(&runNoLoad, "no-load", false, "Skip loading outputs into DuckDB after fetching")
	runCmd.Flags().BoolVar(&runForce, "force", false, "Delete and re-fetch shards whose output already exists")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show an interactive progress view (logs go to "+tuiLogFile+" unless --log-output is a file)")
	runCmd.Flags().BoolVar(&runFailOnError, "fail-on-error", false, "Exit non-zero if any shard failed or was not attempted")
	runCmd.Flags().StringVar(&runOverrides.Category, "category", "", "Replace every dataset's taxi types with this one")
	runCmd.Flags().IntVar(&runOverrides.Year, "year", 0, "Replace every dataset's years with this one")
	runCmd.Flags().IntVar(&runOverrides.Month, "month", 0, "Replace every dataset's months with this one")
}
