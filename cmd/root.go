package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	"github.com/spf13/cobra"

	"github.com/brensch/tripparquet/internal/config"
	"github.com/brensch/tripparquet/internal/db"
)

var (
	// Config flags - bound in init()
	selectionPath          string
	baseURL                string
	dataDir                string
	dbPath                 string
	concurrency            int
	maxConsecutiveFailures int
	chunkSize              int
	requestTimeout         time.Duration
	metricsFile            string
	logFormat              string
	logLevel               string
	logOutput              string

	// Global instances populated in PersistentPreRunE
	rootLogger *slog.Logger
	dbConn     *sql.DB
	appConfig  config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tripparquet",
	Short: "Fetch NYC taxi trip data shards, convert them to Parquet and load them into DuckDB.",
	Long: `tripparquet downloads the monthly NYC TLC trip record files selected in a YAML
document, converts each one to Parquet and loads every category into a DuckDB table.

The primary command is 'run'. Shards whose Parquet output already exists are skipped,
so repeated runs only fetch what is missing. Other commands load, inspect or show the
shard event log separately.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// --- 1. Initialize Logger ---
		// a missing .env is fine, the token is optional
		_ = godotenv.Load()

		logWriter, err := openLogOutput(logOutput)
		if err != nil {
			return err
		}
		rootLogger = newLogger(logWriter)
		slog.SetDefault(rootLogger) // Set for packages using global slog
		rootLogger.Debug("Logger initialized", "level", parseLevel(logLevel).String(), "format", logFormat, "output", logOutput)

		// --- 2. Load/Validate Config (from flags and env) ---
		appConfig = config.Config{
			BaseURL:                baseURL,
			DataDir:                dataDir,
			DbPath:                 dbPath,
			SelectionPath:          selectionPath,
			Concurrency:            concurrency,
			MaxConsecutiveFailures: maxConsecutiveFailures,
			ChunkSize:              chunkSize,
			RequestTimeout:         requestTimeout,
			Token:                  config.TokenFromEnv(),
			MetricsFile:            metricsFile,
		}
		rootLogger.Debug("Configuration loaded", slog.String("base_url", appConfig.BaseURL), slog.String("data_dir", appConfig.DataDir),
			slog.String("db_path", appConfig.DbPath), slog.Int("concurrency", appConfig.Concurrency), slog.Bool("token", appConfig.Token != ""))

		if appConfig.DataDir == "" || appConfig.DbPath == "" {
			return fmt.Errorf("--data-dir and --db-path flags are required")
		}
		if appConfig.Concurrency < 1 {
			return fmt.Errorf("--concurrency must be at least 1, got %d", appConfig.Concurrency)
		}
		if appConfig.MaxConsecutiveFailures < 1 {
			return fmt.Errorf("--max-consecutive-failures must be at least 1, got %d", appConfig.MaxConsecutiveFailures)
		}
		if appConfig.DbPath != ":memory:" {
			dbDir := filepath.Dir(appConfig.DbPath)
			if err := os.MkdirAll(dbDir, 0o755); err != nil {
				return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}

		// --- 3. Initialize DuckDB Connection & Schema ---
		rootLogger.Debug("Initializing DuckDB connection", "path", appConfig.DbPath)
		dsn := appConfig.DbPath
		if dsn == ":memory:" {
			dsn = ""
		}
		dbConn, err = sql.Open("duckdb", dsn)
		if err != nil {
			return fmt.Errorf("failed to open duckdb database (%s): %w", appConfig.DbPath, err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err = dbConn.PingContext(pingCtx); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to ping duckdb database (%s): %w", appConfig.DbPath, err)
		}

		if err := db.InitializeSchema(dbConn); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
		rootLogger.Debug("Database schema initialized successfully.")
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if dbConn != nil {
			rootLogger.Debug("Closing DuckDB connection.")
			if err := dbConn.Close(); err != nil {
				rootLogger.Error("Failed to close DuckDB connection cleanly", "error", err)
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.AddCommand(runCmd)     // Fetch, convert and load
	rootCmd.AddCommand(loadCmd)    // Load existing outputs only
	rootCmd.AddCommand(inspectCmd) // Summarize parquet outputs
	rootCmd.AddCommand(stateCmd)   // View shard event log

	err := rootCmd.Execute()
	if err != nil {
		if dbConn != nil {
			dbConn.Close()
		}
		if rootLogger != nil {
			rootLogger.Error("Command execution failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	def := config.Default()
	rootCmd.PersistentFlags().StringVar(&selectionPath, "config", def.SelectionPath, "YAML document selecting the datasets to fetch")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", def.BaseURL, "Base URL of the per-category releases")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", def.DataDir, "Directory holding <category>/<category>_tripdata_YYYY-MM.parquet outputs")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db-path", "d", def.DbPath, "Path to DuckDB database file (:memory: for in-memory)")
	rootCmd.PersistentFlags().IntVarP(&concurrency, "concurrency", "c", def.Concurrency, "Maximum concurrent fetches, and separately concurrent conversions")
	rootCmd.PersistentFlags().IntVar(&maxConsecutiveFailures, "max-consecutive-failures", def.MaxConsecutiveFailures, "Abort remaining shards after this many consecutive failures")
	rootCmd.PersistentFlags().IntVar(&chunkSize, "chunk-size", def.ChunkSize, "Read/write buffer size in bytes when streaming downloads")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout", def.RequestTimeout, "Overall timeout per download request")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics to this node exporter textfile")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text, json or pretty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	rootCmd.Version = "0.1.0"
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openLogOutput resolves --log-output. File handles stay open until the process exits.
func openLogOutput(dest string) (io.Writer, error) {
	switch strings.ToLower(dest) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}
	f, err := os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", dest, err)
	}
	return f, nil
}

// logsToTerminal reports whether --log-output points at the terminal streams.
func logsToTerminal() bool {
	switch strings.ToLower(logOutput) {
	case "", "stderr", "stdout":
		return true
	}
	return false
}

func newLogger(w io.Writer) *slog.Logger {
	level := parseLevel(logLevel)
	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case "pretty":
		handler = tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.RFC3339})
	default:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

func getDB() *sql.DB {
	return dbConn
}

func getConfig() config.Config {
	return appConfig
}
