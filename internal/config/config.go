package config

import (
	"os"
	"time"
)

// DefaultBaseURL hosts one release per category, each holding the monthly csv.gz shards.
const DefaultBaseURL = "https://github.com/DataTalksClub/nyc-tlc-data/releases/download"

const (
	DefaultDataDir                = "data"
	DefaultDbPath                 = "taxi_rides_ny.duckdb"
	DefaultSelectionPath          = "download_config.yml"
	DefaultConcurrency            = 4
	DefaultMaxConsecutiveFailures = 5
	DefaultChunkSize              = 64 * 1024
	DefaultRequestTimeout         = 300 * time.Second

	// TokenEnvVar names the environment variable holding the optional bearer token.
	TokenEnvVar = "GITHUB_TOKEN"
)

// Config holds application settings
type Config struct {
	BaseURL                string
	DataDir                string
	DbPath                 string
	SelectionPath          string
	Concurrency            int
	MaxConsecutiveFailures int
	ChunkSize              int
	RequestTimeout         time.Duration
	Token                  string
	MetricsFile            string
}

// Default returns a Config populated with the package defaults.
func Default() Config {
	return Config{
		BaseURL:                DefaultBaseURL,
		DataDir:                DefaultDataDir,
		DbPath:                 DefaultDbPath,
		SelectionPath:          DefaultSelectionPath,
		Concurrency:            DefaultConcurrency,
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		ChunkSize:              DefaultChunkSize,
		RequestTimeout:         DefaultRequestTimeout,
	}
}

// TokenFromEnv returns the bearer token, or "" when none is configured.
func TokenFromEnv() string {
	return os.Getenv(TokenEnvVar)
}
