package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/brensch/tripparquet/internal/orchestrator"
)

var (
	// ShardsTotal counts finished shard tasks per category and outcome
	ShardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripparquet_shards_total",
			Help: "Total number of shard tasks by terminal state",
		},
		[]string{"category", "outcome"},
	)

	// FetchFailuresTotal counts failed tasks per category and failing stage
	FetchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripparquet_shard_failures_total",
			Help: "Total number of failed shard tasks by stage",
		},
		[]string{"category", "stage"},
	)

	// BytesFetched tracks payload bytes written to intermediate files
	BytesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripparquet_bytes_fetched_total",
			Help: "Total payload bytes fetched",
		},
		[]string{"category"},
	)

	// RowsConverted tracks rows written to columnar outputs
	RowsConverted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripparquet_rows_converted_total",
			Help: "Total rows written to parquet outputs",
		},
		[]string{"category"},
	)

	// ShardDuration tracks wall time of completed and failed tasks
	ShardDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripparquet_shard_duration_seconds",
			Help:    "Shard task duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"category", "outcome"},
	)

	// BreakerTrips counts runs aborted by the circuit breaker
	BreakerTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripparquet_breaker_trips_total",
			Help: "Total number of runs aborted after consecutive failures",
		},
	)
)

// Recorder feeds scheduler events into the package metrics.
type Recorder struct{}

func (Recorder) Observe(e orchestrator.Event) {
	switch e.Kind {
	case orchestrator.EventAbort:
		BreakerTrips.Inc()
	case orchestrator.EventState:
		if !e.State.Terminal() {
			return
		}
		cat := e.Key.Category
		outcome := e.State.String()
		ShardsTotal.WithLabelValues(cat, outcome).Inc()
		switch e.State {
		case orchestrator.Done:
			BytesFetched.WithLabelValues(cat).Add(float64(e.Written))
			RowsConverted.WithLabelValues(cat).Add(float64(e.Rows))
			ShardDuration.WithLabelValues(cat, outcome).Observe(e.Duration.Seconds())
		case orchestrator.Failed:
			FetchFailuresTotal.WithLabelValues(cat, string(e.FailedIn)).Inc()
			ShardDuration.WithLabelValues(cat, outcome).Observe(e.Duration.Seconds())
		}
	}
}

// WriteTextfile writes the default registry in the node exporter textfile format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
