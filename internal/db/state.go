package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb" // Driver

	"github.com/brensch/tripparquet/internal/orchestrator"
)

// Event names written to the log. Task states use their State.String() value.
const (
	EventRunStart = "run_start"
	EventRunEnd   = "run_end"
	EventAbort    = "abort"
)

// Schema SQL
const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS shard_event_log_id_seq;`
const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS shard_event_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('shard_event_log_id_seq'),
    run_id          VARCHAR NOT NULL,
    shard           VARCHAR NOT NULL,      -- category/yyyy-mm, empty for run-level events
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    stage           VARCHAR,               -- failing stage for failed shards
    message         VARCHAR,
    bytes           BIGINT,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_shard_event_log_shard ON shard_event_log (shard);
CREATE INDEX IF NOT EXISTS idx_shard_event_log_event_time ON shard_event_log (event, event_timestamp);
`

// InitializeSchema creates the sequence and the event log table in order.
func InitializeSchema(db *sql.DB) error {
	// 1. Create Sequence First
	_, err := db.Exec(schemaSequenceSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	// 2. Create Table and Indices
	_, err = db.Exec(schemaTableSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}

// ShardEvent is one row of the event log.
type ShardEvent struct {
	RunID     string
	Shard     string
	Event     string
	Timestamp time.Time
	Stage     string
	Message   string
	Bytes     int64
	Duration  time.Duration
}

// LogShardEvent inserts a new event record into the log.
func LogShardEvent(ctx context.Context, db *sql.DB, e ShardEvent) error {
	query := `
        INSERT INTO shard_event_log (run_id, shard, event, event_timestamp, stage, message, bytes, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?);
    `
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, query,
		e.RunID,
		e.Shard,
		e.Event,
		ts,
		sql.NullString{String: e.Stage, Valid: e.Stage != ""},
		sql.NullString{String: e.Message, Valid: e.Message != ""},
		sql.NullInt64{Int64: e.Bytes, Valid: e.Bytes > 0},
		sql.NullInt64{Int64: e.Duration.Milliseconds(), Valid: e.Duration > 0},
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s' for '%s': %w", e.Event, e.Shard, err)
	}
	return nil
}

// HistoryFilter narrows QueryShardHistory. Zero values match everything.
type HistoryFilter struct {
	Event string
	Shard string
	RunID string
	Limit int
}

// QueryShardHistory returns matching events, newest first.
func QueryShardHistory(ctx context.Context, db *sql.DB, f HistoryFilter) ([]ShardEvent, error) {
	query := `
        SELECT run_id, shard, event, event_timestamp, stage, message, bytes, duration_ms
        FROM shard_event_log
    `
	conditions := []string{}
	args := []any{}
	argCounter := 1 // Start with $1 for positional args

	for _, c := range []struct{ column, value string }{
		{"event", f.Event},
		{"shard", f.Shard},
		{"run_id", f.RunID},
	} {
		if c.value == "" {
			continue
		}
		conditions = append(conditions, fmt.Sprintf("%s = $%d", c.column, argCounter))
		args = append(args, c.value)
		argCounter++
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY event_timestamp DESC, log_id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCounter)
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event log: %w \n Query: %s \n Args: %v", err, query, args)
	}
	defer rows.Close()

	var events []ShardEvent
	for rows.Next() {
		var e ShardEvent
		var stage, message sql.NullString
		var bytes, durationMs sql.NullInt64
		if err := rows.Scan(&e.RunID, &e.Shard, &e.Event, &e.Timestamp, &stage, &message, &bytes, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan event log row: %w", err)
		}
		e.Stage = stage.String
		e.Message = message.String
		e.Bytes = bytes.Int64
		e.Duration = time.Duration(durationMs.Int64) * time.Millisecond
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event log rows: %w", err)
	}
	return events, nil
}

// DisplayShardHistory prints matching events to w as a table.
func DisplayShardHistory(ctx context.Context, db *sql.DB, w io.Writer, f HistoryFilter) error {
	events, err := QueryShardHistory(ctx, db, f)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "--- Shard Event Log (Limit %d) ---\n", f.Limit)
	fmt.Fprintf(w, "%-20s | %-14s | %-25s | %-8s | %-12s | %-10s | %s\n", "Shard", "Event", "Timestamp (UTC)", "Run", "Bytes", "DurationMS", "Message/Details")
	fmt.Fprintln(w, strings.Repeat("-", 130))
	for _, e := range events {
		durationStr := ""
		if e.Duration > 0 {
			durationStr = fmt.Sprintf("%d", e.Duration.Milliseconds())
		}
		bytesStr := ""
		if e.Bytes > 0 {
			bytesStr = fmt.Sprintf("%d", e.Bytes)
		}
		details := e.Message
		if e.Stage != "" {
			details = fmt.Sprintf("[%s] %s", e.Stage, details)
		}
		fmt.Fprintf(w, "%-20s | %-14s | %-25s | %-8s | %-12s | %-10s | %s\n",
			e.Shard, e.Event, e.Timestamp.Format(time.RFC3339), shortRunID(e.RunID), bytesStr, durationStr, details)
	}
	fmt.Fprintf(w, "Displayed %d records.\n", len(events))
	return nil
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// EventLog records scheduler events for one run. Write failures are logged and
// never interrupt the run.
type EventLog struct {
	ctx    context.Context
	db     *sql.DB
	logger *slog.Logger
	runID  string
	mu     sync.Mutex
}

// NewEventLog creates an event log with a fresh run id.
func NewEventLog(ctx context.Context, db *sql.DB, logger *slog.Logger) *EventLog {
	return &EventLog{
		ctx:    ctx,
		db:     db,
		logger: logger.With(slog.String("component", "event_log")),
		runID:  uuid.NewString(),
	}
}

// RunID identifies every row written by this log.
func (l *EventLog) RunID() string { return l.runID }

// Mark writes a run-level event such as EventRunStart.
func (l *EventLog) Mark(event, message string) {
	l.write(ShardEvent{Event: event, Message: message})
}

// Observe implements orchestrator.Observer. Progress events are not recorded.
func (l *EventLog) Observe(e orchestrator.Event) {
	switch e.Kind {
	case orchestrator.EventAbort:
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		l.write(ShardEvent{Event: EventAbort, Message: msg})
	case orchestrator.EventState:
		se := ShardEvent{
			Shard:    e.Key.String(),
			Event:    e.State.String(),
			Stage:    string(e.FailedIn),
			Bytes:    e.Written,
			Duration: e.Duration,
		}
		if e.Err != nil {
			se.Message = e.Err.Error()
		}
		l.write(se)
	}
}

func (l *EventLog) write(e ShardEvent) {
	e.RunID = l.runID
	l.mu.Lock()
	defer l.mu.Unlock()
	// the run context may already be cancelled, final states are still recorded
	if err := LogShardEvent(context.WithoutCancel(l.ctx), l.db, e); err != nil {
		l.logger.Warn("Failed to record shard event.", "error", err)
	}
}
