package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/brensch/tripparquet/internal/config"
	"github.com/brensch/tripparquet/internal/downloader"
	"github.com/brensch/tripparquet/internal/shard"
)

// ErrEmptySelection is returned by Run when there are no shards to schedule.
var ErrEmptySelection = errors.New("no shards selected")

// Fetcher streams a remote payload to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string, progress downloader.ProgressFunc) (int64, error)
}

// Converter turns an intermediate payload into the columnar output, removing src on success.
type Converter interface {
	Convert(ctx context.Context, src, dst string) (int64, error)
}

// Options configures a Scheduler.
type Options struct {
	Layout    shard.Layout
	Fetcher   Fetcher
	Converter Converter
	// Concurrency bounds fetches in flight and, separately, conversions in flight.
	Concurrency int
	// MaxConsecutiveFailures trips the circuit breaker.
	MaxConsecutiveFailures int
	// Force re-fetches shards whose output already exists.
	Force    bool
	Logger   *slog.Logger
	Observer Observer
}

// Scheduler runs fetch and convert for each shard with bounded concurrency.
type Scheduler struct {
	opts   Options
	logger *slog.Logger
}

// New creates a scheduler, applying defaults to unset options.
func New(opts Options) *Scheduler {
	if opts.Concurrency < 1 {
		opts.Concurrency = config.DefaultConcurrency
	}
	if opts.MaxConsecutiveFailures < 1 {
		opts.MaxConsecutiveFailures = config.DefaultMaxConsecutiveFailures
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = Observers(nil)
	}
	return &Scheduler{opts: opts, logger: opts.Logger.With(slog.String("component", "scheduler"))}
}

type convertJob struct {
	src, dst string
	done     chan convertResult
}

type convertResult struct {
	rows int64
	err  error
}

// run holds the state shared by every task of a single Run call.
type run struct {
	breaker *CircuitBreaker
	slots   *semaphore.Weighted
	jobs    chan convertJob
}

// Run processes keys and returns one record per distinct key, in input order.
// Partial failure is reported through the result, not the error. The error is
// ErrEmptySelection for no keys, or the context error if ctx ended during the run.
func (s *Scheduler) Run(ctx context.Context, keys []shard.Key) (*Result, error) {
	keys = uniqueKeys(keys)
	if len(keys) == 0 {
		return nil, ErrEmptySelection
	}
	start := time.Now()
	s.logger.Info("Starting shard run.",
		slog.Int("shards", len(keys)),
		slog.Int("concurrency", s.opts.Concurrency),
		slog.Int("max_consecutive_failures", s.opts.MaxConsecutiveFailures),
		slog.Bool("force", s.opts.Force),
	)

	r := &run{
		breaker: NewCircuitBreaker(s.opts.MaxConsecutiveFailures),
		slots:   semaphore.NewWeighted(int64(s.opts.Concurrency)),
		jobs:    make(chan convertJob),
	}

	// --- Conversion pool ---
	var poolWg sync.WaitGroup
	for i := 0; i < s.opts.Concurrency; i++ {
		poolWg.Add(1)
		go s.convertWorker(ctx, i, r.jobs, &poolWg)
	}

	// --- Tasks, launched in key order ---
	records := make([]*TaskRecord, len(keys))
	var taskWg sync.WaitGroup
	for i, k := range keys {
		rec := newTaskRecord(k, s.opts.Layout)
		records[i] = rec
		taskWg.Add(1)
		go func() {
			defer taskWg.Done()
			s.runTask(ctx, r, rec)
		}()
	}
	taskWg.Wait()
	close(r.jobs)
	poolWg.Wait()

	res := &Result{Records: records, Aborted: r.breaker.Aborted()}
	c := res.Counts()
	s.logger.Info("Shard run finished.",
		slog.Int("succeeded", c.Succeeded),
		slog.Int("skipped", c.Skipped),
		slog.Int("failed", c.Failed),
		slog.Int("not_attempted", c.NotAttempted),
		slog.Bool("aborted", res.Aborted),
		slog.Duration("duration", time.Since(start).Round(time.Millisecond)),
	)
	return res, ctx.Err()
}

func (s *Scheduler) runTask(ctx context.Context, r *run, rec *TaskRecord) {
	l := s.logger.With(slog.String("shard", rec.Key.String()))
	start := time.Now()
	held := false
	release := func() {
		if held {
			r.slots.Release(1)
			held = false
		}
	}
	defer func() {
		if p := recover(); p != nil {
			l.Error("Recovered panic in shard task.", "panic", p)
			if !rec.State.Terminal() {
				s.fail(ctx, l, r, rec, rec.stage(), fmt.Errorf("task panic: %v", p), start)
			}
		}
		release()
		if err := os.Remove(rec.IntermediatePath); err != nil && !os.IsNotExist(err) {
			l.Warn("Failed to remove intermediate file.", "path", rec.IntermediatePath, "error", err)
		}
	}()

	if r.breaker.Aborted() {
		s.finish(rec, NotAttempted, start)
		return
	}
	if err := r.slots.Acquire(ctx, 1); err != nil {
		rec.Err = err
		s.finish(rec, NotAttempted, start)
		return
	}
	held = true
	// the breaker may have tripped while this task waited for a slot
	if r.breaker.Aborted() || ctx.Err() != nil {
		rec.Err = ctx.Err()
		s.finish(rec, NotAttempted, start)
		return
	}

	if s.opts.Layout.Exists(rec.Key) {
		if !s.opts.Force {
			l.Debug("Output present, skipping shard.", "path", rec.OutputPath)
			// a present output ends a failure streak like a completed shard does
			r.breaker.RecordSuccess()
			s.finish(rec, Skipped, start)
			return
		}
		if err := os.Remove(rec.OutputPath); err != nil && !os.IsNotExist(err) {
			s.fail(ctx, l, r, rec, StageFetch, fmt.Errorf("remove existing output %s: %w", rec.OutputPath, err), start)
			return
		}
		l.Info("Force enabled, removed existing output.", "path", rec.OutputPath)
	}

	// --- Fetch ---
	s.setState(rec, Fetching)
	l.Info("Fetching shard.", "url", rec.RemoteURL)
	n, err := s.opts.Fetcher.Fetch(ctx, rec.RemoteURL, rec.IntermediatePath, func(written, total int64) {
		s.opts.Observer.Observe(Event{Kind: EventProgress, Key: rec.Key, State: Fetching, Written: written, Total: total})
	})
	rec.Bytes = n
	if err != nil {
		// recorded while the slot is still held so waiting tasks see the breaker state
		s.fail(ctx, l, r, rec, StageFetch, err, start)
		return
	}
	release()

	// --- Convert ---
	s.setState(rec, Converting)
	rows, err := s.convert(ctx, r.jobs, rec)
	if err != nil {
		s.fail(ctx, l, r, rec, StageConvert, err, start)
		return
	}
	rec.Rows = rows
	r.breaker.RecordSuccess()
	s.finish(rec, Done, start)
	l.Info("Shard complete.",
		slog.Int64("bytes", rec.Bytes),
		slog.Int64("rows", rows),
		slog.Duration("duration", rec.Duration.Round(time.Millisecond)),
	)
}

// convert hands the task to the conversion pool and waits for its result.
func (s *Scheduler) convert(ctx context.Context, jobs chan<- convertJob, rec *TaskRecord) (int64, error) {
	job := convertJob{src: rec.IntermediatePath, dst: rec.OutputPath, done: make(chan convertResult, 1)}
	select {
	case jobs <- job:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	res := <-job.done
	return res.rows, res.err
}

func (s *Scheduler) convertWorker(ctx context.Context, id int, jobs <-chan convertJob, wg *sync.WaitGroup) {
	defer wg.Done()
	s.logger.Debug("Conversion worker started.", slog.Int("worker_id", id))
	for job := range jobs {
		rows, err := s.safeConvert(ctx, job)
		job.done <- convertResult{rows: rows, err: err}
	}
	s.logger.Debug("Conversion worker finished.", slog.Int("worker_id", id))
}

func (s *Scheduler) safeConvert(ctx context.Context, job convertJob) (rows int64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("converter panic: %v", p)
		}
	}()
	return s.opts.Converter.Convert(ctx, job.src, job.dst)
}

// fail marks rec failed and feeds the breaker. Failures caused by the run's own
// cancellation are not counted.
func (s *Scheduler) fail(ctx context.Context, l *slog.Logger, r *run, rec *TaskRecord, stage Stage, err error, start time.Time) {
	rec.FailedIn = stage
	rec.Err = err
	l.Error("Shard failed.", slog.String("stage", string(stage)), "error", err)
	s.finish(rec, Failed, start)
	if ctx.Err() != nil {
		return
	}
	if r.breaker.RecordFailure() {
		s.logger.Error("Too many consecutive failures, aborting remaining shards.",
			slog.Int("threshold", s.opts.MaxConsecutiveFailures),
			slog.String("last_shard", rec.Key.String()),
		)
		s.opts.Observer.Observe(Event{Kind: EventAbort, Err: err})
	}
}

func (s *Scheduler) finish(rec *TaskRecord, state State, start time.Time) {
	rec.Duration = time.Since(start)
	s.setState(rec, state)
}

func (s *Scheduler) setState(rec *TaskRecord, state State) {
	rec.transition(state)
	s.opts.Observer.Observe(Event{
		Kind:     EventState,
		Key:      rec.Key,
		State:    state,
		FailedIn: rec.FailedIn,
		Err:      rec.Err,
		Written:  rec.Bytes,
		Rows:     rec.Rows,
		Duration: rec.Duration,
	})
}

func uniqueKeys(keys []shard.Key) []shard.Key {
	seen := make(map[shard.Key]struct{}, len(keys))
	out := make([]shard.Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
