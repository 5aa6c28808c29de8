// Package pipeline runs the stop cleaning job: extract the raw CSV, clean
// it column by column, and load the result into the CSV output and any
// configured database sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"trafficstops/internal/cleaning"
	"trafficstops/internal/config"
	"trafficstops/internal/datasource"
	"trafficstops/internal/metrics"
	csvparser "trafficstops/internal/parser/csv"
	"trafficstops/internal/storage"
	"trafficstops/internal/storage/csvfile"
	"trafficstops/internal/table"
)

// Logger is the logging surface the runner needs. *zap.SugaredLogger
// satisfies it.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debugw(string, ...any) {}
func (nopLogger) Infow(string, ...any)  {}
func (nopLogger) Warnw(string, ...any)  {}

// Step names used in logs and metrics.
const (
	StepExtract = "extract"
	StepClean   = "clean"
	StepLoad    = "load"
)

// Result describes a completed run.
type Result struct {
	RunID    string
	Rows     int
	Columns  []string
	Report   cleaning.Report
	Sinks    []SinkResult
	Duration time.Duration
}

// SinkResult is the outcome of loading one sink.
type SinkResult struct {
	Kind    string
	Target  string
	Written int64
}

// Runner executes the job. Every field is optional; zero values fall back to
// production behavior.
type Runner struct {
	Logger Logger

	// Open returns the raw source bytes.
	Open func(ctx context.Context, src config.Source) (io.ReadCloser, error)

	// NewRepository constructs a sink. Defaults to storage.New.
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

	// NewRunID returns the identifier attached to logs. Defaults to a UUIDv4.
	NewRunID func() string
}

// NewDefaultRunner wires the HTTP/file loader with the given client and
// timeout and the registered storage backends.
func NewDefaultRunner(log Logger, client *http.Client, timeout time.Duration) *Runner {
	loader := datasource.NewLoader(client, timeout)
	return &Runner{
		Logger:        log,
		Open:          loader.Open,
		NewRepository: storage.New,
		NewRunID:      uuid.NewString,
	}
}

func (r *Runner) logger() Logger {
	if r.Logger == nil {
		return nopLogger{}
	}
	return r.Logger
}

// Run executes extract, clean and load in order. Any step error aborts the
// run; sinks that were not committed are discarded.
func (r *Runner) Run(ctx context.Context, cfg config.Pipeline) (Result, error) {
	if err := config.Err(config.ValidatePipeline(cfg)); err != nil {
		return Result{}, err
	}

	newID := r.NewRunID
	if newID == nil {
		newID = uuid.NewString
	}
	res := Result{RunID: newID()}
	log := r.logger()
	kv := func(extra ...any) []any {
		return append([]any{"job", cfg.Job, "run_id", res.RunID}, extra...)
	}
	start := time.Now()

	var raw *table.Table
	err := r.step(ctx, StepExtract, kv, func(ctx context.Context) (err error) {
		raw, err = r.extract(ctx, cfg)
		if err != nil {
			return err
		}
		metrics.RecordRecords("read", raw.Len())
		log.Infow("source parsed", kv("rows", raw.Len(), "columns", len(raw.Columns()))...)
		return nil
	})
	if err != nil {
		return res, err
	}

	var cleaned *table.Table
	err = r.step(ctx, StepClean, kv, func(ctx context.Context) (err error) {
		d := &cleaning.Dispatcher{Registry: cleaning.NewRegistry(), Workers: cfg.Runtime.CleanWorkers}
		cleaned, res.Report, err = d.Clean(ctx, raw)
		if err != nil {
			return err
		}
		for _, c := range res.Report.Columns {
			metrics.RecordNulled(c.Column, c.Nulled)
			log.Debugw("column cleaned", kv("column", c.Column, "missing", c.Missing, "nulled", c.Nulled)...)
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	res.Rows = cleaned.Len()
	res.Columns = cleaned.Columns()

	err = r.step(ctx, StepLoad, kv, func(ctx context.Context) error {
		kinds := cleaning.NewRegistry().Kinds(res.Columns)
		for _, sink := range sinks(cfg) {
			sr, err := r.load(ctx, sink, cleaned, kinds, cfg.Runtime.BatchSize)
			if err != nil {
				return err
			}
			res.Sinks = append(res.Sinks, sr)
			metrics.RecordRecords("written", int(sr.Written))
			log.Infow("sink loaded", kv("sink", sr.Kind, "target", sr.Target, "rows", sr.Written)...)
		}
		return nil
	})
	res.Duration = time.Since(start)
	return res, err
}

// step runs fn, recording its duration and outcome.
func (r *Runner) step(ctx context.Context, name string, kv func(...any) []any, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := fn(ctx)
	dur := time.Since(start).Truncate(time.Millisecond)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordStep(name, status, dur)
	if err != nil {
		r.logger().Warnw("step failed", kv("stage", name, "duration", dur, "error", err)...)
		return fmt.Errorf("%s: %w", name, err)
	}
	r.logger().Infow("step finished", kv("stage", name, "duration", dur)...)
	return nil
}

func (r *Runner) extract(ctx context.Context, cfg config.Pipeline) (*table.Table, error) {
	open := r.Open
	if open == nil {
		open = datasource.NewLoader(nil, time.Duration(cfg.Source.TimeoutSec)*time.Second).Open
	}
	src, err := open(ctx, cfg.Source)
	if err != nil {
		return nil, err
	}
	// ReadTable closes src.
	return csvparser.ReadTable(ctx, src, cfg.Parser.Options, cfg.Runtime.ChannelBuffer)
}

// sinks lists the CSV output first, then configured storage.
func sinks(cfg config.Pipeline) []storage.Config {
	out := make([]storage.Config, 0, 1+len(cfg.Storage))
	out = append(out, storage.Config{Kind: csvfile.Kind, DSN: cfg.Output.Path})
	for _, s := range cfg.Storage {
		out = append(out, storage.Config{Kind: s.Kind, DSN: s.DSN, Table: s.Table})
	}
	return out
}

func (r *Runner) load(ctx context.Context, sc storage.Config, t *table.Table, kinds []table.Kind, batchSize int) (SinkResult, error) {
	name := sc.Table
	if name == "" {
		name = storage.DefaultTable
	}
	sr := SinkResult{Kind: sc.Kind, Target: name}
	if sc.Kind == csvfile.Kind {
		sr.Target = sc.DSN
	}

	newRepo := r.NewRepository
	if newRepo == nil {
		newRepo = storage.New
	}
	repo, err := newRepo(ctx, sc)
	if err != nil {
		return sr, fmt.Errorf("open %s sink: %w", sc.Kind, err)
	}
	defer repo.Close()

	spec, err := storage.NewTableSpec(name, t.Columns(), kinds)
	if err != nil {
		return sr, err
	}
	if err := repo.EnsureTable(ctx, spec); err != nil {
		return sr, fmt.Errorf("%s sink: %w", sc.Kind, err)
	}

	n, err := writeBatches(ctx, repo, name, t, batchSize)
	sr.Written = n
	if err != nil {
		return sr, fmt.Errorf("%s sink: %w", sc.Kind, err)
	}
	if err := repo.Commit(ctx); err != nil {
		return sr, fmt.Errorf("%s sink: %w", sc.Kind, err)
	}
	return sr, nil
}

// ErrShortWrite is returned when a sink accepts fewer rows than it was given.
var ErrShortWrite = errors.New("sink wrote fewer rows than given")

// writeBatches feeds t to repo batchSize rows at a time, reusing one backing
// array for every batch.
func writeBatches(ctx context.Context, repo storage.Repository, name string, t *table.Table, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}
	columns := t.Columns()
	width := len(columns)
	backing := make([]any, batchSize*width)
	batch := make([][]any, 0, batchSize)

	var total int64
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := repo.InsertRows(ctx, name, columns, batch)
		total += n
		if err != nil {
			return err
		}
		if n != int64(len(batch)) {
			return fmt.Errorf("%w: %d of %d", ErrShortWrite, n, len(batch))
		}
		batch = batch[:0]
		return nil
	}

	for i := 0; i < t.Len(); i++ {
		k := len(batch)
		row := t.Row(i, backing[k*width:k*width:(k+1)*width])
		batch = append(batch, row)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}
