package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trafficstops/internal/config"
	"trafficstops/internal/logging"
	"trafficstops/internal/metrics"
	"trafficstops/internal/metrics/datadog"
	"trafficstops/internal/pipeline"

	// register all backends with the storage factory.
	// config picks which ones run, but the binary supports all of them.
	_ "trafficstops/internal/storage/all"
)

const usage = "usage: clean_stops [-config path] [-v] [-metrics-backend none|datadog] [-validate]"

// runner is the part of pipeline.Runner the CLI uses.
type runner interface {
	Run(ctx context.Context, cfg config.Pipeline) (pipeline.Result, error)
}

// metricsBackend is what initMetrics needs from a concrete backend.
type metricsBackend interface {
	Close() error
}

// appDeps are the side-effecting seams of runMain. Zero fields fall back to
// production behavior.
type appDeps struct {
	loadEnv     func() error
	loadConfig  func(path string) (config.Pipeline, error)
	newLogger   func(level, format string, w io.Writer) (*zap.Logger, error)
	newRunID    func() string
	initMetrics func(ctx context.Context, jobName, backendName, runID string) (func(), error)
	newRunner   func(log pipeline.Logger, runID string, cfg config.Pipeline) runner
}

func (d appDeps) withDefaults() appDeps {
	if d.loadEnv == nil {
		d.loadEnv = func() error { return config.LoadDotEnv() }
	}
	if d.loadConfig == nil {
		d.loadConfig = config.Load
	}
	if d.newLogger == nil {
		d.newLogger = logging.New
	}
	if d.newRunID == nil {
		d.newRunID = uuid.NewString
	}
	if d.initMetrics == nil {
		d.initMetrics = initMetrics
	}
	if d.newRunner == nil {
		d.newRunner = newRunner
	}
	return d
}

// Seams for initMetrics tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = func(b any) {
		if mb, ok := b.(metrics.Backend); ok {
			metrics.SetBackend(mb)
		}
	}
	logPrintf = func(format string, v ...any) {
		zap.S().Warnf(format, v...)
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, appDeps{})
	stop()
	os.Exit(code)
}

// runMain runs the CLI and returns the process exit code: 0 on success, 1 on
// runtime failure, 2 on usage errors.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	deps = deps.withDefaults()

	fs := flag.NewFlagSet("clean_stops", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "optional pipeline config (JSON or YAML); built-in defaults when empty")
	verbose := fs.Bool("v", false, "enable debug logs")
	backendName := fs.String("metrics-backend", os.Getenv("METRICS_BACKEND"), "metrics backend: none|datadog")
	validate := fs.Bool("validate", false, "validate the configuration and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, usage)
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %s\n%s\n", strings.Join(fs.Args(), " "), usage)
		return 2
	}

	if err := deps.loadEnv(); err != nil {
		fmt.Fprintf(stderr, "load env: %v\n", err)
		return 1
	}

	cfg := config.Default()
	if path := strings.TrimSpace(*cfgPath); path != "" {
		var err error
		if cfg, err = deps.loadConfig(path); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	hasError := false
	for _, iss := range config.ValidatePipeline(cfg) {
		fmt.Fprintln(stderr, iss.String())
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		fmt.Fprintln(stderr, "configuration is invalid")
		return 1
	}
	if *validate {
		fmt.Fprintln(stdout, "configuration is valid")
		return 0
	}

	logger, err := deps.newLogger(cfg.Logging.Level, cfg.Logging.Format, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	restore := zap.ReplaceGlobals(logger)
	defer restore()

	runID := deps.newRunID()
	log := logger.Sugar().With("job", cfg.Job)

	cleanup, err := deps.initMetrics(ctx, cfg.Job, *backendName, runID)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	log.Debugw("starting",
		"run_id", runID,
		"source_kind", cfg.Source.Kind,
		"output", cfg.Output.Path,
		"sinks", len(cfg.Storage),
		"metrics_backend", *backendName,
	)

	res, err := deps.newRunner(log, runID, cfg).Run(ctx, cfg)
	if err != nil {
		log.Errorw("run failed", "run_id", runID, "error", err)
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}

	log.Infow("run finished",
		"run_id", res.RunID,
		"rows", res.Rows,
		"duration", res.Duration.Truncate(time.Millisecond),
	)
	fmt.Fprintf(stdout, "wrote %d rows to %s\n", res.Rows, cfg.Output.Path)
	return 0
}

func newRunner(log pipeline.Logger, runID string, cfg config.Pipeline) runner {
	r := pipeline.NewDefaultRunner(log, nil, time.Duration(cfg.Source.TimeoutSec)*time.Second)
	r.NewRunID = func() string { return runID }
	return r
}

// initMetrics installs the selected metrics backend. The returned cleanup is
// never nil and is safe to call even when err != nil.
func initMetrics(ctx context.Context, jobName, backendName, runID string) (func(), error) {
	noop := func() {}

	switch strings.ToLower(strings.TrimSpace(backendName)) {
	case "", "none", "noop":
		return noop, nil

	case "datadog", "dd":
		// The backend flushes periodically and once more on Close, so long
		// downloads still produce a time series.
		tags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))
		if runID != "" {
			tags = append(tags, "run_id:"+runID)
		}
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return noop, err
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	default:
		return noop, fmt.Errorf("unknown metrics backend %q (want none|datadog)", backendName)
	}
}
