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

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/interpol/internal/infrastructure/config"
	"github.com/GriffinCanCode/interpol/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/interpol/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/interpol/internal/logging"
	"github.com/GriffinCanCode/interpol/internal/reconcile"
	"github.com/GriffinCanCode/interpol/internal/shared/traceerr"
	"github.com/GriffinCanCode/interpol/internal/timeline"
	"github.com/GriffinCanCode/interpol/internal/tracefile"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configFile string
	jsonReport bool
	cfg        *config.Config
}

// parseFlags loads the configuration and applies the flags that were set on
// top of it.
func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("interpol-sync", flag.ContinueOnError)
	fs.SetOutput(stderr)

	defaults := config.Default()
	configFile := fs.String("config", "", "YAML or TOML configuration file")
	dir := fs.String("dir", defaults.Trace.Dir, "Directory holding the trace files")
	pattern := fs.String("pattern", defaults.Trace.Pattern, "Trace file name pattern, with * standing for the rank")
	ranks := fs.Int("ranks", 0, "Number of ranks (0 discovers them)")
	reference := fs.Int("reference", 0, "Reference rank")
	compression := fs.String("compression", defaults.Trace.Compression, "Compression of the trace files: none, gzip or zstd")
	workers := fs.Int("workers", 0, "Ranks processed concurrently (0 uses GOMAXPROCS)")
	recorrect := fs.Bool("allow-recorrection", false, "Correct traces that were already corrected")
	dryRun := fs.Bool("dry-run", false, "Report the drift without rewriting files")
	merged := fs.String("merged", "", "Write the merged trace to this file")
	chrome := fs.String("chrome", "", "Write a Chrome trace to this file")
	cycles := fs.Float64("cycles-per-us", defaults.Timeline.CyclesPerMicrosecond, "Counter ticks per microsecond for the Chrome trace")
	logLevel := fs.String("log-level", defaults.Logging.Level, "Log level: debug, info, warn or error")
	dev := fs.Bool("dev", false, "Human readable debug logs")
	metricsFile := fs.String("metrics-file", "", "Write Prometheus metrics to this text file")
	jsonReport := fs.Bool("json", false, "Print the report as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, traceerr.New(traceerr.KindConfig, "parse flags", err)
	}
	if fs.NArg() > 0 {
		return nil, traceerr.Configf("unexpected arguments %q", fs.Args())
	}

	var (
		cfg *config.Config
		err error
	)
	if *configFile != "" {
		cfg, err = config.LoadFile(*configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dir":
			cfg.Trace.Dir = *dir
		case "pattern":
			cfg.Trace.Pattern = *pattern
		case "ranks":
			cfg.Trace.Ranks = *ranks
		case "reference":
			cfg.Trace.Reference = *reference
		case "compression":
			cfg.Trace.Compression = *compression
		case "workers":
			cfg.Reconcile.Workers = *workers
		case "allow-recorrection":
			cfg.Reconcile.AllowRecorrection = *recorrect
		case "dry-run":
			cfg.Reconcile.DryRun = *dryRun
		case "merged":
			cfg.Timeline.MergedPath = *merged
		case "chrome":
			cfg.Timeline.ChromePath = *chrome
		case "cycles-per-us":
			cfg.Timeline.CyclesPerMicrosecond = *cycles
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "dev":
			cfg.Logging.Development = *dev
		case "metrics-file":
			cfg.Metrics.TextfilePath = *metricsFile
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &options{configFile: *configFile, jsonReport: *jsonReport, cfg: cfg}, nil
}

// tracePattern returns the configured pattern, adding the compression
// suffix when the pattern does not already carry one.
func tracePattern(cfg *config.Config) (tracefile.Pattern, error) {
	c, err := tracefile.ParseCompression(cfg.Trace.Compression)
	if err != nil {
		return tracefile.Pattern{}, traceerr.New(traceerr.KindConfig, "compression", err)
	}
	raw := cfg.TracePattern()
	if tracefile.CompressionFor(raw) == tracefile.None && !strings.HasSuffix(raw, c.Ext()) {
		raw += c.Ext()
	}
	return tracefile.ParsePattern(raw)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "interpol-sync: %v\n", err)
		return exitUsage
	}
	cfg := opts.cfg

	logCfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		logCfg = logging.DevelopmentConfig()
	}
	logCfg.Level = cfg.Logging.Level
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(stderr, "interpol-sync: %v\n", err)
		return exitUsage
	}
	defer logger.Sync()
	log := logger.Component("sync")

	pattern, err := tracePattern(cfg)
	if err != nil {
		log.Error("Invalid trace pattern", zap.Error(err))
		return exitUsage
	}
	log.Info("Starting reconciliation",
		zap.String("config", opts.configFile),
		zap.String("pattern", pattern.String()),
		zap.Int("ranks", cfg.Trace.Ranks),
		zap.Int("reference", cfg.Trace.Reference),
		zap.Bool("dry_run", cfg.Reconcile.DryRun))

	metrics := monitoring.NewMetrics(nil)
	engine := reconcile.New(reconcile.Options{
		Reference:         cfg.Trace.Reference,
		Workers:           cfg.Reconcile.Workers,
		AllowRecorrection: cfg.Reconcile.AllowRecorrection,
		DryRun:            cfg.Reconcile.DryRun,
		Logger:            logger.Logger,
		Metrics:           metrics,
	})
	popts := []timeline.Option{
		timeline.WithLogger(logger.Logger),
		timeline.WithMetrics(metrics),
		timeline.WithTracer(tracing.New(logger.Logger)),
	}
	if cfg.Timeline.MergedPath != "" {
		popts = append(popts, timeline.WithMergedPath(cfg.Timeline.MergedPath))
	}
	if cfg.Timeline.ChromePath != "" {
		popts = append(popts, timeline.WithChrome(cfg.Timeline.ChromePath, cfg.Timeline.CyclesPerMicrosecond))
	}

	res, err := timeline.NewPipeline(engine, pattern, popts...).Execute(ctx, cfg.Trace.Ranks)
	code := exitOK
	if err != nil {
		for _, f := range reconcile.Failures(err) {
			log.Error("Rank failed",
				logging.Rank(f.Rank),
				logging.Path(f.Path),
				zap.String("kind", f.Kind.String()),
				zap.String("op", f.Op),
				zap.Error(f.Err))
		}
		fmt.Fprintf(stderr, "interpol-sync: %v\n", err)
		code = exitFailed
		if traceerr.KindOf(err) == traceerr.KindConfig {
			code = exitUsage
		}
	} else if err := printReport(stdout, res.Report, opts.jsonReport); err != nil {
		log.Error("Failed to print report", zap.Error(err))
		code = exitFailed
	}

	if path := cfg.Metrics.TextfilePath; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			log.Warn("Failed to write metrics", logging.Path(path), zap.Error(err))
		}
	}
	return code
}

func printReport(w io.Writer, report *reconcile.Report, asJSON bool) error {
	if !asJSON {
		return report.WriteTable(w)
	}
	return sonic.ConfigStd.NewEncoder(w).Encode(report)
}
