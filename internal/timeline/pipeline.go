package timeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/interpol/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/interpol/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/interpol/internal/reconcile"
	"github.com/GriffinCanCode/interpol/internal/tracefile"
)

// Pipeline is the post-run pass over a job's trace files: reconcile every
// rank, then merge the corrected traces and export them.
type Pipeline struct {
	engine     *reconcile.Engine
	pattern    tracefile.Pattern
	mergedPath string
	chromePath string
	cycles     float64
	logger     *zap.Logger
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMergedPath writes the merged trace to path, compressed according to
// its suffix.
func WithMergedPath(path string) Option {
	return func(p *Pipeline) { p.mergedPath = path }
}

// WithChrome exports the merged trace as a Chrome trace to path.
func WithChrome(path string, cyclesPerMicrosecond float64) Option {
	return func(p *Pipeline) {
		p.chromePath = path
		p.cycles = cyclesPerMicrosecond
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records merge sizes in m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracer times each phase of a run as a span.
func WithTracer(t *tracing.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// NewPipeline creates a pipeline over the trace files named by pattern.
func NewPipeline(engine *reconcile.Engine, pattern tracefile.Pattern, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:  engine,
		pattern: pattern,
		cycles:  1000,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("timeline")
	return p
}

// Result is the outcome of a pipeline run. Merged is nil for a dry run.
type Result struct {
	Report     *reconcile.Report
	Merged     *tracefile.Document
	MergedPath string
	ChromePath string
}

// Execute reconciles ranks 0..ranks-1, or every rank found when ranks is 0,
// then merges and exports them. A dry run stops after reconciliation since
// nothing corrected was written.
func (p *Pipeline) Execute(ctx context.Context, ranks int) (res *Result, err error) {
	root, ctx := p.tracer.StartSpan(ctx, "pipeline")
	defer func() {
		root.SetError(err)
		root.Finish()
	}()

	report, err := p.reconcile(ctx, ranks)
	if err != nil {
		return nil, err
	}
	res = &Result{Report: report}
	root.SetTag("run_id", report.RunID.String())
	if report.DryRun {
		return res, nil
	}

	merged, err := p.merge(ctx, report)
	if err != nil {
		return nil, err
	}
	res.Merged = merged
	p.metrics.SetMergedEvents(len(merged.Events))

	if p.mergedPath != "" {
		if err := p.writeMerged(ctx, merged); err != nil {
			return nil, err
		}
		res.MergedPath = p.mergedPath
	}
	if p.chromePath != "" {
		span, _ := p.tracer.StartSpan(ctx, "export_chrome")
		err := WriteChrome(p.chromePath, merged, p.cycles)
		span.SetError(err)
		span.Finish()
		if err != nil {
			return nil, err
		}
		res.ChromePath = p.chromePath
		p.logger.Info("Chrome trace written", zap.String("path", p.chromePath))
	}
	return res, nil
}

func (p *Pipeline) reconcile(ctx context.Context, ranks int) (*reconcile.Report, error) {
	span, ctx := p.tracer.StartSpan(ctx, "reconcile")
	defer span.Finish()
	report, err := p.engine.ReconcilePattern(ctx, p.pattern, ranks)
	span.SetError(err)
	return report, err
}

// merge reads back the corrected files of report and merges them.
func (p *Pipeline) merge(ctx context.Context, report *reconcile.Report) (*tracefile.Document, error) {
	span, _ := p.tracer.StartSpan(ctx, "merge")
	defer span.Finish()

	docs := make([]*tracefile.Document, len(report.Ranks))
	for i, r := range report.Ranks {
		doc, err := tracefile.Read(r.Path, r.Rank)
		if err != nil {
			span.SetError(err)
			return nil, err
		}
		docs[i] = doc
	}
	merged, err := Merge(docs)
	span.SetError(err)
	return merged, err
}

func (p *Pipeline) writeMerged(ctx context.Context, merged *tracefile.Document) error {
	span, _ := p.tracer.StartSpan(ctx, "write_merged")
	defer span.Finish()

	size, err := tracefile.Write(p.mergedPath, merged, tracefile.CompressionFor(p.mergedPath))
	if err != nil {
		span.SetError(err)
		return err
	}
	p.logger.Info("Merged trace written",
		zap.String("path", p.mergedPath),
		zap.Int("ranks", merged.Ranks),
		zap.Int("events", len(merged.Events)),
		zap.Int64("bytes", size))
	return nil
}

// Run executes the pipeline over size ranks. It lets the pipeline serve as
// the capture session's finalize trigger.
func (p *Pipeline) Run(ctx context.Context, size int) error {
	_, err := p.Execute(ctx, size)
	return err
}
