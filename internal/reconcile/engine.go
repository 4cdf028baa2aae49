package reconcile

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/interpol/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/interpol/internal/shared/id"
	"github.com/GriffinCanCode/interpol/internal/shared/traceerr"
	"github.com/GriffinCanCode/interpol/internal/tracefile"
)

// ErrAlreadyCorrected is wrapped by the data error returned for a trace
// whose header says it was already reconciled.
var ErrAlreadyCorrected = errors.New("trace already corrected")

// Options configures an Engine.
type Options struct {
	// Reference is the rank whose clock the others are scaled to.
	Reference int
	// Workers bounds the ranks loaded and written concurrently; 0 means
	// GOMAXPROCS.
	Workers int
	// AllowRecorrection lets already corrected traces be corrected again,
	// treating their stored tsc values as raw.
	AllowRecorrection bool
	// DryRun computes the report without writing anything.
	DryRun bool

	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	IDs     *id.Generator
	Now     func() time.Time
}

// Engine rewrites the per-rank traces of one run onto the reference rank's
// timebase.
type Engine struct {
	opts   Options
	logger *zap.Logger
}

// New creates an engine.
func New(opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.IDs == nil {
		opts.IDs = id.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{opts: opts, logger: opts.Logger.Named("reconcile")}
}

// rankState carries one rank through the batch.
type rankState struct {
	rank    int
	path    string
	doc     *tracefile.Document
	anchors Anchors
	span    uint64
	drift   Drift
	staged  *tracefile.Staged
}

// ReconcilePattern reconciles ranks 0..ranks-1 of p, discovering the rank
// count when ranks is 0.
func (e *Engine) ReconcilePattern(ctx context.Context, p tracefile.Pattern, ranks int) (*Report, error) {
	paths, err := tracefile.Resolve(p, ranks)
	if err != nil {
		return nil, err
	}
	return e.Reconcile(ctx, paths)
}

// Reconcile corrects the traces at paths, where paths[i] holds rank i.
//
// The batch is all-or-nothing: every rank is loaded and checked first, and
// files are replaced only once every rank has been rewritten to a staged
// temporary file. The returned error combines the failure of every rank
// that could not be reconciled.
func (e *Engine) Reconcile(ctx context.Context, paths []string) (report *Report, err error) {
	start := e.opts.Now()
	defer func() {
		if err != nil {
			e.opts.Metrics.RecordFailure(traceerr.KindOf(err).String())
			e.logger.Error("Reconciliation aborted", zap.Error(err))
		}
	}()

	if len(paths) == 0 {
		return nil, traceerr.Configf("no trace files to reconcile")
	}
	ref := e.opts.Reference
	if ref < 0 || ref >= len(paths) {
		return nil, traceerr.Configf("reference rank %d outside 0..%d", ref, len(paths)-1)
	}

	states := make([]*rankState, len(paths))
	if err := e.forEach(ctx, len(paths), func(rank int) error {
		st, err := e.load(rank, paths[rank])
		states[rank] = st
		return err
	}); err != nil {
		return nil, err
	}

	refSpan := states[ref].span
	for _, st := range states {
		st.drift = Drift{Reference: refSpan, Span: st.span}
	}

	runID := e.opts.IDs.NewRunID()
	correctedAt := e.opts.Now().UTC()
	if err := e.forEach(ctx, len(states), func(rank int) error {
		return e.rewrite(states[rank], runID, correctedAt)
	}); err != nil {
		abort(states)
		return nil, err
	}

	if !e.opts.DryRun {
		if err := commit(ctx, states); err != nil {
			return nil, err
		}
	}

	report = newReport(runID, ref, e.opts.DryRun, states, e.opts.Now().Sub(start))
	for _, r := range report.Ranks {
		e.opts.Metrics.RecordRank(r.Rank, r.Ratio, r.Events)
		e.logger.Info("Rank reconciled",
			zap.Int("rank", r.Rank),
			zap.String("path", r.Path),
			zap.Uint64("init_tsc", r.Anchors.Init),
			zap.Uint64("finalize_tsc", r.Anchors.Finalize),
			zap.Uint64("span", r.Span),
			zap.Float64("ratio", r.Ratio))
	}
	if e.opts.Metrics != nil {
		e.opts.Metrics.ReconcileDuration.Observe(report.Elapsed.Seconds())
	}
	e.logger.Info("Reconciliation complete",
		zap.String("run_id", runID.String()),
		zap.Int("ranks", len(report.Ranks)),
		zap.Int("reference", ref),
		zap.Float64("max_skew_ppm", report.Summary.MaxSkewPPM),
		zap.Bool("dry_run", e.opts.DryRun),
		zap.Duration("elapsed", report.Elapsed))
	return report, nil
}

// forEach runs fn for every rank on at most Workers goroutines. It does not
// stop at the first failure so that every failing rank is reported.
func (e *Engine) forEach(ctx context.Context, n int, fn func(rank int) error) error {
	errs := make([]error, n)
	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for rank := 0; rank < n; rank++ {
		rank := rank
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[rank] = traceerr.ForRank(traceerr.KindIO, rank, "", "reconcile", err)
				return nil
			}
			errs[rank] = fn(rank)
			return nil
		})
	}
	_ = g.Wait()
	return multierr.Combine(errs...)
}

func (e *Engine) load(rank int, path string) (*rankState, error) {
	doc, err := tracefile.Read(path, rank)
	if err != nil {
		return nil, err
	}
	dataErr := func(op string, err error) error {
		return traceerr.ForRank(traceerr.KindData, rank, path, op, err)
	}

	if doc.Corrected() && !e.opts.AllowRecorrection {
		return nil, dataErr("guard", fmt.Errorf("%w by run %s", ErrAlreadyCorrected, doc.Clock.RunID))
	}
	anchors, err := FindAnchors(doc.Events)
	if err != nil {
		return nil, dataErr("anchors", err)
	}
	span, err := anchors.Span()
	if err != nil {
		return nil, dataErr("span", err)
	}
	return &rankState{rank: rank, path: path, doc: doc, anchors: anchors, span: span}, nil
}

func (e *Engine) rewrite(st *rankState, runID id.RunID, at time.Time) error {
	events, err := Correct(st.doc.Events, st.anchors, st.drift)
	if err != nil {
		return traceerr.ForRank(traceerr.KindData, st.rank, st.path, "transform", err)
	}

	doc := *st.doc
	doc.Events = events
	doc.Clock = tracefile.Clock{
		Corrected:     true,
		ReferenceRank: e.opts.Reference,
		Ratio:         st.drift.Ratio(),
		OriginTSC:     st.anchors.Init,
		RunID:         runID.String(),
		CorrectedAt:   &at,
	}
	st.doc = &doc

	if e.opts.DryRun {
		return nil
	}
	staged, err := tracefile.Stage(st.path, st.doc, tracefile.CompressionFor(st.path))
	if err != nil {
		return err
	}
	st.staged = staged
	return nil
}

// commit moves every staged file over its original. If any rename fails the
// ranks already replaced are rolled back so no trace is left half corrected.
func commit(ctx context.Context, states []*rankState) error {
	if err := ctx.Err(); err != nil {
		abort(states)
		return traceerr.New(traceerr.KindIO, "commit", err)
	}
	for i, st := range states {
		if err := st.staged.Commit(); err != nil {
			abort(states[i:])
			return multierr.Append(err, rollback(states[:i]))
		}
	}
	for _, st := range states {
		st.staged.Release()
	}
	return nil
}

func rollback(states []*rankState) error {
	var err error
	for i := len(states) - 1; i >= 0; i-- {
		err = multierr.Append(err, states[i].staged.Rollback())
	}
	return err
}

func abort(states []*rankState) {
	for _, st := range states {
		if st != nil && st.staged != nil {
			st.staged.Abort()
		}
	}
}

// Failures splits a batch error into its per-rank failures.
func Failures(err error) []*traceerr.Error {
	var out []*traceerr.Error
	for _, e := range multierr.Errors(err) {
		var terr *traceerr.Error
		if errors.As(e, &terr) {
			out = append(out, terr)
		}
	}
	return out
}
