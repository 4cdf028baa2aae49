package timeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/interpol/internal/capture"
	"github.com/GriffinCanCode/interpol/internal/event"
	"github.com/GriffinCanCode/interpol/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/interpol/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/interpol/internal/reconcile"
	"github.com/GriffinCanCode/interpol/internal/shared/traceerr"
	"github.com/GriffinCanCode/interpol/internal/testutil"
	"github.com/GriffinCanCode/interpol/internal/tracefile"
)

var _ capture.Trigger = (*Pipeline)(nil)

func newPipeline(t *testing.T, p tracefile.Pattern, opts reconcile.Options, extra ...Option) *Pipeline {
	t.Helper()
	logger := zaptest.NewLogger(t)
	opts.Logger = logger
	return NewPipeline(reconcile.New(opts), p, append([]Option{WithLogger(logger)}, extra...)...)
}

func TestPipelineExecute(t *testing.T) {
	dir := t.TempDir()
	job := testutil.NewJob(1_000_000,
		testutil.Ideal(10_000),
		testutil.Clock{Offset: 0, Num: 3, Den: 2},
		testutil.Clock{Offset: 77_000, Num: 1, Den: 2},
	)
	p, _ := testutil.WriteJob(t, dir, "rank*_traces.json", job)
	metrics := monitoring.NewMetrics(nil)
	mergedPath := filepath.Join(dir, "merged.json.zst")
	chromePath := filepath.Join(dir, "trace.json")
	tracer := tracing.New(zaptest.NewLogger(t))

	res, err := newPipeline(t, p, reconcile.Options{},
		WithMergedPath(mergedPath),
		WithChrome(chromePath, 1000),
		WithMetrics(metrics),
		WithTracer(tracer),
	).Execute(context.Background(), 0)
	require.NoError(t, err)

	require.NotNil(t, res.Merged)
	assert.Len(t, res.Report.Ranks, 3)
	assert.Len(t, res.Merged.Events, 30)
	assert.Equal(t, 3, res.Merged.Ranks)
	assert.Equal(t, -1, res.Merged.Events.Disorder())
	assert.Equal(t, res.Report.RunID.String(), res.Merged.Clock.RunID)

	onDisk, err := tracefile.Read(mergedPath, tracefile.MergedRank)
	require.NoError(t, err)
	assert.Equal(t, res.Merged.Events, onDisk.Events)

	reqs := Requests(onDisk.Events)
	assert.Len(t, reqs, 9)
	for _, r := range reqs {
		assert.True(t, r.Complete, "rank %d handle %d", r.Rank, r.HandleID)
	}

	_, err = os.Stat(chromePath)
	assert.NoError(t, err)

	var gauge dto.Metric
	require.NoError(t, metrics.MergedEvents.Write(&gauge))
	assert.Equal(t, 30.0, gauge.GetGauge().GetValue())

	var phases []string
	for _, span := range tracer.Spans() {
		phases = append(phases, span.Name)
		assert.NoError(t, span.Error)
	}
	assert.Equal(t, []string{"reconcile", "merge", "write_merged", "export_chrome", "pipeline"}, phases)
}

func TestPipelineDryRunStopsAfterReconcile(t *testing.T) {
	dir := t.TempDir()
	job := testutil.NewJob(1000, testutil.Ideal(0), testutil.Ideal(100))
	p, _ := testutil.WriteJob(t, dir, "rank*_traces.json", job)
	mergedPath := filepath.Join(dir, "merged.json")

	res, err := newPipeline(t, p, reconcile.Options{DryRun: true}, WithMergedPath(mergedPath)).
		Execute(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, res.Report.DryRun)
	assert.Nil(t, res.Merged)

	_, err = os.Stat(mergedPath)
	assert.True(t, os.IsNotExist(err))
}

func TestPipelinePropagatesReconcileFailure(t *testing.T) {
	dir := t.TempDir()
	traces := testutil.NewJob(1000, testutil.Ideal(0), testutil.Ideal(0)).Traces()
	traces[1] = traces[1][:len(traces[1])-1]
	p, _ := testutil.WriteTraces(t, dir, "rank*_traces.json", traces)

	tracer := tracing.New(zaptest.NewLogger(t))
	err := newPipeline(t, p, reconcile.Options{}, WithTracer(tracer)).Run(context.Background(), 2)
	assert.ErrorIs(t, err, traceerr.ErrData)

	spans := tracer.Spans()
	require.Len(t, spans, 2)
	assert.Equal(t, "reconcile", spans[0].Name)
	assert.ErrorIs(t, spans[1].Error, traceerr.ErrData)
}

// Captures a run on several goroutine ranks with the pipeline as the
// finalize trigger of rank 0.
func TestCaptureThenPipeline(t *testing.T) {
	const size = 3
	dir := t.TempDir()
	pattern := tracefile.MustParsePattern(filepath.Join(dir, "rank*_traces.json.gz"))
	writer := tracefile.NewWriter(pattern, tracefile.WithCompression(pattern.Compression()))
	mergedPath := filepath.Join(dir, "merged.json")
	pipeline := newPipeline(t, pattern, reconcile.Options{}, WithMergedPath(mergedPath))
	barrier := capture.NewLocalBarrier(size)

	var wg sync.WaitGroup
	errs := make([]error, size)
	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			var ticks atomic.Uint64
			step := uint64(rank + 1)
			counter := capture.CounterFunc(func() uint64 { return ticks.Add(step) - step })

			s, err := capture.Init(capture.Config{
				Rank:    rank,
				Size:    size,
				Writer:  writer,
				Barrier: barrier,
				Trigger: pipeline,
				Counter: counter,
				Clock:   func() time.Time { return time.Unix(1700000000, 0) },
			})
			if err != nil {
				errs[rank] = err
				return
			}
			r := s.Rank()
			s.Record(event.Isend(r, (r+1)%size, 8, 0, 40, 0, s.Measure(func() {})))
			s.Record(event.Wait(r, 40, s.Measure(func() {})))
			_, errs[rank] = s.Finalize(context.Background())
		}(rank)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	merged, err := tracefile.Read(mergedPath, tracefile.MergedRank)
	require.NoError(t, err)
	assert.Len(t, merged.Events, 4*size)
	assert.Equal(t, -1, merged.Events.Disorder())
	assert.Len(t, Requests(merged.Events), size)
}
