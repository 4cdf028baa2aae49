package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/interpol/internal/event"
	"github.com/GriffinCanCode/interpol/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/interpol/internal/shared/traceerr"
	"github.com/GriffinCanCode/interpol/internal/testutil"
	"github.com/GriffinCanCode/interpol/internal/tracefile"
)

// stepCounter advances by step on every read.
func stepCounter(start, step uint64) Counter {
	var now atomic.Uint64
	now.Store(start)
	return CounterFunc(func() uint64 { return now.Add(step) - step })
}

func fixedClock() time.Time {
	return time.Unix(1700000000, 0)
}

func TestInitValidatesConfig(t *testing.T) {
	w := &testutil.MockFlusher{}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero size", Config{Rank: 0, Size: 0, Writer: w}},
		{"negative rank", Config{Rank: -1, Size: 2, Writer: w}},
		{"rank past size", Config{Rank: 2, Size: 2, Writer: w}},
		{"no writer", Config{Rank: 0, Size: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Init(tt.cfg)
			assert.ErrorIs(t, err, traceerr.ErrConfig)
		})
	}
}

func TestInitRecordsAnchor(t *testing.T) {
	s, err := Init(Config{Rank: 1, Size: 2, Writer: &testutil.MockFlusher{}, Counter: stepCounter(500, 10), Clock: fixedClock})
	require.NoError(t, err)

	trace := s.Trace()
	require.Len(t, trace, 1)
	assert.Equal(t, event.KindInit, trace[0].Kind)
	assert.Equal(t, uint64(500), trace[0].TSC)
	assert.Equal(t, int32(1), trace[0].CurrentRank)
	assert.Equal(t, 1700000000.0, trace[0].WallTime)
	assert.NoError(t, trace[0].Validate())
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, 2, s.Size())
}

func TestInitThreadRecordsLevels(t *testing.T) {
	s, err := InitThread(Config{Rank: 0, Size: 1, Writer: &testutil.MockFlusher{}}, event.ThreadMultiple, event.ThreadFunneled)
	require.NoError(t, err)

	anchor := s.Trace()[0]
	assert.Equal(t, event.KindInitThread, anchor.Kind)
	assert.Equal(t, event.ThreadMultiple, anchor.RequiredThreadLevel)
	assert.Equal(t, event.ThreadFunneled, anchor.ProvidedThreadLevel)
}

func TestMeasure(t *testing.T) {
	s, err := Init(Config{Rank: 0, Size: 1, Writer: &testutil.MockFlusher{}, Counter: stepCounter(0, 7)})
	require.NoError(t, err)

	ran := false
	at := s.Measure(func() { ran = true })
	assert.True(t, ran)
	assert.Equal(t, uint64(7), at.TSC)
	assert.Equal(t, uint64(7), at.Duration)

	boom := errors.New("boom")
	at, err = s.MeasureErr(func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(21), at.TSC)
}

func TestConcurrentRecordKeepsPerGoroutineOrder(t *testing.T) {
	s, err := Init(Config{Rank: 0, Size: 1, Writer: &testutil.MockFlusher{}})
	require.NoError(t, err)

	const workers, perWorker = 8, 500
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(tag int32) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s.Record(event.Send(0, 1, 4, 0, tag, event.Stamp{TSC: uint64(i)}))
			}
		}(int32(w))
	}
	wg.Wait()

	trace := s.Trace()
	require.Len(t, trace, 1+workers*perWorker)

	next := make(map[int32]uint64)
	for _, e := range trace[1:] {
		assert.Equal(t, next[e.Tag], e.TSC, "worker %d out of order", e.Tag)
		next[e.Tag] = e.TSC + 1
	}
}

func TestRecordAfterFinalizePanics(t *testing.T) {
	s, err := Init(Config{Rank: 0, Size: 1, Writer: testutil.NewMockFlusher(t)})
	require.NoError(t, err)
	path, err := s.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rank0_traces.json", path)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		perr, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, perr, traceerr.ErrCapture)
	}()
	s.Record(event.Barrier(0, 0, event.Stamp{}))
}

func TestRecordForeignRankPanics(t *testing.T) {
	b := NewBuffer(2, 0)
	assert.Panics(t, func() { b.Append(event.Barrier(3, 0, event.Stamp{})) })
	assert.Zero(t, b.Len())
}

func TestFinalize(t *testing.T) {
	metrics := monitoring.NewMetrics(nil)
	w := &testutil.MockFlusher{}
	trigger := &testutil.MockTrigger{}

	s, err := Init(Config{Rank: 0, Size: 4, Writer: w, Trigger: trigger, Metrics: metrics, Counter: stepCounter(100, 1)})
	require.NoError(t, err)
	s.Record(event.Barrier(0, 0, s.Measure(func() {})))

	w.On("Flush", mock.Anything, 0, s.ID(), mock.MatchedBy(func(trace event.Trace) bool {
		first, ok := trace.FirstInit()
		last, okLast := trace.LastFinalize()
		return ok && okLast && first == 0 && last == len(trace)-1 && len(trace) == 3
	})).Return("out/rank0_traces.json", nil).Once()
	trigger.On("Run", mock.Anything, 4).Return(nil).Once()

	path, err := s.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "out/rank0_traces.json", path)

	again, err := s.Finalize(context.Background())
	assert.ErrorIs(t, err, ErrFinalized)
	assert.Equal(t, path, again)

	w.AssertExpectations(t)
	trigger.AssertExpectations(t)
}

func TestFinalizeNonZeroRankSkipsTrigger(t *testing.T) {
	w := &testutil.MockFlusher{}
	trigger := &testutil.MockTrigger{}
	w.On("Flush", mock.Anything, 3, mock.Anything, mock.Anything).Return("rank3_traces.json", nil)

	s, err := Init(Config{Rank: 3, Size: 4, Writer: w, Trigger: trigger})
	require.NoError(t, err)
	_, err = s.Finalize(context.Background())
	require.NoError(t, err)

	trigger.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestFinalizeFlushFailure(t *testing.T) {
	w := &testutil.MockFlusher{}
	trigger := &testutil.MockTrigger{}
	w.On("Flush", mock.Anything, 0, mock.Anything, mock.Anything).Return("", errors.New("disk full"))

	s, err := Init(Config{Rank: 0, Size: 1, Writer: w, Trigger: trigger})
	require.NoError(t, err)

	_, err = s.Finalize(context.Background())
	assert.ErrorIs(t, err, traceerr.ErrIO)
	assert.Contains(t, err.Error(), "disk full")
	trigger.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestFinalizeBarrierFailure(t *testing.T) {
	w := &testutil.MockFlusher{}
	s, err := Init(Config{
		Rank: 0, Size: 2, Writer: w,
		Barrier: BarrierFunc(func(context.Context) error { return errors.New("peer lost") }),
	})
	require.NoError(t, err)

	_, err = s.Finalize(context.Background())
	assert.ErrorIs(t, err, traceerr.ErrIO)
	w.AssertNotCalled(t, "Flush", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalizeTriggerFailure(t *testing.T) {
	w := &testutil.MockFlusher{}
	w.On("Flush", mock.Anything, 0, mock.Anything, mock.Anything).Return("rank0_traces.json", nil)
	boom := traceerr.New(traceerr.KindData, "reconcile", errors.New("missing Finalize"))

	s, err := Init(Config{Rank: 0, Size: 1, Writer: w,
		Trigger: TriggerFunc(func(context.Context, int) error { return boom })})
	require.NoError(t, err)

	path, err := s.Finalize(context.Background())
	assert.Equal(t, "rank0_traces.json", path)
	assert.ErrorIs(t, err, traceerr.ErrData)
}

func TestSessionsAcrossRanks(t *testing.T) {
	const size = 4
	dir := t.TempDir()
	writer := tracefile.NewWriter(tracefile.MustParsePattern(filepath.Join(dir, "rank*_traces.json")))
	barrier := NewLocalBarrier(size)

	var seen []string
	trigger := TriggerFunc(func(_ context.Context, n int) error {
		for rank := 0; rank < n; rank++ {
			if _, err := os.Stat(writer.Pattern().Path(rank)); err != nil {
				return err
			}
			seen = append(seen, writer.Pattern().Path(rank))
		}
		return nil
	})

	var wg sync.WaitGroup
	errs := make([]error, size)
	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			s, err := Init(Config{Rank: rank, Size: size, Writer: writer, Barrier: barrier, Trigger: trigger})
			if err != nil {
				errs[rank] = err
				return
			}
			r := s.Rank()
			s.Record(event.Isend(r, (r+1)%size, 8, 0, 5, 0, s.Measure(func() {})))
			s.Record(event.Wait(r, 5, s.Measure(func() {})))
			_, errs[rank] = s.Finalize(context.Background())
		}(rank)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, seen, size)

	doc, err := tracefile.Read(writer.Pattern().Path(2), 2)
	require.NoError(t, err)
	assert.Len(t, doc.Events, 4)
	assert.Equal(t, -1, doc.Events.Disorder())
}

func TestLocalBarrierCancel(t *testing.T) {
	b := NewLocalBarrier(2)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Wait(ctx), context.DeadlineExceeded)
}

func TestDefaultCounterIsMonotonic(t *testing.T) {
	c := DefaultCounter()
	a := c.Now()
	b := c.Now()
	assert.GreaterOrEqual(t, b, a)
}
