// Package testutil provides fixtures and mocks shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/interpol/internal/event"
	"github.com/GriffinCanCode/interpol/internal/tracefile"
)

// Clock maps reference ticks to the raw counter of one rank:
// raw = Offset + t*Num/Den.
type Clock struct {
	Offset uint64
	Num    uint64
	Den    uint64
}

// Ideal is a clock that ticks at the reference rate from offset.
func Ideal(offset uint64) Clock {
	return Clock{Offset: offset, Num: 1, Den: 1}
}

// At returns the raw counter value at reference tick t.
func (c Clock) At(t uint64) uint64 {
	return c.Offset + t*c.Num/c.Den
}

// Job builds the traces of a synthetic run in which every rank executes the
// same schedule, observed through its own clock.
type Job struct {
	Clocks   []Clock
	Duration uint64
}

// NewJob creates a job lasting duration reference ticks.
func NewJob(duration uint64, clocks ...Clock) *Job {
	return &Job{Clocks: clocks, Duration: duration}
}

// Size returns the number of ranks.
func (j *Job) Size() int {
	return len(j.Clocks)
}

// Trace returns rank's trace: Init, a ring Isend/Irecv pair with their Waits,
// an Ireduce, a Barrier and Finalize, in non-decreasing tsc order.
func (j *Job) Trace(rank int) event.Trace {
	c := j.Clocks[rank]
	r := int32(rank)
	size := int32(j.Size())
	next, prev := (r+1)%size, (r+size-1)%size
	d := j.Duration
	at := func(t, dur uint64) event.Stamp {
		return event.Stamp{TSC: c.At(t), Duration: c.At(t+dur) - c.At(t)}
	}

	return event.Trace{
		event.Init(r, c.At(0), 1700000000),
		event.Isend(r, next, 1024, 0, 100+r, 7, at(d/8, d/64)),
		event.Irecv(r, prev, 1024, 0, 200+r, 7, at(d/8+d/32, d/64)),
		event.Test(r, 100+r, false, at(d/4, 1)),
		event.Wait(r, 100+r, at(d/4+d/16, d/32)),
		event.Wait(r, 200+r, at(d/2, d/32)),
		event.Ireduce(r, 0, 8, event.OpSum, 0, 300+r, at(d/2+d/8, d/64)),
		event.Wait(r, 300+r, at(3*d/4, d/64)),
		event.Barrier(r, 0, at(7*d/8, d/64)),
		event.Finalize(r, c.At(d), 1700000001),
	}
}

// Traces returns the trace of every rank.
func (j *Job) Traces() []event.Trace {
	out := make([]event.Trace, j.Size())
	for rank := range out {
		out[rank] = j.Trace(rank)
	}
	return out
}

// WriteJob writes every rank of j under pattern, relative to dir, and
// returns the parsed pattern and file paths.
func WriteJob(t testing.TB, dir, pattern string, j *Job) (tracefile.Pattern, []string) {
	t.Helper()
	return WriteTraces(t, dir, pattern, j.Traces())
}

// WriteTraces writes one document per trace under pattern, relative to dir.
func WriteTraces(t testing.TB, dir, pattern string, traces []event.Trace) (tracefile.Pattern, []string) {
	t.Helper()
	p, err := tracefile.ParsePattern(filepath.Join(dir, pattern))
	require.NoError(t, err)

	paths := make([]string, len(traces))
	for rank, trace := range traces {
		paths[rank] = p.Path(rank)
		_, err := tracefile.Write(paths[rank], tracefile.NewDocument(rank, "fixture", trace), p.Compression())
		require.NoError(t, err)
	}
	return p, paths
}

// ReadTraces reads back the events of every path.
func ReadTraces(t testing.TB, paths []string) []*tracefile.Document {
	t.Helper()
	docs := make([]*tracefile.Document, len(paths))
	for rank, path := range paths {
		doc, err := tracefile.Read(path, rank)
		require.NoError(t, err)
		docs[rank] = doc
	}
	return docs
}

// MockFlusher is a mock trace writer.
type MockFlusher struct {
	mock.Mock
}

// Flush mocks the Flush method.
func (m *MockFlusher) Flush(ctx context.Context, rank int, session string, trace event.Trace) (string, error) {
	args := m.Called(ctx, rank, session, trace)
	return args.String(0), args.Error(1)
}

// NewMockFlusher creates a mock writer that accepts any flush and reports
// the default file name of the rank.
func NewMockFlusher(t *testing.T) *MockFlusher {
	t.Helper()
	m := new(MockFlusher)
	pattern := tracefile.MustParsePattern(tracefile.DefaultPattern)
	for rank := 0; rank < 64; rank++ {
		m.On("Flush", mock.Anything, rank, mock.Anything, mock.Anything).
			Return(pattern.Path(rank), nil).
			Maybe()
	}
	return m
}

// MockTrigger is a mock post-run pass.
type MockTrigger struct {
	mock.Mock
}

// Run mocks the Run method.
func (m *MockTrigger) Run(ctx context.Context, size int) error {
	return m.Called(ctx, size).Error(0)
}
