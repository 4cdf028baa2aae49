package reconcile

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/GriffinCanCode/interpol/internal/event"
)

var (
	errMissingInit     = errors.New("no Init or InitThread event")
	errMissingFinalize = errors.New("no Finalize event")
	errOverflow        = errors.New("corrected tsc overflows 64 bits")
)

// Anchors are the clock synchronization points of one rank.
type Anchors struct {
	Init     uint64 `json:"init_tsc"`
	Finalize uint64 `json:"finalize_tsc"`
}

// FindAnchors takes the first Init or InitThread and the last Finalize.
func FindAnchors(trace event.Trace) (Anchors, error) {
	first, ok := trace.FirstInit()
	if !ok {
		return Anchors{}, errMissingInit
	}
	last, ok := trace.LastFinalize()
	if !ok {
		return Anchors{}, errMissingFinalize
	}
	return Anchors{Init: trace[first].TSC, Finalize: trace[last].TSC}, nil
}

// Span returns the number of ticks between the anchors.
func (a Anchors) Span() (uint64, error) {
	if a.Finalize <= a.Init {
		return 0, fmt.Errorf("non-positive span: Finalize at %d, Init at %d", a.Finalize, a.Init)
	}
	return a.Finalize - a.Init, nil
}

// Drift relates a rank's tick rate to the reference rank's: one tick of the
// rank is Reference/Span reference ticks.
type Drift struct {
	Reference uint64
	Span      uint64
}

// Ratio returns Reference/Span.
func (d Drift) Ratio() float64 {
	return float64(d.Reference) / float64(d.Span)
}

// Scale returns tsc*Reference/Span rounded to the nearest integer, halves
// rounding up. The product is kept in 128 bits so no precision is lost.
func (d Drift) Scale(tsc uint64) (uint64, error) {
	hi, lo := bits.Mul64(tsc, d.Reference)
	if hi >= d.Span {
		return 0, errOverflow
	}
	q, r := bits.Div64(hi, lo, d.Span)
	if r >= d.Span-r {
		if q == math.MaxUint64 {
			return 0, errOverflow
		}
		q++
	}
	return q, nil
}

// Correct returns a copy of trace with every tsc rescaled by d and
// re-originated to the rank's own Init: tsc' = round(tsc*ratio) - init.
// Only tsc changes.
//
// A rank slower than the reference scales its Init below init, so its
// corrected values start below zero. They are stored modulo 2^64 and read
// back with CallEvent.Offset.
func Correct(trace event.Trace, a Anchors, d Drift) (event.Trace, error) {
	out := trace.Clone()
	for i := range out {
		e := &out[i]
		scaled, err := d.Scale(e.TSC)
		if err != nil {
			return nil, fmt.Errorf("event %d (%s, tsc %d): %w", i, e.Kind, e.TSC, err)
		}
		e.TSC = scaled - a.Init
	}
	return out, nil
}
