package capture

import (
	"fmt"
	"sync"

	"github.com/GriffinCanCode/interpol/internal/event"
	"github.com/GriffinCanCode/interpol/internal/shared/traceerr"
)

// Buffer is the in-memory, append-only event store of one rank.
//
// Append never performs I/O. Events appended by one goroutine keep their
// relative order; events from different goroutines interleave in lock
// acquisition order.
type Buffer struct {
	mu     sync.Mutex
	rank   int32
	events event.Trace
	sealed bool
}

// NewBuffer creates an empty buffer for rank with room for capacity events.
func NewBuffer(rank int32, capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{rank: rank, events: make(event.Trace, 0, capacity)}
}

// Append records e. Appending to a sealed buffer, or appending an event of
// another rank, is a programming error in the interception layer and panics
// with a capture error.
func (b *Buffer) Append(e event.CallEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		panic(traceerr.ForRank(traceerr.KindCapture, int(b.rank), "", "record",
			fmt.Errorf("%s recorded after the buffer was sealed", e.Kind)))
	}
	if e.CurrentRank != b.rank {
		panic(traceerr.ForRank(traceerr.KindCapture, int(b.rank), "", "record",
			fmt.Errorf("%s of rank %d recorded into this buffer", e.Kind, e.CurrentRank)))
	}
	b.events = append(b.events, e)
}

// Len returns the number of events recorded so far.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Seal closes the buffer and hands over its events. Later calls return the
// same trace.
func (b *Buffer) Seal() event.Trace {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealed = true
	return b.events
}

// Sealed reports whether Seal was called.
func (b *Buffer) Sealed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sealed
}

// Snapshot returns a copy of the events recorded so far.
func (b *Buffer) Snapshot() event.Trace {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events.Clone()
}
