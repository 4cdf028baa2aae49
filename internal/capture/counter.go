package capture

import "time"

// Counter is the monotonic cycle counter sampled around every intercepted
// call. Values from one Counter are only comparable with each other.
type Counter interface {
	Now() uint64
}

// CounterFunc adapts a function to Counter.
type CounterFunc func() uint64

// Now calls f.
func (f CounterFunc) Now() uint64 { return f() }

// elapsedCounter counts nanoseconds on the Go monotonic clock since it was
// created. It backs the default counter where no raw clock is available.
type elapsedCounter struct {
	start time.Time
}

func newElapsedCounter() *elapsedCounter {
	return &elapsedCounter{start: time.Now()}
}

func (c *elapsedCounter) Now() uint64 {
	return uint64(time.Since(c.start))
}
