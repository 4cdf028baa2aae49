//go:build !linux

package capture

// DefaultCounter returns the platform's preferred counter.
func DefaultCounter() Counter {
	return newElapsedCounter()
}
