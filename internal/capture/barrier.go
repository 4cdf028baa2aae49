package capture

import (
	"context"
	"sync"
)

// LocalBarrier is a reusable barrier for ranks running as goroutines of one
// process. A cancelled Wait leaves the barrier one arrival ahead; do not
// reuse it after a cancellation.
type LocalBarrier struct {
	mu      sync.Mutex
	parties int
	waiting int
	release chan struct{}
}

// NewLocalBarrier creates a barrier for parties ranks.
func NewLocalBarrier(parties int) *LocalBarrier {
	return &LocalBarrier{parties: parties, release: make(chan struct{})}
}

// Wait blocks until every party has called Wait for the current round.
func (b *LocalBarrier) Wait(ctx context.Context) error {
	b.mu.Lock()
	release := b.release
	b.waiting++
	if b.waiting >= b.parties {
		b.waiting = 0
		b.release = make(chan struct{})
		close(release)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	select {
	case <-release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
