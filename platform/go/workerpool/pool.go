// Package workerpool provides the bounded pool shared by every aggregation
// request. Each request submits one task per source.
package workerpool

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/zenGate-Global/palmyra-directory/platform/go/metrics"
)

// DefaultSize is the number of tasks allowed to run at once.
const DefaultSize = 10

// Pool bounds concurrently running tasks.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// New creates a pool of the given size; non-positive sizes use DefaultSize.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return int(p.size)
}

// Go runs fn on its own goroutine once a slot is free. If ctx ends before a
// slot is acquired, onSkip is called instead (when non-nil) so the caller can
// account for the task.
func (p *Pool) Go(ctx context.Context, fn func(ctx context.Context), onSkip func(err error)) {
	go func() {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			if onSkip != nil {
				onSkip(err)
			}
			return
		}
		metrics.WorkersInFlight.Inc()
		defer func() {
			metrics.WorkersInFlight.Dec()
			p.sem.Release(1)
		}()
		fn(ctx)
	}()
}
