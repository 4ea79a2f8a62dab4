package invoker

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// pool limits concurrent invocation processes using a weighted semaphore.
// Every attempt of every chat turn goes through the same pool.
type pool struct {
	sem *semaphore.Weighted
}

func newPool(limit int) *pool {
	if limit < 1 {
		limit = 1
	}
	return &pool{sem: semaphore.NewWeighted(int64(limit))}
}

// acquire blocks until a slot is free or ctx is done.
func (p *pool) acquire(ctx context.Context) error {
	return p.sem.Acquire(ctx, 1)
}

func (p *pool) release() {
	p.sem.Release(1)
}
