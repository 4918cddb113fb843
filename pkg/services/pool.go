package services

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Task is a unit of blocking or CPU-bound work run on a pool.
type Task func() (any, error)

// Pool bounds the number of concurrently executing tasks. It backs the
// file-writer services (blocking disk IO) and the document parsing path
// (CPU-bound PDF and DOCX decoding). Panics inside a task surface as
// WorkerCrashError on the submitting caller.
type Pool struct {
	slots *semaphore.Weighted
}

// NewPool returns a pool with the given number of slots. Size <= 0 defaults
// to GOMAXPROCS.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{slots: semaphore.NewWeighted(int64(size))}
}

// Submit runs task on the pool and blocks until it completes or ctx is done
// while waiting for a slot. Once a task starts it runs to completion.
func (p *Pool) Submit(ctx context.Context, task Task) (any, error) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.slots.Release(1)
	return run(task)
}

func run(task Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &WorkerCrashError{Value: r}
		}
	}()
	return task()
}

// PoolService adapts a Pool into the Service contract: Process dispatches
// the request through a handler on the pool, and CanProcess is always true
// because the pool itself provides the backpressure.
type PoolService struct {
	name    string
	pool    *Pool
	handler func(ctx context.Context, req any) (any, error)
}

// NewPoolService builds a pool-backed service with its own pool of the given
// size.
func NewPoolService(name string, size int, handler func(ctx context.Context, req any) (any, error)) *PoolService {
	return &PoolService{name: name, pool: NewPool(size), handler: handler}
}

// NewSharedPoolService builds a service on an existing pool so several
// services can contend for the same slots, as the file writers do.
func NewSharedPoolService(name string, pool *Pool, handler func(ctx context.Context, req any) (any, error)) *PoolService {
	return &PoolService{name: name, pool: pool, handler: handler}
}

func (s *PoolService) Name() string     { return s.name }
func (s *PoolService) CanProcess() bool { return true }

func (s *PoolService) Process(ctx context.Context, req any) (any, error) {
	return s.pool.Submit(ctx, func() (any, error) {
		return s.handler(ctx, req)
	})
}
