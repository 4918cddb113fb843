package services

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// canProcessPollInterval is how often a worker re-checks a gated service.
const canProcessPollInterval = 100 * time.Millisecond

// defaultQueueSize bounds each service's FIFO queue.
const defaultQueueSize = 256

type outcome struct {
	result any
	err    error
}

type job struct {
	ctx  context.Context
	req  any
	done chan outcome
}

type serviceQueue struct {
	service Service
	jobs    chan job
}

// registry is the process-wide name -> queue mapping. Scopes install their
// queues here on entry and remove them on exit, so deeply nested code can
// submit work by name alone.
var registry = struct {
	mu     sync.RWMutex
	queues map[string]*serviceQueue
}{queues: make(map[string]*serviceQueue)}

func lookup(name string) (*serviceQueue, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	q, ok := registry.queues[name]
	return q, ok
}

// Scope is a running set of services. Start launches one worker per service;
// Stop cancels the workers, fails any queued jobs with ErrShuttingDown, and
// releases resources in reverse registration order.
type Scope struct {
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	queues   []*serviceQueue
	acquired []ResourceManager
	stopOnce sync.Once
	stopErr  error
}

// Start registers the given services and dispatches their worker loops. The
// provided ctx bounds resource acquisition and all worker activity. On any
// acquisition failure, already-acquired resources are released and an error
// is returned.
func Start(ctx context.Context, svcs ...Service) (*Scope, error) {
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	scope := &Scope{cancel: cancel}

	for _, svc := range svcs {
		if mgr, ok := svc.(ResourceManager); ok {
			if err := mgr.AcquireResources(ctx); err != nil {
				scope.Stop()
				return nil, fmt.Errorf("failed to acquire resources for %q: %w", svc.Name(), err)
			}
			scope.acquired = append(scope.acquired, mgr)
		}

		q := &serviceQueue{service: svc, jobs: make(chan job, defaultQueueSize)}
		registry.mu.Lock()
		if _, exists := registry.queues[svc.Name()]; exists {
			registry.mu.Unlock()
			scope.Stop()
			return nil, fmt.Errorf("service %q is already running", svc.Name())
		}
		registry.queues[svc.Name()] = q
		registry.mu.Unlock()
		scope.queues = append(scope.queues, q)

		scope.wg.Add(1)
		go scope.work(workerCtx, q)
	}
	return scope, nil
}

// Run starts the services, invokes fn, and tears the scope down afterwards.
func Run(ctx context.Context, svcs []Service, fn func(ctx context.Context) error) error {
	scope, err := Start(ctx, svcs...)
	if err != nil {
		return err
	}
	defer scope.Stop()
	return fn(ctx)
}

func (s *Scope) work(ctx context.Context, q *serviceQueue) {
	defer s.wg.Done()
	ticker := time.NewTicker(canProcessPollInterval)
	defer ticker.Stop()

	for {
		// Gate on CanProcess before pulling the next job so a saturated
		// rate limiter leaves work queued instead of failing it.
		for !q.service.CanProcess() {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}

		select {
		case <-ctx.Done():
			return
		case j := <-q.jobs:
			result, err := process(j.ctx, q.service, j.req)
			j.done <- outcome{result: result, err: err}
		}
	}
}

// process contains worker panics so one bad request cannot kill the loop.
func process(ctx context.Context, svc Service, req any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &WorkerCrashError{Value: r}
		}
	}()
	return svc.Process(ctx, req)
}

// Stop tears the scope down. Idempotent.
func (s *Scope) Stop() error {
	s.stopOnce.Do(func() {
		registry.mu.Lock()
		for _, q := range s.queues {
			delete(registry.queues, q.service.Name())
		}
		registry.mu.Unlock()

		s.cancel()
		s.wg.Wait()

		// Fail anything still queued; submitters are blocked on done.
		for _, q := range s.queues {
		drain:
			for {
				select {
				case j := <-q.jobs:
					j.done <- outcome{err: ErrShuttingDown}
				default:
					break drain
				}
			}
		}

		for i := len(s.acquired) - 1; i >= 0; i-- {
			if err := s.acquired[i].ReleaseResources(context.Background()); err != nil && s.stopErr == nil {
				s.stopErr = err
			}
		}
	})
	return s.stopErr
}

// Call submits req to the named service and blocks until the result is ready
// or ctx is done. The caller's ctx rides along with the job so logs emitted
// inside Process inherit the caller's jurisdiction scope.
func Call(ctx context.Context, name string, req any) (any, error) {
	q, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotInitialized, name)
	}

	j := job{ctx: ctx, req: req, done: make(chan outcome, 1)}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case q.jobs <- j:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-j.done:
		return out.result, out.err
	}
}
