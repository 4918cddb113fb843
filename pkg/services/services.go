// Package services implements the queued service runtime that serializes all
// LLM, disk, and browser side effects.
//
// A service is registered under a process-wide name and backed by a bounded
// FIFO queue with one worker loop. Callers submit requests by name through
// Call and block on the result. Workers poll the service's CanProcess gate
// before pulling work, which is how rate limits and resource ceilings are
// enforced without the callers knowing about them.
package services

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the service runtime.
var (
	// ErrNotInitialized is returned when a request names a service that is
	// not running in any active scope.
	ErrNotInitialized = errors.New("service is not running")

	// ErrShuttingDown is the result assigned to jobs still queued when a
	// scope tears down.
	ErrShuttingDown = errors.New("service scope is shutting down")
)

// WorkerCrashError reports a panic inside a pooled worker. The panic is
// contained so one bad input cannot take down the pool.
type WorkerCrashError struct {
	Value any
}

func (e *WorkerCrashError) Error() string {
	return fmt.Sprintf("worker crashed: %v", e.Value)
}

// Service is a named unit of queued work.
//
// CanProcess must be fast and side-effect free; the worker loop polls it
// before pulling each job. Process may block for as long as the job needs and
// must honor ctx cancellation. Errors returned by Process are delivered to
// the submitting caller, never to the worker loop.
type Service interface {
	Name() string
	CanProcess() bool
	Process(ctx context.Context, req any) (any, error)
}

// ResourceManager is implemented by services that need setup or teardown at
// scope boundaries, such as launching a browser or opening a file handle.
type ResourceManager interface {
	AcquireResources(ctx context.Context) error
	ReleaseResources(ctx context.Context) error
}
