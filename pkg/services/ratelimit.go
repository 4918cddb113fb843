package services

import (
	"context"

	"github.com/renewmap/compass/pkg/usage"
)

// CostFunc estimates the rate-limit cost of a completed request. It sees the
// raw response (nil on failure) so token-based limits can charge actual
// usage while request-based limits charge a flat 1.
type CostFunc func(response any, err error) float64

// UnitCost charges every call one unit, which turns the rate limit into a
// requests-per-window cap.
func UnitCost(any, error) float64 { return 1 }

// RateLimited wraps a service with a rolling-window budget. The worker gate
// reports saturation until enough history expires, which leaves jobs queued
// rather than failed.
type RateLimited struct {
	inner   Service
	limit   float64
	counter *usage.TimeBoundedTracker
	cost    CostFunc
}

// NewRateLimited wraps inner with a budget of limit cost units per
// windowSeconds. A nil cost defaults to UnitCost.
func NewRateLimited(inner Service, limit, windowSeconds float64, cost CostFunc) *RateLimited {
	if cost == nil {
		cost = UnitCost
	}
	return &RateLimited{
		inner:   inner,
		limit:   limit,
		counter: usage.NewTimeBoundedTracker(windowSeconds),
		cost:    cost,
	}
}

func (r *RateLimited) Name() string { return r.inner.Name() }

func (r *RateLimited) CanProcess() bool {
	return r.counter.Total() < r.limit
}

func (r *RateLimited) Process(ctx context.Context, req any) (any, error) {
	response, err := r.inner.Process(ctx, req)
	r.counter.Add(r.cost(response, err))
	return response, err
}

func (r *RateLimited) AcquireResources(ctx context.Context) error {
	if mgr, ok := r.inner.(ResourceManager); ok {
		return mgr.AcquireResources(ctx)
	}
	return nil
}

func (r *RateLimited) ReleaseResources(ctx context.Context) error {
	if mgr, ok := r.inner.(ResourceManager); ok {
		return mgr.ReleaseResources(ctx)
	}
	return nil
}
