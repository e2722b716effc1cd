package fetcher

import (
	"context"

	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
)

// Limiter blocks until a request to rawURL is allowed.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// RateLimited gates every fetch on a Limiter so retries never exceed the
// configured request rate against the target host.
type RateLimited struct {
	next    monitor.Fetcher
	limiter Limiter
	method  monitor.Method
}

// NewRateLimited builds a RateLimited fetcher. A nil limiter disables gating.
func NewRateLimited(next monitor.Fetcher, limiter Limiter, method monitor.Method) *RateLimited {
	return &RateLimited{next: next, limiter: limiter, method: method}
}

// Fetch implements monitor.Fetcher.
func (r *RateLimited) Fetch(ctx context.Context, request monitor.FetchRequest) (monitor.FetchResponse, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, request.URL); err != nil {
			return monitor.FetchResponse{}, &monitor.FetchError{Method: r.method, Cause: err}
		}
	}
	return r.next.Fetch(ctx, request)
}
