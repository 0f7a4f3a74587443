package connector

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterSet holds one token bucket per provider, grounded on
// cmd/agentflow/middleware.go's TenantRateLimiter visitor-map shape but
// keyed by provider instead of tenant, and suspending via Wait instead of
// rejecting with Allow: a caller suspends on exhaustion rather than
// erroring.
type RateLimiterSet struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiterSet builds a set handing out one limiter per provider name,
// each allowing rps requests/second with the given burst.
func NewRateLimiterSet(rps float64, burst int) *RateLimiterSet {
	return &RateLimiterSet{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (s *RateLimiterSet) limiterFor(provider string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[provider]
	if !ok {
		l = rate.NewLimiter(s.rps, s.burst)
		s.limiters[provider] = l
	}
	return l
}

// Wait blocks until provider's bucket has a token, or ctx is cancelled.
func (s *RateLimiterSet) Wait(ctx context.Context, provider string) error {
	return s.limiterFor(provider).Wait(ctx)
}
