package shopify

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles Admin API calls per shop. Shopify's REST bucket
// leaks two requests per second.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewRateLimiter creates a limiter allowing rps requests per second per shop.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 2
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiters: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

// Wait blocks until shop may issue a request or ctx is done.
func (l *RateLimiter) Wait(ctx context.Context, shop string) error {
	return l.limiter(shop).Wait(ctx)
}

func (l *RateLimiter) limiter(shop string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[shop]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.rps), l.burst)
		l.limiters[shop] = lim
	}
	return lim
}
