package common

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// RateLimiter paces outbound REST calls to stay inside the venue's request budget.
type RateLimiter struct {
	limiter *rate.Limiter
	name    string
}

// NewRateLimiter allows `requests` calls per `window` with a burst of the same size.
// For MEXC contract endpoints that is 20 requests per 2 seconds.
func NewRateLimiter(name string, requests int, window time.Duration) *RateLimiter {
	if requests <= 0 {
		requests = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests),
		name:    name,
	}
}

// Wait blocks until a request slot is free or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}
	start := time.Now()
	if err := rl.limiter.Wait(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > 500*time.Millisecond {
		log.Warn().Str("limiter", rl.name).Dur("waited", waited).Msg("rate limit throttling requests")
	}
	return nil
}
