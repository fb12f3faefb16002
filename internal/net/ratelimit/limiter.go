package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter provides per-provider rate limiting using a token bucket for each provider
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64 // Requests per second
	burst    int     // Burst capacity
}

// NewLimiter creates a new rate limiter with the specified RPS and burst capacity
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

// For returns the token bucket for provider, creating it on first use
func (l *Limiter) For(provider string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[provider]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[provider]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[provider] = limiter
	return limiter
}

// Wait blocks until a request for the provider is allowed or the context is cancelled
func (l *Limiter) Wait(ctx context.Context, provider string) error {
	return l.For(provider).Wait(ctx)
}
