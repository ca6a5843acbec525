package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per session
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	perHour  int
	rate     rate.Limit
	burst    int
}

// NewLimiter creates a new rate limiter
// requestsPerHour: commands allowed per hour per session (e.g., 600)
// burst: max commands in a burst (e.g., 20)
func NewLimiter(requestsPerHour int, burst int) *Limiter {
	// Convert requests per hour to requests per second
	r := rate.Limit(float64(requestsPerHour) / 3600.0)
	if requestsPerHour <= 0 {
		r = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}

	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		perHour:  requestsPerHour,
		rate:     r,
		burst:    burst,
	}
}

// GetLimiter returns the bucket for a session, creating it on first use
func (l *Limiter) GetLimiter(sessionID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[sessionID]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[sessionID] = limiter
	}

	return limiter
}

// Allow reports whether sessionID may issue another command now
func (l *Limiter) Allow(sessionID string) bool {
	return l.GetLimiter(sessionID).Allow()
}

// Tokens returns the commands sessionID may still issue without waiting
func (l *Limiter) Tokens(sessionID string) float64 {
	return l.GetLimiter(sessionID).Tokens()
}

// PerHour is the configured hourly allowance
func (l *Limiter) PerHour() int {
	return l.perHour
}
