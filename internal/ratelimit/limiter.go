// Package ratelimit paces outbound model requests.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter provides rate limiting for API requests.
type Limiter struct {
	requests *rate.Limiter
	enabled  bool
	mu       sync.RWMutex

	// Statistics
	totalRequests int64
	waitedTotal   time.Duration
}

// Config holds rate limiter configuration.
type Config struct {
	Enabled           bool
	RequestsPerMinute int
	BurstSize         int
}

// DefaultConfig returns the default rate limiter configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		BurstSize:         5,
	}
}

// NewLimiter creates a new rate limiter with the given configuration.
// A non-positive RequestsPerMinute disables limiting.
func NewLimiter(cfg Config) *Limiter {
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}
	return &Limiter{
		requests: rate.NewLimiter(limit, burst),
		enabled:  cfg.Enabled && cfg.RequestsPerMinute > 0,
	}
}

// Acquire blocks until a request slot is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if !l.isEnabled() {
		return nil
	}

	start := time.Now()
	if err := l.requests.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	l.totalRequests++
	l.waitedTotal += time.Since(start)
	l.mu.Unlock()
	return nil
}

// TryAcquire takes a request slot without blocking.
func (l *Limiter) TryAcquire() bool {
	if !l.isEnabled() {
		return true
	}
	if !l.requests.Allow() {
		return false
	}
	l.mu.Lock()
	l.totalRequests++
	l.mu.Unlock()
	return true
}

// Stats holds rate limiter statistics.
type Stats struct {
	Enabled       bool
	TotalRequests int64
	Waited        time.Duration
	Available     float64
}

// Stats returns rate limiter statistics.
func (l *Limiter) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Stats{
		Enabled:       l.enabled,
		TotalRequests: l.totalRequests,
		Waited:        l.waitedTotal,
		Available:     l.requests.Tokens(),
	}
}

// SetEnabled enables or disables the rate limiter.
func (l *Limiter) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

func (l *Limiter) isEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}
