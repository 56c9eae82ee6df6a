package server

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/raaihank/numsieve/internal/config"
)

const (
	limiterIdleTTL     = time.Hour
	limiterCleanupTick = 10 * time.Minute
)

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	config  config.RateLimitConfig
	clients map[string]*clientLimiter
	mu      sync.Mutex
	now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter from the rate_limit section
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &RateLimiter{
		config:  cfg,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Allow reports whether a request from clientIP may proceed
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.Enabled {
		return true
	}
	return r.getLimiter(clientIP).AllowN(r.now(), 1)
}

func (r *RateLimiter) getLimiter(clientIP string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientIP]
	if !ok {
		perSecond := rate.Limit(float64(r.config.RequestsPerMinute) / 60.0)
		c = &clientLimiter{limiter: rate.NewLimiter(perSecond, r.config.Burst)}
		r.clients[clientIP] = c
	}
	c.lastSeen = r.now()
	return c.limiter
}

// CleanupIdle forgets clients not seen for maxIdle
func (r *RateLimiter) CleanupIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	removed := 0
	for ip, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
			removed++
		}
	}
	return removed
}

// Run periodically drops idle clients until ctx ends
func (r *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CleanupIdle(limiterIdleTTL)
		}
	}
}
