package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/respkv/internal/core/domain"
)

// ============================================================================
// RateLimiterRegistry - per-client command rate limiting
// ============================================================================

// RateLimiterRegistry holds one token bucket per client host.
// A limit of 0 disables limiting.
type RateLimiterRegistry struct {
	mu       sync.RWMutex
	limit    int
	limiters map[string]*rate.Limiter
}

// NewRateLimiterRegistry creates a registry allowing limit commands per
// second per client, with an equal burst.
func NewRateLimiterRegistry(limit int) *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limit:    limit,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Enabled reports whether limiting is on.
func (r *RateLimiterRegistry) Enabled() bool {
	return r != nil && r.limit > 0
}

// GetOrCreate retrieves the limiter for client, creating it on first use.
func (r *RateLimiterRegistry) GetOrCreate(client string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[client]
	r.mu.RUnlock()
	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, exists = r.limiters[client]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(r.limit), r.limit)
	r.limiters[client] = limiter
	return limiter
}

// Check consumes one token for client and returns ErrRateLimited when the
// bucket is empty.
func (r *RateLimiterRegistry) Check(client string) error {
	if !r.Enabled() {
		return nil
	}
	limiter := r.GetOrCreate(client)
	if limiter.Allow() {
		return nil
	}

	reservation := limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	return domain.ErrRateLimited.WithDetails("retry after " + delay.Round(time.Millisecond).String())
}

// Delete drops the limiter for client.
func (r *RateLimiterRegistry) Delete(client string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, client)
}

// Len returns the number of tracked clients.
func (r *RateLimiterRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}
