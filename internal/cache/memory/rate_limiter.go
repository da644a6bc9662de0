package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

type limiterKey struct {
	key    string
	limit  int
	window time.Duration
}

// RateLimiter is a process-local domain.RateLimiter built on token buckets.
// limit requests per window becomes a bucket of size limit refilled evenly
// over the window.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[limiterKey]*rate.Limiter

	waitLimit  int
	waitWindow time.Duration
}

// NewRateLimiter creates a RateLimiter whose Wait admits waitLimit calls per
// waitWindow for each key.
func NewRateLimiter(waitLimit int, waitWindow time.Duration) *RateLimiter {
	if waitLimit <= 0 {
		waitLimit = 1
	}
	if waitWindow <= 0 {
		waitWindow = time.Second
	}
	return &RateLimiter{
		limiters:   make(map[limiterKey]*rate.Limiter),
		waitLimit:  waitLimit,
		waitWindow: waitWindow,
	}
}

func (rl *RateLimiter) limiter(key string, limit int, window time.Duration) *rate.Limiter {
	k := limiterKey{key, limit, window}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[k]
	if !ok {
		l = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
		rl.limiters[k] = l
	}
	return l
}

// Allow reports whether one more request for key fits.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, fmt.Errorf("memory: rate limit %s: invalid limit %d per %s", key, limit, window)
	}
	return rl.limiter(key, limit, window).Allow(), nil
}

// Wait blocks until key is admitted or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	if err := rl.limiter(key, rl.waitLimit, rl.waitWindow).Wait(ctx); err != nil {
		return fmt.Errorf("memory: rate limit wait %s: %w", key, err)
	}
	return nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
