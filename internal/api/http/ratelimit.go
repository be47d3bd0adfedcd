package http

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	apperrors "github.com/spec-kit/worker-portal/pkg/util/errorutil"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps a token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	requests int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter allows requests per window for each IP, with bursts up to
// requests.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests < 1 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		requests: requests,
		window:   window,
		now:      time.Now,
	}
}

// Allow consumes one token for ip.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[ip]
	if !ok {
		perSecond := float64(rl.requests) / rl.window.Seconds()
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(perSecond), rl.requests)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Handle rejects requests over the limit with 429.
func (rl *RateLimiter) Handle(c *fiber.Ctx) error {
	if !rl.Allow(c.IP()) {
		c.Set(fiber.HeaderRetryAfter, "1")
		return apperrors.NewRateLimited("Too many login attempts. Please try again later.")
	}
	return c.Next()
}

// Cleanup forgets visitors idle for more than a window, every window, until
// ctx is done.
func (rl *RateLimiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.window)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.evictIdle()
			}
		}
	}()
}

func (rl *RateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.window)
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}
