package handlers

import (
	"fmt"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/gitshopapp/shopcore/internal/observability"
)

const (
	defaultRateLimitRPS   = 5
	defaultRateLimitBurst = 10
	rateLimitVisitors     = 10_000
)

// RateLimiter hands out one token bucket per client IP. The LRU bound keeps
// memory flat; an evicted IP simply starts with a full bucket again.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	visitors *lru.Cache[string, *rate.Limiter]
}

func NewRateLimiter(rps float64, burst int) (*RateLimiter, error) {
	if rps <= 0 {
		rps = defaultRateLimitRPS
	}
	if burst <= 0 {
		burst = defaultRateLimitBurst
	}
	visitors, err := lru.New[string, *rate.Limiter](rateLimitVisitors)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter cache: %w", err)
	}
	return &RateLimiter{limit: rate.Limit(rps), burst: burst, visitors: visitors}, nil
}

func (rl *RateLimiter) Allow(ip string) bool {
	limiter, ok := rl.visitors.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		// A concurrent first request may have stored one already.
		if existing, found, _ := rl.visitors.PeekOrAdd(ip, limiter); found {
			limiter = existing
		}
	}
	return limiter.Allow()
}

// RateLimit rejects clients that exceed their per-IP budget with 429.
func (h *Handlers) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !h.limiter.Allow(ip) {
			observability.MeterFromContext(r.Context()).Count("http.server.rate_limited", 1)
			h.loggerFromContext(r.Context()).Warn("rate limit exceeded", "remote_ip", ip)
			w.Header().Set("Retry-After", "1")
			h.writeError(w, r, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
