package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an idle client's limiter is kept.
const limiterIdleTTL = 10 * time.Minute

// IPRateLimiter stores a token bucket per client IP. Buckets of clients that
// stay idle for limiterIdleTTL are dropped.
type IPRateLimiter struct {
	limiters *cache.Cache
	r        rate.Limit
	b        int
}

// NewIPRateLimiter creates a limiter allowing r requests per second with burst b per IP.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: cache.New(limiterIdleTTL, limiterIdleTTL),
		r:        r,
		b:        b,
	}
}

// Limiter returns the bucket of ip, creating it on first use.
func (i *IPRateLimiter) Limiter(ip string) *rate.Limiter {
	if cached, found := i.limiters.Get(ip); found {
		limiter, _ := cached.(*rate.Limiter)
		// Touch to extend the idle expiry.
		i.limiters.SetDefault(ip, limiter)

		return limiter
	}

	limiter := rate.NewLimiter(i.r, i.b)

	// Another request may have raced us; keep whichever bucket got stored first.
	if err := i.limiters.Add(ip, limiter, cache.DefaultExpiration); err != nil {
		if cached, found := i.limiters.Get(ip); found {
			limiter, _ = cached.(*rate.Limiter)
		}
	}

	return limiter
}

// RateLimiter is a middleware for IP-based rate limiting.
func RateLimiter(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})

			return
		}

		c.Next()
	}
}
