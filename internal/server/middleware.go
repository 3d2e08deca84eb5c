package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"email-monitor-go/internal/models"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID tags every request with an ID, reusing the caller's when sent
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// RateLimiter limits requests per client IP. Idle limiters expire.
type RateLimiter struct {
	limiters *cache.Cache
	limit    rate.Limit
	burst    int
}

// NewRateLimiter allows n requests per window for each client. n <= 0
// disables limiting.
func NewRateLimiter(n int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limiters: cache.New(10*time.Minute, 20*time.Minute),
		burst:    n,
	}
	if n > 0 {
		rl.limit = rate.Limit(float64(n) / window.Seconds())
	}
	return rl
}

// Allow reports whether the client at ip may send another request
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.burst <= 0 {
		return true
	}
	if v, ok := rl.limiters.Get(ip); ok {
		return v.(*rate.Limiter).Allow()
	}
	limiter := rate.NewLimiter(rl.limit, rl.burst)
	// another request may have stored one first
	if err := rl.limiters.Add(ip, limiter, cache.DefaultExpiration); err != nil {
		if v, ok := rl.limiters.Get(ip); ok {
			limiter = v.(*rate.Limiter)
		}
	}
	return limiter.Allow()
}

// Middleware answers 429 once a client exceeds its budget
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !rl.Allow(ip) {
			logrus.WithFields(logrus.Fields{"ip": ip, "path": c.FullPath()}).Warn("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error:   "Too many requests",
				Message: "Too many attempts, try again in a minute",
				Code:    http.StatusTooManyRequests,
			})
			return
		}
		c.Next()
	}
}
