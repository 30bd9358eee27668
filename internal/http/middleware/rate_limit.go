package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/williamsbolu/natours/internal/http/response"
	"github.com/williamsbolu/natours/pkg/logger"
	"github.com/williamsbolu/natours/pkg/metrics"
)

const msgTooManyRequests = "Too many requests from this IP, please try again in an hour!"

// fixedWindow increments the counter and starts its expiry on first hit.
// Returns {count, ttl_ms}.
var fixedWindow = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	Prefix   string
	Requests int
	Window   time.Duration
	Message  string
	KeyFunc  func(r *http.Request) string
}

// RateLimiter is a per-key fixed window counter in Redis. A nil client or a
// Redis error lets the request through.
type RateLimiter struct {
	client  *redis.Client
	config  RateLimitConfig
	metrics *metrics.Metrics
}

func NewRateLimiter(client *redis.Client, config RateLimitConfig, m *metrics.Metrics) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIP
	}
	if config.Message == "" {
		config.Message = msgTooManyRequests
	}
	if config.Prefix == "" {
		config.Prefix = "api"
	}
	return &RateLimiter{client: client, config: config, metrics: m}
}

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl.client == nil || rl.config.Requests <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:" + rl.config.Prefix + ":" + rl.config.KeyFunc(r)

			count, ttl, err := rl.hit(r.Context(), key)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining := rl.config.Requests - int(count)
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if int(count) > rl.config.Requests {
				rl.metrics.RateLimitHit()
				secs := int((ttl + time.Second - 1) / time.Second)
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				response.RateLimit(w, rl.config.Message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) hit(ctx context.Context, key string) (int64, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	vals, err := fixedWindow.Run(ctx, rl.client, []string{key}, rl.config.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("unexpected limiter reply: %v", vals)
	}
	return vals[0], time.Duration(vals[1]) * time.Millisecond, nil
}

// ClientIP extracts the real client IP from the request
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
