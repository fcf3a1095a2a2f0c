package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicops/libs/config"
	"github.com/md-rashed-zaman/clinicops/libs/httpx"
	"github.com/redis/go-redis/v9"
)

// rateLimit limits requests per tenant. With Redis the budget is shared by every
// replica; without it each process keeps its own buckets.
func rateLimit(rdb *redis.Client, logger *slog.Logger) httpx.Middleware {
	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 600)
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "scheduling:ratelimit", httpx.TenantOrClientKey)
		return limiter.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	}
	return httpx.NewRateLimiter(perMinute, httpx.TenantOrClientKey).Middleware()
}
