package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window limiter shared by every replica of the
// service. Counters live under prefix:key and expire with their window.
type RedisRateLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
	keyFn  KeyFunc
}

// Returns {count, remaining ttl in ms} for the current window.
var fixedWindowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string, keyFn KeyFunc) *RedisRateLimiter {
	if limit <= 0 {
		limit = 600
	}
	if window <= 0 {
		window = time.Minute
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "ratelimit"
	}
	if keyFn == nil {
		keyFn = TenantOrClientKey
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix, keyFn: keyFn}
}

type windowState struct {
	count int64
	reset time.Duration
}

// Middleware enforces the limit. When Redis fails, failOpen lets requests
// through; otherwise they get a 503.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st, err := rl.hit(r.Context(), rl.prefix+":"+rl.keyFn(r))
			if err != nil {
				if logger != nil {
					logger.Warn("rate limiter unavailable", "err", err, "fail_open", failOpen)
				}
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				writeLimiterError(w, http.StatusServiceUnavailable, "rate limiter unavailable", 0)
				return
			}

			remaining := int64(rl.limit) - st.count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if st.count > int64(rl.limit) {
				writeLimiterError(w, http.StatusTooManyRequests, "rate limit exceeded", st.reset)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RedisRateLimiter) hit(ctx context.Context, key string) (windowState, error) {
	res, err := fixedWindowScript.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Slice()
	if err != nil {
		return windowState{}, err
	}
	if len(res) != 2 {
		return windowState{}, fmt.Errorf("unexpected rate limit script reply %v", res)
	}
	count, err := toInt64(res[0])
	if err != nil {
		return windowState{}, err
	}
	ttl, err := toInt64(res[1])
	if err != nil {
		return windowState{}, err
	}
	if ttl < 0 {
		ttl = rl.window.Milliseconds()
	}
	return windowState{count: count, reset: time.Duration(ttl) * time.Millisecond}, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis reply type %T", v)
	}
}
