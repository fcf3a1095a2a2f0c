package httpx

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyFunc extracts the rate limiting key from a request.
type KeyFunc func(r *http.Request) string

// TenantOrClientKey limits per tenant when the request carries X-Tenant-Id and per
// client address otherwise.
func TenantOrClientKey(r *http.Request) string {
	if tenant := strings.TrimSpace(r.Header.Get(TenantIDHeader)); tenant != "" {
		return "tenant:" + tenant
	}
	return "ip:" + clientKey(r)
}

// RateLimiter is an in-process token bucket limiter, one bucket per key.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	keyFn    KeyFunc
	idleTTL  time.Duration
	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per key with bursts up to perMinute.
func NewRateLimiter(perMinute int, keyFn KeyFunc) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 600
	}
	if keyFn == nil {
		keyFn = TenantOrClientKey
	}
	return &RateLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		keyFn:    keyFn,
		idleTTL:  10 * time.Minute,
		visitors: map[string]*visitor{},
	}
}

func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(rl.keyFn(r), time.Now()) {
				writeLimiterError(w, http.StatusTooManyRequests, "rate limit exceeded", time.Duration(float64(time.Second)/float64(rl.limit)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v := rl.visitors[key]
	if v == nil {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	rl.evictIdle(now)
	return v.limiter.AllowN(now, 1)
}

// evictIdle drops buckets not seen for idleTTL. Caller holds rl.mu.
func (rl *RateLimiter) evictIdle(now time.Time) {
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idleTTL {
			delete(rl.visitors, key)
		}
	}
}

func clientKey(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// writeLimiterError writes a JSON error shaped like the API's own errors.
// retryAfter is rounded up to whole seconds; zero omits the header.
func writeLimiterError(w http.ResponseWriter, status int, msg string, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
