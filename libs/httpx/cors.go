package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy configures cross-origin access for browser clients such as the
// front desk app. Empty method and header lists fall back to what the
// scheduling API accepts.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	defaultCORSHeaders = []string{"Authorization", "Content-Type", TenantIDHeader, RequestIDHeader}
)

type corsRules struct {
	origins     []string
	wildcard    bool
	credentials bool
	methods     string
	headers     string
	exposed     string
	maxAge      string
}

func compileCORS(p CORSPolicy) corsRules {
	rules := corsRules{credentials: p.AllowCredentials}
	for _, o := range trimAll(p.AllowedOrigins) {
		if o == "*" {
			rules.wildcard = true
			continue
		}
		rules.origins = append(rules.origins, strings.ToLower(strings.TrimSuffix(o, "/")))
	}
	methods := trimAll(p.AllowedMethods)
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	headers := trimAll(p.AllowedHeaders)
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	rules.methods = strings.Join(methods, ", ")
	rules.headers = strings.Join(headers, ", ")
	rules.exposed = strings.Join(trimAll(p.ExposedHeaders), ", ")
	if s := int(p.MaxAge / time.Second); s > 0 {
		rules.maxAge = strconv.Itoa(s)
	}
	return rules
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin. A
// wildcard policy echoes the origin when credentials are allowed, since
// browsers reject "*" in that case.
func (c corsRules) allowOrigin(origin string) (string, bool) {
	if c.wildcard {
		if c.credentials {
			return origin, true
		}
		return "*", true
	}
	normalized := strings.ToLower(strings.TrimSuffix(origin, "/"))
	for _, o := range c.origins {
		if o == normalized {
			return origin, true
		}
	}
	return "", false
}

// WithCORS answers preflights for allowed origins and decorates their actual
// requests. With no allowed origins configured it passes everything through.
func WithCORS(p CORSPolicy) Middleware {
	rules := compileCORS(p)
	if !rules.wildcard && len(rules.origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Add("Vary", "Origin")
			allow, ok := rules.allowOrigin(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", allow)
			if rules.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				if rules.exposed != "" {
					h.Set("Access-Control-Expose-Headers", rules.exposed)
				}
				next.ServeHTTP(w, r)
				return
			}

			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Methods", rules.methods)
			h.Set("Access-Control-Allow-Headers", rules.headers)
			if rules.maxAge != "" {
				h.Set("Access-Control-Max-Age", rules.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
