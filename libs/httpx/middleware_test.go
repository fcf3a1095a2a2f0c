package httpx

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		order = append(order, "handler")
		w.WriteHeader(http.StatusOK)
	}), mark("a"), mark("b"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "handler" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if seen != "req-123" || rw.Header().Get(RequestIDHeader) != "req-123" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, rw.Header().Get(RequestIDHeader))
	}

	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(rw.Header().Get(RequestIDHeader)) != 36 {
		t.Fatalf("expected generated uuid, got %q", rw.Header().Get(RequestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id\nwith newline")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if got := rw.Header().Get(RequestIDHeader); got == "bad id\nwith newline" || len(got) != 36 {
		t.Fatalf("expected malformed id to be replaced, got %q", got)
	}
}

func TestRequireTenant(t *testing.T) {
	h := RequireTenant(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TenantIDHeader, "clinic-1")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}
}

func TestRateLimiterPerTenant(t *testing.T) {
	rl := NewRateLimiter(2, nil)
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(tenant string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TenantIDHeader, tenant)
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		return rw.Code
	}

	if send("a") != http.StatusOK || send("a") != http.StatusOK {
		t.Fatal("expected burst of two requests to pass")
	}
	if code := send("a"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := send("b"); code != http.StatusOK {
		t.Fatalf("expected other tenant to have its own bucket, got %d", code)
	}
}

func TestCORSPreflightUsesDefaults(t *testing.T) {
	called := false
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://desk.example.com/"},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         time.Minute,
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/bookings", nil)
	req.Header.Set("Origin", "https://Desk.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent || called {
		t.Fatalf("expected preflight to short-circuit with 204, got %d (called=%v)", rw.Code, called)
	}
	if got := rw.Header().Get("Access-Control-Allow-Origin"); got != "https://Desk.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if got := rw.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, TenantIDHeader) {
		t.Fatalf("expected default headers to include tenant header, got %q", got)
	}
	if got := rw.Header().Get("Access-Control-Max-Age"); got != "60" {
		t.Fatalf("unexpected max age %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/slots", nil)
	req.Header.Set("Origin", "https://desk.example.com")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if !called || rw.Header().Get("Access-Control-Expose-Headers") != RequestIDHeader {
		t.Fatalf("expected actual request to pass with exposed headers, got %v", rw.Header())
	}

	called = false
	req = httptest.NewRequest(http.MethodGet, "/api/v1/slots", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if !called || rw.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected CORS headers for foreign origin: %v", rw.Header())
	}
}

func TestWithRecoverReturns500(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := WithRecover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Code)
	}
}

func TestWithBodyLimitRejectsDeclaredOversize(t *testing.T) {
	h := WithBodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789"))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rw.Code)
	}
}
