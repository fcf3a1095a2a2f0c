package httpx

import (
	"net/http"
	"strings"
)

// TenantIDHeader carries the tenant resolved by the auth layer. Handlers read it
// and pass it on explicitly; it is never stashed in a global.
const TenantIDHeader = "X-Tenant-Id"

func TenantID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(TenantIDHeader))
}

// RequireTenant rejects requests that reach it without a tenant id.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TenantID(r) == "" {
			http.Error(w, "missing "+TenantIDHeader, http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}
