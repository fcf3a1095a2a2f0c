package runtime

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

const readyCheckTimeout = 2 * time.Second

// NewBaseMuxWithReady returns a mux serving /healthz (liveness) and /readyz, which
// runs every check in parallel and answers 503 listing the failing dependencies.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		failures := runChecks(r.Context(), checks)
		if len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(strings.Join(failures, "; ")))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func runChecks(ctx context.Context, checks []ReadyCheck) []string {
	results := make([]string, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		if check.Check == nil {
			continue
		}
		wg.Add(1)
		go func(i int, check ReadyCheck) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, readyCheckTimeout)
			defer cancel()
			if err := check.Check(checkCtx); err != nil {
				name := check.Name
				if name == "" {
					name = "dependency"
				}
				results[i] = name + ": " + err.Error()
			}
		}(i, check)
	}
	wg.Wait()

	var failures []string
	for _, r := range results {
		if r != "" {
			failures = append(failures, r)
		}
	}
	return failures
}
