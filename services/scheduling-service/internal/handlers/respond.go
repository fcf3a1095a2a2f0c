package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperror"
)

type errorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// writeError maps the domain taxonomy to status codes. Anything outside it is an
// internal error whose message is logged, not returned.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperror.IsValidation(err):
		status = http.StatusBadRequest
	case apperror.IsNotFound(err):
		status = http.StatusNotFound
	case apperror.IsConflict(err):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "err", err, "method", r.Method, "path", r.URL.Path)
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Details: apperror.Details(err)})
}
