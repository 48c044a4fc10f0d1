package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/photo-indexer/internal/errkind"
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps err to a status code through errkind. Client errors carry
// the error text, server errors are logged and answered with a generic message.
func respondErr(w http.ResponseWriter, logger *zap.Logger, msg string, err error) {
	status := errkind.HTTPStatus(err)
	if status < http.StatusInternalServerError {
		respondError(w, status, err.Error())
		return
	}
	logger.Error(msg, zap.String("error_kind", string(errkind.Classify(err))), zap.Error(err))
	respondError(w, status, msg)
}

// Check is a named readiness probe.
type Check func(ctx context.Context) error

// HealthHandler reports liveness and the state of the configured checks.
type HealthHandler struct {
	checks  map[string]Check
	timeout time.Duration
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 5 * time.Second}
}

// Get handles GET /api/v1/health.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"checks": failed,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
