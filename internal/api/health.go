package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/casecoach/internal/health"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	pinger     health.Pinger
	llmEnabled bool
	timeout    time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(pinger health.Pinger, llmEnabled bool) *HealthHandler {
	return &HealthHandler{pinger: pinger, llmEnabled: llmEnabled, timeout: 5 * time.Second}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok", "llm": "fallback"}
	if h.llmEnabled {
		checks["llm"] = "configured"
	}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.pinger.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
