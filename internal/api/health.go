package api

import (
	"context"
	"net/http"
)

// Health returns the health status of the API and its dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.opts.HealthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status":              "healthy",
		"checks":              checks,
		"provider_configured": h.opts.ProviderConfigured,
		"store":               h.opts.StoreDriver,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		h.logger.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["store"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	if h.opts.ProviderConfigured {
		checks["provider"] = "configured"
	} else {
		checks["provider"] = "fallback"
	}
	if h.opts.Connections != nil {
		status["connections"] = h.opts.Connections()
	}

	JSON(w, statusCode, status)
}
