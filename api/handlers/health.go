package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger is anything with a liveness probe, like the database pool or the
// cache manager.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service health from its registered probes.
type HealthHandler struct {
	checks map[string]Pinger
	logger *zap.Logger
}

// NewHealthHandler creates a health handler with no probes.
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		checks: make(map[string]Pinger),
		logger: logger.With(zap.String("component", "health_handler")),
	}
}

// AddCheck registers a named probe.
func (h *HealthHandler) AddCheck(name string, p Pinger) {
	if p != nil {
		h.checks[name] = p
	}
}

// HandleHealthz answers GET /healthz: 200 when every probe passes, 503
// otherwise.
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	WriteJSON(w, status, map[string]interface{}{
		"status": map[int]string{
			http.StatusOK:                 "healthy",
			http.StatusServiceUnavailable: "unhealthy",
		}[status],
		"checks": results,
	})
}
