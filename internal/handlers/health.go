package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/feastline/api/internal/platform/httpx"
)

var startTime = time.Now()

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	ready func(ctx context.Context) error
}

// NewHealthHandlers constructs health handlers. ready is optional; without it
// Readyz behaves like Healthz.
func NewHealthHandlers(ready func(ctx context.Context) error) *HealthHandlers {
	return &HealthHandlers{ready: ready}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz reports whether the backing services are reachable.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("not_ready", "dependencies unavailable", http.StatusServiceUnavailable))
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
