package api

import (
	"context"
	"net/http"
	"time"

	"github.com/phrazzld/reelchain/internal/api/shared"
	"github.com/phrazzld/reelchain/internal/redact"
)

const storePingTimeout = 2 * time.Second

// HealthHandler serves liveness and store health.
type HealthHandler struct {
	store StoreStatus
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(store StoreStatus) *HealthHandler {
	return &HealthHandler{store: store}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// Store handles GET /health/store. It pings the active instance and answers
// 503 when it is unreachable.
func (h *HealthHandler) Store(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storePingTimeout)
	defer cancel()

	resp := StoreHealthResponse{
		Status:    "ok",
		Active:    h.store.ActiveName(),
		Instances: h.store.Status(),
	}
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		resp.Status = "unavailable"
		resp.Error = redact.Error(err)
		status = http.StatusServiceUnavailable
	}
	shared.RespondWithJSON(w, r, status, resp)
}
