package handler

import (
	"net/http"
	"time"

	"github.com/appliance-labs/debate-platform/internal/nats"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	nats    *nats.Client
	started time.Time
}

// NewHealthHandler creates a health handler. The NATS client may be nil when
// the event feed is disabled.
func NewHealthHandler(natsClient *nats.Client) *HealthHandler {
	return &HealthHandler{nats: natsClient, started: time.Now()}
}

type healthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks,omitempty"`
	Version string            `json:"version,omitempty"`
}

// Health reports liveness.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}

// Ready reports readiness of optional backends. A disabled or disconnected
// event feed degrades the response body but not the status: the debate flow
// works without it.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	if h.nats == nil {
		checks["nats"] = "disabled"
	} else if h.nats.IsConnected() {
		checks["nats"] = "connected"
	} else {
		checks["nats"] = "disconnected"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ready",
		Uptime: time.Since(h.started).Round(time.Second).String(),
		Checks: checks,
	})
}
