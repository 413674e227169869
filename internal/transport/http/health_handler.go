package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"tabflow/internal/infrastructure"
	"tabflow/pkg/contracts"
	api "tabflow/pkg/contracts/api/v1"
)

// ClientCounter reports the number of connected WebSocket clients
type ClientCounter interface {
	ClientCount() int
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	started time.Time
	clients ClientCounter
	runtime *infrastructure.RuntimeCollector
}

// NewHealthHandler creates a new health handler. Both collaborators may
// be nil.
func NewHealthHandler(clients ClientCounter, runtime *infrastructure.RuntimeCollector) *HealthHandler {
	return &HealthHandler{started: time.Now(), clients: clients, runtime: runtime}
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{
		Status:    "ok",
		Version:   contracts.Version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
	if h.clients != nil {
		resp.Clients = h.clients.ClientCount()
	}
	if h.runtime != nil {
		resp.Runtime = h.runtime.Collect(r.Context())
	}
	render.JSON(w, r, resp)
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, contracts.GetVersionInfo())
}
