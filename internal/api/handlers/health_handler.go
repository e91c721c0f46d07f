package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/isdelr/telemed-portal/internal/monitoring"
	"github.com/rs/zerolog/log"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HostSampler provides the latest host usage sample.
type HostSampler interface {
	Latest(ctx context.Context) (monitoring.HostStats, error)
}

// HealthHandler reports liveness of the store and the host.
type HealthHandler struct {
	db    Pinger
	stats HostSampler
}

// NewHealthHandler creates a new HealthHandler. stats may be nil.
func NewHealthHandler(db Pinger, stats HostSampler) *HealthHandler {
	return &HealthHandler{db: db, stats: stats}
}

type healthResponse struct {
	Status   string                `json:"status"`
	Database string                `json:"database"`
	Host     *monitoring.HostStats `json:"host,omitempty"`
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "ok"}
	status := http.StatusOK
	if err := h.db.PingContext(ctx); err != nil {
		log.Error().Err(err).Msg("Health check: database unreachable")
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	if h.stats != nil {
		if stats, err := h.stats.Latest(ctx); err == nil {
			resp.Host = &stats
		} else {
			log.Warn().Err(err).Msg("Health check: host stats unavailable")
		}
	}
	writeJSON(w, status, resp)
}
