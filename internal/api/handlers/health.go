package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/pratik-mahalle/farmlink/internal/pkg/errors"
	"github.com/pratik-mahalle/farmlink/internal/pkg/logger"
	"github.com/pratik-mahalle/farmlink/internal/pkg/utils"
)

// Pinger is satisfied by *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db        Pinger
	providers int
	logger    *logger.Logger
}

// NewHealthHandler creates a new health handler. providers is the number of
// catalogued providers, reported by the readiness probe.
func NewHealthHandler(db Pinger, providers int, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:        db,
		providers: providers,
		logger:    log,
	}
}

// Healthz handles liveness probe
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string "Application is alive"
// @Router /healthz [get]
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccess(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Readyz handles readiness probe
// @Summary Readiness probe
// @Description Check if the application is ready to serve requests
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string "Application is ready"
// @Failure 503 {object} utils.ErrorResponse "Service unavailable"
// @Router /readyz [get]
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.ErrorWithErr(err, "Database ping failed")
		utils.WriteError(w, errors.ServiceUnavailable("Database connection failed"))
		return
	}

	utils.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"status":    "ready",
		"database":  "connected",
		"providers": h.providers,
	})
}
