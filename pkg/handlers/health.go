package handlers

import (
	"net/http"
	"time"

	"ecdar-gateway/pkg/config"
	"ecdar-gateway/pkg/database"
	"ecdar-gateway/pkg/utils"

	"github.com/rs/zerolog"
)

type HealthHandler struct {
	config *config.Config
	db     database.DatabaseInterface
	logger zerolog.Logger
}

func NewHealthHandler(cfg *config.Config, db database.DatabaseInterface, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{config: cfg, db: db, logger: logger}
}

// GET /
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "healthy"
	status := http.StatusOK
	if err := h.db.HealthCheck(r.Context()); err != nil {
		// GET / is public; the cause stays in the log
		h.logger.Error().Err(err).Msg("database health check failed")
		dbStatus = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	utils.WriteJSONResponse(w, status, map[string]interface{}{
		"service":     "ecdar-gateway",
		"environment": h.config.Environment,
		"database":    h.config.DatabaseDriver,
		"db_status":   dbStatus,
		"timestamp":   time.Now().Unix(),
	})
}
