package handler

import (
	"context"
	"net/http"
	"yuanyue-cms/internal/logger"
	"yuanyue-cms/internal/middleware"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness of the record store.
type HealthHandler struct {
	db  Pinger
	log logger.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db Pinger, log logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, log: log}
}

func (h *HealthHandler) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.log.Error(err, "Health check failed")
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
