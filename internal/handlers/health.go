package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/tasknest/apiserver/internal/logger"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Healthz answers liveness checks after pinging the database.
func Healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, Response{Success: false, Message: "database unavailable"})
			return
		}
		writeOK(w, http.StatusOK, "ok", nil)
	}
}
