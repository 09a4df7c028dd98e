package handlers

import (
	"context"
	"net/http"
	"time"
)

const readyTimeout = 3 * time.Second

// Health reports liveness only.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the history store answers a read.
func (a *App) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if _, err := a.Pipeline.RecentHistory(ctx, 1); err != nil {
		a.Logger.Warn().Err(err).Msg("http: readiness check failed")
		a.json(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "history": err.Error()})
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok", "history": "ok"})
}
