package handlers

import (
	"context"
	"net/http"
	"time"

	"pageviews/internal/fanout"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.Agg.Ping(ctx); err != nil {
		a.Logger.Warn().Err(err).Str("backend", a.Agg.Backend()).Msg("health check failed")
		a.json(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "database": "disconnected"})
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok", "database": "connected"})
}

func (a *App) GatewayHealth(w http.ResponseWriter, r *http.Request) {
	state := a.Queue.State()
	if state != fanout.StateReady {
		a.json(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "broker": state.String()})
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok", "broker": state.String()})
}
