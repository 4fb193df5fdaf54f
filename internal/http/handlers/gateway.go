package handlers

import (
	"errors"
	"net/http"

	"pageviews/internal/domain"
	"pageviews/internal/fanout"
	"pageviews/internal/validation"
)

func (a *App) GatewaySingle(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r)
	ev, err := validation.DecodeEvent(r.Body)
	if err != nil {
		a.invalid(w, "gateway_single", err)
		return
	}

	batch := domain.SingleBatch(ev)
	queue, err := a.Queue.Publish(r.Context(), fanout.KindSingle, batch)
	if err != nil {
		a.publishFailed(w, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{
		"message": "Page view queued",
		"queue":   queue,
		"data":    batch,
	})
}

func (a *App) GatewayMulti(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r)
	batch, err := validation.DecodeBatch(r.Body)
	if err != nil {
		a.invalid(w, "gateway_multi", err)
		return
	}

	queue, err := a.Queue.Publish(r.Context(), fanout.KindMulti, batch)
	if err != nil {
		a.publishFailed(w, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{
		"message": "Multiple page views queued",
		"queue":   queue,
		"data":    batch,
	})
}

func (a *App) publishFailed(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrDistributorUnavailable) {
		a.error(w, http.StatusInternalServerError, "Queue connection not ready")
		return
	}
	a.error(w, http.StatusInternalServerError, "Failed to queue page view")
}
