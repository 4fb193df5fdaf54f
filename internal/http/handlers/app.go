package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"pageviews/internal/aggregate"
	"pageviews/internal/domain"
	"pageviews/internal/fanout"
	"pageviews/internal/metrics"
)

const maxBodyBytes = 1 << 20

// Publisher is the fan-out side used by the gateway handlers.
type Publisher interface {
	Publish(ctx context.Context, kind string, batch domain.BatchRequest) (string, error)
	State() fanout.State
}

// App carries the dependencies of both HTTP surfaces. The ingestion API sets Agg and
// Batches, the gateway sets Queue.
type App struct {
	Agg     *aggregate.Aggregator
	Batches *aggregate.Orchestrator
	Queue   Publisher
	Logger  zerolog.Logger
}

func NewApp(agg *aggregate.Aggregator, batches *aggregate.Orchestrator, logger zerolog.Logger) *App {
	return &App{Agg: agg, Batches: batches, Logger: logger}
}

func NewGatewayApp(queue Publisher, logger zerolog.Logger) *App {
	return &App{Queue: queue, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]any{"error": message})
}

// invalid writes the 400 body for a rejected payload.
func (a *App) invalid(w http.ResponseWriter, route string, err error) {
	metrics.ValidationFailures.WithLabelValues(route).Inc()

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}
	body := map[string]any{"error": verr.Error()}
	if verr.Expected != "" {
		body["expected"] = verr.Expected
	}
	if verr.Page != "" {
		body["page"] = verr.Page
	}
	if verr.Timestamp != "" {
		body["timestamp"] = verr.Timestamp
	}
	if len(verr.Fields) > 0 {
		body["required"] = verr.Fields
	}
	a.json(w, http.StatusBadRequest, body)
}

func limitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
}

type counterResponse struct {
	Page      string `json:"page"`
	Hour      string `json:"hour"`
	ViewCount int64  `json:"view_count"`
}

func toCounterResponse(c domain.PageHourCounter) counterResponse {
	return counterResponse{Page: c.Page, Hour: c.Bucket.Key(), ViewCount: c.ViewCount}
}
