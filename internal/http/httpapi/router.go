package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"pageviews/internal/http/handlers"
	"pageviews/internal/infra"
	"pageviews/internal/middleware"
)

// NewRouter serves the direct ingestion API.
func NewRouter(app *handlers.App, cfg *infra.Config, logger zerolog.Logger) http.Handler {
	r := base(cfg, logger)
	r.Get("/health", app.Health)

	r.Route("/page-views", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))
		r.Post("/single", app.RecordSingle)
		r.Post("/multi", app.RecordMulti)
		r.Get("/{page}/{hour}", app.GetPageView)
	})
	return r
}

// NewGatewayRouter serves the fan-out gateway.
func NewGatewayRouter(app *handlers.App, cfg *infra.Config, logger zerolog.Logger) http.Handler {
	r := base(cfg, logger)
	r.Get("/health", app.GatewayHealth)

	r.Route("/page-views", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))
		r.Post("/single", app.GatewaySingle)
		r.Post("/multi", app.GatewayMulti)
	})
	return r
}

func base(cfg *infra.Config, logger zerolog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
		middleware.CORS(cfg.CORSAllowedOrigins),
	)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}
	r.Handle("/metrics", promhttp.Handler())
	return r
}
