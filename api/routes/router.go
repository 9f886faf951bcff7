package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/outbound-dispatch/api/controllers"
	"github.com/angelmondragon/outbound-dispatch/api/middleware"
	"github.com/angelmondragon/outbound-dispatch/internal/dispatch"
	"github.com/angelmondragon/outbound-dispatch/pkg/config"
	"github.com/angelmondragon/outbound-dispatch/pkg/logger"
)

type rateLimitStore interface {
	controllers.Pinger
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Params carries the dependencies wired into the HTTP surface.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	Dispatch dispatch.Service
	DB       controllers.Pinger
	Redis    rateLimitStore
	BigQuery controllers.Pinger
	Channel  controllers.Pinger
	Gatherer prometheus.Gatherer
}

func NewRouter(p Params) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
		middleware.CORS(p.Config.API.CORSOrigins),
	)

	runPolicy := middleware.NewRunRateLimitPolicy(
		"dispatch-run",
		p.Config.API.RunRateWindow,
		p.Config.API.RunRateLimit,
	)

	checks := []controllers.ReadinessCheck{{Name: "db", Pinger: p.DB}}
	var limiter rateLimitStore
	if p.Redis != nil {
		limiter = p.Redis
		checks = append(checks, controllers.ReadinessCheck{Name: "redis", Pinger: p.Redis})
	}
	if p.BigQuery != nil {
		checks = append(checks, controllers.ReadinessCheck{Name: "bigquery", Pinger: p.BigQuery})
	}
	if p.Channel != nil {
		checks = append(checks, controllers.ReadinessCheck{Name: "channel", Pinger: p.Channel})
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.Logger, checks...))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/dispatch", func(r chi.Router) {
		r.With(middleware.RunRateLimit(runPolicy, limiter, p.Logger)).Post("/runs", controllers.DispatchRun(p.Dispatch, p.Logger))
		r.Get("/runs", controllers.DispatchRecentRuns(p.Dispatch, p.Logger))
		r.Get("/stats", controllers.DispatchStats(p.Dispatch, p.Logger))
	})

	return r
}
