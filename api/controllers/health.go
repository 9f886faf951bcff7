package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/outbound-dispatch/api/responses"
	"github.com/angelmondragon/outbound-dispatch/pkg/config"
	pkgerrors "github.com/angelmondragon/outbound-dispatch/pkg/errors"
	"github.com/angelmondragon/outbound-dispatch/pkg/logger"
)

const (
	envHeader           = "X-Outbound-Env"
	readinessTimeout    = 2 * time.Second
	readinessStatusOK   = "ok"
	readinessStatusFail = "unavailable"
)

// Pinger is implemented by every dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessCheck names one dependency probed by /health/ready.
type ReadinessCheck struct {
	Name   string
	Pinger Pinger
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings each configured dependency; any failure answers 503.
func HealthReady(cfg *config.Config, logg *logger.Logger, checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		results := make(map[string]string, len(checks))
		var failed []string
		for _, check := range checks {
			if check.Pinger == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			err := check.Pinger.Ping(ctx)
			cancel()
			if err != nil {
				results[check.Name] = readinessStatusFail
				failed = append(failed, check.Name)
				if logg != nil {
					logg.Warn(logg.WithFields(r.Context(), map[string]any{
						"dependency": check.Name,
						"error":      err.Error(),
					}), "health.ready.dependency_failed")
				}
				continue
			}
			results[check.Name] = readinessStatusOK
		}

		if len(failed) > 0 {
			err := pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").
				WithDetails(map[string]any{"checks": results, "failed": failed})
			responses.WriteError(r.Context(), nil, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": results})
	}
}
