// Package bootstrap wires the dispatch service and its collaborators for the
// binaries under cmd/.
package bootstrap

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/outbound-dispatch/internal/channels"
	"github.com/angelmondragon/outbound-dispatch/internal/dispatch"
	"github.com/angelmondragon/outbound-dispatch/internal/owners"
	"github.com/angelmondragon/outbound-dispatch/pkg/bigquery"
	"github.com/angelmondragon/outbound-dispatch/pkg/config"
	"github.com/angelmondragon/outbound-dispatch/pkg/logger"
	"github.com/angelmondragon/outbound-dispatch/pkg/metrics"
	"github.com/angelmondragon/outbound-dispatch/pkg/redis"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// DispatchParams are the shared clients the dispatch stack is built on.
type DispatchParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *gorm.DB
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Dispatch bundles the wired service with the handles its callers need.
type Dispatch struct {
	Service  dispatch.Service
	RunLogs  *dispatch.RunLogRepository
	BigQuery *bigquery.Client
	Channel  pinger

	closers []io.Closer
}

// NewDispatch builds the dispatch service: channel, owner resolution, run
// sinks and metrics. A BigQuery failure disables that sink instead of failing.
func NewDispatch(ctx context.Context, p DispatchParams) (*Dispatch, error) {
	if p.Config == nil || p.Logger == nil || p.DB == nil {
		return nil, fmt.Errorf("config, logger and db are required")
	}
	cfg := p.Config
	out := &Dispatch{}

	channel, closer, err := channels.New(ctx, cfg.Channel, cfg.GCP, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("init delivery channel: %w", err)
	}
	out.closers = append(out.closers, closer)
	if cp, ok := closer.(pinger); ok {
		out.Channel = cp
	}

	var resolver dispatch.OwnerResolver = owners.NewDBResolver(p.DB)
	if p.Redis != nil && cfg.Redis.OwnerCacheTTL > 0 {
		resolver = owners.NewCachedResolver(owners.NewDBResolver(p.DB), p.Redis, cfg.Redis.OwnerCacheTTL, p.Logger)
	}

	out.RunLogs = dispatch.NewRunLogRepository(p.DB)
	sinks := []dispatch.RunSink{out.RunLogs}
	if cfg.BigQuery.Enabled {
		client, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, p.Logger)
		if err != nil {
			p.Logger.Warn(p.Logger.WithField(ctx, "error", err.Error()), "bigquery run sink disabled")
		} else {
			out.BigQuery = client
			out.closers = append(out.closers, client)
			sinks = append(sinks, dispatch.NewBigQuerySink(client))
		}
	}

	svc, err := dispatch.NewService(dispatch.ServiceParams{
		Repository: dispatch.NewRepository(p.DB),
		Resolver:   resolver,
		Adapter:    dispatch.NewAdapter(channel, cfg.Channel.Timeout),
		Reporter:   dispatch.NewReporter(p.Logger, sinks...),
		RunLogs:    out.RunLogs,
		Config:     cfg.Dispatch,
		Logger:     p.Logger,
		Metrics:    metrics.NewDispatchMetrics(p.Registerer),
	})
	if err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("init dispatch service: %w", err)
	}
	out.Service = svc
	return out, nil
}

// Close releases the channel and analytics clients.
func (d *Dispatch) Close() error {
	var err error
	for _, c := range d.closers {
		if c != nil {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
