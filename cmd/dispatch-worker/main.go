package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/outbound-dispatch/internal/bootstrap"
	"github.com/angelmondragon/outbound-dispatch/internal/dispatch"
	"github.com/angelmondragon/outbound-dispatch/internal/scheduler"
	"github.com/angelmondragon/outbound-dispatch/pkg/config"
	"github.com/angelmondragon/outbound-dispatch/pkg/db"
	"github.com/angelmondragon/outbound-dispatch/pkg/instance"
	"github.com/angelmondragon/outbound-dispatch/pkg/logger"
	"github.com/angelmondragon/outbound-dispatch/pkg/metrics"
	"github.com/angelmondragon/outbound-dispatch/pkg/migrate"
	"github.com/angelmondragon/outbound-dispatch/pkg/redis"
)

const serviceName = "dispatch-worker"

type runFlags struct {
	once            bool
	dryRun          bool
	batch           int
	concurrency     int
	retryFailedOnly bool
	includeFailed   bool
	force           bool
	requestedBy     string
	noLog           bool
}

func parseFlags() runFlags {
	var f runFlags
	flag.BoolVar(&f.once, "once", false, "run a single dispatch and print the result instead of starting the scheduler")
	flag.BoolVar(&f.dryRun, "dry-run", false, "plan only; no leases, deliveries or state changes")
	flag.IntVar(&f.batch, "batch", 0, "batch size (0 uses OUTBOUND_DISPATCH_BATCH_SIZE)")
	flag.IntVar(&f.concurrency, "concurrency", 0, "worker count (0 uses OUTBOUND_DISPATCH_CONCURRENCY)")
	flag.BoolVar(&f.retryFailedOnly, "retry-failed-only", false, "select FAILED messages only")
	flag.BoolVar(&f.includeFailed, "include-failed", false, "select QUEUED and FAILED messages")
	flag.BoolVar(&f.force, "force", false, "ignore next_attempt_at")
	flag.StringVar(&f.requestedBy, "requested-by", "", "requester recorded on the run log")
	flag.BoolVar(&f.noLog, "no-log", false, "skip run log persistence")
	flag.Parse()
	return f
}

func (f runFlags) params() dispatch.RunParams {
	requestedBy := f.requestedBy
	if requestedBy == "" {
		requestedBy = "cli:" + instance.GetID()
	}
	params := dispatch.DefaultRunParams(requestedBy)
	params.DryRun = f.dryRun
	params.BatchSize = f.batch
	params.Concurrency = f.concurrency
	params.RetryFailedOnly = f.retryFailedOnly
	params.IncludeFailed = f.includeFailed
	params.Force = f.force
	params.LogRun = !f.noLog
	return params
}

func main() {
	flags := parseFlags()
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		if !flags.once {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		logg.Warn(logg.WithField(context.Background(), "error", err.Error()), "redis unavailable; owner cache disabled")
		redisClient = nil
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	}

	stack, err := bootstrap.NewDispatch(context.Background(), bootstrap.DispatchParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient.DB(),
		Redis:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch service", err)
		os.Exit(1)
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logg.Error(context.Background(), "error closing dispatch clients", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	if flags.once {
		if err := runOnce(ctx, stack.Service, flags.params()); err != nil {
			logg.Error(ctx, "dispatch run failed", err)
			os.Exit(1)
		}
		return
	}

	service, err := newScheduler(cfg, logg, redisClient, stack)
	if err != nil {
		logg.Error(ctx, "failed to create scheduler", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting dispatch worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "dispatch worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "dispatch worker shutting down gracefully")
}

func runOnce(ctx context.Context, svc dispatch.Service, params dispatch.RunParams) error {
	result, err := svc.Run(ctx, params)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

func newScheduler(cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, stack *bootstrap.Dispatch) (*scheduler.Service, error) {
	lock, err := scheduler.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Scheduler.LockTTL)
	if err != nil {
		return nil, err
	}

	dispatchJob, err := scheduler.NewDispatchJob(scheduler.DispatchJobParams{Service: stack.Service})
	if err != nil {
		return nil, err
	}
	retentionJob, err := scheduler.NewRunLogRetentionJob(scheduler.RunLogRetentionJobParams{
		Repository: stack.RunLogs,
		Retention:  cfg.Dispatch.RunLogRetentionDays,
	})
	if err != nil {
		return nil, err
	}

	registry, err := scheduler.NewRegistry(dispatchJob, retentionJob)
	if err != nil {
		return nil, err
	}

	return scheduler.NewService(scheduler.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewSchedulerMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Scheduler.Interval,
	})
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return serviceName + ":" + env
}
