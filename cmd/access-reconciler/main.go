package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-access-scheduling/internal/config"
	"github.com/hackgods/clinic-access-scheduling/internal/db"
	"github.com/hackgods/clinic-access-scheduling/internal/emergency"
	"github.com/hackgods/clinic-access-scheduling/internal/identity"
	"github.com/hackgods/clinic-access-scheduling/internal/logging"
	"github.com/hackgods/clinic-access-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-access-scheduling/internal/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single reconciliation and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "prod").Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "access-reconciler").Logger()
	logger.Info().
		Str("env", cfg.Env).
		Str("schedule", cfg.ReconcileSchedule).
		Msg("access-reconciler starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry := emergency.NewRegistry(
		emergency.NewPgStore(pgPool),
		emergency.NewRedisIndex(rdb, "access", cfg.IndexGrace),
		identity.NewPgDirectory(pgPool),
		logger,
		emergency.WithMetrics(metrics.New(reg)),
	)

	job := &reconcileJob{
		registry: registry,
		// one reconciler at a time across replicas
		locker:  redisclient.NewRedisLocker(rdb, "job-lock", 2*time.Minute),
		timeout: time.Minute,
		logger:  logger,
	}

	// Run once at startup
	job.run(rootCtx)
	if *once {
		return
	}

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metricsMux(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", metricsSrv.Addr).Msg("metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	c := cron.New(
		cron.WithLogger(cronLogger{logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
	)
	if _, err := c.AddFunc(cfg.ReconcileSchedule, func() { job.run(rootCtx) }); err != nil {
		logger.Fatal().Err(err).Msg("invalid reconcile schedule")
	}
	c.Start()

	<-rootCtx.Done()
	logger.Info().Msg("shutdown signal received, waiting for running reconciliation")
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics shutdown failed")
	}
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

// Reconciler is satisfied by *emergency.Registry.
type Reconciler interface {
	Reconcile(ctx context.Context, now time.Time) (emergency.ReconcileReport, error)
	Now() time.Time
}

type reconcileJob struct {
	registry Reconciler
	locker   redisclient.Locker
	timeout  time.Duration
	logger   zerolog.Logger
}

func (j *reconcileJob) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	var report emergency.ReconcileReport
	err := j.locker.WithLock(runCtx, "access-reconcile", func(lockCtx context.Context) error {
		var err error
		report, err = j.registry.Reconcile(lockCtx, j.registry.Now())
		return err
	})
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		j.logger.Info().Msg("another reconciler holds the lock, skipping run")
	case err != nil:
		j.logger.Error().Err(err).Msg("reconcile run error")
	default:
		j.logger.Info().
			Int("removed", report.Removed).
			Int("restored", report.Restored).
			Int("superseded", report.Superseded).
			Dur("took", time.Since(start)).
			Msg("reconcile run complete")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
