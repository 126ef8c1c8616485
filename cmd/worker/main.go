package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vantage-tms/vantage-tms/internal/app"
	"github.com/vantage-tms/vantage-tms/internal/cache"
	jobmetrics "github.com/vantage-tms/vantage-tms/internal/jobs"
	platformcache "github.com/vantage-tms/vantage-tms/internal/platform/cache"
	"github.com/vantage-tms/vantage-tms/internal/platform/db"
	"github.com/vantage-tms/vantage-tms/internal/session"
	"github.com/vantage-tms/vantage-tms/jobs"
)

// serveMetrics exposes the default Prometheus registry so the worker can be
// scraped independently of the web process.
func serveMetrics(addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics listener stopped", slog.Any("error", err))
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := platformcache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	store := cache.NewRedis(redisClient, cfg.CacheNamespace)
	invalidator := cache.NewCoordinator(store, logger)

	sessionRepo := session.NewRepository(pool)
	sessionService := session.NewService(sessionRepo, invalidator, logger, cfg.SessionTTL)

	metrics := jobmetrics.NewMetrics(nil)
	sweepJob := jobs.NewSessionSweepJob(sessionService, logger, metrics)
	invalidateJob := jobs.NewCacheInvalidateJob(store, logger, metrics)

	go serveMetrics(cfg.MetricsAddr, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSessionSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskCacheInvalidate, Handler: invalidateJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@hourly", Task: asynq.NewTask(jobs.TaskSessionSweep, nil)},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
