package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vantage-tms/vantage-tms/internal/app"
	"github.com/vantage-tms/vantage-tms/internal/authz"
	"github.com/vantage-tms/vantage-tms/internal/cache"
	"github.com/vantage-tms/vantage-tms/internal/observability"
	platformcache "github.com/vantage-tms/vantage-tms/internal/platform/cache"
	"github.com/vantage-tms/vantage-tms/internal/platform/db"
	"github.com/vantage-tms/vantage-tms/internal/session"
	"github.com/vantage-tms/vantage-tms/internal/shared"
	"github.com/vantage-tms/vantage-tms/internal/transport"
	"github.com/vantage-tms/vantage-tms/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	// The coordinator exists before any service that mutates state; every
	// write path receives it as an explicit collaborator.
	store := cache.NewRedis(redisClient, cfg.CacheNamespace)
	invalidator := cache.NewCoordinator(store, logger)

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	invalidator.SetRetrier(jobClient)

	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	sessionRepo := session.NewRepository(dbpool)
	sessionService := session.NewService(sessionRepo, invalidator, logger, cfg.SessionTTL)
	sessionHandler := session.NewHandler(logger, sessionService, csrfManager, cfg.SessionCookie, cfg.IsProduction())

	authzRepo := authz.NewRepository(dbpool)
	resolver := authz.NewResolver(authzRepo, sessionService, store, invalidator, logger, cfg.PermCacheTTL)
	resolver.SetCacheObserver(metrics)
	authzMiddleware := authz.Middleware{Resolver: resolver, Logger: logger}
	authzHandler := authz.NewHandler(logger, resolver)

	transportRepo := transport.NewRepository(dbpool)
	transportService := transport.NewService(transportRepo, resolver, store, invalidator, logger, cfg.LinkageViewTTL)
	transportHandler := transport.NewHandler(logger, transportService, authzMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Sessions:         sessionService,
		CSRF:             csrfManager,
		Metrics:          metrics,
		SessionHandler:   sessionHandler,
		AuthzHandler:     authzHandler,
		TransportHandler: transportHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
