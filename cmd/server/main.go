// Command server runs the Elyphant reconciliation HTTP service.
//
//	@title			Elyphant Backend API
//	@version		1.0
//	@description	Order reconciliation, payment verification and wishlist endpoints
//	@contact.name	Elyphant Engineering
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Supabase access token. Format: "Bearer {token}"
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/bootstrap"
	"github.com/elyphant/backend/internal/infrastructure/auth"
	"github.com/elyphant/backend/internal/infrastructure/config"
	"github.com/elyphant/backend/internal/infrastructure/logger"
	"github.com/elyphant/backend/internal/infrastructure/scheduler"
	"github.com/elyphant/backend/internal/interfaces/http/handler"
	"github.com/elyphant/backend/internal/interfaces/http/middleware"
	"github.com/elyphant/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting Elyphant backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()
	app, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Close(shutdownCtx); err != nil {
			log.Error("Error releasing resources", zap.Error(err))
		}
	}()
	log = app.Logger
	svc := app.Services

	// Zinc status sync worker pool
	var statusSyncHandler *handler.StatusSyncHandler
	if cfg.Reconciliation.StatusSyncEnabled {
		syncConfig := scheduler.DefaultStatusSyncSchedulerConfig()
		syncConfig.MaxConcurrentJobs = cfg.Reconciliation.StatusSyncWorkers
		syncConfig.RetryAttempts = cfg.Reconciliation.StatusSyncMaxRetries
		syncConfig.PollInterval = cfg.Reconciliation.StatusSyncInterval
		syncConfig.BatchSize = cfg.Reconciliation.StatusSyncBatchSize

		statusSync, err := scheduler.NewStatusSyncScheduler(syncConfig,
			scheduler.NewFulfillmentStatusExecutor(svc.Statuses), svc.Statuses, log.Named("status-sync"))
		if err != nil {
			log.Fatal("Invalid status sync configuration", zap.Error(err))
		}
		if err := statusSync.Start(ctx); err != nil {
			log.Fatal("Failed to start status sync", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := statusSync.Stop(stopCtx); err != nil {
				log.Error("Error stopping status sync", zap.Error(err))
			}
		}()
		statusSyncHandler = handler.NewStatusSyncHandler(statusSync)
		log.Info("Status sync started",
			zap.Int("workers", syncConfig.MaxConcurrentJobs),
			zap.Duration("poll_interval", syncConfig.PollInterval),
		)
	}

	// Daily duplicate cleanup
	if cfg.Reconciliation.CleanupCronEnabled {
		trigger, err := scheduler.NewCleanupCronTrigger(scheduler.CleanupCronTriggerConfig{
			Schedule:   cfg.Reconciliation.CleanupSchedule,
			Location:   time.UTC,
			RunTimeout: cfg.Reconciliation.CleanupLockTTL,
		}, svc.Cleanup, log.Named("cleanup-cron"))
		if err != nil {
			log.Fatal("Invalid cleanup schedule", zap.Error(err))
		}
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start cleanup trigger", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := trigger.Stop(stopCtx); err != nil {
				log.Error("Error stopping cleanup trigger", zap.Error(err))
			}
		}()
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	var limiter *middleware.RateLimiter
	stopSweep := make(chan struct{})
	defer close(stopSweep)
	if cfg.HTTP.RateLimitEnabled {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
		go limiter.Run(time.Minute, stopSweep)
		log.Info("Rate limiting enabled",
			zap.Float64("rps", cfg.HTTP.RateLimitRPS),
			zap.Int("burst", cfg.HTTP.RateLimitBurst),
		)
	}

	var httpMetrics *middleware.HTTPMetrics
	if cfg.HTTP.MetricsEnabled {
		httpMetrics = middleware.NewHTTPMetrics("elyphant")
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine := router.New(router.Options{
		ServiceName:       cfg.Telemetry.ServiceName,
		FunctionsBasePath: cfg.HTTP.FunctionsBasePath,
		TrustedProxies:    cfg.HTTP.TrustedProxies,
		Verifier:          auth.NewVerifier(cfg.JWT),
		CORS:              cors,
		MaxBodySize:       cfg.HTTP.MaxBodySize,
		RateLimiter:       limiter,
		Metrics:           httpMetrics,
		TracingEnabled:    cfg.Telemetry.Enabled,
		ProfilingEnabled:  cfg.Telemetry.ProfilingEnabled,
	}, router.Handlers{
		Functions:  handler.NewFunctionsHandler(svc.Cleanup, svc.Payments, svc.Statuses),
		Webhook:    handler.NewWebhookHandler(svc.Webhooks),
		Orders:     handler.NewOrderHandler(svc.Orders),
		Wishlists:  handler.NewWishlistHandler(svc.Wishlists),
		Health:     handler.NewHealthHandler(app.DB),
		StatusSync: statusSyncHandler,
	}, log)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("Shutting down server", zap.String("signal", sig.String()))
	case err := <-serveErr:
		log.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited")
}
