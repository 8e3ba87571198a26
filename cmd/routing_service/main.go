package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/textroute/smsrouter/internal/platform/config"
	"github.com/textroute/smsrouter/internal/platform/database"
	"github.com/textroute/smsrouter/internal/platform/logger"
	"github.com/textroute/smsrouter/internal/routing/adapters/agent"
	"github.com/textroute/smsrouter/internal/routing/adapters/smsprovider"
	"github.com/textroute/smsrouter/internal/routing/app"
	"github.com/textroute/smsrouter/internal/routing/formatter"
	"github.com/textroute/smsrouter/internal/routing/identity"
	"github.com/textroute/smsrouter/internal/routing/phone"
	"github.com/textroute/smsrouter/internal/routing/processor"
	pgrepo "github.com/textroute/smsrouter/internal/routing/repository/postgres"
	"github.com/textroute/smsrouter/internal/routing/retry"
	httptransport "github.com/textroute/smsrouter/internal/routing/transport/http"
)

const (
	serviceName     = "routing-service"
	shutdownTimeout = 30 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Routing service starting...", "http_port", cfg.HTTPPort, "metrics_port", cfg.MetricsPort)

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Database connection pool initialized")

	recordRepo := pgrepo.NewDeliveryRecordRepository(dbPool)
	identityLookup := pgrepo.NewIdentityStore(dbPool)

	var store identity.Store
	switch cfg.CacheBackend {
	case "redis":
		redisStore, err := identity.NewRedisStore(mainCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			appLogger.Error("Failed to connect to Redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		store = redisStore
		appLogger.Info("Identity cache backed by Redis", "addr", cfg.RedisAddr)
	default:
		store = identity.NewMemoryStore(cfg.CacheTTL)
		appLogger.Info("Identity cache backed by in-process store")
	}

	normalizer := phone.NewNormalizer(cfg.DefaultCountryCode)
	identityCache := identity.NewCache(normalizer, store, identityLookup, cfg.CacheTTL, appLogger)

	provider := smsprovider.NewHTTPProvider(appLogger, cfg.ProviderAPIURL, cfg.ProviderAPIKey, cfg.ProviderSenderID,
		&http.Client{Timeout: cfg.ProviderTimeout})
	responder := agent.NewHTTPResponder(cfg.AgentAPIURL, cfg.AgentAPIToken, cfg.AgentTimeout, appLogger)

	scheduler := retry.NewScheduler(recordRepo, provider, retry.NewClassifier(), appLogger,
		cfg.RetryBatchSize, cfg.RetryClaimTTL)

	engine := app.NewRoutingEngine(
		identityCache,
		normalizer,
		processor.NewProcessor(appLogger),
		formatter.NewFormatter(cfg.SegmentMaxLength, cfg.MaxSegments),
		scheduler,
		recordRepo,
		provider,
		responder,
		appLogger,
	)

	handler := httptransport.NewWebhookHandler(engine, scheduler, appLogger, validator.New())
	router := httptransport.NewRouter(handler)

	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: router}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: metricsMux}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		appLogger.Info("Metrics server listening", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		appLogger.Info("Starting retry sweep worker", "interval", cfg.RetrySweepInterval)
		return scheduler.Run(groupCtx, cfg.RetrySweepInterval)
	})

	g.Go(func() error {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cleared, err := scheduler.CleanupOldRetries(groupCtx, cfg.RetryCleanupAge)
				if err != nil {
					appLogger.ErrorContext(groupCtx, "Retry cleanup failed", "error", err)
					continue
				}
				if cleared > 0 {
					appLogger.InfoContext(groupCtx, "Cleared stale retry schedules", "count", cleared)
				}
			case <-groupCtx.Done():
				return groupCtx.Err()
			}
		}
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			appLogger.Info("Shutdown signal received", "signal", sig.String())
			mainCancel()
		case <-groupCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server shutdown failed", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics server shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Routing service shut down gracefully.")
}
