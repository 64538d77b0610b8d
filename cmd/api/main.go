package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medspa-winback/cmd/mainconfig"
	"github.com/wolfman30/medspa-winback/internal/api/router"
	"github.com/wolfman30/medspa-winback/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medspa-winback/internal/config"
	"github.com/wolfman30/medspa-winback/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting medspa-winback API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool == nil {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	defer pool.Close()
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer func() { _ = sqlDB.Close() }()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("redis is required for win-back settings")
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.AWSEndpointOverride != ""
	})

	smsClient, err := bootstrap.BuildSMSClient(cfg, logger)
	if err != nil {
		logger.Error("failed to create sms client", "error", err)
		os.Exit(1)
	}
	if smsClient == nil {
		logger.Warn("TELNYX_API_KEY not set; SMS win-back steps will fail")
	}

	metricsHandler, registry := setupMetrics()
	engine, err := bootstrap.BuildWinback(cfg, bootstrap.WinbackDeps{
		Pool:     pool,
		SQL:      sqlDB,
		Redis:    redisClient,
		SMS:      smsClient,
		Email:    bootstrap.BuildEmailSender(cfg, sesv2.NewFromConfig(awsCfg), logger),
		S3:       s3Client,
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to wire win-back engine", "error", err)
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.SchedulerSecret) == "" {
		logger.Warn("WINBACK_SCHEDULER_SECRET not set; scheduler endpoints will reject all calls")
	}

	// Setup router
	r := router.New(&router.Config{
		Logger:          logger,
		Winback:         engine.Handler,
		AdminAuthSecret: cfg.AdminJWTSecret,
		SchedulerSecret: cfg.SchedulerSecret,
		MetricsHandler:  metricsHandler,
		Checks:          readyChecks(pool, redisClient),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// runs triggered over HTTP can take a while
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), registry
}

func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		return nil
	}
	return pool
}

func readyChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]router.HealthChecker {
	checks := make(map[string]router.HealthChecker)
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
