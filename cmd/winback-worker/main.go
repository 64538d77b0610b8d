package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/wolfman30/medspa-winback/cmd/mainconfig"
	"github.com/wolfman30/medspa-winback/internal/app/bootstrap"
	"github.com/wolfman30/medspa-winback/internal/config"
	winbackworker "github.com/wolfman30/medspa-winback/internal/worker/winback"
	"github.com/wolfman30/medspa-winback/pkg/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" || cfg.RedisAddr == "" {
		logger.Error("winback worker requires DATABASE_URL and REDIS_ADDR")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer func() { _ = sqlDB.Close() }()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("redis unavailable")
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	smsClient, err := bootstrap.BuildSMSClient(cfg, logger)
	if err != nil {
		logger.Error("failed to create sms client", "error", err)
		os.Exit(1)
	}

	engine, err := bootstrap.BuildWinback(cfg, bootstrap.WinbackDeps{
		Pool:  pool,
		SQL:   sqlDB,
		Redis: redisClient,
		SMS:   smsClient,
		Email: bootstrap.BuildEmailSender(cfg, sesv2.NewFromConfig(awsCfg), logger),
		S3: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		}),
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to wire win-back engine", "error", err)
		os.Exit(1)
	}

	scheduler := winbackworker.NewScheduler(engine.Runner, logger).
		WithRunInterval(cfg.RunInterval).
		WithAttributionInterval(cfg.AttributionInterval).
		WithRunOnStart(os.Getenv("WINBACK_RUN_ON_START") == "true")

	logger.Info("winback worker started",
		"run_interval", cfg.RunInterval.String(),
		"attribution_interval", cfg.AttributionInterval.String(),
	)
	go scheduler.Run(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("winback worker shutting down")
	cancel()
	time.Sleep(2 * time.Second)
}
