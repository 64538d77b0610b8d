package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medspa-winback/internal/archive"
	appconfig "github.com/wolfman30/medspa-winback/internal/config"
	"github.com/wolfman30/medspa-winback/internal/gateway"
	"github.com/wolfman30/medspa-winback/internal/messaging/telnyxclient"
	"github.com/wolfman30/medspa-winback/internal/notify"
	"github.com/wolfman30/medspa-winback/internal/observability/metrics"
	"github.com/wolfman30/medspa-winback/internal/winback"
	"github.com/wolfman30/medspa-winback/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildEmailSender picks the configured email provider. Unknown or
// unconfigured providers fall back to the stub sender.
func BuildEmailSender(cfg *appconfig.Config, sesClient notify.SESAPI, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "ses":
		if sesClient != nil && cfg.SESFromEmail != "" {
			logger.Info("email provider: ses", "from", cfg.SESFromEmail)
			return notify.NewSESSender(sesClient, notify.SESConfig{
				FromEmail: cfg.SESFromEmail,
				FromName:  cfg.SESFromName,
			}, logger)
		}
		logger.Warn("ses email provider selected but not configured; using stub")
	case "sendgrid":
		if cfg.SendGridAPIKey != "" {
			logger.Info("email provider: sendgrid", "from", cfg.SendGridFromEmail)
			return notify.NewSendGridSender(notify.SendGridConfig{
				APIKey:    cfg.SendGridAPIKey,
				FromEmail: cfg.SendGridFromEmail,
				FromName:  cfg.SendGridFromName,
			}, logger)
		}
		logger.Warn("sendgrid email provider selected without api key; using stub")
	}
	return notify.NewStubEmailSender(logger)
}

// BuildSMSClient returns a Telnyx client, or nil when no API key is set.
func BuildSMSClient(cfg *appconfig.Config, logger *logging.Logger) (gateway.SMSClient, error) {
	if cfg == nil || strings.TrimSpace(cfg.TelnyxAPIKey) == "" {
		return nil, nil
	}
	client, err := telnyxclient.New(telnyxclient.Config{
		APIKey:     cfg.TelnyxAPIKey,
		Timeout:    cfg.GatewayTimeout,
		MaxRetries: 2,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: telnyx client: %w", err)
	}
	return client, nil
}

// WinbackDeps are the shared resources the win-back engine runs on.
type WinbackDeps struct {
	Pool     *pgxpool.Pool
	SQL      *sql.DB
	Redis    *redis.Client
	SMS      gateway.SMSClient
	Email    notify.EmailSender
	S3       archive.S3API
	Registry prometheus.Registerer
	Logger   *logging.Logger
}

// Winback bundles the wired engine components.
type Winback struct {
	Settings *winback.SettingsStore
	Ledger   *winback.PostgresLedger
	Runner   *winback.Runner
	Handler  *winback.Handler
	Metrics  *metrics.WinbackMetrics
}

// BuildWinback wires the scanner, processor, attributor and runner.
func BuildWinback(cfg *appconfig.Config, deps WinbackDeps) (*Winback, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if deps.Pool == nil || deps.SQL == nil {
		return nil, errors.New("bootstrap: win-back requires a database")
	}
	if deps.Redis == nil {
		return nil, errors.New("bootstrap: win-back requires redis")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	var m *metrics.WinbackMetrics
	if deps.Registry != nil {
		m = metrics.NewWinbackMetrics(deps.Registry)
	}

	settings := winback.NewSettingsStore(deps.Redis)
	ledger := winback.NewPostgresLedger(deps.Pool)
	customers := winback.NewSQLCustomerRepository(deps.SQL)

	dispatcher := gateway.NewDispatcher(gateway.Config{
		SMS:                deps.SMS,
		Email:              deps.Email,
		DefaultFrom:        cfg.TelnyxDefaultFrom,
		MessagingProfileID: cfg.TelnyxMessagingProfileID,
		SMSPerSecond:       cfg.SMSPerSecond,
		Logger:             logger,
	})

	scanner := winback.NewScanner(customers, ledger, logger)
	processor := winback.NewProcessor(scanner, ledger, dispatcher, logger,
		winback.WithCustomerConcurrency(cfg.CustomerConcurrency),
		winback.WithGatewayTimeout(cfg.GatewayTimeout),
		winback.WithProcessorMetrics(m),
	)
	attributor := winback.NewAttributor(customers, ledger, m, logger)

	opts := []winback.RunnerOption{
		winback.WithTenantConcurrency(cfg.TenantConcurrency),
		winback.WithLock(winback.NewRunLock(deps.Redis, cfg.RunLockTTL)),
		winback.WithRunnerMetrics(m),
	}
	if store := archive.NewStore(deps.S3, cfg.ReportBucket, logger); store.Enabled() {
		opts = append(opts, winback.WithArchiver(store))
		logger.Info("win-back report archival enabled", "bucket", cfg.ReportBucket)
	}
	runner := winback.NewRunner(settings, processor, attributor, logger, opts...)

	return &Winback{
		Settings: settings,
		Ledger:   ledger,
		Runner:   runner,
		Handler:  winback.NewHandler(settings, ledger, runner, logger),
		Metrics:  m,
	}, nil
}
