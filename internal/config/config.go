package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AdminJWTSecret  string
	SchedulerSecret string

	// Telnyx SMS gateway
	TelnyxAPIKey             string
	TelnyxMessagingProfileID string
	TelnyxDefaultFrom        string

	// Email gateway: "ses", "sendgrid" or "stub"
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Win-back engine
	ReportBucket        string
	TenantConcurrency   int
	CustomerConcurrency int
	GatewayTimeout      time.Duration
	SMSPerSecond        float64
	RunInterval         time.Duration
	AttributionInterval time.Duration
	RunLockTTL          time.Duration
}

// Load reads configuration from environment variables. Outside production a
// local .env file is loaded first when present.
func Load() *Config {
	if !strings.EqualFold(os.Getenv("ENV"), "production") {
		_ = godotenv.Load()
	}
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AdminJWTSecret:  getEnv("ADMIN_JWT_SECRET", ""),
		SchedulerSecret: getEnv("WINBACK_SCHEDULER_SECRET", ""),

		TelnyxAPIKey:             getEnv("TELNYX_API_KEY", ""),
		TelnyxMessagingProfileID: getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),
		TelnyxDefaultFrom:        getEnv("TELNYX_DEFAULT_FROM", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "MedSpa Win-Back"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "MedSpa Win-Back"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		ReportBucket:        getEnv("WINBACK_REPORT_BUCKET", ""),
		TenantConcurrency:   getEnvAsInt("WINBACK_TENANT_CONCURRENCY", 4),
		CustomerConcurrency: getEnvAsInt("WINBACK_CUSTOMER_CONCURRENCY", 8),
		GatewayTimeout:      getEnvAsDuration("WINBACK_GATEWAY_TIMEOUT", 15*time.Second),
		SMSPerSecond:        getEnvAsFloat("WINBACK_SMS_PER_SECOND", 0),
		RunInterval:         getEnvAsDuration("WINBACK_RUN_INTERVAL", 24*time.Hour),
		AttributionInterval: getEnvAsDuration("WINBACK_ATTRIBUTION_INTERVAL", 6*time.Hour),
		RunLockTTL:          getEnvAsDuration("WINBACK_RUN_LOCK_TTL", 30*time.Minute),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
