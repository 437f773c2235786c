// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for admin middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq client and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// WebhookConfig provides per-source signing secrets and idempotency settings.
type WebhookConfig interface {
	GetMetaAppSecret() string
	GetMetaVerifyToken() string
	GetMessagingSecret() string
	GetPaymentsSecret() string
	GetIdempotencyTTL() time.Duration
}

// ExtractorConfig provides settings for the qualification extractor client.
type ExtractorConfig interface {
	GetGeminiAPIKey() string
	GetExtractorModel() string
	GetExtractorTimeout() time.Duration
	IsExtractorEnabled() bool
}

// EmailConfig provides settings for outbound notification email.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetOpsEmailAddress() string
}

// DeliveryConfig provides delivery retry policy settings.
type DeliveryConfig interface {
	GetDeliveryMaxRetries() int
	GetDeliveryRetryBase() time.Duration
	GetDeliveryRetryCap() time.Duration
	GetIntegrationTimeout() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                string
	HTTPAddr           string
	DatabaseURL        string
	JWTAccessSecret    string
	CORSAllowAll       bool
	CORSOrigins        []string
	CORSAllowCreds     bool
	RedisURL           string
	RedisTLSInsecure   bool
	AsynqQueueName     string
	AsynqConcurrency   int
	MetaAppSecret      string
	MetaVerifyToken    string
	MessagingSecret    string
	PaymentsSecret     string
	IdempotencyTTL     time.Duration
	GeminiAPIKey       string
	ExtractorModel     string
	ExtractorTimeout   time.Duration
	EmailEnabled       bool
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	EmailFromName      string
	EmailFromAddress   string
	OpsEmailAddress    string
	DeliveryMaxRetries int
	DeliveryRetryBase  time.Duration
	DeliveryRetryCap   time.Duration
	IntegrationTimeout time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// WebhookConfig implementation
func (c *Config) GetMetaAppSecret() string         { return c.MetaAppSecret }
func (c *Config) GetMetaVerifyToken() string       { return c.MetaVerifyToken }
func (c *Config) GetMessagingSecret() string       { return c.MessagingSecret }
func (c *Config) GetPaymentsSecret() string        { return c.PaymentsSecret }
func (c *Config) GetIdempotencyTTL() time.Duration { return c.IdempotencyTTL }

// ExtractorConfig implementation
func (c *Config) GetGeminiAPIKey() string            { return c.GeminiAPIKey }
func (c *Config) GetExtractorModel() string          { return c.ExtractorModel }
func (c *Config) GetExtractorTimeout() time.Duration { return c.ExtractorTimeout }
func (c *Config) IsExtractorEnabled() bool           { return c.GeminiAPIKey != "" }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetOpsEmailAddress() string  { return c.OpsEmailAddress }

// DeliveryConfig implementation
func (c *Config) GetDeliveryMaxRetries() int           { return c.DeliveryMaxRetries }
func (c *Config) GetDeliveryRetryBase() time.Duration  { return c.DeliveryRetryBase }
func (c *Config) GetDeliveryRetryCap() time.Duration   { return c.DeliveryRetryCap }
func (c *Config) GetIntegrationTimeout() time.Duration { return c.IntegrationTimeout }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "false"), "true")

	cfg := &Config{
		Env:                getEnv("APP_ENV", "development"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTAccessSecret:    getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:       corsAllowAll,
		CORSOrigins:        corsOrigins,
		CORSAllowCreds:     strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:           getEnv("REDIS_URL", ""),
		RedisTLSInsecure:   strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:     getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:   int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "10"))),
		MetaAppSecret:      getEnv("META_APP_SECRET", ""),
		MetaVerifyToken:    getEnv("META_VERIFY_TOKEN", ""),
		MessagingSecret:    getEnv("MESSAGING_WEBHOOK_SECRET", ""),
		PaymentsSecret:     getEnv("PAYMENTS_WEBHOOK_SECRET", ""),
		IdempotencyTTL:     mustDuration(getEnv("IDEMPOTENCY_TTL", "168h")),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		ExtractorModel:     getEnv("EXTRACTOR_MODEL", "gemini-2.0-flash"),
		ExtractorTimeout:   mustDuration(getEnv("EXTRACTOR_TIMEOUT", "20s")),
		EmailEnabled:       emailEnabled,
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           int(mustInt64(getEnv("SMTP_PORT", "587"))),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		EmailFromName:      getEnv("EMAIL_FROM_NAME", "LeadFlow"),
		EmailFromAddress:   getEnv("EMAIL_FROM_ADDRESS", ""),
		OpsEmailAddress:    getEnv("OPS_EMAIL_ADDRESS", ""),
		DeliveryMaxRetries: int(mustInt64(getEnv("DELIVERY_MAX_RETRIES", "5"))),
		DeliveryRetryBase:  mustDuration(getEnv("DELIVERY_RETRY_BASE", "30s")),
		DeliveryRetryCap:   mustDuration(getEnv("DELIVERY_RETRY_CAP", "1h")),
		IntegrationTimeout: mustDuration(getEnv("INTEGRATION_TIMEOUT", "15s")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if emailEnabled && (cfg.SMTPHost == "" || cfg.EmailFromAddress == "") {
		return nil, fmt.Errorf("SMTP_HOST and EMAIL_FROM_ADDRESS are required when EMAIL_ENABLED is true")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
