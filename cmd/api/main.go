package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadflow_backend/internal/billing"
	"leadflow_backend/internal/delivery"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/extractor"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/http/router"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/notification"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/tenants"
	"leadflow_backend/internal/webhook"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	redisClient, err := newRedisClient(cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer redisClient.Close()

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	retryScheduler, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = retryScheduler.Close() }()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	tenantsModule := tenants.NewModule(pool, log.Logger)

	ext := newExtractor(ctx, cfg, log)
	leadsModule := leads.NewModule(pool, tenantsModule.Service(), ext, eventBus, log)
	leadsModule.Service().SetExtractorTimeout(cfg.GetExtractorTimeout())

	billingModule := billing.NewModule(pool, tenantsModule.Service(), eventBus, log)

	integrationHTTP := &http.Client{Timeout: cfg.GetIntegrationTimeout()}
	deliveryModule := delivery.NewModule(pool, leadsModule.Service(), tenantsModule.Service(),
		billingModule.Service(), retryScheduler, integrationHTTP, eventBus, log)
	deliveryModule.Service().SetRetryPolicy(cfg.GetDeliveryMaxRetries(), cfg.GetDeliveryRetryBase(), cfg.GetDeliveryRetryCap())

	webhookModule := webhook.NewModule(pool, redisClient, cfg, leadsModule.Service(),
		tenantsModule.Service(), billingModule.Service(), log)

	// Notification module subscribes to domain events (not HTTP-facing)
	notificationModule := notification.New(newMailer(cfg), tenantsModule.Service(), cfg.GetOpsEmailAddress(), log)
	notificationModule.RegisterHandlers(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			webhookModule,
			leadsModule,
			tenantsModule,
			billingModule,
			deliveryModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func newExtractor(ctx context.Context, cfg *config.Config, log *logger.Logger) extractor.Extractor {
	if !cfg.IsExtractorEnabled() {
		log.Warn("GEMINI_API_KEY not configured; qualification extraction disabled")
		return extractor.Noop{}
	}
	gem, err := extractor.NewGemini(ctx, cfg.GetGeminiAPIKey(), cfg.GetExtractorModel(), log.Logger)
	if err != nil {
		log.Error("failed to initialize extractor", "error", err)
		panic("failed to initialize extractor: " + err.Error())
	}
	return gem
}

func newMailer(cfg *config.Config) notification.Mailer {
	if !cfg.GetEmailEnabled() {
		return notification.NoopMailer{}
	}
	return notification.NewSMTPMailer(cfg)
}

func newRedisClient(cfg config.SchedulerConfig) (redis.UniversalClient, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return redis.NewClient(opt), nil
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
