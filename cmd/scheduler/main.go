package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"leadflow_backend/internal/billing"
	"leadflow_backend/internal/delivery"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/extractor"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/notification"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/tenants"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

	var mailer notification.Mailer = notification.NoopMailer{}
	if cfg.GetEmailEnabled() {
		mailer = notification.NewSMTPMailer(cfg)
	}

	// Worker-side delivery wiring (no HTTP handlers required).
	tenantsModule := tenants.NewModule(pool, log.Logger)
	leadsModule := leads.NewModule(pool, tenantsModule.Service(), extractor.Noop{}, eventBus, log)
	billingModule := billing.NewModule(pool, tenantsModule.Service(), eventBus, log)

	retryScheduler, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = retryScheduler.Close() }()

	integrationHTTP := &http.Client{Timeout: cfg.GetIntegrationTimeout()}
	deliveryModule := delivery.NewModule(pool, leadsModule.Service(), tenantsModule.Service(),
		billingModule.Service(), retryScheduler, integrationHTTP, eventBus, log)
	deliveryModule.Service().SetRetryPolicy(cfg.GetDeliveryMaxRetries(), cfg.GetDeliveryRetryBase(), cfg.GetDeliveryRetryCap())

	notificationModule := notification.New(mailer, tenantsModule.Service(), cfg.GetOpsEmailAddress(), log)
	notificationModule.RegisterHandlers(eventBus)

	lifecycleSweeper := scheduler.NewLifecycleSweeper(leadsModule.Service(), log)
	go lifecycleSweeper.Run(ctx)

	archiveInterval := getDurationEnv("EVENT_ARCHIVE_SWEEP_INTERVAL", 0)
	archiveRetention := time.Duration(getPositiveIntEnv("EVENT_ARCHIVE_RETENTION_DAYS", 0)) * 24 * time.Hour
	archiveSweeper := scheduler.NewArchiveSweeper(pool, log, archiveInterval, archiveRetention)
	go archiveSweeper.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, deliveryModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
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

func getPositiveIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
