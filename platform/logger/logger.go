// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// TenantIDKey is the context key for tenant ID
	TenantIDKey contextKey = "tenant_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id and tenant_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.WithRequestID(requestID)
	}

	if tenantID, ok := ctx.Value(TenantIDKey).(string); ok && tenantID != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("tenant_id", tenantID)),
		}
	}

	return newLogger
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("request_id", requestID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// WebhookRejected logs an inbound webhook that was refused before processing.
func (l *Logger) WebhookRejected(source, reason string) {
	l.Warn("webhook_rejected",
		slog.String("source", source),
		slog.String("reason", reason),
	)
}

// WebhookDuplicate logs a replayed external event acknowledged as a no-op.
func (l *Logger) WebhookDuplicate(source, externalID string) {
	l.Info("webhook_duplicate",
		slog.String("source", source),
		slog.String("external_id", externalID),
	)
}

// LeadTransition logs a committed lead offer status transition.
func (l *Logger) LeadTransition(offerID, from, to, cause string) {
	l.Info("lead_transition",
		slog.String("lead_offer_id", offerID),
		slog.String("from", from),
		slog.String("to", to),
		slog.String("cause", cause),
	)
}

// DeliveryOutcome logs the resolution of a delivery attempt set.
func (l *Logger) DeliveryOutcome(deliveryID, status string, succeeded, failed, retryCount int) {
	l.Info("delivery_outcome",
		slog.String("delivery_id", deliveryID),
		slog.String("status", status),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed),
		slog.Int("retry_count", retryCount),
	)
}

// LedgerAppend logs a credit ledger append.
func (l *Logger) LedgerAppend(tenantID, entryType string, amount, balanceAfter int64) {
	l.Info("ledger_append",
		slog.String("tenant_id", tenantID),
		slog.String("type", entryType),
		slog.Int64("amount", amount),
		slog.Int64("balance_after", balanceAfter),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
