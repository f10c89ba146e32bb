// Package logger provides structured logging infrastructure for the dispatch
// core. This is part of the platform layer and contains no business logic.
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
	// CorrelationIDKey is the context key for the dispatch correlation id
	CorrelationIDKey contextKey = "correlation_id"
	// TenantKey is the context key for the tenant label (country/business unit)
	TenantKey contextKey = "tenant"
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
// Supports correlation_id and tenant from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if correlationID, ok := ctx.Value(CorrelationIDKey).(string); ok && correlationID != "" {
		newLogger = newLogger.WithCorrelationID(correlationID)
	}

	if tenant, ok := ctx.Value(TenantKey).(string); ok && tenant != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("tenant", tenant)),
		}
	}

	return newLogger
}

// WithCorrelationID returns a logger with the correlation id attached
func (l *Logger) WithCorrelationID(correlationID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("correlation_id", correlationID)),
	}
}

// WithTenant returns a logger with the tenant label attached
func (l *Logger) WithTenant(tenant string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("tenant", tenant)),
	}
}

// DispatchEvent logs a dispatch lifecycle event
func (l *Logger) DispatchEvent(event, serviceOrderID string, providerID string, state string) {
	l.Info("dispatch_event",
		slog.String("event", event),
		slog.String("service_order_id", serviceOrderID),
		slog.String("provider_id", providerID),
		slog.String("state", state),
	)
}

// ExternalFallback logs a degraded external call where the documented
// fallback was substituted for the provider response
func (l *Logger) ExternalFallback(provider string, err error, fallback string) {
	l.Warn("external_fallback",
		slog.String("provider", provider),
		slog.String("error", err.Error()),
		slog.String("fallback", fallback),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// SweepResult logs the outcome of a timeout sweep run
func (l *Logger) SweepResult(task string, affected int) {
	l.Info("sweep_result",
		slog.String("task", task),
		slog.Int("affected", affected),
	)
}
