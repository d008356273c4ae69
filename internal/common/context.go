package common

import (
	"context"
	"log/slog"
	"time"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID  contextKey = "request_id"
	ContextKeyAnalysisID contextKey = "analysis_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithAnalysisID adds an analysis ID to the context
func WithAnalysisID(ctx context.Context, analysisID string) context.Context {
	return context.WithValue(ctx, ContextKeyAnalysisID, analysisID)
}

// AnalysisIDFromContext extracts the analysis ID from context
func AnalysisIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyAnalysisID).(string); ok {
		return id
	}
	return ""
}

// LoggerFromContext decorates logger with the IDs carried by ctx.
func LoggerFromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	if id := AnalysisIDFromContext(ctx); id != "" {
		logger = logger.With("analysis_id", id)
	}
	return logger
}

// WithTimeout creates a context with the specified timeout; d <= 0 means no timeout.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
