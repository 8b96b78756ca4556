package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5/middleware"
)

// NewLogger returns a slog logger configured for Cloud Logging compatibility.
func NewLogger(service string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})
	return slog.New(handler).With(slog.String("service", service))
}

// WithRequestID tags the logger with the chi request ID carried in ctx, so
// log lines from one request can be correlated. Contexts without a request ID
// get the logger back unchanged.
func WithRequestID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if requestID := middleware.GetReqID(ctx); requestID != "" {
		return logger.With(slog.String("requestId", requestID))
	}
	return logger
}
