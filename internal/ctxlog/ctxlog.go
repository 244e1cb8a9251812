// Package ctxlog plumbs a *slog.Logger through context.Context so every
// layer of the engine and façade logs through whatever logger the caller
// configured rather than a package-level global.
package ctxlog

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

var loggerKey = ctxKey{}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the logger embedded by WithLogger, falling back to
// slog.Default() rather than panicking — the engine's internal packages are
// exercised directly by tests that rarely bother installing one.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
