// Package zapctx carries a zap logger in a context.Context so request
// handlers, storage code, and background jobs can log with request-scoped
// fields without threading a *zap.Logger through every call.
package zapctx

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

// fallback is returned when a context carries no logger. It starts as a
// nop logger and is usually replaced once by SetFallback at startup.
var fallback atomic.Pointer[zap.Logger]

func init() {
	fallback.Store(zap.NewNop())
}

// SetFallback sets the logger returned by Logger for contexts that have
// no logger attached. Background jobs and tests hit this path.
func SetFallback(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fallback.Store(logger)
}

// WithLogger returns a context derived from ctx carrying the given logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// WithFields returns a context whose logger always logs the given fields.
func WithFields(ctx context.Context, fields ...zapcore.Field) context.Context {
	return WithLogger(ctx, Logger(ctx).With(fields...))
}

// Logger returns the logger attached to ctx, or the fallback logger if
// the context carries none.
func Logger(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && logger != nil {
			return logger
		}
	}
	return fallback.Load()
}

func Debug(ctx context.Context, msg string, fields ...zapcore.Field) {
	forCaller(ctx).Debug(msg, fields...)
}

func Info(ctx context.Context, msg string, fields ...zapcore.Field) {
	forCaller(ctx).Info(msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...zapcore.Field) {
	forCaller(ctx).Warn(msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...zapcore.Field) {
	forCaller(ctx).Error(msg, fields...)
}

func forCaller(ctx context.Context) *zap.Logger {
	return Logger(ctx).WithOptions(zap.AddCaller(), zap.AddCallerSkip(1))
}
