// Package logger builds the application's *slog.Logger.
//
// Handlers and storage log through the standard slog API; the records are
// encoded by a zap core so production output is zap's JSON format and
// development output is zap's coloured console format.
package logger

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// defaultLevel returns the level used when the config does not set one.
func defaultLevel(env string) string {
	if env == "prod" {
		return "info"
	}
	return "debug"
}

// New returns a logger for env ("dev", "staging", "prod") at level, or at
// the env default when level is empty. The returned func flushes buffered
// entries and should be deferred by the caller.
func New(env, level string) (*slog.Logger, func(), error) {
	var zapCfg zap.Config

	switch env {
	case "prod", "staging":
		zapCfg = zap.NewProductionConfig()
	default:
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level == "" {
		level = defaultLevel(env)
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)

	zl, err := zapCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}

	log := slog.New(zapslog.NewHandler(zl.Core(), zapslog.WithCaller(env != "prod")))
	sync := func() { _ = zl.Sync() }

	return log, sync, nil
}

// Err is shorthand for the error attribute every layer attaches.
func Err(err error) slog.Attr {
	return slog.String("error", err.Error())
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying l.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request-scoped logger, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
