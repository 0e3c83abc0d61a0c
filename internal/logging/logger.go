// Package logging provides structured logging for the sandbox orchestrator.
//
// DEPENDENCY: This package requires go.uber.org/zap.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	once   sync.Once
)

// Init initializes the global logger for the given environment. production
// selects JSON output with an ISO8601 "ts" key; anything else selects the
// colorized development encoder. internal/config.Config.Environment is the
// intended caller — this package no longer inspects the environment itself.
// Safe to call multiple times; only the first call takes effect.
func Init(production bool) {
	once.Do(func() {
		var cfg zap.Config
		if production {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "ts"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		} else {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		var err error
		logger, err = cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			// Fallback to nop logger
			logger = zap.NewNop()
		}
		sugar = logger.Sugar()
	})
}

// L returns the global structured logger, defaulting to development mode if
// a caller reaches it before config.Load() runs Init.
func L() *zap.Logger {
	if logger == nil {
		Init(false)
	}
	return logger
}

// S returns the global sugared logger (printf-style), with the same
// pre-Init default as L.
func S() *zap.SugaredLogger {
	if sugar == nil {
		Init(false)
	}
	return sugar
}

// Sync flushes any buffered log entries. Call before app exit.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// WithContext returns a logger with additional structured fields
func WithContext(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}
