// Package logger builds the application's structured logger. The sync
// engine, scheduler and queue consumer all log through zap; HTTP handlers
// use echo's request logger.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New constructs a zap logger for the given environment. "dev" gets a
// colorized console encoder at debug level; anything else gets JSON at info
// level. LOG_LEVEL overrides the default level when set.
func New(env string) *zap.Logger {
	level := zapcore.InfoLevel
	if env == "dev" {
		level = zapcore.DebugLevel
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := zapcore.ParseLevel(strings.ToLower(raw)); err == nil {
			level = parsed
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if env == "dev" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	return zap.New(core, zap.AddCaller())
}
