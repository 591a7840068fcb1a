// Package logging builds the process logger and the GORM logger that writes
// through it.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"glucoheart/internal/config"
)

func New(cfg config.LogConfig) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

func NewWithWriter(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Gorm adapts logger for GORM. SQL statements are only traced at debug level.
func Gorm(logger *slog.Logger, level string) gormlogger.Interface {
	gormLevel := gormlogger.Warn
	switch ParseLevel(level) {
	case slog.LevelDebug:
		gormLevel = gormlogger.Info
	case slog.LevelError:
		gormLevel = gormlogger.Error
	}
	return gormlogger.New(
		slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLevel,
			IgnoreRecordNotFoundError: true,
		},
	)
}
