// Package logging builds the service's slog logger, optionally writing to
// a size-rotated log file.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wondertwin-ai/loyaltynft/internal/config"
)

// Output returns the writer logs go to: a rotating file when cfg.File is
// set, otherwise fallback. The closer is nil for fallback.
func Output(cfg config.LogConfig, fallback io.Writer) (io.Writer, io.Closer) {
	if cfg.File == "" {
		return fallback, nil
	}
	f := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return f, f
}

// ParseLevel maps a level name to a slog level. Unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// New returns a JSON logger at level writing to w.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}
