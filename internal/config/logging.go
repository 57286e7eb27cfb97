package config

import (
	"errors"
	"io"
	"log/slog"
	"os"
)

// ConfigureLogger sets the slog default logger from the node's LogLevel and
// LogFile settings, following the teacher's internal/utils.ConfigureDefaultLogger.
//
// Valid log levels are "none", "error", "warn", "info", "debug". When LogFile
// is empty, logs go to stdout as text; otherwise they go to the named file as
// JSON. The returned *os.File (nil when logging to stdout or "none") should be
// closed by the caller on shutdown.
func (c *Config) ConfigureLogger() (*os.File, error) {
	var level slog.Level
	switch c.LogLevel {
	case "none":
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil, nil
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		return nil, errors.New("unexpected log level: " + c.LogLevel)
	}

	opts := &slog.HandlerOptions{Level: level}

	if c.LogFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, opts)))
		return nil, nil
	}

	logFilePointer, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(logFilePointer, opts)))
	return logFilePointer, nil
}
