package logger

import (
	"io"
	"log/slog"
	"time"
)

// NewSlogLogger returns a Logger writing text records to w at the given level.
// Intended for tests and tools that do not need a CentralLogger.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if tz == nil {
		tz = time.UTC
	}
	lvl := parseLogLevel(string(level))
	return &moduleLogger{
		logger:   slog.New(newTextHandler(w, lvl, tz)),
		level:    lvl,
		timezone: tz,
	}
}
