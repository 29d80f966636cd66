// Package api provides the HTTP server for reading and controlling
// monitoring sessions. The JSON endpoints live in the v1 subpackage.
package api

import (
	"net"
	"time"

	"github.com/vitalcam/vitalcam/internal/conf"
	"github.com/vitalcam/vitalcam/internal/errors"
	"github.com/vitalcam/vitalcam/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen         string   // host:port to bind
	AllowedOrigins []string // CORS allowed origins

	// Timeouts
	ReadTimeout     time.Duration // Maximum duration for reading request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum time to wait for next request
	ShutdownTimeout time.Duration // Maximum time to wait for graceful shutdown

	// Limits
	BodyLimit string // Maximum request body size (e.g., "1M", "10M")

	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "0.0.0.0:8080",
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       "64K",
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	cfg.Listen = settings.WebServer.Listen
	cfg.Debug = settings.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return invalid("listen address must be host:port", err)
	}
	if c.ReadTimeout <= 0 {
		return invalid("read timeout must be positive", nil)
	}
	if c.WriteTimeout <= 0 {
		return invalid("write timeout must be positive", nil)
	}
	return nil
}

func invalid(msg string, cause error) error {
	b := errors.Newf("%s", msg)
	if cause != nil {
		b = errors.Newf("%s: %w", msg, cause)
	}
	return b.Component("api").
		Category(errors.CategoryConfiguration).
		Build()
}
