// Package telemetry provides opt-in, privacy-scrubbed error reporting to Sentry.
package telemetry

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/vitalcam/vitalcam/internal/conf"
	"github.com/vitalcam/vitalcam/internal/errors"
	"github.com/vitalcam/vitalcam/internal/logger"
)

// GetLogger returns the telemetry module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

var (
	initMu      sync.Mutex
	initialized bool
)

// Option adjusts the Sentry client options before Init.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport, used by tests.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) {
		o.Transport = t
	}
}

// Init starts the Sentry client and routes built errors to it.
// It is a no-op unless sentry.enabled is set.
func Init(settings *conf.Settings, opts ...Option) error {
	log := GetLogger()
	if !settings.Sentry.Enabled {
		log.Debug("sentry telemetry is disabled (opt-in required)")
		return nil
	}

	options := sentry.ClientOptions{
		Dsn:        settings.Sentry.DSN,
		SampleRate: 1.0,

		// Privacy-compliant settings
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "", // Explicitly clear server name to prevent hostname leakage
		Release:          fmt.Sprintf("vitalcam@%s", settings.Version),
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := sentry.Init(options); err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetContext("application", map[string]any{
			"name":    "vitalcam",
			"version": settings.Version,
		})
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	initMu.Lock()
	initialized = true
	initMu.Unlock()

	log.Info("sentry telemetry initialized",
		logger.String("version", settings.Version),
		logger.String("os", runtime.GOOS),
		logger.String("arch", runtime.GOARCH))
	return nil
}

// Enabled reports whether Init configured a client.
func Enabled() bool {
	initMu.Lock()
	defer initMu.Unlock()
	return initialized
}

// Shutdown detaches the error reporter and flushes buffered events.
func Shutdown(timeout time.Duration) {
	initMu.Lock()
	was := initialized
	initialized = false
	initMu.Unlock()
	if !was {
		return
	}

	errors.SetTelemetryReporter(nil)
	if !sentry.Flush(timeout) {
		GetLogger().Warn("sentry flush timed out", logger.Duration("timeout", timeout))
	}
}
