// validate.go contains validation logic for the configuration settings
package conf

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, check := range []func(*Settings) []string{
		validateLogSettings,
		validateHeartRateSettings,
		validateStressSettings,
		validateSpO2Settings,
		validateSessionSettings,
		validateMQTTSettings,
		validateListenSettings,
	} {
		ve.Errors = append(ve.Errors, check(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

var validLogLevels = []string{"trace", "debug", "info", "warn", "error"}

func validateLogSettings(s *Settings) []string {
	var errs []string
	if !slices.Contains(validLogLevels, s.Main.Log.Level) {
		errs = append(errs, fmt.Sprintf("main.log.level must be one of %v", validLogLevels))
	}
	for module, level := range s.Main.Log.ModuleLevels {
		if !slices.Contains(validLogLevels, level) {
			errs = append(errs, fmt.Sprintf("main.log.modulelevels.%s has invalid level %q", module, level))
		}
	}
	if s.Main.Log.Format != "text" && s.Main.Log.Format != "json" {
		errs = append(errs, "main.log.format must be text or json")
	}
	return errs
}

func validateHeartRateSettings(s *Settings) []string {
	hr := &s.Vitals.HeartRate
	var errs []string

	if hr.BufferSize < 32 {
		errs = append(errs, "vitals.heartrate.buffersize must be at least 32")
	}
	if hr.BandLow <= 0 || hr.BandHigh <= hr.BandLow {
		errs = append(errs, "vitals.heartrate band must satisfy 0 < bandlow < bandhigh")
	}
	if hr.FilterOrder < 1 || hr.FilterOrder > 10 {
		errs = append(errs, "vitals.heartrate.filterorder must be between 1 and 10")
	}
	if hr.SmoothingWindow < 1 {
		errs = append(errs, "vitals.heartrate.smoothingwindow must be at least 1")
	}
	if hr.FFTSize != 0 && hr.FFTSize < hr.BufferSize {
		errs = append(errs, "vitals.heartrate.fftsize must be 0 or at least buffersize")
	}
	if hr.MinBPM <= 0 || hr.MaxBPM <= hr.MinBPM {
		errs = append(errs, "vitals.heartrate bpm bounds must satisfy 0 < minbpm < maxbpm")
	}
	if hr.HistorySize < 1 || hr.MinHistory < 1 || hr.MinHistory > hr.HistorySize {
		errs = append(errs, "vitals.heartrate history must satisfy 1 <= minhistory <= historysize")
	}
	if hr.ConfidenceScale <= 0 {
		errs = append(errs, "vitals.heartrate.confidencescale must be positive")
	}
	return errs
}

func validateStressSettings(s *Settings) []string {
	st := &s.Vitals.Stress
	var errs []string
	if st.MinSamples < 2 {
		errs = append(errs, "vitals.stress.minsamples must be at least 2")
	}
	if st.BufferSize < st.MinSamples {
		errs = append(errs, "vitals.stress.buffersize must be at least minsamples")
	}
	if st.MaxBPM <= 0 {
		errs = append(errs, "vitals.stress.maxbpm must be positive")
	}
	return errs
}

func validateSpO2Settings(s *Settings) []string {
	sp := &s.Vitals.SpO2
	var errs []string
	if sp.BufferSize < 8 {
		errs = append(errs, "vitals.spo2.buffersize must be at least 8")
	}
	if sp.MinR <= 0 || sp.MaxR <= sp.MinR {
		errs = append(errs, "vitals.spo2 ratio bounds must satisfy 0 < minr < maxr")
	}
	if sp.MinSpO2 <= 0 || sp.MaxSpO2 > 100 || sp.MaxSpO2 <= sp.MinSpO2 {
		errs = append(errs, "vitals.spo2 bounds must satisfy 0 < minspo2 < maxspo2 <= 100")
	}
	if sp.Alpha <= 0 || sp.Alpha > 1 {
		errs = append(errs, "vitals.spo2.alpha must be in (0, 1]")
	}
	if sp.CalibrationB <= 0 {
		errs = append(errs, "vitals.spo2.calibrationb must be positive")
	}
	if sp.SmoothingWindow < 1 {
		errs = append(errs, "vitals.spo2.smoothingwindow must be at least 1")
	}
	return errs
}

func validateSessionSettings(s *Settings) []string {
	var errs []string
	if s.Vitals.FaceLoss.Timeout <= 0 {
		errs = append(errs, "vitals.faceloss.timeout must be positive")
	}
	if s.Vitals.Session.Idle <= 0 {
		errs = append(errs, "vitals.session.idle must be positive")
	}
	return errs
}

func validateMQTTSettings(s *Settings) []string {
	m := &s.MQTT
	if !m.Enabled {
		return nil
	}

	var errs []string
	u, err := url.Parse(m.Broker)
	switch {
	case err != nil || u.Host == "":
		errs = append(errs, "mqtt.broker must be a URL such as tcp://host:1883")
	case !slices.Contains([]string{"tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss"}, u.Scheme):
		errs = append(errs, fmt.Sprintf("mqtt.broker has unsupported scheme %q", u.Scheme))
	}
	if strings.TrimSpace(m.TopicPrefix) == "" || strings.ContainsAny(m.TopicPrefix, "#+") {
		errs = append(errs, "mqtt.topicprefix must be non-empty and contain no wildcards")
	}
	if m.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1 or 2")
	}
	if m.Interval <= 0 {
		errs = append(errs, "mqtt.interval must be positive")
	}
	if m.Discovery.Enabled && (m.Discovery.Prefix == "" || strings.ContainsAny(m.Discovery.Prefix, "#+")) {
		errs = append(errs, "mqtt.discovery.prefix must be non-empty and contain no wildcards")
	}
	return errs
}

func validateListenSettings(s *Settings) []string {
	var errs []string
	if s.Telemetry.Enabled {
		if _, _, err := net.SplitHostPort(s.Telemetry.Listen); err != nil {
			errs = append(errs, fmt.Sprintf("telemetry.listen: %v", err))
		}
	}
	if s.WebServer.Enabled {
		if _, _, err := net.SplitHostPort(s.WebServer.Listen); err != nil {
			errs = append(errs, fmt.Sprintf("webserver.listen: %v", err))
		}
	}
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		errs = append(errs, "sentry.dsn is required when sentry is enabled")
	}
	return errs
}
