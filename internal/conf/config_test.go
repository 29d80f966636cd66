package conf

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalcam/vitalcam/internal/errors"
)

func TestDefaults(t *testing.T) {
	s := Default()

	assert.Equal(t, "vitalcam", s.Main.Name)
	assert.Equal(t, 150, s.Vitals.HeartRate.BufferSize)
	assert.InDelta(t, 0.75, s.Vitals.HeartRate.BandLow, 1e-9)
	assert.InDelta(t, 3.0, s.Vitals.HeartRate.BandHigh, 1e-9)
	assert.Equal(t, 4, s.Vitals.HeartRate.FilterOrder)
	assert.Equal(t, 300, s.Vitals.Stress.BufferSize)
	assert.Equal(t, 30, s.Vitals.Stress.MinSamples)
	assert.InDelta(t, 100.0, s.Vitals.SpO2.CalibrationA, 1e-9)
	assert.InDelta(t, 15.0, s.Vitals.SpO2.CalibrationB, 1e-9)
	assert.Equal(t, 2*time.Second, s.Vitals.FaceLoss.Timeout)
	assert.Equal(t, 5*time.Second, s.MQTT.Interval)
	assert.Equal(t, "biometrics", s.MQTT.TopicPrefix)
	assert.True(t, s.Vitals.Enabled.HeartRate)

	require.NoError(t, ValidateSettings(s))
}

func TestEmbeddedConfigMatchesDefaults(t *testing.T) {
	data, err := configFiles.ReadFile("config.yaml")
	require.NoError(t, err)

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(data)))

	fromFile := &Settings{}
	require.NoError(t, v.Unmarshal(fromFile))

	defaults := Default()
	assert.Equal(t, defaults.Vitals, fromFile.Vitals)
	assert.Equal(t, defaults.MQTT, fromFile.MQTT)
	assert.Equal(t, defaults.Telemetry, fromFile.Telemetry)
	assert.Equal(t, defaults.WebServer, fromFile.WebServer)
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"inverted band", func(s *Settings) { s.Vitals.HeartRate.BandLow = 3.5 }, "bandlow < bandhigh"},
		{"filter order", func(s *Settings) { s.Vitals.HeartRate.FilterOrder = 0 }, "filterorder"},
		{"fft smaller than buffer", func(s *Settings) { s.Vitals.HeartRate.FFTSize = 64 }, "fftsize"},
		{"history", func(s *Settings) { s.Vitals.HeartRate.MinHistory = 20 }, "minhistory"},
		{"stress buffer", func(s *Settings) { s.Vitals.Stress.BufferSize = 10 }, "vitals.stress.buffersize"},
		{"alpha", func(s *Settings) { s.Vitals.SpO2.Alpha = 0 }, "alpha"},
		{"spo2 bounds", func(s *Settings) { s.Vitals.SpO2.MaxSpO2 = 101 }, "maxspo2"},
		{"face loss", func(s *Settings) { s.Vitals.FaceLoss.Timeout = 0 }, "faceloss"},
		{"log level", func(s *Settings) { s.Main.Log.Level = "loud" }, "main.log.level"},
		{"broker", func(s *Settings) {
			s.MQTT.Enabled = true
			s.MQTT.Broker = "localhost"
		}, "mqtt.broker"},
		{"broker scheme", func(s *Settings) {
			s.MQTT.Enabled = true
			s.MQTT.Broker = "http://localhost:1883"
		}, "unsupported scheme"},
		{"wildcard prefix", func(s *Settings) {
			s.MQTT.Enabled = true
			s.MQTT.TopicPrefix = "bio/#"
		}, "topicprefix"},
		{"listen", func(s *Settings) {
			s.WebServer.Enabled = true
			s.WebServer.Listen = "8080"
		}, "webserver.listen"},
		{"sentry dsn", func(s *Settings) { s.Sentry.Enabled = true }, "sentry.dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(s)

			err := ValidateSettings(s)
			require.Error(t, err)

			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Error(), tt.wantErr)
		})
	}
}

func TestDisabledMQTTIsNotValidated(t *testing.T) {
	s := Default()
	s.MQTT.Broker = "not a url"
	assert.NoError(t, ValidateSettings(s))
}

func TestRenderYAMLMasksSecrets(t *testing.T) {
	s := Default()
	s.MQTT.Password = "hunter2"
	s.Sentry.DSN = "https://key@sentry.example/1"

	out, err := RenderYAML(s)
	require.NoError(t, err)

	assert.NotContains(t, string(out), "hunter2")
	assert.NotContains(t, string(out), "sentry.example")
	assert.Contains(t, string(out), "topicprefix: biometrics")
	assert.Equal(t, "hunter2", s.MQTT.Password, "caller settings untouched")
}

func TestSaveYAMLConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	s := Default()
	s.Main.Name = "ward-3"
	s.Vitals.SpO2.CalibrationA = 104.5
	require.NoError(t, SaveYAMLConfig(path, s))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	loaded := &Settings{}
	require.NoError(t, v.Unmarshal(loaded))
	assert.Equal(t, "ward-3", loaded.Main.Name)
	assert.InDelta(t, 104.5, loaded.Vitals.SpO2.CalibrationA, 1e-9)
	assert.Equal(t, 2*time.Second, loaded.Vitals.FaceLoss.Timeout)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file removed")
}

func TestResolveSecrets(t *testing.T) {
	dir := t.TempDir()
	dsnFile := filepath.Join(dir, "sentry_dsn")
	require.NoError(t, os.WriteFile(dsnFile, []byte("https://key@sentry.example/1\n"), 0o600))
	t.Setenv("VITALCAM_TEST_MQTT_USER", "ward")
	t.Setenv("VITALCAM_TEST_MQTT_PASS", "hunter2")

	s := Default()
	s.MQTT.Username = "${VITALCAM_TEST_MQTT_USER}"
	s.MQTT.Password = "${VITALCAM_TEST_MQTT_PASS}"
	s.Sentry.DSN = "ignored"
	s.Sentry.DSNFile = dsnFile

	require.NoError(t, ResolveSecrets(s))
	assert.Equal(t, "ward", s.MQTT.Username)
	assert.Equal(t, "hunter2", s.MQTT.Password)
	assert.Equal(t, "https://key@sentry.example/1", s.Sentry.DSN)

	s = Default()
	s.MQTT.PasswordFile = filepath.Join(dir, "missing")
	err := ResolveSecrets(s)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Contains(t, err.Error(), "not found")
}
