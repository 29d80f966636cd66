package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, time.UTC)

	log.Debug("hidden")
	log.Info("shown", Int("frames", 150))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "frames=150")
	assert.NotContains(t, out, "time=", "console output omits timestamps")
}

func TestModuleNaming(t *testing.T) {
	var buf bytes.Buffer
	cl, err := newCentralLogger(&LoggingConfig{DefaultLevel: "debug", Format: FormatText}, &buf)
	require.NoError(t, err)

	cl.Module("vitals").Module("spo2").Debug("ratio rejected", Float64("r", 2.71828))

	out := buf.String()
	assert.Contains(t, out, "module=vitals.spo2")
	assert.Contains(t, out, "r=2.718")
}

func TestModuleLevelOverride(t *testing.T) {
	var buf bytes.Buffer
	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "warn",
		Format:       FormatText,
		ModuleLevels: map[string]string{"monitor": "debug"},
	}, &buf)
	require.NoError(t, err)

	cl.Module("monitor").Debug("monitor debug")
	cl.Module("mqtt").Info("mqtt info")

	assert.Contains(t, buf.String(), "monitor debug")
	assert.NotContains(t, buf.String(), "mqtt info")
}

func TestWithAndContext(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, time.UTC).
		With(String("session", "abc"))

	ctx := WithTraceID(context.Background(), "trace-1")
	log.WithContext(ctx).Info("tick", Duration("elapsed", 1500*time.Millisecond))

	out := buf.String()
	assert.Contains(t, out, "session=abc")
	assert.Contains(t, out, "trace_id=trace-1")
	assert.Contains(t, out, "elapsed=1.5s")
}

func TestJSONConsoleAndFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "vitalcam.log")

	cl, err := newCentralLogger(&LoggingConfig{DefaultLevel: "info", Format: FormatJSON, FilePath: path}, &buf)
	require.NoError(t, err)

	cl.Module("api").Warn("slow request", Error(os.ErrDeadlineExceeded))
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &rec))
	assert.Equal(t, "api", rec["module"])
	assert.Equal(t, "WARN", rec["level"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "slow request")
}

func TestNewCentralLoggerRejectsBadInput(t *testing.T) {
	_, err := NewCentralLogger(nil)
	require.Error(t, err)

	_, err = NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)
}

func TestGlobalFallback(t *testing.T) {
	SetGlobal(nil)
	assert.NotNil(t, Global().Module("test"))
}
