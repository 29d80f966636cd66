package v1

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalcam/vitalcam/internal/logger"
	"github.com/vitalcam/vitalcam/internal/monitor"
	"github.com/vitalcam/vitalcam/internal/synth"
	"github.com/vitalcam/vitalcam/internal/vitals"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func setupTestEnvironment(t *testing.T) (*echo.Echo, *monitor.Registry) {
	t.Helper()
	e := echo.New()
	registry := monitor.NewRegistry(monitor.DefaultConfig(), time.Hour,
		monitor.WithSessionOptions(monitor.WithLogger(quietLogger())))
	New(e, registry, quietLogger())
	return e, registry
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// feed runs a synthetic subject through s for the given duration at 30 fps.
func feed(s *monitor.Session, d time.Duration) {
	subject := synth.NewSubject(epoch, synth.WithHeartRate(72), synth.WithSpO2(92.5, 100, 15))
	frames := int(d / (time.Second / 30))
	for i := range frames {
		f := subject.Render(epoch.Add(time.Duration(i) * time.Second / 30))
		s.ProcessFrame(f.At, f.Image, f.Face)
	}
}

func TestListSessions(t *testing.T) {
	e, registry := setupTestEnvironment(t)

	rec := do(e, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessions":[]}`, rec.Body.String())

	_, err := registry.CreateWithID("b")
	require.NoError(t, err)
	_, err = registry.CreateWithID("a")
	require.NoError(t, err)

	rec = do(e, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list SessionList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 2)
	assert.Equal(t, "a", list.Sessions[0].ID)
	assert.Equal(t, monitor.AllEnabled, list.Sessions[0].Enabled)
}

func TestCreateAndDeleteSession(t *testing.T) {
	e, registry := setupTestEnvironment(t)

	rec := do(e, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var created SessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, 1, registry.Len())

	rec = do(e, http.MethodDelete, "/api/v1/sessions/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, registry.Len())

	rec = do(e, http.MethodDelete, "/api/v1/sessions/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetVitals(t *testing.T) {
	e, registry := setupTestEnvironment(t)

	rec := do(e, http.MethodGet, "/api/v1/sessions/missing/vitals", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, http.StatusNotFound, errResp.Code)
	assert.Len(t, errResp.CorrelationID, 8)

	s, err := registry.CreateWithID("cam")
	require.NoError(t, err)
	feed(s, 10*time.Second)

	rec = do(e, http.MethodGet, "/api/v1/sessions/cam/vitals", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "cam", body["id"])
	assert.Contains(t, body, "heart_rate")
	assert.Contains(t, body, "spo2")
}

func TestGetDebug(t *testing.T) {
	e, registry := setupTestEnvironment(t)

	s, err := registry.CreateWithID("cam")
	require.NoError(t, err)

	rec := do(e, http.MethodGet, "/api/v1/sessions/cam/debug", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp DebugResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Regions)

	feed(s, time.Second)

	rec = do(e, http.MethodGet, "/api/v1/sessions/cam/debug", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = DebugResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp.Regions, vitals.ProcessorHeartRate)
	require.Contains(t, resp.Regions, vitals.ProcessorSpO2)
	assert.Positive(t, resp.Regions[vitals.ProcessorHeartRate].Width)
	assert.Positive(t, resp.Regions[vitals.ProcessorSpO2].Height)
}

func TestCalibrateSpO2(t *testing.T) {
	e, registry := setupTestEnvironment(t)

	s, err := registry.CreateWithID("cam")
	require.NoError(t, err)

	rec := do(e, http.MethodPost, "/api/v1/sessions/cam/spo2/calibrate", `{"known_spo2":97}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "no R measured yet")

	rec = do(e, http.MethodPost, "/api/v1/sessions/cam/spo2/calibrate", `{"known_spo2":140}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/sessions/cam/spo2/calibrate", `{"known_spo2":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	feed(s, 10*time.Second)
	r := s.SpO2().SpO2().RValue
	require.Positive(t, r)

	rec = do(e, http.MethodPost, "/api/v1/sessions/cam/spo2/calibrate", `{"known_spo2":97}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var cal vitals.Calibration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cal))
	assert.InDelta(t, 97+cal.B*r, cal.A, 1e-9)
}

func TestResetSession(t *testing.T) {
	e, registry := setupTestEnvironment(t)

	s, err := registry.CreateWithID("cam")
	require.NoError(t, err)
	feed(s, 2*time.Second)
	require.Positive(t, s.HeartRate().Progress())

	rec := do(e, http.MethodPost, "/api/v1/sessions/cam/reset", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, s.HeartRate().Progress())
	assert.Zero(t, s.SpO2().Progress())
}

func TestSetProcessor(t *testing.T) {
	e, registry := setupTestEnvironment(t)

	s, err := registry.CreateWithID("cam")
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"disable spo2", "/api/v1/sessions/cam/processors/spo2", `{"enabled":false}`, http.StatusOK},
		{"disable stress", "/api/v1/sessions/cam/processors/stress", `{"enabled":false}`, http.StatusOK},
		{"unknown processor", "/api/v1/sessions/cam/processors/glucose", `{"enabled":true}`, http.StatusNotFound},
		{"missing field", "/api/v1/sessions/cam/processors/spo2", `{}`, http.StatusBadRequest},
		{"unknown session", "/api/v1/sessions/nope/processors/spo2", `{"enabled":true}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPut, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	assert.Equal(t, monitor.Toggles{HeartRate: true}, s.Enabled())
}
