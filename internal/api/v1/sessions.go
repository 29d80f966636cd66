package v1

import (
	"image"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vitalcam/vitalcam/internal/errors"
	"github.com/vitalcam/vitalcam/internal/monitor"
	"github.com/vitalcam/vitalcam/internal/vitals"
)

// SessionSummary is one entry of the session list.
type SessionSummary struct {
	ID        string          `json:"id"`
	Enabled   monitor.Toggles `json:"enabled"`
	LastFrame time.Time       `json:"last_frame,omitzero"`
}

// SessionList is the response of GET /sessions.
type SessionList struct {
	Sessions []SessionSummary `json:"sessions"`
}

// CalibrationRequest is the body of POST /sessions/:id/spo2/calibrate.
type CalibrationRequest struct {
	KnownSpO2 float64 `json:"known_spo2"`
}

// ProcessorRequest is the body of PUT /sessions/:id/processors/:name.
type ProcessorRequest struct {
	Enabled *bool `json:"enabled"`
}

// Region is a rectangle in frame pixels.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DebugResponse exposes intermediate signal values and the regions last sampled.
type DebugResponse struct {
	HeartRate vitals.HeartRateDebug `json:"heart_rate"`
	SpO2      vitals.SpO2Debug      `json:"spo2"`
	Regions   map[string]Region     `json:"regions,omitempty"`
}

func regionOf(r image.Rectangle) Region {
	return Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// session resolves the :id parameter or writes the error response.
func (c *Controller) session(ctx echo.Context) (*monitor.Session, error) {
	s, err := c.registry.Get(ctx.Param("id"))
	if err != nil {
		return nil, c.HandleError(ctx, err, "session not found", statusFor(err))
	}
	return s, nil
}

// ListSessions handles GET /api/v1/sessions.
func (c *Controller) ListSessions(ctx echo.Context) error {
	sessions := c.registry.List()
	resp := SessionList{Sessions: make([]SessionSummary, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, SessionSummary{
			ID:        s.ID(),
			Enabled:   s.Enabled(),
			LastFrame: s.LastFrame(),
		})
	}
	return ctx.JSON(http.StatusOK, resp)
}

// CreateSession handles POST /api/v1/sessions.
func (c *Controller) CreateSession(ctx echo.Context) error {
	s, err := c.registry.Create()
	if err != nil {
		return c.HandleError(ctx, err, "failed to create session", statusFor(err))
	}
	return ctx.JSON(http.StatusCreated, SessionSummary{ID: s.ID(), Enabled: s.Enabled()})
}

// DeleteSession handles DELETE /api/v1/sessions/:id.
func (c *Controller) DeleteSession(ctx echo.Context) error {
	if !c.registry.Delete(ctx.Param("id")) {
		return c.HandleError(ctx, nil, "session not found", http.StatusNotFound)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// GetVitals handles GET /api/v1/sessions/:id/vitals.
func (c *Controller) GetVitals(ctx echo.Context) error {
	s, err := c.session(ctx)
	if s == nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s.Snapshot())
}

// GetDebug handles GET /api/v1/sessions/:id/debug.
func (c *Controller) GetDebug(ctx echo.Context) error {
	s, err := c.session(ctx)
	if s == nil {
		return err
	}
	resp := DebugResponse{
		HeartRate: s.HeartRate().Debug(),
		SpO2:      s.SpO2().Debug(),
		Regions:   map[string]Region{},
	}
	if r, ok := s.HeartRate().ROI(); ok {
		resp.Regions[vitals.ProcessorHeartRate] = regionOf(r)
	}
	if r, ok := s.SpO2().ROI(); ok {
		resp.Regions[vitals.ProcessorSpO2] = regionOf(r)
	}
	return ctx.JSON(http.StatusOK, resp)
}

// CalibrateSpO2 handles POST /api/v1/sessions/:id/spo2/calibrate.
func (c *Controller) CalibrateSpO2(ctx echo.Context) error {
	s, err := c.session(ctx)
	if s == nil {
		return err
	}

	var req CalibrationRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if err := s.Calibrate(req.KnownSpO2); err != nil {
		return c.HandleError(ctx, err, "calibration failed", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, s.SpO2().Calibration())
}

// ResetSession handles POST /api/v1/sessions/:id/reset.
func (c *Controller) ResetSession(ctx echo.Context) error {
	s, err := c.session(ctx)
	if s == nil {
		return err
	}
	s.Reset()
	return ctx.NoContent(http.StatusNoContent)
}

// SetProcessor handles PUT /api/v1/sessions/:id/processors/:name.
func (c *Controller) SetProcessor(ctx echo.Context) error {
	s, err := c.session(ctx)
	if s == nil {
		return err
	}

	var req ProcessorRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if req.Enabled == nil {
		err := errors.Newf("missing field enabled").
			Component("api").
			Category(errors.CategoryValidation).
			Build()
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if err := s.SetEnabled(ctx.Param("name"), *req.Enabled); err != nil {
		return c.HandleError(ctx, err, "unknown processor", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, s.Enabled())
}
