// Package v1 implements the JSON API for monitoring sessions.
package v1

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vitalcam/vitalcam/internal/errors"
	"github.com/vitalcam/vitalcam/internal/logger"
	"github.com/vitalcam/vitalcam/internal/monitor"
	"github.com/vitalcam/vitalcam/internal/vitals"
)

// Controller handles the /api/v1 routes.
type Controller struct {
	Group    *echo.Group
	registry *monitor.Registry
	log      logger.Logger
}

// New registers the v1 routes on e.
func New(e *echo.Echo, registry *monitor.Registry, log logger.Logger) *Controller {
	c := &Controller{
		Group:    e.Group("/api/v1"),
		registry: registry,
		log:      log,
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/sessions", c.ListSessions)
	c.Group.POST("/sessions", c.CreateSession)
	c.Group.DELETE("/sessions/:id", c.DeleteSession)
	c.Group.GET("/sessions/:id/vitals", c.GetVitals)
	c.Group.GET("/sessions/:id/debug", c.GetDebug)
	c.Group.POST("/sessions/:id/spo2/calibrate", c.CalibrateSpO2)
	c.Group.POST("/sessions/:id/reset", c.ResetSession)
	c.Group.PUT("/sessions/:id/processors/:name", c.SetProcessor)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// HandleError logs err under a correlation ID and writes an ErrorResponse.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Error = message
	}

	log := c.log.Warn
	if code >= http.StatusInternalServerError {
		log = c.log.Error
	}
	log("API error",
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.String("error", resp.Error),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()))

	return ctx.JSON(code, resp)
}

// statusFor maps error categories to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.IsCategory(err, errors.CategoryNotFound):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryValidation), errors.IsCategory(err, errors.CategoryCalibration):
		return http.StatusBadRequest
	case errors.Is(err, vitals.ErrNoRValue):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
