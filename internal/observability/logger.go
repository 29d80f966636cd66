package observability

import "github.com/vitalcam/vitalcam/internal/logger"

func getLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
