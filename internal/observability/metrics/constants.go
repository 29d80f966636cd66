package metrics

import "time"

// Operation names recorded alongside the processor names.
const (
	// OpFrame is one tick through a monitoring session.
	OpFrame = "frame"
	// OpFaceLossReset is a reset triggered by prolonged face loss.
	OpFaceLossReset = "face_loss_reset"
	// OpPublish is one MQTT publish round.
	OpPublish = "publish"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Histogram bucket configuration.
const (
	// BucketStart100us covers 0.1ms to ~400ms, the per-frame budget range.
	BucketStart100us = 0.0001
	// BucketStart1ms covers 1ms to ~1s.
	BucketStart1ms = 0.001
	// BucketStart64B is the starting bucket for message size histograms.
	BucketStart64B = 64.0

	BucketFactor2 = 2

	BucketCount10 = 10
	BucketCount12 = 12
)

// ShutdownTimeout is the timeout for graceful shutdown of the metrics endpoint.
const ShutdownTimeout = 5 * time.Second
