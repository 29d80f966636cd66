// Package metrics provides Prometheus collectors for vitalcam components.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components depend on it rather than on concrete collectors.
type Recorder interface {
	// RecordOperation records an operation outcome, e.g. ("heart_rate", "success").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its type, e.g. ("spo2", "low_brightness").
	RecordError(operation, errorType string)
}
