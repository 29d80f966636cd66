package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// VitalsMetrics contains Prometheus metrics for frame processing and estimator outcomes.
type VitalsMetrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ErrorsTotal       *prometheus.CounterVec
	Reading           *prometheus.GaugeVec
	ActiveSessions    prometheus.Gauge
	registry          *prometheus.Registry
}

// NewVitalsMetrics creates and registers the vitals collectors.
func NewVitalsMetrics(registry *prometheus.Registry) (*VitalsMetrics, error) {
	m := &VitalsMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register vitals metrics: %w", err)
	}
	return m, nil
}

func (m *VitalsMetrics) initMetrics() {
	m.OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalcam_operations_total",
			Help: "Total number of operations by name and status (estimator recomputations, frames, resets)",
		},
		[]string{"operation", "status"},
	)

	m.OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vitalcam_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount12),
		},
		[]string{"operation"},
	)

	m.ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalcam_errors_total",
			Help: "Total number of rejected estimator windows and other errors by type",
		},
		[]string{"operation", "error_type"},
	)

	m.Reading = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vitalcam_reading",
			Help: "Last averaged reading per vital sign (bpm, stress index, percent)",
		},
		[]string{"vital"},
	)

	m.ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vitalcam_active_sessions",
		Help: "Number of monitoring sessions currently registered",
	})
}

// RecordOperation implements Recorder.
func (m *VitalsMetrics) RecordOperation(operation, status string) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *VitalsMetrics) RecordDuration(operation string, seconds float64) {
	m.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *VitalsMetrics) RecordError(operation, errorType string) {
	m.ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SetReading publishes an averaged reading.
func (m *VitalsMetrics) SetReading(vital string, value float64) {
	m.Reading.WithLabelValues(vital).Set(value)
}

// ClearReading removes a vital that currently has no value.
func (m *VitalsMetrics) ClearReading(vital string) {
	m.Reading.DeleteLabelValues(vital)
}

// SetActiveSessions updates the session gauge.
func (m *VitalsMetrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// Describe implements the prometheus.Collector interface.
func (m *VitalsMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.OperationsTotal.Describe(ch)
	m.OperationDuration.Describe(ch)
	m.ErrorsTotal.Describe(ch)
	m.Reading.Describe(ch)
	m.ActiveSessions.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *VitalsMetrics) Collect(ch chan<- prometheus.Metric) {
	m.OperationsTotal.Collect(ch)
	m.OperationDuration.Collect(ch)
	m.ErrorsTotal.Collect(ch)
	m.Reading.Collect(ch)
	m.ActiveSessions.Collect(ch)
}
