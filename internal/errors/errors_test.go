package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	enabled  bool
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) {
	r.reported = append(r.reported, ee)
	ee.MarkReported()
}

func (r *recordingReporter) IsEnabled() bool { return r.enabled }

func TestBuildWithoutReporter(t *testing.T) {
	SetTelemetryReporter(nil)

	err := New(NewStd("flat signal")).
		Component("vitals").
		Category(CategorySignalQuality).
		Context("operation", "estimate_heart_rate").
		Build()

	assert.Equal(t, "flat signal", err.Error())
	assert.Equal(t, "vitals", err.GetComponent())
	assert.Equal(t, CategorySignalQuality, err.Category)
	assert.Equal(t, "estimate_heart_rate", err.GetContext()["operation"])
	assert.False(t, err.IsReported())
	assert.WithinDuration(t, time.Now(), err.GetTimestamp(), time.Second)
}

func TestBuildDefaults(t *testing.T) {
	SetTelemetryReporter(nil)

	err := Newf("broker %s unreachable", "tcp://x").Build()
	assert.Equal(t, ComponentUnknown, err.GetComponent())
	assert.Equal(t, CategoryGeneric, err.Category)
}

func TestBuildReportsWhenEnabled(t *testing.T) {
	rep := &recordingReporter{enabled: true}
	SetTelemetryReporter(rep)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	err := Newf("invalid band edges").Build()

	require.Len(t, rep.reported, 1)
	assert.True(t, err.IsReported())
	assert.Equal(t, CategoryValidation, err.Category, "category detected from message")
}

func TestDisabledReporterIsSkipped(t *testing.T) {
	rep := &recordingReporter{enabled: false}
	SetTelemetryReporter(rep)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	New(NewStd("x")).Build()
	assert.Empty(t, rep.reported)
}

func TestIsAndCategory(t *testing.T) {
	SetTelemetryReporter(nil)
	sentinel := NewStd("too dim")

	wrapped := New(fmt.Errorf("spo2: %w", sentinel)).Category(CategorySignalQuality).Build()

	assert.True(t, Is(wrapped, sentinel))
	assert.True(t, IsCategory(wrapped, CategorySignalQuality))
	assert.False(t, IsCategory(wrapped, CategoryCalibration))
	assert.True(t, Is(wrapped, &EnhancedError{Category: CategorySignalQuality}))
	assert.False(t, IsNotFound(wrapped))
}

func TestPriority(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{PriorityHigh, PriorityHigh},
		{"bogus", PriorityMedium},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, New(NewStd("x")).Priority(tt.in).Build().GetPriority())
		})
	}
}

func TestGenerateErrorTitle(t *testing.T) {
	ee := New(NewStd("x")).
		Component("mqtt").
		Category(CategoryMQTTPublish).
		Context("operation", "publish_combined").
		Build()

	assert.Equal(t, "Mqtt MQTT Publish Error Publish Combined", generateErrorTitle(ee))
}
