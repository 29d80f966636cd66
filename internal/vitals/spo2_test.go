package vitals

import (
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSpO2(t *testing.T, opts ...Option) *SpO2Estimator {
	t.Helper()
	e, err := NewSpO2Estimator(DefaultSpO2Config(), opts...)
	require.NoError(t, err)
	return e
}

// feedSpO2 adds n samples whose pulsatile parts share one waveform, so
// R = (redAmp/redDC) / (blueAmp/blueDC) exactly.
func feedSpO2(e *SpO2Estimator, from, n int, redDC, redAmp, blueDC, blueAmp float64) {
	for i := from; i < from+n; i++ {
		w := math.Sin(2 * math.Pi * 1.2 * float64(i) / frameRate)
		e.AddSample(frameTime(i), redDC+redAmp*w, blueDC+blueAmp*w)
	}
}

func TestSpO2MeasuringUntilWindowFull(t *testing.T) {
	e := newSpO2(t)
	feedSpO2(e, 0, 149, 150, 1.5, 100, 2)

	r := e.SpO2()
	assert.Zero(t, r.SpO2)
	assert.Equal(t, StatusMeasuring, r.Status)
	assert.False(t, r.Valid())
}

func TestSpO2FirstReadingSeedsFilter(t *testing.T) {
	e := newSpO2(t)
	feedSpO2(e, 0, 150, 150, 1.5, 100, 2)

	r := e.SpO2()
	require.Equal(t, StatusFresh, r.Status, "diagnostics: %+v", e.Diagnostics())
	assert.InDelta(t, 0.5, r.RValue, 1e-9)
	assert.InDelta(t, 92.5, r.SpO2, 1e-6)
	assert.Equal(t, 50, r.Confidence)

	dbg := e.Debug()
	assert.InDelta(t, 92.5, dbg.Raw, 1e-6)
	assert.Greater(t, dbg.ACRed, 0.01)
}

func TestSpO2ExponentialSmoothing(t *testing.T) {
	e := newSpO2(t)
	feedSpO2(e, 0, 150, 150, 1.5, 100, 2) // R 0.5, raw 92.5
	require.InDelta(t, 92.5, e.SpO2().SpO2, 1e-6)

	// R 1.0 maps to raw 85
	feedSpO2(e, 150, 150, 150, 2, 100, 4.0/3)
	require.InDelta(t, 1.0, e.SpO2().RValue, 1e-6)
	prev := e.SpO2().SpO2
	assert.Greater(t, prev, 85.0)
	assert.Less(t, prev, 92.5)

	feedSpO2(e, 300, 1, 150, 2, 100, 4.0/3)
	assert.InDelta(t, 0.2*85+0.8*prev, e.SpO2().SpO2, 1e-6)
}

func TestSpO2WeakConfidence(t *testing.T) {
	e := newSpO2(t)
	feedSpO2(e, 0, 150, 150, 0.0015, 100, 0.002)

	r := e.SpO2()
	require.Equal(t, StatusFresh, r.Status, "diagnostics: %+v", e.Diagnostics())
	assert.Equal(t, 20, r.Confidence)
	assert.InDelta(t, 0.5, r.RValue, 1e-6)
}

func TestSpO2Rejections(t *testing.T) {
	tests := []struct {
		name    string
		redDC   float64
		redAmp  float64
		blueDC  float64
		blueAmp float64
		reason  string
	}{
		{"dim red", 5, 1, 100, 1, "low_brightness"},
		{"dim blue", 150, 1, 9.9, 1, "low_brightness"},
		{"flat", 150, 0, 100, 0, "flat_signal"},
		{"ratio too high", 100, 10, 100, 1, "implausible_r"},
		{"ratio too low", 100, 1, 100, 5, "implausible_r"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := newRecordingObserver()
			e := newSpO2(t, WithObserver(obs))
			feedSpO2(e, 0, 150, tt.redDC, tt.redAmp, tt.blueDC, tt.blueAmp)

			assert.Equal(t, SpO2Reading{}, e.SpO2())
			diag := e.Diagnostics()
			assert.EqualValues(t, 1, diag.Failures)
			assert.Equal(t, tt.reason, diag.LastFailure)
			assert.Equal(t, []string{tt.reason}, obs.failed[ProcessorSpO2])
		})
	}
}

func TestSpO2ZeroSpan(t *testing.T) {
	e := newSpO2(t)
	for range 150 {
		e.AddSample(epoch, 150, 100)
	}
	assert.Equal(t, "short_span", e.Diagnostics().LastFailure)
}

func TestSpO2RejectionKeepsPreviousReading(t *testing.T) {
	e := newSpO2(t)
	feedSpO2(e, 0, 150, 150, 1.5, 100, 2)
	require.Equal(t, StatusFresh, e.SpO2().Status)

	feedSpO2(e, 150, 150, 5, 0.1, 100, 2)

	after := e.SpO2()
	assert.Equal(t, StatusStale, after.Status)
	assert.Positive(t, after.SpO2)
	assert.Equal(t, "low_brightness", e.Diagnostics().LastFailure)
}

func TestSpO2StaysWithinBounds(t *testing.T) {
	for _, r := range []float64{0.41, 0.5, 0.8, 1.0, 1.4, 1.9, 2.49} {
		e := newSpO2(t)
		// blue amplitude chosen so (1.5/150)/(blueAmp/100) = r
		feedSpO2(e, 0, 160, 150, 1.5, 100, 1/r)

		got := e.SpO2()
		require.Equal(t, StatusFresh, got.Status, "r=%.2f diagnostics: %+v", r, e.Diagnostics())
		assert.InDelta(t, r, got.RValue, 1e-6)
		assert.GreaterOrEqual(t, got.SpO2, 85.0)
		assert.LessOrEqual(t, got.SpO2, 100.0)
	}
}

func TestSpO2Calibrate(t *testing.T) {
	e := newSpO2(t)

	require.ErrorIs(t, e.Calibrate(97), ErrNoRValue)

	feedSpO2(e, 0, 150, 150, 1.5, 100, 2) // R 0.5
	require.NoError(t, e.Calibrate(97))
	assert.InDelta(t, 104.5, e.Calibration().A, 1e-9)
	assert.InDelta(t, 15.0, e.Calibration().B, 1e-9)

	feedSpO2(e, 150, 1, 150, 1.5, 100, 2)
	assert.InDelta(t, 0.2*97+0.8*92.5, e.SpO2().SpO2, 1e-6)

	assert.Error(t, e.Calibrate(0))
	assert.Error(t, e.Calibrate(101))
}

func TestSpO2CalibrationIsPerInstance(t *testing.T) {
	a := newSpO2(t)
	b := newSpO2(t)

	require.NoError(t, a.SetCalibration(Calibration{A: 110, B: 25}))
	assert.Equal(t, Calibration{A: 100, B: 15}, b.Calibration())
	assert.Error(t, a.SetCalibration(Calibration{A: 100, B: 0}))
	assert.Equal(t, Calibration{A: 110, B: 25}, a.Calibration())
}

func TestSpO2ResetKeepsCalibration(t *testing.T) {
	e := newSpO2(t)
	feedSpO2(e, 0, 150, 150, 1.5, 100, 2)
	require.NoError(t, e.Calibrate(98))
	cal := e.Calibration()

	e.Reset()
	first := e.SpO2()
	e.Reset()

	assert.Equal(t, first, e.SpO2())
	assert.Equal(t, SpO2Reading{}, first)
	assert.Zero(t, e.Progress())
	assert.Equal(t, cal, e.Calibration())
	require.ErrorIs(t, e.Calibrate(97), ErrNoRValue)
}

func TestSpO2ProcessFrame(t *testing.T) {
	e := newSpO2(t)
	img := image.NewRGBA(image.Rect(0, 0, 80, 60))
	face := image.Rect(10, 5, 70, 55)

	for i := range 150 {
		w := math.Sin(2 * math.Pi * 1.2 * float64(i) / frameRate)
		fillRGBA(img, color.RGBA{
			R: uint8(math.Round(150 + 3*w)),
			G: 100,
			B: uint8(math.Round(100 + 4*w)),
			A: 255,
		})
		e.ProcessFrameAt(epoch.Add(time.Duration(i)*33*time.Millisecond), img, &face)
	}

	roi, ok := e.ROI()
	require.True(t, ok)
	assert.Equal(t, ForeheadOximetry.Rect(face, img.Bounds()), roi)

	r := e.SpO2()
	require.Equal(t, StatusFresh, r.Status, "diagnostics: %+v", e.Diagnostics())
	assert.InDelta(t, 0.5, r.RValue, 0.1)
	assert.InDelta(t, 92.5, r.SpO2, 1.5)
}
