package vitals

import (
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/vitalcam/vitalcam/internal/dsp"
	"github.com/vitalcam/vitalcam/internal/errors"
	"github.com/vitalcam/vitalcam/internal/rolling"
)

// SpO2Reading is an oxygen saturation estimate.
type SpO2Reading struct {
	SpO2       float64   `json:"spo2"`       // 0 while measuring, otherwise within [85, 100]
	Confidence int       `json:"confidence"` // coarse: weak or strong
	RValue     float64   `json:"r_value"`    // last accepted ratio of ratios
	Status     Status    `json:"status"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
}

// Valid reports whether the reading carries a usable saturation.
func (r SpO2Reading) Valid() bool {
	return r.Status != StatusMeasuring && r.SpO2 > 0
}

// Calibration holds the linear model spo2 = A - B*R.
type Calibration struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// SpO2Debug exposes the channel levels of the last analysed window.
type SpO2Debug struct {
	DCRed  float64 `json:"dc_red"`
	DCBlue float64 `json:"dc_blue"`
	ACRed  float64 `json:"ac_red"`
	ACBlue float64 `json:"ac_blue"`
	Raw    float64 `json:"raw"` // clamped, before smoothing
}

// SpO2Estimator tracks forehead red and blue means and derives SpO2 from
// their ratio of pulsatile to steady components.
type SpO2Estimator struct {
	mu sync.RWMutex

	cfg     SpO2Config
	opts    options
	buf     *rolling.Buffer // channel 0 red, channel 1 blue
	cal     Calibration
	current SpO2Reading
	roi     image.Rectangle
	hasROI  bool
	debug   SpO2Debug
	diag    diagnostics
}

// NewSpO2Estimator creates an estimator with the configured calibration.
func NewSpO2Estimator(cfg SpO2Config, opts ...Option) (*SpO2Estimator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	buf, err := rolling.New(cfg.BufferSize, 2)
	if err != nil {
		return nil, err
	}
	return &SpO2Estimator{
		cfg:  cfg,
		opts: buildOptions(opts),
		buf:  buf,
		cal:  Calibration{A: cfg.CalibrationA, B: cfg.CalibrationB},
	}, nil
}

// ProcessFrame samples the frame at the current time.
func (e *SpO2Estimator) ProcessFrame(img image.Image, face *image.Rectangle) {
	e.ProcessFrameAt(e.opts.now(), img, face)
}

// ProcessFrameAt extracts the forehead region and records its red and blue means.
func (e *SpO2Estimator) ProcessFrameAt(ts time.Time, img image.Image, face *image.Rectangle) {
	roi, ok := regionFor(img, face, e.cfg.ROI)
	if !ok {
		return
	}
	red, _, blue, ok := MeanRGB(img, roi)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.roi, e.hasROI = roi, true
	e.addLocked(ts, red, blue)
}

// AddSample records channel means directly.
func (e *SpO2Estimator) AddSample(ts time.Time, red, blue float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.addLocked(ts, red, blue)
}

func (e *SpO2Estimator) addLocked(ts time.Time, red, blue float64) {
	if err := e.buf.Push(ts, red, blue); err != nil {
		e.failLocked(ts, err)
		return
	}
	if !e.buf.Full() {
		return
	}

	raw, r, confidence, err := e.estimateLocked()
	if err != nil {
		e.failLocked(ts, err)
		return
	}

	spo2 := raw
	if e.current.Status != StatusMeasuring {
		spo2 = e.cfg.Alpha*raw + (1-e.cfg.Alpha)*e.current.SpO2
	}
	e.current = SpO2Reading{
		SpO2:       spo2,
		Confidence: confidence,
		RValue:     r,
		Status:     StatusFresh,
		UpdatedAt:  ts,
	}
	e.diag.record(ts, nil)
	e.observe(nil)
}

func (e *SpO2Estimator) estimateLocked() (raw, r float64, confidence int, err error) {
	w, err := e.buf.Window()
	if err != nil {
		return 0, 0, 0, err
	}
	if w.Span() <= 0 {
		return 0, 0, 0, ErrShortSpan
	}

	red, blue := w.Channel(0), w.Channel(1)
	dcRed, dcBlue := dsp.Mean(red), dsp.Mean(blue)
	e.debug = SpO2Debug{DCRed: dcRed, DCBlue: dcBlue}
	if dcRed < e.cfg.MinDC || dcBlue < e.cfg.MinDC {
		return 0, 0, 0, fmt.Errorf("%w: dc red %.1f blue %.1f", ErrLowBrightness, dcRed, dcBlue)
	}

	acRed := e.acRMS(red, dcRed)
	acBlue := e.acRMS(blue, dcBlue)
	e.debug.ACRed, e.debug.ACBlue = acRed, acBlue
	if acRed <= 0 || acBlue <= 0 {
		return 0, 0, 0, ErrFlatSignal
	}

	r = (acRed / dcRed) / (acBlue / dcBlue)
	if r <= e.cfg.MinR || r >= e.cfg.MaxR {
		return 0, 0, 0, fmt.Errorf("%w: %.3f", ErrImplausibleR, r)
	}

	raw = math.Max(e.cfg.MinSpO2, math.Min(e.cfg.MaxSpO2, e.cal.A-e.cal.B*r))
	e.debug.Raw = raw

	confidence = e.cfg.WeakConfidence
	if acRed > e.cfg.StrongAC && acBlue > e.cfg.StrongAC {
		confidence = e.cfg.StrongConfidence
	}
	return raw, r, confidence, nil
}

// acRMS removes dc, smooths when there are enough samples, and returns the RMS.
func (e *SpO2Estimator) acRMS(x []float64, dc float64) float64 {
	ac := make([]float64, len(x))
	for i, v := range x {
		ac[i] = v - dc
	}
	if len(ac) > e.cfg.SmoothingWindow {
		ac = dsp.MovingAverage(ac, e.cfg.SmoothingWindow)
	}
	return dsp.RMS(ac)
}

func (e *SpO2Estimator) failLocked(ts time.Time, err error) {
	e.diag.record(ts, err)
	e.observe(err)
	if e.current.Status == StatusFresh {
		e.current.Status = StatusStale
	}
}

func (e *SpO2Estimator) observe(err error) {
	if e.opts.observer != nil {
		e.opts.observer.ObserveEstimate(ProcessorSpO2, err)
	}
}

// SpO2 returns the latest reading.
func (e *SpO2Estimator) SpO2() SpO2Reading {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Calibrate solves A so that the last accepted R maps to known, holding B fixed.
func (e *SpO2Estimator) Calibrate(known float64) error {
	if known <= 0 || known > 100 {
		return errors.Newf("known spo2 %.1f outside (0, 100]", known).
			Component("vitals").
			Category(errors.CategoryValidation).
			Build()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current.RValue <= 0 {
		return ErrNoRValue
	}
	e.cal.A = known + e.cal.B*e.current.RValue
	return nil
}

// Calibration returns the active calibration constants.
func (e *SpO2Estimator) Calibration() Calibration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cal
}

// SetCalibration replaces the calibration constants.
func (e *SpO2Estimator) SetCalibration(c Calibration) error {
	if c.B <= 0 {
		return errors.Newf("calibration slope must be positive, got %.3f", c.B).
			Component("vitals").
			Category(errors.CategoryCalibration).
			Build()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cal = c
	return nil
}

// Progress is the buffer fill ratio in [0, 1].
func (e *SpO2Estimator) Progress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return float64(e.buf.Len()) / float64(e.buf.Cap())
}

// ROI returns the region used for the last sampled frame.
func (e *SpO2Estimator) ROI() (image.Rectangle, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.roi, e.hasROI
}

// Debug returns the channel levels of the last analysed window.
func (e *SpO2Estimator) Debug() SpO2Debug {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.debug
}

// Diagnostics returns recomputation counters.
func (e *SpO2Estimator) Diagnostics() Diagnostics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.diag.snapshot()
}

// Reset drops samples and readings. Calibration is kept.
func (e *SpO2Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buf.Reset()
	e.current = SpO2Reading{}
	e.roi, e.hasROI = image.Rectangle{}, false
	e.debug = SpO2Debug{}
}
