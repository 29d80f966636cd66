package vitals

import (
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/vitalcam/vitalcam/internal/dsp"
	"github.com/vitalcam/vitalcam/internal/rolling"
)

// HeartRate is a pulse reading.
type HeartRate struct {
	BPM        float64   `json:"bpm"`        // 0 while measuring
	Confidence int       `json:"confidence"` // 0-100, latest analysed window
	Status     Status    `json:"status"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
}

// Valid reports whether the reading carries a usable rate.
func (h HeartRate) Valid() bool {
	return h.Status != StatusMeasuring && h.BPM > 0
}

// HeartRateDebug exposes intermediate values of the last analysed window.
type HeartRateDebug struct {
	SampleRate float64 `json:"sample_rate"`  // measured frames per second
	PeakToPeak float64 `json:"peak_to_peak"` // raw green range
	PeakFreq   float64 `json:"peak_freq"`    // Hz, before range gating
	Filtered   bool    `json:"filtered"`     // false when the band-pass fell back to the detrended signal
}

// HeartRateEstimator tracks the mean forehead green value and estimates the
// pulse from the dominant in-band frequency of a full window.
type HeartRateEstimator struct {
	mu sync.RWMutex

	cfg     HeartRateConfig
	opts    options
	buf     *rolling.Buffer
	history []float64 // accepted bpm, oldest first
	current HeartRate
	roi     image.Rectangle
	hasROI  bool
	debug   HeartRateDebug
	diag    diagnostics
}

// NewHeartRateEstimator creates an estimator.
func NewHeartRateEstimator(cfg HeartRateConfig, opts ...Option) (*HeartRateEstimator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	buf, err := rolling.New(cfg.BufferSize, 1)
	if err != nil {
		return nil, err
	}
	return &HeartRateEstimator{
		cfg:     cfg,
		opts:    buildOptions(opts),
		buf:     buf,
		history: make([]float64, 0, cfg.HistorySize),
	}, nil
}

// ProcessFrame samples the frame at the current time.
func (e *HeartRateEstimator) ProcessFrame(img image.Image, face *image.Rectangle) {
	e.ProcessFrameAt(e.opts.now(), img, face)
}

// ProcessFrameAt extracts the forehead region and records its mean green value.
// Frames without a face or with an empty region are ignored.
func (e *HeartRateEstimator) ProcessFrameAt(ts time.Time, img image.Image, face *image.Rectangle) {
	roi, ok := regionFor(img, face, e.cfg.ROI)
	if !ok {
		return
	}
	_, green, _, ok := MeanRGB(img, roi)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.roi, e.hasROI = roi, true
	e.addLocked(ts, green)
}

// AddSample records a green-channel value directly.
func (e *HeartRateEstimator) AddSample(ts time.Time, green float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.addLocked(ts, green)
}

func (e *HeartRateEstimator) addLocked(ts time.Time, green float64) {
	if err := e.buf.Push(ts, green); err != nil {
		e.failLocked(ts, err)
		return
	}
	if !e.buf.Full() {
		return
	}

	bpm, confidence, err := e.estimateLocked()
	if err != nil {
		e.failLocked(ts, err)
		return
	}

	e.diag.record(ts, nil)
	e.observe(nil)

	if len(e.history) == e.cfg.HistorySize {
		copy(e.history, e.history[1:])
		e.history = e.history[:len(e.history)-1]
	}
	e.history = append(e.history, bpm)

	if len(e.history) >= e.cfg.MinHistory {
		e.current = HeartRate{
			BPM:        dsp.Median(e.history),
			Confidence: confidence,
			Status:     StatusFresh,
			UpdatedAt:  ts,
		}
	}
}

// estimateLocked runs the full analysis on the buffered window.
func (e *HeartRateEstimator) estimateLocked() (bpm float64, confidence int, err error) {
	w, err := e.buf.Window()
	if err != nil {
		return 0, 0, err
	}
	fs := w.SampleRate()
	if fs <= 0 {
		return 0, 0, ErrShortSpan
	}

	green := w.Channel(0)
	ptp := dsp.PeakToPeak(green)
	e.debug = HeartRateDebug{SampleRate: fs, PeakToPeak: ptp}
	if ptp < e.cfg.MinPeakToPeak {
		return 0, 0, fmt.Errorf("%w: peak-to-peak %.3f", ErrFlatSignal, ptp)
	}

	detrended := dsp.Detrend(dsp.RemoveMean(green))

	signal := detrended
	if bp, derr := dsp.NewButterworthBandPass(e.cfg.FilterOrder, e.cfg.BandLow, e.cfg.BandHigh, fs); derr == nil {
		if filtered, ferr := dsp.FiltFilt(bp, detrended); ferr == nil {
			signal = filtered
			e.debug.Filtered = true
		}
	}

	smoothed := dsp.MovingAverage(signal, e.cfg.SmoothingWindow)

	spectrum, err := dsp.PowerSpectrum(smoothed, fs, e.cfg.FFTSize)
	if err != nil {
		return 0, 0, err
	}
	peak, err := spectrum.Peak(e.cfg.BandLow, e.cfg.BandHigh)
	if err != nil {
		return 0, 0, err
	}
	if peak.MeanPower <= 0 {
		return 0, 0, fmt.Errorf("%w: no power in band", dsp.ErrEmptySpectrum)
	}
	e.debug.PeakFreq = peak.Freq

	confidence, err = e.confidenceLocked(smoothed, fs, peak)
	if err != nil {
		return 0, 0, err
	}
	// published for every analysed window, accepted or not
	e.current.Confidence = confidence

	bpm = peak.Freq * 60
	if bpm <= e.cfg.MinBPM || bpm >= e.cfg.MaxBPM {
		return 0, confidence, fmt.Errorf("%w: %.1f bpm", ErrOutOfRange, bpm)
	}
	return bpm, confidence, nil
}

// confidenceLocked scores peak/mean band power on the unpadded transform.
// Zero padding interpolates extra bins into the band, which ConfidenceScale
// is not calibrated for.
func (e *HeartRateEstimator) confidenceLocked(x []float64, fs float64, peak dsp.BandPeak) (int, error) {
	if e.cfg.FFTSize > len(x) {
		raw, err := dsp.PowerSpectrum(x, fs, 0)
		if err != nil {
			return 0, err
		}
		if peak, err = raw.Peak(e.cfg.BandLow, e.cfg.BandHigh); err != nil {
			return 0, err
		}
		if peak.MeanPower <= 0 {
			return 0, nil
		}
	}
	return int(math.Min(100, peak.Power/peak.MeanPower*e.cfg.ConfidenceScale)), nil
}

// failLocked keeps the previous reading and marks it stale.
func (e *HeartRateEstimator) failLocked(ts time.Time, err error) {
	e.diag.record(ts, err)
	e.observe(err)
	if e.current.Status == StatusFresh {
		e.current.Status = StatusStale
	}
}

func (e *HeartRateEstimator) observe(err error) {
	if e.opts.observer != nil {
		e.opts.observer.ObserveEstimate(ProcessorHeartRate, err)
	}
}

// HeartRate returns the latest reading.
func (e *HeartRateEstimator) HeartRate() HeartRate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Progress is the buffer fill ratio in [0, 1].
func (e *HeartRateEstimator) Progress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return float64(e.buf.Len()) / float64(e.buf.Cap())
}

// ROI returns the region used for the last sampled frame.
func (e *HeartRateEstimator) ROI() (image.Rectangle, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.roi, e.hasROI
}

// Debug returns intermediate values from the last analysed window.
func (e *HeartRateEstimator) Debug() HeartRateDebug {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.debug
}

// Diagnostics returns recomputation counters.
func (e *HeartRateEstimator) Diagnostics() Diagnostics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.diag.snapshot()
}

// Reset drops all samples and readings.
func (e *HeartRateEstimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buf.Reset()
	e.history = e.history[:0]
	e.current = HeartRate{}
	e.roi, e.hasROI = image.Rectangle{}, false
	e.debug = HeartRateDebug{}
}
