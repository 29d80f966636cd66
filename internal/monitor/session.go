// Package monitor drives the vital-sign estimators for one or more subjects:
// it fans each camera tick out to the enabled estimators, forwards heart
// rate into the stress analyzer, resets everything after prolonged face
// loss, and collects plausible readings for periodic publishing.
package monitor

import (
	"image"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vitalcam/vitalcam/internal/conf"
	"github.com/vitalcam/vitalcam/internal/errors"
	"github.com/vitalcam/vitalcam/internal/logger"
	"github.com/vitalcam/vitalcam/internal/observability/metrics"
	"github.com/vitalcam/vitalcam/internal/vitals"
)

// GetLogger returns the module logger for monitoring sessions.
func GetLogger() logger.Logger {
	return logger.Global().Module("monitor")
}

// Default configuration values
const (
	defaultFaceLossTimeout = 2 * time.Second
	warnInterval           = 10 * time.Second
)

// Toggles selects which estimators run.
type Toggles struct {
	HeartRate bool `json:"heart_rate"`
	Stress    bool `json:"stress"`
	SpO2      bool `json:"spo2"`
}

// AllEnabled runs every estimator.
var AllEnabled = Toggles{HeartRate: true, Stress: true, SpO2: true}

// Config configures a Session.
type Config struct {
	HeartRate       vitals.HeartRateConfig
	Stress          vitals.StressConfig
	SpO2            vitals.SpO2Config
	FaceLossTimeout time.Duration
	Enabled         Toggles
	AggregateSize   int
}

// DefaultConfig returns the stock estimator settings with everything enabled.
func DefaultConfig() Config {
	return Config{
		HeartRate:       vitals.DefaultHeartRateConfig(),
		Stress:          vitals.DefaultStressConfig(),
		SpO2:            vitals.DefaultSpO2Config(),
		FaceLossTimeout: defaultFaceLossTimeout,
		Enabled:         AllEnabled,
		AggregateSize:   DefaultAggregateSize,
	}
}

// ConfigFromSettings maps the vitals section of the configuration file.
func ConfigFromSettings(s *conf.VitalsSettings) Config {
	return Config{
		HeartRate:       vitals.HeartRateConfigFromSettings(&s.HeartRate),
		Stress:          vitals.StressConfigFromSettings(&s.Stress),
		SpO2:            vitals.SpO2ConfigFromSettings(&s.SpO2),
		FaceLossTimeout: s.FaceLoss.Timeout,
		Enabled: Toggles{
			HeartRate: s.Enabled.HeartRate,
			Stress:    s.Enabled.Stress,
			SpO2:      s.Enabled.SpO2,
		},
		AggregateSize: DefaultAggregateSize,
	}
}

// Snapshot is a consistent view of a session's readings.
type Snapshot struct {
	ID           string                        `json:"id"`
	HeartRate    vitals.HeartRate              `json:"heart_rate"`
	Stress       vitals.StressReading          `json:"stress"`
	SpO2         vitals.SpO2Reading            `json:"spo2"`
	Calibration  vitals.Calibration            `json:"calibration"`
	Progress     map[string]float64            `json:"progress"`
	Diagnostics  map[string]vitals.Diagnostics `json:"diagnostics"`
	Enabled      Toggles                       `json:"enabled"`
	FaceDetected bool                          `json:"face_detected"`
	LastFrame    time.Time                     `json:"last_frame,omitzero"`
}

// Session owns one set of estimators for a single subject.
// ProcessFrame is called by one producer; all other methods may be called concurrently.
type Session struct {
	id     string
	hr     *vitals.HeartRateEstimator
	stress *vitals.StressIndexAnalyzer
	spo2   *vitals.SpO2Estimator
	agg    *Aggregator

	faceLossTimeout time.Duration
	recorder        metrics.Recorder
	log             logger.Logger
	warnLimiter     *rate.Limiter

	mu           sync.RWMutex
	enabled      Toggles
	lastFrame    time.Time
	lastFace     time.Time
	faceDetected bool
	lossHandled  bool
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithRecorder sends frame and estimator outcomes to r.
func WithRecorder(r metrics.Recorder) SessionOption {
	return func(s *Session) {
		s.recorder = r
	}
}

// WithLogger replaces the module logger.
func WithLogger(l logger.Logger) SessionOption {
	return func(s *Session) {
		s.log = l
	}
}

// NewSession builds the estimators for a subject.
func NewSession(id string, cfg Config, opts ...SessionOption) (*Session, error) {
	s := &Session{
		id:              id,
		agg:             NewAggregator(cfg.AggregateSize),
		faceLossTimeout: cfg.FaceLossTimeout,
		recorder:        metrics.NoOpRecorder{},
		warnLimiter:     rate.NewLimiter(rate.Every(warnInterval), 1),
		enabled:         cfg.Enabled,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = GetLogger()
	}
	s.log = s.log.With(logger.String("session", id))
	if s.faceLossTimeout <= 0 {
		s.faceLossTimeout = defaultFaceLossTimeout
	}

	observer := vitals.WithObserver(estimateObserver{s})

	var err error
	if s.hr, err = vitals.NewHeartRateEstimator(cfg.HeartRate, observer); err != nil {
		return nil, wrapSetup(err, "heart_rate")
	}
	if s.stress, err = vitals.NewStressIndexAnalyzer(cfg.Stress, observer); err != nil {
		return nil, wrapSetup(err, "stress")
	}
	if s.spo2, err = vitals.NewSpO2Estimator(cfg.SpO2, observer); err != nil {
		return nil, wrapSetup(err, "spo2")
	}
	return s, nil
}

func wrapSetup(err error, processor string) error {
	return errors.New(err).
		Component("monitor").
		Category(errors.CategoryConfiguration).
		Context("processor", processor).
		Build()
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// ProcessFrame feeds one camera tick. face is nil when no face was detected.
func (s *Session) ProcessFrame(ts time.Time, img image.Image, face *image.Rectangle) {
	start := time.Now()
	defer func() {
		s.recorder.RecordDuration(metrics.OpFrame, time.Since(start).Seconds())
	}()

	s.mu.Lock()
	s.lastFrame = ts
	enabled := s.enabled
	if face == nil {
		s.faceDetected = false
		lost := !s.lastFace.IsZero() && !s.lossHandled && ts.Sub(s.lastFace) > s.faceLossTimeout
		if lost {
			s.lossHandled = true
		}
		s.mu.Unlock()

		if lost {
			s.resetProcessors(enabled)
			s.recorder.RecordOperation(metrics.OpFaceLossReset, metrics.StatusSuccess)
			s.log.Info("face lost, estimators reset", logger.Duration("timeout", s.faceLossTimeout))
		}
		return
	}
	s.faceDetected = true
	s.lastFace = ts
	s.lossHandled = false
	s.mu.Unlock()

	if enabled.HeartRate {
		s.hr.ProcessFrameAt(ts, img, face)
		hr := s.hr.HeartRate()
		if hr.Valid() && hr.BPM > 40 && hr.BPM < 180 {
			s.agg.AddHeartRate(hr.BPM)
			if enabled.Stress {
				s.stress.UpdateHeartRateAt(ts, hr.BPM)
			}
		}
	}

	if enabled.SpO2 {
		s.spo2.ProcessFrameAt(ts, img, face)
		if r := s.spo2.SpO2(); r.Valid() {
			s.agg.AddSpO2(r.SpO2)
		}
	}

	if enabled.Stress {
		if r := s.stress.Stress(); r.StressIndex > 0 {
			s.agg.AddStress(float64(r.StressIndex))
		}
	}
}

// resetProcessors clears the enabled estimators.
func (s *Session) resetProcessors(t Toggles) {
	if t.HeartRate {
		s.hr.Reset()
	}
	if t.Stress {
		s.stress.Reset()
	}
	if t.SpO2 {
		s.spo2.Reset()
	}
}

// Reset clears all estimators and collected averages. Calibration is kept.
func (s *Session) Reset() {
	s.resetProcessors(AllEnabled)
	s.agg.Reset()
}

// SetEnabled switches one estimator on or off by processor name.
// Disabling an estimator resets it; disabling heart rate also resets stress,
// which depends on it for input.
func (s *Session) SetEnabled(processor string, on bool) error {
	s.mu.Lock()
	switch processor {
	case vitals.ProcessorHeartRate:
		s.enabled.HeartRate = on
	case vitals.ProcessorStress:
		s.enabled.Stress = on
	case vitals.ProcessorSpO2:
		s.enabled.SpO2 = on
	default:
		s.mu.Unlock()
		return errors.Newf("unknown processor %q", processor).
			Component("monitor").
			Category(errors.CategoryNotFound).
			Context("processor", processor).
			Build()
	}
	s.mu.Unlock()

	if on {
		return nil
	}
	switch processor {
	case vitals.ProcessorHeartRate:
		s.hr.Reset()
		s.stress.Reset()
	case vitals.ProcessorStress:
		s.stress.Reset()
	case vitals.ProcessorSpO2:
		s.spo2.Reset()
	}
	s.log.Debug("processor toggled", logger.String("processor", processor), logger.Bool("enabled", on))
	return nil
}

// Enabled returns the current toggles.
func (s *Session) Enabled() Toggles {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// Calibrate performs a one-point SpO2 calibration against a reference reading.
func (s *Session) Calibrate(knownSpO2 float64) error {
	if err := s.spo2.Calibrate(knownSpO2); err != nil {
		return err
	}
	cal := s.spo2.Calibration()
	s.log.Info("spo2 calibrated",
		logger.Float64("known", knownSpO2),
		logger.Float64("a", cal.A),
		logger.Float64("b", cal.B))
	return nil
}

// Aggregator returns the session's reading aggregator.
func (s *Session) Aggregator() *Aggregator {
	return s.agg
}

// LastFrame returns the timestamp of the most recent tick.
func (s *Session) LastFrame() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFrame
}

// Snapshot returns the latest readings. Each reading is internally consistent;
// the three are taken one after another.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		ID:           s.id,
		Enabled:      s.enabled,
		FaceDetected: s.faceDetected,
		LastFrame:    s.lastFrame,
	}
	s.mu.RUnlock()

	snap.HeartRate = s.hr.HeartRate()
	snap.Stress = s.stress.Stress()
	snap.SpO2 = s.spo2.SpO2()
	snap.Calibration = s.spo2.Calibration()
	snap.Progress = map[string]float64{
		vitals.ProcessorHeartRate: s.hr.Progress(),
		vitals.ProcessorStress:    s.stress.Progress(),
		vitals.ProcessorSpO2:      s.spo2.Progress(),
	}
	snap.Diagnostics = map[string]vitals.Diagnostics{
		vitals.ProcessorHeartRate: s.hr.Diagnostics(),
		vitals.ProcessorStress:    s.stress.Diagnostics(),
		vitals.ProcessorSpO2:      s.spo2.Diagnostics(),
	}
	return snap
}

// HeartRate exposes the heart rate estimator for ROI and debug queries.
func (s *Session) HeartRate() *vitals.HeartRateEstimator {
	return s.hr
}

// SpO2 exposes the SpO2 estimator for ROI and debug queries.
func (s *Session) SpO2() *vitals.SpO2Estimator {
	return s.spo2
}

// estimateObserver records estimator outcomes and warns, rate limited, on rejections.
// It runs under the estimator's lock and must not call back into it.
type estimateObserver struct {
	s *Session
}

func (o estimateObserver) ObserveEstimate(processor string, err error) {
	if err == nil {
		o.s.recorder.RecordOperation(processor, metrics.StatusSuccess)
		return
	}
	reason := vitals.Reason(err)
	o.s.recorder.RecordOperation(processor, metrics.StatusError)
	o.s.recorder.RecordError(processor, reason)
	if o.s.warnLimiter.Allow() {
		o.s.log.Warn("estimate rejected, keeping previous reading",
			logger.String("processor", processor),
			logger.String("reason", reason),
			logger.Error(err))
	}
}
