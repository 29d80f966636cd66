package vitals

import (
	"github.com/vitalcam/vitalcam/internal/conf"
	"github.com/vitalcam/vitalcam/internal/errors"
)

// HeartRateConfig tunes HeartRateEstimator.
type HeartRateConfig struct {
	BufferSize      int
	BandLow         float64 // Hz
	BandHigh        float64 // Hz
	FilterOrder     int     // Butterworth prototype order
	SmoothingWindow int
	FFTSize         int
	MinPeakToPeak   float64
	ConfidenceScale float64
	MinBPM          float64 // exclusive
	MaxBPM          float64 // exclusive
	HistorySize     int
	MinHistory      int
	ROI             ROIFractions
}

// DefaultHeartRateConfig returns the stock 150-sample, 0.75-3 Hz setup.
func DefaultHeartRateConfig() HeartRateConfig {
	return HeartRateConfig{
		BufferSize:      150,
		BandLow:         0.75,
		BandHigh:        3.0,
		FilterOrder:     4,
		SmoothingWindow: 5,
		FFTSize:         1024,
		MinPeakToPeak:   0.5,
		ConfidenceScale: 15,
		MinBPM:          40,
		MaxBPM:          180,
		HistorySize:     10,
		MinHistory:      3,
		ROI:             ForeheadPulse,
	}
}

// HeartRateConfigFromSettings maps configuration file values.
func HeartRateConfigFromSettings(s *conf.HeartRateSettings) HeartRateConfig {
	return HeartRateConfig{
		BufferSize:      s.BufferSize,
		BandLow:         s.BandLow,
		BandHigh:        s.BandHigh,
		FilterOrder:     s.FilterOrder,
		SmoothingWindow: s.SmoothingWindow,
		FFTSize:         s.FFTSize,
		MinPeakToPeak:   s.MinPeakToPeak,
		ConfidenceScale: s.ConfidenceScale,
		MinBPM:          s.MinBPM,
		MaxBPM:          s.MaxBPM,
		HistorySize:     s.HistorySize,
		MinHistory:      s.MinHistory,
		ROI:             ForeheadPulse,
	}
}

func (c *HeartRateConfig) validate() error {
	switch {
	case c.BufferSize < 2:
		return invalidConfig("heart rate buffer size must be at least 2")
	case c.BandLow <= 0 || c.BandHigh <= c.BandLow:
		return invalidConfig("heart rate band must satisfy 0 < low < high")
	case c.FilterOrder < 1:
		return invalidConfig("heart rate filter order must be at least 1")
	case c.HistorySize < 1 || c.MinHistory < 1 || c.MinHistory > c.HistorySize:
		return invalidConfig("heart rate history must satisfy 1 <= min <= size")
	case c.MaxBPM <= c.MinBPM:
		return invalidConfig("heart rate bpm bounds must satisfy min < max")
	}
	return nil
}

// StressConfig tunes StressIndexAnalyzer.
type StressConfig struct {
	BufferSize int
	MinSamples int
	MaxBPM     float64 // inclusive upper bound for accepted updates
}

// DefaultStressConfig keeps 300 RR intervals and computes from 30.
func DefaultStressConfig() StressConfig {
	return StressConfig{BufferSize: 300, MinSamples: 30, MaxBPM: 200}
}

// StressConfigFromSettings maps configuration file values.
func StressConfigFromSettings(s *conf.StressSettings) StressConfig {
	return StressConfig{BufferSize: s.BufferSize, MinSamples: s.MinSamples, MaxBPM: s.MaxBPM}
}

func (c *StressConfig) validate() error {
	if c.MinSamples < 2 || c.BufferSize < c.MinSamples {
		return invalidConfig("stress buffer must hold at least min samples, and min samples must be >= 2")
	}
	if c.MaxBPM <= 0 {
		return invalidConfig("stress max bpm must be positive")
	}
	return nil
}

// SpO2Config tunes SpO2Estimator.
type SpO2Config struct {
	BufferSize       int
	MinDC            float64
	SmoothingWindow  int
	MinR             float64 // exclusive
	MaxR             float64 // exclusive
	CalibrationA     float64
	CalibrationB     float64
	MinSpO2          float64
	MaxSpO2          float64
	Alpha            float64
	StrongAC         float64
	StrongConfidence int
	WeakConfidence   int
	ROI              ROIFractions
}

// DefaultSpO2Config returns SpO2 = 100 - 15R over a 150-sample window.
func DefaultSpO2Config() SpO2Config {
	return SpO2Config{
		BufferSize:       150,
		MinDC:            10,
		SmoothingWindow:  5,
		MinR:             0.4,
		MaxR:             2.5,
		CalibrationA:     100,
		CalibrationB:     15,
		MinSpO2:          85,
		MaxSpO2:          100,
		Alpha:            0.2,
		StrongAC:         0.01,
		StrongConfidence: 50,
		WeakConfidence:   20,
		ROI:              ForeheadOximetry,
	}
}

// SpO2ConfigFromSettings maps configuration file values.
func SpO2ConfigFromSettings(s *conf.SpO2Settings) SpO2Config {
	return SpO2Config{
		BufferSize:       s.BufferSize,
		MinDC:            s.MinDC,
		SmoothingWindow:  s.SmoothingWindow,
		MinR:             s.MinR,
		MaxR:             s.MaxR,
		CalibrationA:     s.CalibrationA,
		CalibrationB:     s.CalibrationB,
		MinSpO2:          s.MinSpO2,
		MaxSpO2:          s.MaxSpO2,
		Alpha:            s.Alpha,
		StrongAC:         s.StrongAC,
		StrongConfidence: s.StrongConfidence,
		WeakConfidence:   s.WeakConfidence,
		ROI:              ForeheadOximetry,
	}
}

func (c *SpO2Config) validate() error {
	switch {
	case c.BufferSize < 2:
		return invalidConfig("spo2 buffer size must be at least 2")
	case c.MinR >= c.MaxR:
		return invalidConfig("spo2 ratio bounds must satisfy min < max")
	case c.MinSpO2 >= c.MaxSpO2:
		return invalidConfig("spo2 bounds must satisfy min < max")
	case c.Alpha <= 0 || c.Alpha > 1:
		return invalidConfig("spo2 alpha must be in (0, 1]")
	}
	return nil
}

func invalidConfig(msg string) error {
	return errors.New(errors.NewStd(msg)).
		Component("vitals").
		Category(errors.CategoryValidation).
		Build()
}
