package vitals

import (
	"math"
	"sync"
	"time"

	"github.com/vitalcam/vitalcam/internal/dsp"
	"github.com/vitalcam/vitalcam/internal/rolling"
)

// StressLevel is the discrete band of the stress index.
type StressLevel string

const (
	StressMeasuring StressLevel = "measuring"
	StressVeryLow   StressLevel = "very_low"
	StressLow       StressLevel = "low"
	StressModerate  StressLevel = "moderate"
	StressHigh      StressLevel = "high"
	StressVeryHigh  StressLevel = "very_high"
)

// LevelFor maps a 0-100 index to its level.
func LevelFor(index int) StressLevel {
	switch {
	case index >= 80:
		return StressVeryHigh
	case index >= 60:
		return StressHigh
	case index >= 40:
		return StressModerate
	case index >= 20:
		return StressLow
	default:
		return StressVeryLow
	}
}

// HRV holds heart rate variability metrics.
type HRV struct {
	RMSSD float64 `json:"rmssd"` // ms
	SDNN  float64 `json:"sdnn"`  // ms
	PNN50 float64 `json:"pnn50"` // percent
}

// StressReading is one stress computation. Index, level and metrics always
// come from the same RR window.
type StressReading struct {
	StressIndex int         `json:"stress_index"`
	Level       StressLevel `json:"stress_level"`
	HRV
	Samples   int       `json:"samples"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// step thresholds, highest first; values at or above threshold i score 25*i.
var (
	rmssdSteps = [4]float64{40, 30, 20, 15}
	sdnnSteps  = [4]float64{60, 40, 30, 20}
	pnn50Steps = [4]float64{20, 15, 10, 5}
)

func stepScore(v float64, steps [4]float64) int {
	for i, th := range steps {
		if v >= th {
			return 25 * i
		}
	}
	return 100
}

// ComputeHRV derives RMSSD, SDNN (population) and pNN50 from RR intervals in ms.
func ComputeHRV(rr []float64) HRV {
	diffs := dsp.Diff(rr)
	if len(diffs) == 0 {
		return HRV{SDNN: dsp.PopStdDev(rr)}
	}

	over := 0
	for _, d := range diffs {
		if math.Abs(d) > 50 {
			over++
		}
	}
	return HRV{
		RMSSD: dsp.RMS(diffs),
		SDNN:  dsp.PopStdDev(rr),
		PNN50: float64(over) / float64(len(diffs)) * 100,
	}
}

// StressIndex combines the sub-scores as 0.4*RMSSD + 0.4*SDNN + 0.2*pNN50,
// truncated. Lower variability gives a higher index.
func StressIndex(h HRV) int {
	a := stepScore(h.RMSSD, rmssdSteps)
	b := stepScore(h.SDNN, sdnnSteps)
	c := stepScore(h.PNN50, pnn50Steps)
	return (4*a + 4*b + 2*c) / 10
}

// StressIndexAnalyzer turns successive heart rate readings into RR
// intervals and scores their variability.
type StressIndexAnalyzer struct {
	mu sync.RWMutex

	cfg     StressConfig
	opts    options
	buf     *rolling.Buffer
	hasLast bool
	current StressReading
	diag    diagnostics
}

// NewStressIndexAnalyzer creates an analyzer.
func NewStressIndexAnalyzer(cfg StressConfig, opts ...Option) (*StressIndexAnalyzer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	buf, err := rolling.New(cfg.BufferSize, 1)
	if err != nil {
		return nil, err
	}
	return &StressIndexAnalyzer{
		cfg:     cfg,
		opts:    buildOptions(opts),
		buf:     buf,
		current: StressReading{Level: StressMeasuring},
	}, nil
}

// UpdateHeartRate records a heart rate at the current time.
func (a *StressIndexAnalyzer) UpdateHeartRate(bpm float64) {
	a.UpdateHeartRateAt(a.opts.now(), bpm)
}

// UpdateHeartRateAt records a heart rate. Values outside (0, MaxBPM] are ignored.
// The first accepted value only primes the analyzer; each later one adds an
// RR interval of 60000/bpm ms.
func (a *StressIndexAnalyzer) UpdateHeartRateAt(ts time.Time, bpm float64) {
	if !(bpm > 0 && bpm <= a.cfg.MaxBPM) {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.hasLast {
		a.hasLast = true
		return
	}

	if err := a.buf.Push(ts, 60000/bpm); err != nil {
		a.diag.record(ts, err)
		a.observe(err)
		if a.current.Status == StatusFresh {
			a.current.Status = StatusStale
		}
		return
	}

	if a.buf.Len() < a.cfg.MinSamples {
		return
	}

	w, err := a.buf.Window()
	if err != nil {
		a.diag.record(ts, err)
		a.observe(err)
		return
	}

	hrv := ComputeHRV(w.Channel(0))
	index := StressIndex(hrv)
	a.current = StressReading{
		StressIndex: index,
		Level:       LevelFor(index),
		HRV:         hrv,
		Samples:     w.Len(),
		Status:      StatusFresh,
		UpdatedAt:   ts,
	}
	a.diag.record(ts, nil)
	a.observe(nil)
}

func (a *StressIndexAnalyzer) observe(err error) {
	if a.opts.observer != nil {
		a.opts.observer.ObserveEstimate(ProcessorStress, err)
	}
}

// Stress returns the latest reading; index 0 and level "measuring" until
// enough RR intervals are collected.
func (a *StressIndexAnalyzer) Stress() StressReading {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// Progress is the ratio of collected to required RR intervals, capped at 1.
func (a *StressIndexAnalyzer) Progress() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return math.Min(1, float64(a.buf.Len())/float64(a.cfg.MinSamples))
}

// Diagnostics returns recomputation counters.
func (a *StressIndexAnalyzer) Diagnostics() Diagnostics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.diag.snapshot()
}

// Reset drops all intervals and the previous heart rate.
func (a *StressIndexAnalyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.Reset()
	a.hasLast = false
	a.current = StressReading{Level: StressMeasuring}
}
