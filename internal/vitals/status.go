// Package vitals estimates heart rate, HRV stress and SpO2 from camera frames.
//
// Each estimator owns a rolling sample window guarded by its own lock.
// Frames are fed by a single producer; readings may be polled from any
// goroutine and are always returned as complete snapshots. Signal problems
// never surface as errors to the frame producer: the previous reading is
// kept and marked stale, and the cause is counted in Diagnostics.
package vitals

import (
	"time"

	"github.com/vitalcam/vitalcam/internal/dsp"
	"github.com/vitalcam/vitalcam/internal/errors"
	"github.com/vitalcam/vitalcam/internal/rolling"
)

// Status tells whether a reading came from the latest window.
type Status int

const (
	// StatusMeasuring means no estimate has been produced yet.
	StatusMeasuring Status = iota
	// StatusFresh means the reading was computed from the latest window.
	StatusFresh
	// StatusStale means the latest window was rejected and the previous reading is retained.
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	default:
		return "measuring"
	}
}

// MarshalText renders the status as its name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Processor names used in diagnostics and metrics labels.
const (
	ProcessorHeartRate = "heart_rate"
	ProcessorStress    = "stress"
	ProcessorSpO2      = "spo2"
)

// Reasons a window can be rejected.
var (
	ErrFlatSignal    = errors.NewStd("signal too flat")
	ErrShortSpan     = errors.NewStd("window spans no time")
	ErrOutOfRange    = errors.NewStd("estimate outside physiological range")
	ErrLowBrightness = errors.NewStd("region too dark")
	ErrImplausibleR  = errors.NewStd("ratio of ratios outside plausible range")
	ErrNoRValue      = errors.NewStd("no ratio of ratios measured yet")
)

// Reason maps a rejection error to a short label.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFlatSignal):
		return "flat_signal"
	case errors.Is(err, ErrShortSpan):
		return "short_span"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, ErrLowBrightness):
		return "low_brightness"
	case errors.Is(err, ErrImplausibleR):
		return "implausible_r"
	case errors.Is(err, dsp.ErrEmptySpectrum):
		return "empty_spectrum"
	case errors.Is(err, dsp.ErrSignalTooShort):
		return "signal_too_short"
	case errors.Is(err, dsp.ErrInvalidBand):
		return "invalid_band"
	case errors.Is(err, rolling.ErrOutOfOrder):
		return "out_of_order"
	default:
		return "internal"
	}
}

// Observer is told about every recomputation attempt; err is nil on success.
type Observer interface {
	ObserveEstimate(processor string, err error)
}

// Option configures an estimator.
type Option func(*options)

type options struct {
	observer Observer
	now      func() time.Time
}

// WithObserver reports recomputations to o.
func WithObserver(o Observer) Option {
	return func(opts *options) {
		opts.observer = o
	}
}

// WithClock overrides time.Now for frames processed without an explicit timestamp.
func WithClock(now func() time.Time) Option {
	return func(opts *options) {
		opts.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Diagnostics counts recomputation outcomes since construction.
// Counters survive Reset.
type Diagnostics struct {
	Recomputes    uint64            `json:"recomputes"`
	Failures      uint64            `json:"failures"`
	LastFailure   string            `json:"last_failure,omitempty"`
	LastFailureAt time.Time         `json:"last_failure_at,omitzero"`
	ByReason      map[string]uint64 `json:"by_reason,omitempty"`
}

// diagnostics is the mutable form; owners hold their lock while touching it.
type diagnostics struct {
	recomputes    uint64
	failures      uint64
	lastFailure   string
	lastFailureAt time.Time
	byReason      map[string]uint64
}

func (d *diagnostics) record(ts time.Time, err error) {
	if err == nil {
		d.recomputes++
		return
	}
	d.failures++
	d.lastFailure = Reason(err)
	d.lastFailureAt = ts
	if d.byReason == nil {
		d.byReason = make(map[string]uint64)
	}
	d.byReason[d.lastFailure]++
}

func (d *diagnostics) snapshot() Diagnostics {
	out := Diagnostics{
		Recomputes:    d.recomputes,
		Failures:      d.failures,
		LastFailure:   d.lastFailure,
		LastFailureAt: d.lastFailureAt,
	}
	if len(d.byReason) > 0 {
		out.ByReason = make(map[string]uint64, len(d.byReason))
		for k, v := range d.byReason {
			out.ByReason[k] = v
		}
	}
	return out
}
