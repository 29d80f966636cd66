package dsp

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/vitalcam/vitalcam/internal/errors"
)

// nyquistMargin keeps the upper band edge strictly below Nyquist.
const nyquistMargin = 0.99

// ErrInvalidBand is returned when band edges cannot be realized at the sample rate.
var ErrInvalidBand = errors.NewStd("invalid band edges for sample rate")

// ClampBand limits the upper edge to 0.99 of Nyquist and reports whether
// the resulting band is usable (0 < low < high).
func ClampBand(low, high, fs float64) (float64, float64, bool) {
	if fs <= 0 || math.IsNaN(fs) || math.IsInf(fs, 0) {
		return low, high, false
	}
	nyquist := fs / 2
	if high >= nyquist {
		high = nyquistMargin * nyquist
	}
	return low, high, low > 0 && low < high
}

// NewButterworthBandPass designs a band-pass filter from an order-n analog
// Butterworth prototype (n even in practice; the result has n sections,
// i.e. order 2n). Edges are in Hz; high is clamped below Nyquist.
// Passband gain is normalized to 1 at the geometric center frequency.
func NewButterworthBandPass(order int, low, high, fs float64) (*Cascade, error) {
	if order < 1 {
		return nil, errors.Newf("butterworth order must be 1 or greater, got %d", order).
			Component("dsp").
			Category(errors.CategoryFilterDesign).
			Build()
	}

	low, high, ok := ClampBand(low, high, fs)
	if !ok {
		return nil, fmt.Errorf("%w: [%.3f, %.3f] Hz at fs=%.3f Hz", ErrInvalidBand, low, high, fs)
	}

	// prewarp edges for the bilinear transform
	k := 2 * fs
	wl := k * math.Tan(math.Pi*low/fs)
	wh := k * math.Tan(math.Pi*high/fs)
	bw := wh - wl
	w0sq := wl * wh

	sections := make([]*Biquad, 0, order)
	for i := range order {
		// left half plane prototype pole
		p := cmplx.Exp(complex(0, math.Pi*float64(2*i+order+1)/float64(2*order)))

		// low-pass to band-pass: each prototype pole yields s^2 - p*bw*s + w0^2 = 0
		half := p * complex(bw/2, 0)
		disc := cmplx.Sqrt(half*half - complex(w0sq, 0))
		for _, s := range []complex128{half + disc, half - disc} {
			z := (complex(k, 0) + s) / (complex(k, 0) - s)
			if imag(z) <= 0 {
				// the conjugate comes from the mirrored prototype pole
				continue
			}
			// numerator zeros at z = 1 and z = -1
			bq, err := NewBiquad(1, 0, -1, 1, -2*real(z), real(z)*real(z)+imag(z)*imag(z))
			if err != nil {
				return nil, err
			}
			sections = append(sections, bq)
		}
	}

	if len(sections) != order {
		return nil, errors.Newf("butterworth design produced %d sections, want %d", len(sections), order).
			Component("dsp").
			Category(errors.CategoryFilterDesign).
			Context("low_hz", low).
			Context("high_hz", high).
			Context("fs", fs).
			Build()
	}

	wc := 2 * math.Atan(math.Sqrt(w0sq)/k)
	for _, s := range sections {
		g := cmplx.Abs(s.Response(wc))
		if g == 0 || math.IsNaN(g) {
			return nil, fmt.Errorf("%w: degenerate section gain", ErrInvalidBand)
		}
		s.scale(1 / g)
	}

	return NewCascade(sections...), nil
}
