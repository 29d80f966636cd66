// Package dsp provides the signal processing used by the vital-sign
// estimators: second-order IIR sections, Butterworth band-pass design,
// zero-phase filtering, detrending, smoothing and power spectra.
package dsp

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/vitalcam/vitalcam/internal/errors"
)

// Biquad is a normalized second-order section
//
//	y[n] = b0*x[n] + b1*x[n-1] + b2*x[n-2] - a1*y[n-1] - a2*y[n-2]
//
// evaluated in direct form I.
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64

	// state variables
	x1, x2 float64
	y1, y2 float64
}

// NewBiquad normalizes the coefficients by a0.
func NewBiquad(b0, b1, b2, a0, a1, a2 float64) (*Biquad, error) {
	if a0 == 0 || math.IsNaN(a0) || math.IsInf(a0, 0) {
		return nil, errors.Newf("biquad a0 must be finite and non-zero, got %v", a0).
			Component("dsp").
			Category(errors.CategoryFilterDesign).
			Build()
	}
	return &Biquad{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}, nil
}

// Coefficients returns the normalized (b0, b1, b2, a1, a2).
func (f *Biquad) Coefficients() (b0, b1, b2, a1, a2 float64) {
	return f.b0, f.b1, f.b2, f.a1, f.a2
}

// ApplyBatch filters samples in place, carrying state across calls.
func (f *Biquad) ApplyBatch(samples []float64) {
	for i, x := range samples {
		y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2

		f.x2 = f.x1
		f.x1 = x
		f.y2 = f.y1
		f.y1 = y

		samples[i] = y
	}
}

// Reset zeroes the state.
func (f *Biquad) Reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

// DCGain is the response at z = 1.
func (f *Biquad) DCGain() float64 {
	den := 1 + f.a1 + f.a2
	if den == 0 {
		return 0
	}
	return (f.b0 + f.b1 + f.b2) / den
}

// Prime sets the state to the steady state reached by a constant input c
// and returns the steady output.
func (f *Biquad) Prime(c float64) float64 {
	y := c * f.DCGain()
	f.x1, f.x2 = c, c
	f.y1, f.y2 = y, y
	return y
}

// Response evaluates H(e^{jw}) at the normalized angular frequency w (rad/sample).
func (f *Biquad) Response(w float64) complex128 {
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1
	num := complex(f.b0, 0) + complex(f.b1, 0)*z1 + complex(f.b2, 0)*z2
	den := 1 + complex(f.a1, 0)*z1 + complex(f.a2, 0)*z2
	return num / den
}

// scale multiplies the numerator by g.
func (f *Biquad) scale(g float64) {
	f.b0 *= g
	f.b1 *= g
	f.b2 *= g
}

// Cascade is a chain of biquad sections applied in order.
type Cascade struct {
	sections []*Biquad
	mu       sync.RWMutex
}

// NewCascade builds a cascade from sections.
func NewCascade(sections ...*Biquad) *Cascade {
	return &Cascade{sections: sections}
}

// Len returns the number of sections.
func (c *Cascade) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sections)
}

// Order is the filter order, two per section.
func (c *Cascade) Order() int {
	return 2 * c.Len()
}

// ApplyBatch runs samples through every section in place.
func (c *Cascade) ApplyBatch(samples []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sections {
		s.ApplyBatch(samples)
	}
}

// Reset zeroes every section's state.
func (c *Cascade) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sections {
		s.Reset()
	}
}

// Prime puts every section in the steady state of a constant input v.
func (c *Cascade) Prime(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sections {
		v = s.Prime(v)
	}
}

// Response evaluates the cascade at w rad/sample.
func (c *Cascade) Response(w float64) complex128 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h := complex(1, 0)
	for _, s := range c.sections {
		h *= s.Response(w)
	}
	return h
}

// Gain returns |H| at frequency hz for sample rate fs.
func (c *Cascade) Gain(hz, fs float64) float64 {
	return cmplx.Abs(c.Response(2 * math.Pi * hz / fs))
}
