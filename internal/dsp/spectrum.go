package dsp

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/vitalcam/vitalcam/internal/errors"
)

// ErrEmptySpectrum is returned when no spectral bin falls inside a band.
var ErrEmptySpectrum = errors.NewStd("no spectral bins in band")

// Spectrum is a one-sided power spectrum.
type Spectrum struct {
	Freqs []float64 // Hz
	Power []float64 // |X(f)|^2
}

// PowerSpectrum computes |rfft(x)|^2 after zero-padding x to nfft points.
// nfft below len(x) is raised to len(x).
func PowerSpectrum(x []float64, fs float64, nfft int) (Spectrum, error) {
	if len(x) == 0 || fs <= 0 {
		return Spectrum{}, fmt.Errorf("%w: %d samples at fs=%.3f", ErrEmptySpectrum, len(x), fs)
	}
	if nfft < len(x) {
		nfft = len(x)
	}

	padded := make([]float64, nfft)
	copy(padded, x)

	coeffs := fourier.NewFFT(nfft).Coefficients(nil, padded)
	s := Spectrum{
		Freqs: make([]float64, len(coeffs)),
		Power: make([]float64, len(coeffs)),
	}
	for k, c := range coeffs {
		s.Freqs[k] = float64(k) * fs / float64(nfft)
		s.Power[k] = real(c)*real(c) + imag(c)*imag(c)
	}
	return s, nil
}

// BandPeak describes the strongest bin within a band.
type BandPeak struct {
	Freq      float64 // Hz
	Power     float64
	MeanPower float64 // mean power over the band bins
	Bins      int
}

// Peak finds the maximum-power bin with low <= f <= high.
func (s Spectrum) Peak(low, high float64) (BandPeak, error) {
	var freqs, power []float64
	for i, f := range s.Freqs {
		if f >= low && f <= high {
			freqs = append(freqs, f)
			power = append(power, s.Power[i])
		}
	}
	if len(power) == 0 {
		return BandPeak{}, fmt.Errorf("%w: [%.3f, %.3f] Hz", ErrEmptySpectrum, low, high)
	}

	idx := floats.MaxIdx(power)
	return BandPeak{
		Freq:      freqs[idx],
		Power:     power[idx],
		MeanPower: Mean(power),
		Bins:      len(power),
	}, nil
}
