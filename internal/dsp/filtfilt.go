package dsp

import (
	"fmt"
	"slices"

	"github.com/vitalcam/vitalcam/internal/errors"
)

// ErrSignalTooShort is returned when a signal cannot cover the edge padding.
var ErrSignalTooShort = errors.NewStd("signal too short for zero-phase filtering")

// PadLen is the odd-extension length used by FiltFilt for a cascade:
// three times the length of the equivalent transfer function coefficients.
func PadLen(c *Cascade) int {
	return 3 * (2*c.Len() + 1)
}

// FiltFilt applies c forward and backward for zero phase distortion.
// Edges are handled by odd extension and the filter state is primed to the
// steady state of the first sample in each direction. x is not modified.
// The cascade's own state is reset afterwards.
func FiltFilt(c *Cascade, x []float64) ([]float64, error) {
	padlen := PadLen(c)
	n := len(x)
	if n <= padlen {
		return nil, fmt.Errorf("%w: need more than %d samples, got %d", ErrSignalTooShort, padlen, n)
	}
	defer c.Reset()

	ext := make([]float64, 0, n+2*padlen)
	for i := padlen; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := n - 2; i >= n-1-padlen; i-- {
		ext = append(ext, 2*x[n-1]-x[i])
	}

	c.Prime(ext[0])
	c.ApplyBatch(ext)

	slices.Reverse(ext)
	c.Prime(ext[0])
	c.ApplyBatch(ext)
	slices.Reverse(ext)

	return ext[padlen : padlen+n], nil
}
