package dsp

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// PopStdDev is the population standard deviation (divides by n).
func PopStdDev(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Sqrt(stat.PopVariance(x, nil))
}

// PeakToPeak returns max(x) - min(x).
func PeakToPeak(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Max(x) - floats.Min(x)
}

// RMS returns the root mean square.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(x, x) / float64(len(x)))
}

// RemoveMean returns x minus its mean.
func RemoveMean(x []float64) []float64 {
	out := slices.Clone(x)
	floats.AddConst(-Mean(x), out)
	return out
}

// Detrend removes the least-squares line fitted against the sample index.
func Detrend(x []float64) []float64 {
	out := slices.Clone(x)
	if len(x) < 2 {
		floats.AddConst(-Mean(x), out)
		return out
	}

	idx := make([]float64, len(x))
	floats.Span(idx, 0, float64(len(x)-1))
	alpha, beta := stat.LinearRegression(idx, x, nil, false)
	for i := range out {
		out[i] -= alpha + beta*idx[i]
	}
	return out
}

// MovingAverage convolves x with a box of the given width and returns a
// result the length of x, centered, with zeros assumed outside x.
func MovingAverage(x []float64, window int) []float64 {
	n := len(x)
	if window <= 1 || n == 0 {
		return slices.Clone(x)
	}

	out := make([]float64, n)
	offset := (window - 1) / 2
	inv := 1 / float64(window)
	for i := range n {
		var sum float64
		for k := range window {
			j := i + offset - k
			if j >= 0 && j < n {
				sum += x[j]
			}
		}
		out[i] = sum * inv
	}
	return out
}

// Diff returns the first differences x[i+1]-x[i].
func Diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	floats.SubTo(out, x[1:], x[:len(x)-1])
	return out
}

// Median returns the median, averaging the middle pair for even lengths.
func Median(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
