package audio

import "math"

// Preemphasis applies the first-order high-pass y[n] = x[n] - coef*x[n-1].
func Preemphasis(samples []float32, coef float64) []float32 {
	out := make([]float32, len(samples))
	prev := float32(0)
	c := float32(coef)

	for i, s := range samples {
		out[i] = s - c*prev
		prev = s
	}

	return out
}

// Deemphasis inverts Preemphasis: y[n] = x[n] + coef*y[n-1].
func Deemphasis(samples []float32, coef float64) []float32 {
	out := make([]float32, len(samples))
	prev := float32(0)
	c := float32(coef)

	for i, s := range samples {
		prev = s + c*prev
		out[i] = prev
	}

	return out
}

// PeakNormalize scales samples so the peak amplitude reaches 1.0. Silent
// input is returned unchanged.
func PeakNormalize(samples []float32) []float32 {
	var peak float64
	for _, s := range samples {
		peak = math.Max(peak, math.Abs(float64(s)))
	}

	if peak == 0 {
		return samples
	}

	out := make([]float32, len(samples))
	scale := float32(1 / peak)

	for i, s := range samples {
		out[i] = s * scale
	}

	return out
}
