package audio

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// sparseFilter stores only the non-zero range of a triangular filter.
type sparseFilter struct {
	start  int
	coeffs []float64
}

// MelFilterbank maps linear-frequency magnitudes onto triangular mel bands.
type MelFilterbank struct {
	numBins int
	filters []sparseFilter
	// binWeight[k] is the total filter weight covering linear bin k; used to
	// spread mel energies back over linear bins.
	binWeight []float64
}

// NewMelFilterbank builds numMels HTK-scale triangular filters spanning
// lowFreq..highFreq for an fftSize-point transform.
func NewMelFilterbank(numMels, fftSize, sampleRate int, lowFreq, highFreq float64) *MelFilterbank {
	nBins := fftSize/2 + 1
	lowMel := hzToMel(lowFreq)
	highMel := hzToMel(highFreq)

	// numMels+2 equally spaced points on the mel scale, as fractional bins.
	points := make([]float64, numMels+2)
	step := (highMel - lowMel) / float64(numMels+1)

	for i := range points {
		points[i] = melToHz(lowMel+float64(i)*step) * float64(fftSize) / float64(sampleRate)
	}

	fb := &MelFilterbank{
		numBins:   nBins,
		filters:   make([]sparseFilter, numMels),
		binWeight: make([]float64, nBins),
	}

	for m := range numMels {
		left, center, right := points[m], points[m+1], points[m+2]

		first := int(math.Ceil(left))
		last := min(int(math.Floor(right)), nBins-1)

		var coeffs []float64

		start := -1

		for k := max(first, 0); k <= last; k++ {
			x := float64(k)

			var w float64

			switch {
			case x < center && center > left:
				w = (x - left) / (center - left)
			case x >= center && right > center:
				w = (right - x) / (right - center)
			}

			if w <= 0 {
				if start >= 0 {
					coeffs = append(coeffs, 0)
				}

				continue
			}

			if start < 0 {
				start = k
			}

			coeffs = append(coeffs, w)
			fb.binWeight[k] += w
		}

		if start < 0 {
			// Band narrower than one bin: use the nearest bin so no band is
			// silent.
			start = min(max(int(math.Round(center)), 0), nBins-1)
			coeffs = []float64{1}
			fb.binWeight[start]++
		}

		fb.filters[m] = sparseFilter{start: start, coeffs: coeffs}
	}

	return fb
}

// NumMels returns the number of mel bands.
func (fb *MelFilterbank) NumMels() int { return len(fb.filters) }

// Apply projects one frame of linear magnitudes onto the mel bands.
func (fb *MelFilterbank) Apply(magnitudes, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(fb.filters))
	}

	for i, f := range fb.filters {
		dst[i] = floats.Dot(f.coeffs, magnitudes[f.start:f.start+len(f.coeffs)])
	}

	return dst
}

// Invert spreads mel magnitudes back over linear bins using the normalized
// transpose of the filterbank. It is an approximation good enough to drive
// Griffin-Lim from a mel-only prediction.
func (fb *MelFilterbank) Invert(mel, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, fb.numBins)
	}

	clear(dst)

	for i, f := range fb.filters {
		floats.AddScaled(dst[f.start:f.start+len(f.coeffs)], mel[i], f.coeffs)
	}

	for k, w := range fb.binWeight {
		if w > 0 {
			dst[k] /= w
		}
	}

	return dst
}

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10, mel/2595.0) - 1.0)
}
