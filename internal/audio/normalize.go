package audio

import "fmt"

// Normalize standardizes each frequency bin of spec ([bins][frames]) in
// place with the per-bin mean and std.
func Normalize(spec [][]float32, mean, std []float32) error {
	if len(mean) != len(spec) || len(std) != len(spec) {
		return fmt.Errorf("audio: normalization constants have %d/%d bins, spectrogram has %d", len(mean), len(std), len(spec))
	}

	for b, row := range spec {
		s := std[b]
		if s == 0 {
			s = 1
		}

		for t := range row {
			row[t] = (row[t] - mean[b]) / s
		}
	}

	return nil
}

// Denormalize reverses Normalize in place.
func Denormalize(spec [][]float32, mean, std []float32) error {
	if len(mean) != len(spec) || len(std) != len(spec) {
		return fmt.Errorf("audio: normalization constants have %d/%d bins, spectrogram has %d", len(mean), len(std), len(spec))
	}

	for b, row := range spec {
		s := std[b]
		if s == 0 {
			s = 1
		}

		for t := range row {
			row[t] = row[t]*s + mean[b]
		}
	}

	return nil
}
