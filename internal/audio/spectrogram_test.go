package audio

import (
	"math"
	"testing"

	"github.com/example/go-tacotron/internal/config"
)

func testAudioConfig() config.AudioConfig {
	return config.AudioConfig{
		SampleRate:     8000,
		NumFFT:         256,
		NumMels:        20,
		STFTWindowMs:   32,
		STFTShiftMs:    8,
		UsePreemphasis: false,
	}
}

func sine(freq float64, rate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}

	return out
}

func TestExtractorShapes(t *testing.T) {
	e, err := NewExtractor(testAudioConfig())
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	samples := sine(1000, 8000, 8000)

	lin, err := e.Spectrogram(samples, false)
	if err != nil {
		t.Fatalf("Spectrogram(linear): %v", err)
	}

	if len(lin) != 129 {
		t.Fatalf("linear bins = %d, want 129", len(lin))
	}

	wantFrames := 1 + len(samples)/e.Hop()
	if len(lin[0]) != wantFrames {
		t.Fatalf("frames = %d, want %d", len(lin[0]), wantFrames)
	}

	mel, err := e.Spectrogram(samples, true)
	if err != nil {
		t.Fatalf("Spectrogram(mel): %v", err)
	}

	if len(mel) != 20 || len(mel[0]) != wantFrames {
		t.Fatalf("mel shape = [%d][%d], want [20][%d]", len(mel), len(mel[0]), wantFrames)
	}
}

func TestExtractorPeakAtToneBin(t *testing.T) {
	e, err := NewExtractor(testAudioConfig())
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	lin, err := e.Spectrogram(sine(1000, 8000, 4000), false)
	if err != nil {
		t.Fatalf("Spectrogram: %v", err)
	}

	// 1 kHz at 8 kHz with a 256-point FFT lands on bin 32.
	mid := len(lin[0]) / 2
	best := 0

	for b := range lin {
		if lin[b][mid] > lin[best][mid] {
			best = b
		}
	}

	if best != 32 {
		t.Fatalf("peak bin = %d, want 32", best)
	}
}

func TestMelFilterbankCoversEveryBand(t *testing.T) {
	fb := NewMelFilterbank(40, 256, 8000, 0, 4000)

	flat := make([]float64, 129)
	for i := range flat {
		flat[i] = 1
	}

	energies := fb.Apply(flat, nil)
	for m, v := range energies {
		if v <= 0 {
			t.Errorf("band %d has zero response", m)
		}
	}

	back := fb.Invert(energies, nil)
	if len(back) != 129 {
		t.Fatalf("Invert length = %d, want 129", len(back))
	}
}

func TestGriffinLimProducesSignal(t *testing.T) {
	e, err := NewExtractor(testAudioConfig())
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	samples := sine(500, 8000, 2000)

	lin, err := e.Spectrogram(samples, false)
	if err != nil {
		t.Fatalf("Spectrogram: %v", err)
	}

	wav, err := e.GriffinLim(lin, false, 4, 1)
	if err != nil {
		t.Fatalf("GriffinLim: %v", err)
	}

	if len(wav) != (len(lin[0])-1)*e.Hop() {
		t.Fatalf("len = %d, want %d", len(wav), (len(lin[0])-1)*e.Hop())
	}

	var peak float64
	for _, s := range wav {
		peak = math.Max(peak, math.Abs(float64(s)))
	}

	if math.Abs(peak-1) > 1e-5 {
		t.Fatalf("peak = %v, want 1 after normalization", peak)
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	spec := [][]float32{{1, 3}, {10, 30}}
	mean := []float32{2, 20}
	std := []float32{1, 10}

	if err := Normalize(spec, mean, std); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if spec[0][0] != -1 || spec[1][1] != 1 {
		t.Fatalf("normalized = %v", spec)
	}

	if err := Denormalize(spec, mean, std); err != nil {
		t.Fatalf("Denormalize: %v", err)
	}

	if spec[0][1] != 3 || spec[1][0] != 10 {
		t.Fatalf("denormalized = %v", spec)
	}

	if err := Normalize(spec, mean[:1], std); err == nil {
		t.Fatal("expected bin mismatch error")
	}
}
