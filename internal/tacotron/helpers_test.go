package tacotron

import (
	"math"
	"testing"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/dataset"
	"github.com/example/go-tacotron/internal/nn"
	"github.com/example/go-tacotron/internal/runtime/tensor"
)

// tinyConfig shrinks every dimension so a full model runs in milliseconds.
func tinyConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Dataset.Languages = []string{"en-us", "de"}
	cfg.Audio.NumMels = 4
	cfg.Audio.NumFFT = 8

	mc := &cfg.Model
	mc.EmbeddingDimension = 6
	mc.EncoderDimension = 8
	mc.EncoderBlocks = 2
	mc.EncoderKernelSize = 3
	mc.InputLanguageEmbedding = 2
	mc.PrenetDimension = 6
	mc.AttentionDimension = 5
	mc.AttentionKernelSize = 3
	mc.AttentionLocationDimension = 2
	mc.DecoderDimension = 7
	mc.PostnetDimension = 6
	mc.PostnetBlocks = 3
	mc.PostnetKernelSize = 3
	mc.SpeakerEmbeddingDimension = 3
	mc.LanguageEmbeddingDimension = 2
	mc.ResidualLatentDimension = 3
	mc.ReversalClassifierDim = 5
	mc.StopFrames = 2
	mc.MaxOutputLength = 30

	return cfg
}

func newTinyModel(t *testing.T, cfg config.Config) *Model {
	t.Helper()

	m, err := New(cfg, nn.NewVarStore(11))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return m
}

func ramp(bins, frames int, offset float32) [][]float32 {
	spec := make([][]float32, bins)
	for b := range spec {
		spec[b] = make([]float32, frames)
		for f := range spec[b] {
			spec[b][f] = offset + float32(b)*0.1 + float32(f)*0.01
		}
	}

	return spec
}

// tinyBatch collates a 5-symbol/6-frame and a 3-symbol/4-frame example.
func tinyBatch(t *testing.T, cfg config.Config) *dataset.Batch {
	t.Helper()

	linear := cfg.Audio.NumFFT/2 + 1
	examples := []dataset.Example{
		{Speaker: 0, Language: 1, Symbols: []int{5, 6, 7, 1}, Mel: ramp(cfg.Audio.NumMels, 4, 0.5), Linear: ramp(linear, 4, 0.5)},
		{Speaker: 1, Language: 0, Symbols: []int{3, 4, 5, 6, 7, 8, 1}, Mel: ramp(cfg.Audio.NumMels, 6, 0), Linear: ramp(linear, 6, 0)},
	}

	b, err := dataset.Collate(examples, CollateOptions(cfg))
	if err != nil {
		t.Fatalf("Collate: %v", err)
	}

	return b
}

func shapeIs(x *tensor.Tensor, want ...int64) bool {
	got := x.Shape()
	if len(got) != len(want) {
		return false
	}

	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}

	return true
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }
