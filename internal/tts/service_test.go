package tts

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/dataset"
	"github.com/example/go-tacotron/internal/nn"
	"github.com/example/go-tacotron/internal/runtime/tensor"
	"github.com/example/go-tacotron/internal/tacotron"
	"github.com/example/go-tacotron/internal/testutil"
	"github.com/example/go-tacotron/internal/text"
)

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Audio.SampleRate = 8000
	cfg.Audio.NumFFT = 64
	cfg.Audio.NumMels = 4
	cfg.Audio.STFTWindowMs = 8
	cfg.Audio.STFTShiftMs = 4
	cfg.Audio.GriffinLimIters = 2

	mc := &cfg.Model
	mc.EmbeddingDimension = 6
	mc.EncoderDimension = 8
	mc.EncoderBlocks = 1
	mc.EncoderKernelSize = 3
	mc.PrenetDimension = 6
	mc.AttentionDimension = 5
	mc.AttentionKernelSize = 3
	mc.AttentionLocationDimension = 2
	mc.DecoderDimension = 7
	mc.PostnetDimension = 6
	mc.PostnetBlocks = 2
	mc.PostnetKernelSize = 3
	mc.StopFrames = 1
	mc.MaxOutputLength = 10

	return cfg
}

func newTestService(t *testing.T, cfg config.Config, norm *dataset.NormalizationConstants) *Service {
	t.Helper()

	model, err := tacotron.New(cfg, nn.NewVarStore(7))
	if err != nil {
		t.Fatalf("tacotron.New: %v", err)
	}

	svc, err := NewServiceFromModel(cfg, model, norm)
	if err != nil {
		t.Fatalf("NewServiceFromModel: %v", err)
	}

	return svc
}

func TestSynthesizeConcatenatesChunks(t *testing.T) {
	cfg := testConfig()
	svc := newTestService(t, cfg, nil)

	res, err := svc.Synthesize(context.Background(), Request{Text: "One. Two. Three.", MaxChunkChars: 5})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if res.Chunks != 3 {
		t.Fatalf("chunks = %d, want 3", res.Chunks)
	}

	if len(res.Mel) != 4 {
		t.Fatalf("mel bins = %d, want 4", len(res.Mel))
	}

	frames := len(res.Mel[0])
	if frames < 3*(cfg.Model.StopFrames+1) || frames > 3*cfg.Model.MaxOutputLength {
		t.Fatalf("mel frames = %d", frames)
	}

	if len(res.Samples) == 0 {
		t.Fatal("no samples")
	}
}

func TestSynthesizeDenormalizesMel(t *testing.T) {
	cfg := testConfig()
	cfg.Audio.NormalizeSpectrogram = true

	norm := &dataset.NormalizationConstants{
		MelMean: []float32{100, 100, 100, 100},
		MelStd:  []float32{0, 0, 0, 0},
	}

	plain, err := newTestService(t, cfg, nil).Synthesize(context.Background(), Request{Text: "Hi."})
	if err != nil {
		t.Fatal(err)
	}

	shifted, err := newTestService(t, cfg, norm).Synthesize(context.Background(), Request{Text: "Hi."})
	if err != nil {
		t.Fatal(err)
	}

	// Zero std is treated as one, so denormalization only adds the mean.
	for b := range plain.Mel {
		for f := range plain.Mel[b] {
			if got, want := shifted.Mel[b][f], plain.Mel[b][f]+100; got != want {
				t.Fatalf("mel[%d][%d] = %v, want %v", b, f, got, want)
			}
		}
	}
}

func TestSynthesizeErrors(t *testing.T) {
	svc := newTestService(t, testConfig(), nil)

	if _, err := svc.Synthesize(context.Background(), Request{Text: "  "}); !errors.Is(err, text.ErrEmptyText) {
		t.Fatalf("empty text error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Synthesize(ctx, Request{Text: "Hello."}); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled error = %v", err)
	}
}

func TestSynthesizeWAV(t *testing.T) {
	svc := newTestService(t, testConfig(), nil)

	wav, err := svc.SynthesizeWAV(context.Background(), Request{Text: "Hello."})
	if err != nil {
		t.Fatalf("SynthesizeWAV: %v", err)
	}

	testutil.AssertValidWAV(t, wav, 8000)

	// One chunk decodes between stop_frames+1 and max_output_length frames of
	// 4 ms each.
	testutil.AssertWAVDurationApprox(t, wav, 8000, 0.004, 0.1)
}

func TestRowsCopies(t *testing.T) {
	x := tensor.MustZeros(2, 3)
	x.Set(5, 1, 2)

	r := Rows(x)
	if len(r) != 2 || len(r[1]) != 3 || r[1][2] != 5 {
		t.Fatalf("rows = %v", r)
	}

	r[0][0] = 9
	if x.At(0, 0) != 0 {
		t.Fatal("rows must not alias the tensor")
	}
}

func TestVocabularyFromCheckpoint(t *testing.T) {
	cfg := testConfig()
	cfg.Dataset.Languages = []string{"en-us", "de"}

	svc := newTestService(t, cfg, nil)

	speakers, languages := svc.Vocabulary()
	if speakers != nil || !slices.Equal(languages, cfg.Dataset.Languages) {
		t.Fatalf("fresh model vocabulary = %v %v, want configured languages", speakers, languages)
	}

	model, err := tacotron.New(cfg, nn.NewVarStore(7))
	if err != nil {
		t.Fatalf("tacotron.New: %v", err)
	}

	meta, err := tacotron.VocabularyMetadata([]string{"bob", "anna"}, []string{"de", "en-us"})
	if err != nil {
		t.Fatalf("VocabularyMetadata: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.safetensors")
	if err := model.SaveCheckpoint(path, 3, meta); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	loaded, _, err := tacotron.LoadModel(cfg, path)
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}

	svc, err = NewServiceFromModel(cfg, loaded, nil)
	if err != nil {
		t.Fatalf("NewServiceFromModel: %v", err)
	}

	speakers, languages = svc.Vocabulary()
	if !slices.Equal(speakers, []string{"bob", "anna"}) || !slices.Equal(languages, []string{"de", "en-us"}) {
		t.Fatalf("vocabulary = %v %v, want checkpoint order", speakers, languages)
	}
}
