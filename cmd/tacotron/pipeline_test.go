package main

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-tacotron/internal/audio"
	"github.com/example/go-tacotron/internal/safetensors"
	"github.com/example/go-tacotron/internal/tacotron"
	"github.com/example/go-tacotron/internal/testutil"
)

const testSampleRate = 8000

// writeTinyConfig writes a config file for a model small enough to run the
// whole command pipeline in a test.
func writeTinyConfig(t *testing.T, root string, normalize bool) string {
	t.Helper()

	cfg := fmt.Sprintf(`log_level: error
paths:
  dataset_root: %[1]s
  train_file: train.txt
  val_file: train.txt
  checkpoint: %[1]s/ckpt/model.safetensors
  normalization_file: %[1]s/normalization.safetensors
dataset:
  languages: [en-us]
  workers: 2
audio:
  sample_rate: %[2]d
  num_fft: 64
  num_mels: 4
  stft_window_ms: 8
  stft_shift_ms: 4
  normalize_spectrogram: %[3]t
  griffin_lim_iters: 2
model:
  embedding_dimension: 6
  encoder_dimension: 8
  encoder_blocks: 1
  encoder_kernel_size: 3
  prenet_dimension: 6
  attention_dimension: 5
  attention_kernel_size: 3
  attention_location_dimension: 2
  decoder_dimension: 7
  postnet_dimension: 6
  postnet_blocks: 2
  postnet_kernel_size: 3
  stop_frames: 1
  max_output_length: 12
training:
  batch_size: 2
`, root, testSampleRate, normalize)

	path := filepath.Join(root, "tacotron.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer

	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)

	if err := root.Execute(); err != nil {
		t.Fatalf("tacotron %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}

	return out.String()
}

func writeTone(t *testing.T, path string, freq float64, n int) {
	t.Helper()

	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate))
	}

	data, err := audio.EncodeWAV(samples, testSampleRate)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestInitThenSynth(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeTinyConfig(t, root, false)

	run(t, "--config", cfgPath, "init")

	wavPath := filepath.Join(root, "out.wav")
	melPath := filepath.Join(root, "out.mel.safetensors")

	run(t, "--config", cfgPath, "synth", "--text", "Hi there. Bye now.", "--max-chunk-chars", "8", "--out", wavPath, "--mel-out", melPath)

	data, err := os.ReadFile(wavPath)
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertValidWAV(t, data, testSampleRate)

	mel, err := safetensors.LoadFirstTensor(melPath)
	if err != nil {
		t.Fatalf("load mel: %v", err)
	}

	if len(mel.Shape) != 2 || mel.Shape[0] != 4 {
		t.Fatalf("mel shape %v, want [4 frames]", mel.Shape)
	}

	report := run(t, "--config", cfgPath, "bench", "--text", "Hi.", "--runs", "2", "--format", "json")
	if !strings.Contains(report, "\"mean_rtf\"") {
		t.Fatalf("bench report lacks mean_rtf:\n%s", report)
	}

	// Two chunks, each between stop_frames+1 and max_output_length frames.
	if frames := mel.Shape[1]; frames < 4 || frames > 24 {
		t.Fatalf("mel has %d frames", frames)
	}
}

func TestPrepareIndexStatsEvaluate(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeTinyConfig(t, root, true)

	writeTone(t, filepath.Join(root, "a.wav"), 440, 800)
	writeTone(t, filepath.Join(root, "b.wav"), 660, 1200)

	sources := "amy|en-us|a.wav|Hello.\nbob|en-us|b.wav|Good day!\n"
	sourcesPath := filepath.Join(root, "sources.txt")

	if err := os.WriteFile(sourcesPath, []byte(sources), 0o644); err != nil {
		t.Fatal(err)
	}

	run(t, "--config", cfgPath, "prepare", "--sources", sourcesPath)

	if _, err := os.Stat(filepath.Join(root, "spectrograms", "000001.safetensors")); err != nil {
		t.Fatalf("mel cache missing: %v", err)
	}

	summary := run(t, "--config", cfgPath, "index")
	if !strings.Contains(summary, "train: 2 items, 2 speakers [amy bob], 1 languages [en-us]") ||
		!strings.Contains(summary, "vocabulary: speakers [amy bob], languages [en-us]") {
		t.Fatalf("unexpected summary:\n%s", summary)
	}

	run(t, "--config", cfgPath, "stats")

	if _, err := os.Stat(filepath.Join(root, "normalization.safetensors")); err != nil {
		t.Fatalf("normalization file missing: %v", err)
	}

	run(t, "--config", cfgPath, "init")

	meta, err := tacotron.ReadCheckpointMetadata(filepath.Join(root, "ckpt", "model.safetensors"))
	if err != nil {
		t.Fatalf("read checkpoint metadata: %v", err)
	}

	if meta[tacotron.MetaSpeakers] != `["amy","bob"]` || meta[tacotron.MetaLanguages] != `["en-us"]` {
		t.Fatalf("checkpoint vocabulary = %q %q", meta[tacotron.MetaSpeakers], meta[tacotron.MetaLanguages])
	}

	checks := run(t, "--config", cfgPath, "doctor")
	for _, want := range []string{"spectrogram cache", "normalization: 4 mel bins", "checkpoint: format 1.0"} {
		if !strings.Contains(checks, want) {
			t.Fatalf("doctor output lacks %q:\n%s", want, checks)
		}
	}

	report := run(t, "--config", cfgPath, "evaluate", "--set", "val")
	for _, term := range []string{"mel_pre", "mel_pos", "stop_token", "guided_att"} {
		if !strings.Contains(report, term) {
			t.Fatalf("report lacks %s:\n%s", term, report)
		}
	}

	if !strings.Contains(report, "1 batches") {
		t.Fatalf("expected one batch:\n%s", report)
	}
}
