// Package tts turns text into audio with a trained Tacotron model and
// Griffin-Lim phase reconstruction.
package tts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/go-tacotron/internal/audio"
	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/dataset"
	"github.com/example/go-tacotron/internal/runtime/tensor"
	"github.com/example/go-tacotron/internal/tacotron"
	"github.com/example/go-tacotron/internal/text"
)

// Request selects what to synthesize. Speaker and Language are ignored by
// models that are not conditioned on them.
type Request struct {
	Text     string
	Speaker  int
	Language int
	// MaxChunkChars splits the text at sentence boundaries into chunks that
	// are decoded separately. 0 decodes the whole text at once.
	MaxChunkChars int
}

// Result is the concatenation of every decoded chunk.
type Result struct {
	Samples []float32
	Mel     [][]float32 // [num_mels][frames], denormalized
	Chunks  int
	// Truncated reports that at least one chunk hit the frame cap.
	Truncated bool
}

type Service struct {
	cfg       config.Config
	model     *tacotron.Model
	norm      *dataset.NormalizationConstants
	extractor *audio.Extractor
	speakers  []string
	languages []string
}

// NewService loads the checkpoint and, when spectrogram normalization is
// enabled, the normalization constants named by cfg.
func NewService(cfg config.Config, checkpoint string) (*Service, error) {
	model, step, err := tacotron.LoadModel(cfg, checkpoint)
	if err != nil {
		return nil, err
	}

	var norm *dataset.NormalizationConstants
	if cfg.Audio.NormalizeSpectrogram {
		if norm, err = dataset.LoadNormalization(cfg.Paths.NormalizationFile); err != nil {
			return nil, fmt.Errorf("tts: spectrogram normalization is enabled: %w", err)
		}
	}

	slog.Debug("tts service ready", "checkpoint", checkpoint, "step", step)

	return NewServiceFromModel(cfg, model, norm)
}

// NewServiceFromModel wraps an already built model. norm may be nil when
// spectrograms are not normalized.
func NewServiceFromModel(cfg config.Config, model *tacotron.Model, norm *dataset.NormalizationConstants) (*Service, error) {
	extractor, err := audio.NewExtractor(cfg.Audio)
	if err != nil {
		return nil, err
	}

	speakers, languages, err := tacotron.CheckpointVocabulary(model.Vars().Metadata())
	if err != nil {
		return nil, err
	}

	if languages == nil {
		languages = cfg.Dataset.Languages
	}

	return &Service{
		cfg:       cfg,
		model:     model,
		norm:      norm,
		extractor: extractor,
		speakers:  speakers,
		languages: languages,
	}, nil
}

// Vocabulary returns the speaker and language names indexed by the ids a
// Request takes. Checkpoints without a recorded vocabulary report no
// speakers and the configured dataset languages.
func (s *Service) Vocabulary() (speakers, languages []string) {
	return append([]string(nil), s.speakers...), append([]string(nil), s.languages...)
}

// SampleRate returns the rate of synthesized samples.
func (s *Service) SampleRate() int { return s.cfg.Audio.SampleRate }

// Synthesize decodes every sentence chunk separately and concatenates the
// reconstructed audio and mel frames. ctx is checked between chunks.
func (s *Service) Synthesize(ctx context.Context, req Request) (*Result, error) {
	normalized, err := text.Normalize(req.Text)
	if err != nil {
		return nil, err
	}

	res := &Result{Mel: make([][]float32, s.cfg.Audio.NumMels)}

	for i, chunk := range text.ChunkBySentence(normalized, req.MaxChunkChars) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := s.synthesizeChunk(res, chunk, req); err != nil {
			return nil, fmt.Errorf("tts: chunk %d: %w", i, err)
		}
	}

	return res, nil
}

func (s *Service) synthesizeChunk(res *Result, chunk string, req Request) error {
	ids := dataset.EncodeText(s.cfg.Text, chunk)

	out, err := s.model.Inference(ids, req.Speaker, req.Language)
	if err != nil {
		return err
	}

	isMel := !out.Linear
	spec := Rows(out.Spectrogram)
	mel := Rows(out.Mel)

	if s.norm != nil {
		mean, std := s.norm.For(isMel)
		if err := audio.Denormalize(spec, mean, std); err != nil {
			return err
		}

		if err := audio.Denormalize(mel, s.norm.MelMean, s.norm.MelStd); err != nil {
			return err
		}
	}

	samples, err := s.extractor.GriffinLim(spec, isMel, s.cfg.Audio.GriffinLimIters, s.cfg.Audio.GriffinLimPower)
	if err != nil {
		return err
	}

	slog.Debug("chunk synthesized",
		"symbols", len(ids),
		"frames", out.Mel.Dim(1),
		"samples", len(samples),
		"truncated", out.Truncated,
	)

	res.Samples = append(res.Samples, samples...)
	for b := range res.Mel {
		res.Mel[b] = append(res.Mel[b], mel[b]...)
	}

	res.Chunks++
	res.Truncated = res.Truncated || out.Truncated

	return nil
}

// SynthesizeWAV is Synthesize followed by 16-bit PCM WAV encoding.
func (s *Service) SynthesizeWAV(ctx context.Context, req Request) ([]byte, error) {
	res, err := s.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}

	return audio.EncodeWAV(res.Samples, s.SampleRate())
}

// Rows copies a [bins, frames] tensor into the [bins][frames] layout used
// by the audio package.
func Rows(t *tensor.Tensor) [][]float32 {
	out := make([][]float32, t.Dim(0))
	for b := range out {
		out[b] = append([]float32(nil), t.Row(b)...)
	}

	return out
}
