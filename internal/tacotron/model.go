package tacotron

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/dataset"
	"github.com/example/go-tacotron/internal/nn"
	"github.com/example/go-tacotron/internal/runtime/tensor"
)

// maskedStopLogit is written to stop logits past a target's length so that
// padding reads as a certain stop.
const maskedStopLogit = 1000

// Model is the full Tacotron network: symbol embedding, encoder, optional
// adversarial language classifier and residual encoder, attention decoder
// and postnet.
type Model struct {
	cfg config.Config

	embedding  *nn.Embedding
	encoder    Encoder
	classifier *ReversalClassifier
	residual   *ResidualEncoder
	decoder    *Decoder
	postnet    *Postnet

	vars *nn.VarStore

	mu       sync.Mutex
	rng      *rand.Rand
	training bool
}

// Output is the result of a teacher-forced forward pass. Spectrograms are
// zeroed past each example's frame length.
type Output struct {
	Post           *tensor.Tensor // [B, num_mels, F] or [B, linear_bins, F]
	Pre            *tensor.Tensor // [B, num_mels, F]
	StopLogits     *tensor.Tensor // [B, F]
	Alignments     *tensor.Tensor // [B, F, T]
	LanguageLogits *tensor.Tensor // [B, T, L] or nil
	LatentMean     *tensor.Tensor // [B, Z] or nil
	LatentLogVar   *tensor.Tensor // [B, Z] or nil
}

// InferenceOutput is a synthesized utterance.
type InferenceOutput struct {
	Spectrogram *tensor.Tensor // [bins, F]; linear bins when Linear is set
	Mel         *tensor.Tensor // [num_mels, F] before the postnet
	Alignment   *tensor.Tensor // [F, T]
	StopLogits  []float32
	Linear      bool
	Truncated   bool
}

// NumSymbols returns the size of the input vocabulary selected by cfg.
func NumSymbols(cfg config.TextConfig) int {
	chars, phonemes := dataset.Symbols(cfg)
	if cfg.UsePhonemes {
		return phonemes.Len()
	}

	return chars.Len()
}

// CollateOptions returns the batch layout the model expects.
func CollateOptions(cfg config.Config) dataset.CollateOptions {
	mc := cfg.Model

	return dataset.CollateOptions{
		MultiSpeaker:  mc.MultiSpeaker,
		MultiLanguage: mc.MultiLanguage || mc.ReversalClassifier || mc.EncoderType != config.EncoderSimple,
		PredictLinear: mc.PredictLinear,
	}
}

// New builds a model whose parameters come from vars: freshly initialized
// for a new store, or read from the checkpoint it was opened on.
func New(cfg config.Config, vars *nn.VarStore) (*Model, error) {
	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}

	mc := cfg.Model
	root := vars.Root()
	m := &Model{
		cfg:  cfg,
		vars: vars,
		rng:  rand.New(rand.NewSource(cfg.Training.Seed)),
	}

	var err error

	if !mc.EncoderDisabled {
		if m.embedding, err = nn.NewEmbedding(root.Sub("embedding"), NumSymbols(cfg.Text), mc.EmbeddingDimension); err != nil {
			return nil, err
		}

		if m.encoder, err = NewEncoder(root.Sub("encoder"), cfg); err != nil {
			return nil, err
		}
	}

	if mc.ReversalClassifier {
		if m.classifier, err = NewReversalClassifier(root.Sub("reversal_classifier"), mc, mc.EncoderDimension, len(cfg.Dataset.Languages)); err != nil {
			return nil, err
		}
	}

	encodedDim := mc.EncoderDimension

	if mc.ResidualEncoder {
		if m.residual, err = NewResidualEncoder(root.Sub("residual_encoder"), cfg.Audio.NumMels, mc.ResidualLatentDimension); err != nil {
			return nil, err
		}

		encodedDim += mc.ResidualLatentDimension
	}

	if m.decoder, err = NewDecoder(root.Sub("decoder"), cfg, encodedDim); err != nil {
		return nil, err
	}

	if mc.PredictLinear {
		m.postnet, err = NewLinearPostnet(root.Sub("postnet"), mc, cfg.Audio.NumMels, cfg.Audio.NumFFT/2+1)
	} else {
		m.postnet, err = NewPostnet(root.Sub("postnet"), mc, cfg.Audio.NumMels)
	}

	if err != nil {
		return nil, err
	}

	slog.Debug("tacotron model built",
		"encoder", mc.EncoderType,
		"attention", mc.AttentionType,
		"parameters", vars.NumParameters(),
	)

	return m, nil
}

// Config returns the validated configuration the model was built with.
func (m *Model) Config() config.Config { return m.cfg }

// Vars returns the parameter store.
func (m *Model) Vars() *nn.VarStore { return m.vars }

// SetTraining switches dropout, zoneout and latent sampling on or off.
// The prenet drops out in both modes.
func (m *Model) SetTraining(training bool) {
	m.mu.Lock()
	m.training = training
	m.mu.Unlock()
}

func (m *Model) encode(symbols [][]int, lengths, languages []int, mode nn.Mode) (*tensor.Tensor, error) {
	if len(symbols) == 0 {
		return nil, errors.New("tacotron: no input symbols")
	}

	if m.encoder == nil {
		return tensor.Zeros([]int64{int64(len(symbols)), int64(len(symbols[0])), int64(m.cfg.Model.EncoderDimension)})
	}

	embedded, err := m.embedding.LookupBatch(symbols)
	if err != nil {
		return nil, err
	}

	return m.encoder.Encode(embedded, lengths, languages, mode)
}

// Forward runs the network on a collated batch with the given teacher
// forcing ratio.
func (m *Model) Forward(batch *dataset.Batch, ratio float64) (*Output, error) {
	if batch == nil || batch.Size() == 0 {
		return nil, errors.New("tacotron: empty batch")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mode := nn.Mode{Training: m.training, RNG: m.rng}

	encoded, err := m.encode(batch.Utterances, batch.UtteranceLengths, batch.Languages, mode)
	if err != nil {
		return nil, err
	}

	out := &Output{}

	if m.classifier != nil {
		if out.LanguageLogits, err = m.classifier.Forward(encoded); err != nil {
			return nil, fmt.Errorf("tacotron: reversal classifier: %w", err)
		}
	}

	if m.residual != nil {
		var latent *tensor.Tensor

		latent, out.LatentMean, out.LatentLogVar, err = m.residual.Encode(batch.Mel, batch.FrameLengths, mode)
		if err != nil {
			return nil, err
		}

		if encoded, err = appendPerStep(encoded, latent); err != nil {
			return nil, err
		}
	}

	decoded, err := m.decoder.Forward(encoded, batch.UtteranceLengths, batch.Mel, ratio, batch.Speakers, batch.Languages, mode)
	if err != nil {
		return nil, err
	}

	post, err := m.postnet.Forward(decoded.Mel, mode)
	if err != nil {
		return nil, fmt.Errorf("tacotron: postnet: %w", err)
	}

	frames := decoded.StopLogits.Dim(1)
	stops := decoded.StopLogits.RawData()

	for b, n := range batch.FrameLengths {
		for f := n; f < frames; f++ {
			stops[b*frames+f] = maskedStopLogit
		}
	}

	maskFrames(decoded.Mel, batch.FrameLengths)
	maskFrames(post, batch.FrameLengths)
	maskAlignmentFrames(decoded.Alignments, batch.FrameLengths)

	out.Pre = decoded.Mel
	out.Post = post
	out.StopLogits = decoded.StopLogits
	out.Alignments = decoded.Alignments

	return out, nil
}

// Inference synthesizes one utterance from symbol ids. speaker and
// language are ignored when the model is not conditioned on them.
func (m *Model) Inference(symbols []int, speaker, language int) (*InferenceOutput, error) {
	if len(symbols) == 0 {
		return nil, errors.New("tacotron: no input symbols")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mode := nn.Mode{Training: false, RNG: m.rng}

	encoded, err := m.encode([][]int{symbols}, []int{len(symbols)}, []int{language}, mode)
	if err != nil {
		return nil, err
	}

	if m.residual != nil {
		if encoded, err = appendPerStep(encoded, m.residual.Prior(1)); err != nil {
			return nil, err
		}
	}

	decoded, err := m.decoder.InferenceDetailed(encoded, speaker, language, mode)
	if err != nil {
		return nil, err
	}

	post, err := m.postnet.Forward(decoded.Mel, mode)
	if err != nil {
		return nil, fmt.Errorf("tacotron: postnet: %w", err)
	}

	frames := decoded.Mel.Dim(2)

	spec, err := post.Reshape([]int64{int64(post.Dim(1)), int64(frames)})
	if err != nil {
		return nil, err
	}

	mel, err := decoded.Mel.Reshape([]int64{int64(decoded.Mel.Dim(1)), int64(frames)})
	if err != nil {
		return nil, err
	}

	align, err := decoded.Alignments.Reshape([]int64{int64(frames), int64(len(symbols))})
	if err != nil {
		return nil, err
	}

	return &InferenceOutput{
		Spectrogram: spec,
		Mel:         mel,
		Alignment:   align,
		StopLogits:  decoded.StopLogits.Data(),
		Linear:      m.cfg.Model.PredictLinear,
		Truncated:   decoded.Truncated,
	}, nil
}
