package tacotron

import (
	"errors"
	"fmt"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/nn"
	"github.com/example/go-tacotron/internal/runtime/tensor"
)

// Encoder turns embedded symbols [B, T, E] into encoder states [B, T, D].
// The set of implementations is closed; see NewEncoder.
type Encoder interface {
	Encode(embedded *tensor.Tensor, lengths, languages []int, m nn.Mode) (*tensor.Tensor, error)
	OutputDim() int
	sealed()
}

// NewEncoder builds the variant selected by cfg.Model.EncoderType.
func NewEncoder(p nn.Path, cfg config.Config) (Encoder, error) {
	mc := cfg.Model
	if mc.EncoderDimension%2 != 0 {
		return nil, fmt.Errorf("tacotron: encoder dimension %d must be even", mc.EncoderDimension)
	}

	switch mc.EncoderType {
	case config.EncoderSimple:
		core, err := newConvEncoder(p, mc.EmbeddingDimension, mc)
		if err != nil {
			return nil, err
		}

		return &SimpleEncoder{core: core}, nil
	case config.EncoderShared:
		lang, err := nn.NewEmbedding(p.Sub("language_embedding"), len(cfg.Dataset.Languages), mc.InputLanguageEmbedding)
		if err != nil {
			return nil, err
		}

		core, err := newConvEncoder(p, mc.EmbeddingDimension+mc.InputLanguageEmbedding, mc)
		if err != nil {
			return nil, err
		}

		return &SharedEncoder{core: core, language: lang}, nil
	case config.EncoderSeparate:
		enc := &SeparateEncoder{}

		for i := range cfg.Dataset.Languages {
			core, err := newConvEncoder(p.Sub("encoders").Index(i), mc.EmbeddingDimension, mc)
			if err != nil {
				return nil, err
			}

			enc.cores = append(enc.cores, core)
		}

		return enc, nil
	case config.EncoderConvolutional:
		groups := 1
		if mc.MultiLanguage {
			groups = len(cfg.Dataset.Languages)
		}

		enc := &ConvolutionalEncoder{dim: mc.EncoderDimension}

		for g := range groups {
			stack, err := newHighwayStack(p.Sub("groups").Index(g), mc.EmbeddingDimension, mc.EncoderDimension)
			if err != nil {
				return nil, err
			}

			enc.groups = append(enc.groups, stack)
		}

		return enc, nil
	default:
		return nil, fmt.Errorf("%w: unknown encoder type %q", config.ErrInvalidConfig, mc.EncoderType)
	}
}

// convEncoder is a stack of ReLU convolutions followed by a bidirectional
// LSTM whose directions each produce half the output width.
type convEncoder struct {
	convs []*nn.ConvBlock
	lstm  *nn.BiLSTM
	dim   int
}

func newConvEncoder(p nn.Path, in int, mc config.ModelConfig) (*convEncoder, error) {
	e := &convEncoder{dim: mc.EncoderDimension}

	for i := range mc.EncoderBlocks {
		blockIn := mc.EncoderDimension
		if i == 0 {
			blockIn = in
		}

		b, err := nn.NewConvBlock(p.Sub("convs").Index(i), blockIn, mc.EncoderDimension, mc.EncoderKernelSize, tensor.ReLU, mc.Dropout)
		if err != nil {
			return nil, err
		}

		e.convs = append(e.convs, b)
	}

	lstmIn := mc.EncoderDimension
	if mc.EncoderBlocks == 0 {
		lstmIn = in
	}

	lstm, err := nn.NewBiLSTM(p.Sub("lstm"), lstmIn, mc.EncoderDimension/2)
	if err != nil {
		return nil, err
	}

	e.lstm = lstm

	return e, nil
}

func (e *convEncoder) run(x *tensor.Tensor, lengths []int, m nn.Mode) (*tensor.Tensor, error) {
	channels, err := x.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	channels, err = nn.ConvStack(e.convs, channels, m)
	if err != nil {
		return nil, fmt.Errorf("tacotron: encoder: %w", err)
	}

	steps, err := channels.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	return e.lstm.Run(steps, lengths)
}

// SimpleEncoder is a single convolutional recurrent encoder shared by all
// languages.
type SimpleEncoder struct {
	core *convEncoder
}

func (e *SimpleEncoder) Encode(embedded *tensor.Tensor, lengths, _ []int, m nn.Mode) (*tensor.Tensor, error) {
	return e.core.run(embedded, lengths, m)
}

func (e *SimpleEncoder) OutputDim() int { return e.core.dim }
func (*SimpleEncoder) sealed()          {}

// SharedEncoder conditions one encoder on a language embedding appended to
// every input symbol.
type SharedEncoder struct {
	core     *convEncoder
	language *nn.Embedding
}

func (e *SharedEncoder) Encode(embedded *tensor.Tensor, lengths, languages []int, m nn.Mode) (*tensor.Tensor, error) {
	if len(languages) != embedded.Dim(0) {
		return nil, errors.New("tacotron: shared encoder needs one language per example")
	}

	vectors, err := e.language.Lookup(languages)
	if err != nil {
		return nil, err
	}

	x, err := appendPerStep(embedded, vectors)
	if err != nil {
		return nil, err
	}

	return e.core.run(x, lengths, m)
}

func (e *SharedEncoder) OutputDim() int { return e.core.dim }
func (*SharedEncoder) sealed()          {}

// SeparateEncoder keeps one encoder per language and routes each example
// through the encoder of its language.
type SeparateEncoder struct {
	cores []*convEncoder
}

func (e *SeparateEncoder) Encode(embedded *tensor.Tensor, lengths, languages []int, m nn.Mode) (*tensor.Tensor, error) {
	batch := embedded.Dim(0)
	if len(languages) != batch {
		return nil, errors.New("tacotron: separate encoder needs one language per example")
	}

	rows := make([]*tensor.Tensor, batch)

	for b, lang := range languages {
		if lang < 0 || lang >= len(e.cores) {
			return nil, fmt.Errorf("tacotron: language id %d out of range for %d encoders", lang, len(e.cores))
		}

		x, err := selectRow(embedded, b)
		if err != nil {
			return nil, err
		}

		rows[b], err = e.cores[lang].run(x, lengths[b:b+1], m)
		if err != nil {
			return nil, err
		}
	}

	return tensor.Concat(rows, 0)
}

func (e *SeparateEncoder) OutputDim() int { return e.cores[0].dim }
func (*SeparateEncoder) sealed()          {}

const convolutionalEncoderDropout = 0.05

// highwayDilations lists kernel size and dilation of every highway block
// after the input projection.
var highwayDilations = [][2]int{
	{3, 1}, {3, 3}, {3, 9}, {3, 27},
	{3, 1}, {3, 3}, {3, 9}, {3, 27},
	{3, 1}, {3, 1},
	{1, 1}, {1, 1},
}

// highwayStack is a ReLU 1x1 projection followed by dilated highway
// convolutions.
type highwayStack struct {
	input   *nn.ConvBlock
	highway []*nn.HighwayConvBlock
}

func newHighwayStack(p nn.Path, in, dim int) (*highwayStack, error) {
	input, err := nn.NewConvBlock(p.Sub("input"), in, dim, 1, tensor.ReLU, convolutionalEncoderDropout)
	if err != nil {
		return nil, err
	}

	h := &highwayStack{input: input}

	for i, kd := range highwayDilations {
		b, err := nn.NewHighwayConvBlock(p.Sub("highway").Index(i), dim, kd[0], kd[1], convolutionalEncoderDropout)
		if err != nil {
			return nil, err
		}

		h.highway = append(h.highway, b)
	}

	return h, nil
}

func (h *highwayStack) run(x *tensor.Tensor, m nn.Mode) (*tensor.Tensor, error) {
	channels, err := x.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	if channels, err = h.input.Forward(channels, m); err != nil {
		return nil, fmt.Errorf("tacotron: convolutional encoder input: %w", err)
	}

	for i, b := range h.highway {
		if channels, err = b.Forward(channels, m); err != nil {
			return nil, fmt.Errorf("tacotron: highway block %d: %w", i, err)
		}
	}

	return channels.Transpose(1, 2)
}

// ConvolutionalEncoder has no recurrence. A multilingual model keeps one
// group of parameters per language, as a grouped convolution over
// language-ordered batches would, and runs each example through the group
// of its language.
type ConvolutionalEncoder struct {
	groups []*highwayStack
	dim    int
}

func (e *ConvolutionalEncoder) Encode(embedded *tensor.Tensor, _, languages []int, m nn.Mode) (*tensor.Tensor, error) {
	if len(e.groups) == 1 {
		return e.groups[0].run(embedded, m)
	}

	batch := embedded.Dim(0)
	if len(languages) != batch {
		return nil, errors.New("tacotron: convolutional encoder needs one language per example")
	}

	rows := make([]*tensor.Tensor, batch)

	for b, lang := range languages {
		if lang < 0 || lang >= len(e.groups) {
			return nil, fmt.Errorf("tacotron: language id %d out of range for %d encoder groups", lang, len(e.groups))
		}

		x, err := selectRow(embedded, b)
		if err != nil {
			return nil, err
		}

		if rows[b], err = e.groups[lang].run(x, m); err != nil {
			return nil, err
		}
	}

	return tensor.Concat(rows, 0)
}

func (e *ConvolutionalEncoder) OutputDim() int { return e.dim }
func (*ConvolutionalEncoder) sealed()          {}
