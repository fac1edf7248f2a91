package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/example/go-tacotron/internal/runtime/ops"
	"github.com/example/go-tacotron/internal/runtime/tensor"
)

// Mode carries the execution mode of a forward pass. Stochastic layers
// draw from RNG; layers that only regularize training check Training.
type Mode struct {
	Training bool
	RNG      *rand.Rand
}

// Dropout zeroes each element with probability p and rescales survivors by
// 1/(1-p). It is a no-op outside training.
func (m Mode) Dropout(x *tensor.Tensor, p float64) *tensor.Tensor {
	if !m.Training {
		return x
	}

	return Dropout(x, p, m.RNG)
}

// Dropout applies inverted dropout regardless of mode. x is returned
// unchanged when p <= 0.
func Dropout(x *tensor.Tensor, p float64, rng *rand.Rand) *tensor.Tensor {
	if p <= 0 || x == nil {
		return x
	}

	out := x.Clone()
	data := out.RawData()

	if p >= 1 {
		clear(data)
		return out
	}

	scale := float32(1 / (1 - p))

	for i := range data {
		if rng.Float64() < p {
			data[i] = 0
		} else {
			data[i] *= scale
		}
	}

	return out
}

// Activation maps a tensor element-wise.
type Activation func(*tensor.Tensor) *tensor.Tensor

func Identity(x *tensor.Tensor) *tensor.Tensor { return x }

type Linear struct {
	Weight *tensor.Tensor // [out, in]
	Bias   *tensor.Tensor // optional [out]
}

func NewLinear(p Path, in, out int, withBias bool) (*Linear, error) {
	w, err := p.Get("weight", XavierUniform(1), int64(out), int64(in))
	if err != nil {
		return nil, err
	}

	l := &Linear{Weight: w}

	if withBias {
		l.Bias, err = p.Get("bias", Uniform(1/math.Sqrt(float64(in))), int64(out))
		if err != nil {
			return nil, err
		}
	}

	return l, nil
}

func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if l == nil || l.Weight == nil {
		return nil, errors.New("nn: linear is not initialized")
	}

	return tensor.Linear(x, l.Weight, l.Bias)
}

// Embedding is a lookup table of Dim-sized vectors.
type Embedding struct {
	Weight *tensor.Tensor // [count, dim]
}

func NewEmbedding(p Path, count, dim int) (*Embedding, error) {
	w, err := p.Get("weight", XavierUniform(1), int64(count), int64(dim))
	if err != nil {
		return nil, err
	}

	return &Embedding{Weight: w}, nil
}

func (e *Embedding) Dim() int { return e.Weight.Dim(1) }

// Lookup returns the [len(ids), dim] rows for ids.
func (e *Embedding) Lookup(ids []int) (*tensor.Tensor, error) {
	out, err := e.Weight.IndexSelect(ids)
	if err != nil {
		return nil, fmt.Errorf("nn: embedding lookup: %w", err)
	}

	return out, nil
}

// LookupBatch embeds a rectangular batch of ids into [B, T, dim].
func (e *Embedding) LookupBatch(ids [][]int) (*tensor.Tensor, error) {
	if len(ids) == 0 {
		return nil, errors.New("nn: embedding lookup of empty batch")
	}

	steps := len(ids[0])
	flat := make([]int, 0, len(ids)*steps)

	for b, row := range ids {
		if len(row) != steps {
			return nil, fmt.Errorf("nn: embedding batch row %d has %d ids, want %d", b, len(row), steps)
		}

		flat = append(flat, row...)
	}

	out, err := e.Lookup(flat)
	if err != nil {
		return nil, err
	}

	return out.Reshape([]int64{int64(len(ids)), int64(steps), int64(e.Dim())})
}

// Conv1d is a stride-1 convolution with "same" padding.
type Conv1d struct {
	Weight   *tensor.Tensor // [out, in, kernel]
	Bias     *tensor.Tensor // optional [out]
	Dilation int
}

func NewConv1d(p Path, in, out, kernel int, withBias bool) (*Conv1d, error) {
	w, err := p.Get("weight", XavierUniform(1), int64(out), int64(in), int64(kernel))
	if err != nil {
		return nil, err
	}

	c := &Conv1d{Weight: w, Dilation: 1}

	if withBias {
		c.Bias, err = p.Get("bias", Uniform(1/math.Sqrt(float64(in*kernel))), int64(out))
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Forward convolves x [B, in, T] into [B, out, T].
func (c *Conv1d) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	left, right := ops.SamePadding(c.Weight.Dim(2), c.Dilation)
	return ops.Conv1D(x, c.Weight, c.Bias, left, right, c.Dilation)
}

// BatchNorm1d normalizes channels with running statistics. There is no
// batch-statistics path; training-mode forwards use the running values too.
type BatchNorm1d struct {
	Weight      *tensor.Tensor
	Bias        *tensor.Tensor
	RunningMean *tensor.Tensor
	RunningVar  *tensor.Tensor
	Eps         float32
}

func NewBatchNorm1d(p Path, channels int) (*BatchNorm1d, error) {
	n := int64(channels)

	w, err := p.Get("weight", Constant(1), n)
	if err != nil {
		return nil, err
	}

	b, err := p.Get("bias", Constant(0), n)
	if err != nil {
		return nil, err
	}

	mean, err := p.Get("running_mean", Constant(0), n)
	if err != nil {
		return nil, err
	}

	variance, err := p.Get("running_var", Constant(1), n)
	if err != nil {
		return nil, err
	}

	return &BatchNorm1d{Weight: w, Bias: b, RunningMean: mean, RunningVar: variance, Eps: 1e-5}, nil
}

func (n *BatchNorm1d) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.BatchNorm1D(x, n.RunningMean, n.RunningVar, n.Weight, n.Bias, n.Eps)
}

// ConvBlock is convolution, batch norm, activation and dropout. The
// convolution has no bias because batch norm supplies one.
type ConvBlock struct {
	Conv       *Conv1d
	Norm       *BatchNorm1d
	Activation Activation
	Dropout    float64
}

func NewConvBlock(p Path, in, out, kernel int, activation Activation, dropout float64) (*ConvBlock, error) {
	conv, err := NewConv1d(p.Sub("conv"), in, out, kernel, false)
	if err != nil {
		return nil, err
	}

	norm, err := NewBatchNorm1d(p.Sub("batch_norm"), out)
	if err != nil {
		return nil, err
	}

	if activation == nil {
		activation = Identity
	}

	return &ConvBlock{Conv: conv, Norm: norm, Activation: activation, Dropout: dropout}, nil
}

// Forward maps x [B, in, T] to [B, out, T].
func (b *ConvBlock) Forward(x *tensor.Tensor, m Mode) (*tensor.Tensor, error) {
	y, err := b.Conv.Forward(x)
	if err != nil {
		return nil, err
	}

	y, err = b.Norm.Forward(y)
	if err != nil {
		return nil, err
	}

	return m.Dropout(b.Activation(y), b.Dropout), nil
}

// ConvStack runs blocks in sequence.
func ConvStack(blocks []*ConvBlock, x *tensor.Tensor, m Mode) (*tensor.Tensor, error) {
	var err error

	for i, b := range blocks {
		x, err = b.Forward(x, m)
		if err != nil {
			return nil, fmt.Errorf("nn: conv block %d: %w", i, err)
		}
	}

	return x, nil
}

// HighwayConvBlock is a gated convolution with equal input and output
// width. The convolution yields a gate g and a candidate h per channel and
// the block returns h·g + x·(1-g).
type HighwayConvBlock struct {
	Conv    *Conv1d
	Dropout float64
}

func NewHighwayConvBlock(p Path, channels, kernel, dilation int, dropout float64) (*HighwayConvBlock, error) {
	conv, err := NewConv1d(p.Sub("conv"), channels, 2*channels, kernel, true)
	if err != nil {
		return nil, err
	}

	conv.Dilation = dilation

	return &HighwayConvBlock{Conv: conv, Dropout: dropout}, nil
}

// Forward maps x [B, C, T] to [B, C, T].
func (hb *HighwayConvBlock) Forward(x *tensor.Tensor, m Mode) (*tensor.Tensor, error) {
	h, err := hb.Conv.Forward(x)
	if err != nil {
		return nil, err
	}

	h = m.Dropout(h, hb.Dropout)

	batch, channels, steps := x.Dim(0), x.Dim(1), x.Dim(2)
	out := tensor.MustZeros(int64(batch), int64(channels), int64(steps))
	hd, xd, od := h.RawData(), x.RawData(), out.RawData()

	for b := range batch {
		for c := range channels {
			gate := hd[(b*2*channels+c)*steps:]
			candidate := hd[(b*2*channels+channels+c)*steps:]
			base := (b*channels + c) * steps

			for t := range steps {
				g := tensor.SigmoidScalar(gate[t])
				od[base+t] = candidate[t]*g + xd[base+t]*(1-g)
			}
		}
	}

	return out, nil
}

// Prenet is a stack of ReLU linear layers whose dropout stays active at
// inference, which varies the decoder input between runs.
type Prenet struct {
	Layers  []*Linear
	Dropout float64
}

func NewPrenet(p Path, in, dim, layers int, dropout float64) (*Prenet, error) {
	if layers < 1 {
		return nil, errors.New("nn: prenet needs at least one layer")
	}

	n := &Prenet{Dropout: dropout}

	for i := range layers {
		inDim := dim
		if i == 0 {
			inDim = in
		}

		l, err := NewLinear(p.Sub("layers").Index(i), inDim, dim, true)
		if err != nil {
			return nil, err
		}

		n.Layers = append(n.Layers, l)
	}

	return n, nil
}

func (n *Prenet) Forward(x *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	var err error

	for _, l := range n.Layers {
		x, err = l.Forward(x)
		if err != nil {
			return nil, err
		}

		x = Dropout(tensor.ReLU(x), n.Dropout, rng)
	}

	return x, nil
}
