package tacotron

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/nn"
	"github.com/example/go-tacotron/internal/runtime/tensor"
)

// Attention scores decoder queries against encoder memory. Implementations
// hold parameters only; all per-utterance state lives in the
// AttentionState returned by Start.
type Attention interface {
	Start(memory *tensor.Tensor, mask [][]bool) (AttentionState, error)
	sealed()
}

// AttentionState advances attention by one decoder step. query is the
// attention LSTM output [B, decoder_dim] and prenet the prenet output of the
// previous frame [B, prenet_dim]. Step returns the context vector [B, D]
// and the alignment weights [B, T]; masked positions always get zero weight.
type AttentionState interface {
	Step(query, prenet *tensor.Tensor) (context, weights *tensor.Tensor, err error)
}

// NewAttention builds the variant named by cfg.AttentionType.
func NewAttention(p nn.Path, mc config.ModelConfig, memoryDim int) (Attention, error) {
	scorer, err := newContentScorer(p, mc.DecoderDimension, memoryDim, mc.AttentionDimension)
	if err != nil {
		return nil, err
	}

	switch mc.AttentionType {
	case config.AttentionLocationSensitive:
		conv, err := nn.NewConv1d(p.Sub("location_conv"), 2, mc.AttentionLocationDimension, mc.AttentionKernelSize, false)
		if err != nil {
			return nil, err
		}

		loc, err := nn.NewLinear(p.Sub("location_layer"), mc.AttentionLocationDimension, mc.AttentionDimension, false)
		if err != nil {
			return nil, err
		}

		return &LocationSensitiveAttention{scorer: scorer, locationConv: conv, locationLayer: loc}, nil
	case config.AttentionForward:
		return &ForwardAttention{scorer: scorer}, nil
	case config.AttentionForwardTransition:
		agent, err := nn.NewLinear(p.Sub("transition_agent"), memoryDim+mc.DecoderDimension+mc.PrenetDimension, 1, true)
		if err != nil {
			return nil, err
		}

		return &ForwardTransitionAttention{scorer: scorer, agent: agent}, nil
	default:
		return nil, fmt.Errorf("%w: unknown attention type %q", config.ErrInvalidConfig, mc.AttentionType)
	}
}

// contentScorer computes additive energies v·tanh(Wq·q + Wm·m + extra).
type contentScorer struct {
	query  *nn.Linear
	memory *nn.Linear
	energy *nn.Linear
}

func newContentScorer(p nn.Path, queryDim, memoryDim, attentionDim int) (*contentScorer, error) {
	q, err := nn.NewLinear(p.Sub("query_layer"), queryDim, attentionDim, false)
	if err != nil {
		return nil, err
	}

	m, err := nn.NewLinear(p.Sub("memory_layer"), memoryDim, attentionDim, false)
	if err != nil {
		return nil, err
	}

	v, err := nn.NewLinear(p.Sub("energy_layer"), attentionDim, 1, false)
	if err != nil {
		return nil, err
	}

	return &contentScorer{query: q, memory: m, energy: v}, nil
}

// energies returns [B, T] scores. keys is the projected memory [B, T, A];
// location, when non-nil, is an additional [B, T, A] term.
func (s *contentScorer) energies(query, keys, location *tensor.Tensor) (*tensor.Tensor, error) {
	q, err := s.query.Forward(query)
	if err != nil {
		return nil, fmt.Errorf("tacotron: attention query: %w", err)
	}

	batch, steps, dim := keys.Dim(0), keys.Dim(1), keys.Dim(2)
	out := tensor.MustZeros(int64(batch), int64(steps))
	kd, qd, v := keys.RawData(), q.RawData(), s.energy.Weight.RawData()

	var ld []float32
	if location != nil {
		ld = location.RawData()
	}

	od := out.RawData()

	for b := range batch {
		qRow := qd[b*dim : (b+1)*dim]

		for t := range steps {
			base := (b*steps + t) * dim

			var e float64

			for a := range dim {
				x := kd[base+a] + qRow[a]
				if ld != nil {
					x += ld[base+a]
				}

				e += float64(v[a]) * math.Tanh(float64(x))
			}

			od[b*steps+t] = float32(e)
		}
	}

	return out, nil
}

// LocationSensitiveAttention adds features convolved from the previous and
// cumulative alignments to the content energies.
type LocationSensitiveAttention struct {
	scorer        *contentScorer
	locationConv  *nn.Conv1d
	locationLayer *nn.Linear
}

func (*LocationSensitiveAttention) sealed() {}

func (a *LocationSensitiveAttention) Start(memory *tensor.Tensor, mask [][]bool) (AttentionState, error) {
	keys, err := a.scorer.memory.Forward(memory)
	if err != nil {
		return nil, fmt.Errorf("tacotron: attention memory: %w", err)
	}

	batch, steps := memory.Dim(0), memory.Dim(1)

	return &locationState{
		attn:       a,
		memory:     memory,
		keys:       keys,
		mask:       mask,
		previous:   tensor.MustZeros(int64(batch), int64(steps)),
		cumulative: tensor.MustZeros(int64(batch), int64(steps)),
	}, nil
}

type locationState struct {
	attn       *LocationSensitiveAttention
	memory     *tensor.Tensor
	keys       *tensor.Tensor
	mask       [][]bool
	previous   *tensor.Tensor
	cumulative *tensor.Tensor
}

func (s *locationState) Step(query, _ *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	batch, steps := s.previous.Dim(0), s.previous.Dim(1)

	// [B, 2, T]: previous weights on channel 0, cumulative on channel 1.
	stacked, err := tensor.Concat([]*tensor.Tensor{s.previous, s.cumulative}, 1)
	if err != nil {
		return nil, nil, err
	}

	stacked, err = stacked.Reshape([]int64{int64(batch), 2, int64(steps)})
	if err != nil {
		return nil, nil, err
	}

	features, err := s.attn.locationConv.Forward(stacked)
	if err != nil {
		return nil, nil, fmt.Errorf("tacotron: location conv: %w", err)
	}

	features, err = features.Transpose(1, 2)
	if err != nil {
		return nil, nil, err
	}

	location, err := s.attn.locationLayer.Forward(features)
	if err != nil {
		return nil, nil, fmt.Errorf("tacotron: location layer: %w", err)
	}

	energies, err := s.attn.scorer.energies(query, s.keys, location)
	if err != nil {
		return nil, nil, err
	}

	weights, err := tensor.MaskedSoftmax(energies, s.mask)
	if err != nil {
		return nil, nil, err
	}

	tensor.Axpy(s.cumulative.RawData(), 1, weights.RawData())
	s.previous = weights

	return weightedSum(weights, s.memory), weights, nil
}

// ForwardAttention restricts the alignment to stay or advance by one
// position per step: alpha_t = (alpha_{t-1} + shift(alpha_{t-1}))·y_t,
// renormalized, where y_t is the content distribution.
type ForwardAttention struct {
	scorer *contentScorer
}

func (*ForwardAttention) sealed() {}

func (a *ForwardAttention) Start(memory *tensor.Tensor, mask [][]bool) (AttentionState, error) {
	keys, err := a.scorer.memory.Forward(memory)
	if err != nil {
		return nil, fmt.Errorf("tacotron: attention memory: %w", err)
	}

	return &forwardState{scorer: a.scorer, memory: memory, keys: keys, mask: mask, alpha: initialAlignment(memory, mask)}, nil
}

// initialAlignment puts all weight on the first input position.
func initialAlignment(memory *tensor.Tensor, mask [][]bool) *tensor.Tensor {
	batch, steps := memory.Dim(0), memory.Dim(1)
	alpha := tensor.MustZeros(int64(batch), int64(steps))

	for b := range batch {
		if mask == nil || (len(mask[b]) > 0 && mask[b][0]) {
			alpha.Row(b)[0] = 1
		}
	}

	return alpha
}

type forwardState struct {
	scorer *contentScorer
	memory *tensor.Tensor
	keys   *tensor.Tensor
	mask   [][]bool
	alpha  *tensor.Tensor
	// advance holds the per-example probability of moving forward. Nil
	// weighs staying and moving equally.
	advance []float32
}

func (s *forwardState) Step(query, _ *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	energies, err := s.scorer.energies(query, s.keys, nil)
	if err != nil {
		return nil, nil, err
	}

	y, err := tensor.MaskedSoftmax(energies, s.mask)
	if err != nil {
		return nil, nil, err
	}

	batch, steps := s.alpha.Dim(0), s.alpha.Dim(1)
	next := tensor.MustZeros(int64(batch), int64(steps))

	for b := range batch {
		prev, cur, yRow := s.alpha.Row(b), next.Row(b), y.Row(b)
		stay, move := float32(1), float32(1)

		if s.advance != nil {
			stay, move = 1-s.advance[b], s.advance[b]
		}

		var sum float32

		for t := range steps {
			if s.mask != nil && !s.mask[b][t] {
				continue
			}

			shifted := stay * prev[t]
			if t > 0 {
				shifted += move * prev[t-1]
			}

			cur[t] = shifted * yRow[t]
			sum += cur[t]
		}

		// Once the transition mass underflows the content distribution
		// takes over.
		if sum == 0 {
			copy(cur, yRow)
			continue
		}

		for t := range cur {
			cur[t] /= sum
		}
	}

	s.alpha = next

	return weightedSum(next, s.memory), next, nil
}

// ForwardTransitionAttention is forward attention whose stay/move mix is
// predicted by a transition agent: u = sigmoid(W·[context, query, prenet])
// gives the probability of advancing at the next step. u starts at 0.5.
type ForwardTransitionAttention struct {
	scorer *contentScorer
	agent  *nn.Linear
}

func (*ForwardTransitionAttention) sealed() {}

func (a *ForwardTransitionAttention) Start(memory *tensor.Tensor, mask [][]bool) (AttentionState, error) {
	keys, err := a.scorer.memory.Forward(memory)
	if err != nil {
		return nil, fmt.Errorf("tacotron: attention memory: %w", err)
	}

	advance := make([]float32, memory.Dim(0))
	for b := range advance {
		advance[b] = 0.5
	}

	return &transitionState{
		forwardState: forwardState{
			scorer:  a.scorer,
			memory:  memory,
			keys:    keys,
			mask:    mask,
			alpha:   initialAlignment(memory, mask),
			advance: advance,
		},
		agent: a.agent,
	}, nil
}

type transitionState struct {
	forwardState
	agent *nn.Linear
}

func (s *transitionState) Step(query, prenet *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	if prenet == nil {
		return nil, nil, errors.New("tacotron: transition agent needs the prenet output")
	}

	context, weights, err := s.forwardState.Step(query, prenet)
	if err != nil {
		return nil, nil, err
	}

	in, err := tensor.Concat([]*tensor.Tensor{context, query, prenet}, 1)
	if err != nil {
		return nil, nil, err
	}

	logits, err := s.agent.Forward(in)
	if err != nil {
		return nil, nil, fmt.Errorf("tacotron: transition agent: %w", err)
	}

	for b, v := range logits.RawData() {
		s.advance[b] = tensor.SigmoidScalar(v)
	}

	return context, weights, nil
}
