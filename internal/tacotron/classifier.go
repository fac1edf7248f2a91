package tacotron

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/nn"
	"github.com/example/go-tacotron/internal/runtime/tensor"
)

// GradientReversal is the identity on the forward pass; on the backward
// pass it clips the incoming gradient to [-Clip, Clip] and scales it by
// -Lambda.
type GradientReversal struct {
	Lambda float64
	Clip   float64
}

func (GradientReversal) Forward(x *tensor.Tensor) *tensor.Tensor { return x }

func (g GradientReversal) Backward(grad *tensor.Tensor) *tensor.Tensor {
	c, l := float32(g.Clip), float32(g.Lambda)

	return tensor.Map(grad, func(v float32) float32 {
		return -l * min(max(v, -c), c)
	})
}

// ReversalClassifier predicts the language of every encoder step through
// a gradient reversal layer so that training pushes the encoder towards
// language-independent states.
type ReversalClassifier struct {
	Reversal GradientReversal
	hidden   *nn.Linear
	output   *nn.Linear
}

func NewReversalClassifier(p nn.Path, mc config.ModelConfig, inputDim, numLanguages int) (*ReversalClassifier, error) {
	hidden, err := nn.NewLinear(p.Sub("classifier").Index(0), inputDim, mc.ReversalClassifierDim, true)
	if err != nil {
		return nil, err
	}

	output, err := nn.NewLinear(p.Sub("classifier").Index(1), mc.ReversalClassifierDim, numLanguages, true)
	if err != nil {
		return nil, err
	}

	return &ReversalClassifier{
		Reversal: GradientReversal{Lambda: mc.ReversalLambda, Clip: mc.ReversalGradientClipping},
		hidden:   hidden,
		output:   output,
	}, nil
}

// Forward maps encoder states [B, T, D] to language logits [B, T, L].
func (c *ReversalClassifier) Forward(encoded *tensor.Tensor) (*tensor.Tensor, error) {
	h, err := c.hidden.Forward(c.Reversal.Forward(encoded))
	if err != nil {
		return nil, err
	}

	return c.output.Forward(h)
}

// ClassifierLoss is the cross entropy of logits [B, T, L] against the
// utterance language repeated over time, averaged over positions
// t < lengths[b].
func ClassifierLoss(lengths, languages []int, logits *tensor.Tensor) (float64, error) {
	if logits == nil || logits.Rank() != 3 {
		return 0, errors.New("tacotron: classifier loss expects [B, T, L] logits")
	}

	batch, steps, classes := logits.Dim(0), logits.Dim(1), logits.Dim(2)
	if len(lengths) != batch || len(languages) != batch {
		return 0, fmt.Errorf("tacotron: classifier loss got %d lengths and %d languages for batch %d", len(lengths), len(languages), batch)
	}

	data := logits.RawData()

	var (
		total float64
		count int
	)

	for b := range batch {
		target := languages[b]
		if target < 0 || target >= classes {
			return 0, fmt.Errorf("tacotron: language id %d out of range for %d classes", target, classes)
		}

		for t := range min(lengths[b], steps) {
			row := data[(b*steps+t)*classes : (b*steps+t+1)*classes]
			total += logSumExp(row) - float64(row[target])
			count++
		}
	}

	if count == 0 {
		return 0, nil
	}

	return total / float64(count), nil
}

func logSumExp(row []float32) float64 {
	peak := math.Inf(-1)
	for _, v := range row {
		peak = max(peak, float64(v))
	}

	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v) - peak)
	}

	return peak + math.Log(sum)
}
