package tacotron

import (
	"errors"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/nn"
	"github.com/example/go-tacotron/internal/runtime/tensor"
)

// Postnet refines the decoder's spectrogram with a convolution stack. The
// mel variant predicts a residual added to its input; the linear variant
// projects mel frames to linear-frequency bins.
type Postnet struct {
	blocks   []*nn.ConvBlock
	residual bool
}

// NewPostnet builds the mel residual postnet.
func NewPostnet(p nn.Path, mc config.ModelConfig, numMels int) (*Postnet, error) {
	return newPostnet(p, mc, numMels, numMels, true)
}

// NewLinearPostnet builds the mel-to-linear projection used when the model
// predicts linear spectrograms.
func NewLinearPostnet(p nn.Path, mc config.ModelConfig, numMels, linearBins int) (*Postnet, error) {
	return newPostnet(p, mc, numMels, linearBins, false)
}

func newPostnet(p nn.Path, mc config.ModelConfig, in, out int, residual bool) (*Postnet, error) {
	if mc.PostnetBlocks < 2 {
		return nil, errors.New("tacotron: postnet needs at least two blocks")
	}

	n := &Postnet{residual: residual}
	dims := make([]int, 0, mc.PostnetBlocks+1)
	dims = append(dims, in)

	for range mc.PostnetBlocks - 1 {
		dims = append(dims, mc.PostnetDimension)
	}

	dims = append(dims, out)

	for i := range mc.PostnetBlocks {
		act := nn.Activation(tensor.Tanh)
		if i == mc.PostnetBlocks-1 {
			act = nn.Identity
		}

		b, err := nn.NewConvBlock(p.Sub("convs").Index(i), dims[i], dims[i+1], mc.PostnetKernelSize, act, mc.Dropout)
		if err != nil {
			return nil, err
		}

		n.blocks = append(n.blocks, b)
	}

	return n, nil
}

// Forward maps x [B, num_mels, F] to [B, out, F].
func (n *Postnet) Forward(x *tensor.Tensor, m nn.Mode) (*tensor.Tensor, error) {
	y, err := nn.ConvStack(n.blocks, x, m)
	if err != nil {
		return nil, err
	}

	if !n.residual {
		return y, nil
	}

	return tensor.Add(y, x)
}
