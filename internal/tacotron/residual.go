package tacotron

import (
	"fmt"
	"math"

	"github.com/example/go-tacotron/internal/nn"
	"github.com/example/go-tacotron/internal/runtime/tensor"
)

// ResidualEncoder summarizes a target spectrogram into a Gaussian latent
// that captures what text and speaker do not. The posterior is predicted
// from the time-averaged mel frames.
type ResidualEncoder struct {
	projection *nn.Linear
	latent     int
}

func NewResidualEncoder(p nn.Path, numMels, latentDim int) (*ResidualEncoder, error) {
	proj, err := nn.NewLinear(p.Sub("projection"), numMels, 2*latentDim, true)
	if err != nil {
		return nil, err
	}

	return &ResidualEncoder{projection: proj, latent: latentDim}, nil
}

func (r *ResidualEncoder) LatentDim() int { return r.latent }

// Encode returns a latent sample together with the posterior mean and log
// variance, each [B, latent]. Training samples mean + σ·ε; evaluation
// returns the mean.
func (r *ResidualEncoder) Encode(mel *tensor.Tensor, lengths []int, m nn.Mode) (latent, mean, logVar *tensor.Tensor, err error) {
	batch, bins, frames := mel.Dim(0), mel.Dim(1), mel.Dim(2)
	if len(lengths) != batch {
		return nil, nil, nil, fmt.Errorf("tacotron: residual encoder got %d lengths for batch %d", len(lengths), batch)
	}

	pooled := tensor.MustZeros(int64(batch), int64(bins))
	src, dst := mel.RawData(), pooled.RawData()

	for b := range batch {
		n := min(lengths[b], frames)
		if n <= 0 {
			continue
		}

		for k := range bins {
			row := src[(b*bins+k)*frames : (b*bins+k)*frames+n]

			var sum float32
			for _, v := range row {
				sum += v
			}

			dst[b*bins+k] = sum / float32(n)
		}
	}

	stats, err := r.projection.Forward(pooled)
	if err != nil {
		return nil, nil, nil, err
	}

	mean = tensor.MustZeros(int64(batch), int64(r.latent))
	logVar = tensor.MustZeros(int64(batch), int64(r.latent))

	for b := range batch {
		row := stats.Row(b)
		copy(mean.Row(b), row[:r.latent])
		copy(logVar.Row(b), row[r.latent:])
	}

	latent = mean.Clone()
	if m.Training {
		ld, vd := latent.RawData(), logVar.RawData()
		for i := range ld {
			ld[i] += float32(math.Exp(0.5*float64(vd[i])) * m.RNG.NormFloat64())
		}
	}

	return latent, mean, logVar, nil
}

// Prior returns the latent used at inference: the prior mean, zero.
func (r *ResidualEncoder) Prior(batch int) *tensor.Tensor {
	return tensor.MustZeros(int64(batch), int64(r.latent))
}

// KLDivergence is the mean KL divergence of N(mean, exp(logVar)) from the
// standard normal.
func KLDivergence(mean, logVar *tensor.Tensor) float64 {
	md, vd := mean.RawData(), logVar.RawData()
	if len(md) == 0 {
		return 0
	}

	var sum float64
	for i := range md {
		mu, lv := float64(md[i]), float64(vd[i])
		sum += 1 + lv - mu*mu - math.Exp(lv)
	}

	return -0.5 * sum / float64(len(md))
}
