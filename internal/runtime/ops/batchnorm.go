package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-tacotron/internal/runtime/tensor"
)

// BatchNorm1D applies inference-mode batch normalization over the channel
// dimension of a [batch, channels, length] tensor using running statistics.
func BatchNorm1D(x, runningMean, runningVar, weight, bias *tensor.Tensor, eps float32) (*tensor.Tensor, error) {
	if x == nil || runningMean == nil || runningVar == nil {
		return nil, errors.New("ops: batchnorm requires input and running statistics")
	}

	if x.Rank() != 3 {
		return nil, fmt.Errorf("ops: batchnorm expects rank 3 input, got %v", x.Shape())
	}

	batch, channels, length := x.Dim(0), x.Dim(1), x.Dim(2)
	for name, p := range map[string]*tensor.Tensor{"mean": runningMean, "var": runningVar, "weight": weight, "bias": bias} {
		if p != nil && (p.Rank() != 1 || p.Dim(0) != channels) {
			return nil, fmt.Errorf("ops: batchnorm %s shape %v does not match channels %d", name, p.Shape(), channels)
		}
	}

	out := x.Clone()
	data := out.RawData()
	mean := runningMean.RawData()
	variance := runningVar.RawData()

	for b := range batch {
		for c := range channels {
			scale := float32(1 / math.Sqrt(float64(variance[c]+eps)))
			shift := -mean[c] * scale

			if weight != nil {
				scale *= weight.RawData()[c]
				shift *= weight.RawData()[c]
			}

			if bias != nil {
				shift += bias.RawData()[c]
			}

			row := data[(b*channels+c)*length : (b*channels+c+1)*length]
			for i := range row {
				row[i] = row[i]*scale + shift
			}
		}
	}

	return out, nil
}
