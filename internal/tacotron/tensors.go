package tacotron

import (
	"fmt"

	"github.com/example/go-tacotron/internal/runtime/tensor"
)

// lengthsMask marks positions t < lengths[b] of a [B, steps] grid.
func lengthsMask(lengths []int, steps int) [][]bool {
	mask := make([][]bool, len(lengths))
	for b, n := range lengths {
		row := make([]bool, steps)
		for t := range min(n, steps) {
			row[t] = true
		}

		mask[b] = row
	}

	return mask
}

// appendPerStep concatenates a per-example vector [B, K] onto every step
// of x [B, T, D].
func appendPerStep(x, vectors *tensor.Tensor) (*tensor.Tensor, error) {
	expanded, err := tensor.ExpandTime(vectors, x.Dim(1))
	if err != nil {
		return nil, err
	}

	return tensor.Concat([]*tensor.Tensor{x, expanded}, -1)
}

// weightedSum returns context[b] = Σ_t weights[b,t]·memory[b,t,:].
func weightedSum(weights, memory *tensor.Tensor) *tensor.Tensor {
	batch, steps, dim := memory.Dim(0), memory.Dim(1), memory.Dim(2)
	out := tensor.MustZeros(int64(batch), int64(dim))
	w, mem := weights.RawData(), memory.RawData()

	for b := range batch {
		dst := out.Row(b)
		for t := range steps {
			if a := w[b*steps+t]; a != 0 {
				tensor.Axpy(dst, a, mem[(b*steps+t)*dim:(b*steps+t+1)*dim])
			}
		}
	}

	return out
}

// frameAt extracts frame i of a [B, M, F] spectrogram as [B, M].
func frameAt(spec *tensor.Tensor, i int) *tensor.Tensor {
	batch, bins, frames := spec.Dim(0), spec.Dim(1), spec.Dim(2)
	out := tensor.MustZeros(int64(batch), int64(bins))
	src, dst := spec.RawData(), out.RawData()

	for b := range batch {
		for m := range bins {
			dst[b*bins+m] = src[(b*bins+m)*frames+i]
		}
	}

	return out
}

// maskFrames zeroes frames f >= lengths[b] of a [B, M, F] tensor in place.
func maskFrames(spec *tensor.Tensor, lengths []int) {
	batch, bins, frames := spec.Dim(0), spec.Dim(1), spec.Dim(2)
	data := spec.RawData()

	for b := range batch {
		for m := range bins {
			row := data[(b*bins+m)*frames : (b*bins+m+1)*frames]
			if lengths[b] < frames {
				clear(row[lengths[b]:])
			}
		}
	}
}

// maskAlignmentFrames zeroes the alignment rows [B, F, T] of decoder steps
// at or past each example's frame length.
func maskAlignmentFrames(align *tensor.Tensor, lengths []int) {
	batch, frames, steps := align.Dim(0), align.Dim(1), align.Dim(2)
	data := align.RawData()

	for b := range batch {
		if lengths[b] < frames {
			clear(data[(b*frames+lengths[b])*steps : (b+1)*frames*steps])
		}
	}
}

// selectRow returns example b of x as a batch of one.
func selectRow(x *tensor.Tensor, b int) (*tensor.Tensor, error) {
	row, err := x.Narrow(0, int64(b), 1)
	if err != nil {
		return nil, fmt.Errorf("tacotron: select row %d: %w", b, err)
	}

	return row, nil
}
