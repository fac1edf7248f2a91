package tensor

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Softmax applies softmax along the last dimension.
func Softmax(x *Tensor) (*Tensor, error) {
	return MaskedSoftmax(x, nil)
}

// MaskedSoftmax applies softmax along the last dimension. mask, when non-nil,
// has one entry per element of x (or per row-element when x is [B, T] and mask
// is [B][T]); masked-out positions receive exactly zero probability.
// A row with every position masked is returned as all zeros.
func MaskedSoftmax(x *Tensor, mask [][]bool) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: softmax on nil tensor")
	}

	if len(x.shape) == 0 {
		return nil, errors.New("tensor: softmax requires rank >= 1")
	}

	axis := int(x.shape[len(x.shape)-1])
	if axis <= 0 {
		return nil, fmt.Errorf("tensor: softmax axis dimension must be > 0, got %d", axis)
	}

	rows := len(x.data) / axis
	if mask != nil && len(mask) != rows {
		return nil, fmt.Errorf("tensor: softmax mask has %d rows, want %d", len(mask), rows)
	}

	out := x.Clone()

	for r := range rows {
		row := out.data[r*axis : (r+1)*axis]

		var valid []bool
		if mask != nil {
			valid = mask[r]
			if len(valid) != axis {
				return nil, fmt.Errorf("tensor: softmax mask row %d has %d entries, want %d", r, len(valid), axis)
			}
		}

		maxV := float32(math.Inf(-1))
		for k, v := range row {
			if valid != nil && !valid[k] {
				continue
			}

			if v > maxV {
				maxV = v
			}
		}

		if math.IsInf(float64(maxV), -1) {
			clear(row)
			continue
		}

		var sum float64

		for k := range row {
			if valid != nil && !valid[k] {
				row[k] = 0
				continue
			}

			e := math.Exp(float64(row[k] - maxV))
			row[k] = float32(e)
			sum += e
		}

		inv := float32(1.0 / sum)
		for k := range row {
			row[k] *= inv
		}
	}

	return out, nil
}

// Linear applies y = x * W^T + b where weight shape is [out, in].
func Linear(x, weight, bias *Tensor) (*Tensor, error) {
	if x == nil || weight == nil {
		return nil, errors.New("tensor: linear requires non-nil x and weight")
	}

	if x.Rank() < 1 {
		return nil, errors.New("tensor: linear requires x rank >= 1")
	}

	if weight.Rank() != 2 {
		return nil, fmt.Errorf("tensor: linear weight must be rank 2, got %d", weight.Rank())
	}

	in := int(x.shape[x.Rank()-1])
	out := int(weight.shape[0])

	if int(weight.shape[1]) != in {
		return nil, fmt.Errorf("tensor: linear mismatch: x last dim %d, weight in dim %d", in, weight.shape[1])
	}

	if bias != nil {
		if bias.Rank() != 1 || int(bias.shape[0]) != out {
			return nil, fmt.Errorf("tensor: linear bias shape %v does not match out dim %d", bias.shape, out)
		}
	}

	batch := 0
	if in > 0 {
		batch = len(x.data) / in
	}

	outData := make([]float32, batch*out)

	if batch > 0 && out > 0 && in > 0 {
		// Rows are independent, so large batches are split across workers.
		parallelFor(batch, getWorkers(), func(lo, hi int) {
			rows := hi - lo
			blas32.Gemm(blas.NoTrans, blas.Trans, 1,
				blas32.General{Rows: rows, Cols: in, Stride: in, Data: x.data[lo*in : hi*in]},
				blas32.General{Rows: out, Cols: in, Stride: in, Data: weight.data},
				0,
				blas32.General{Rows: rows, Cols: out, Stride: out, Data: outData[lo*out : hi*out]},
			)
		})
	}

	if bias != nil {
		for b := range batch {
			row := outData[b*out : (b+1)*out]
			Axpy(row, 1, bias.data)
		}
	}

	outShape := make([]int64, x.Rank())
	copy(outShape, x.shape[:x.Rank()-1])
	outShape[x.Rank()-1] = int64(out)

	return newOwned(outData, outShape), nil
}

// Map returns a new tensor with fn applied to every element.
func Map(x *Tensor, fn func(float32) float32) *Tensor {
	out := x.Clone()
	for i, v := range out.data {
		out.data[i] = fn(v)
	}

	return out
}

func Sigmoid(x *Tensor) *Tensor { return Map(x, SigmoidScalar) }

func Tanh(x *Tensor) *Tensor {
	return Map(x, func(v float32) float32 { return float32(math.Tanh(float64(v))) })
}

func ReLU(x *Tensor) *Tensor {
	return Map(x, func(v float32) float32 { return max(v, 0) })
}

// SigmoidScalar is the logistic function.
func SigmoidScalar(v float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(v))))
}

// Add returns a+b for tensors of identical shape.
func Add(a, b *Tensor) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, errors.New("tensor: add requires non-nil inputs")
	}

	if !equalShape(a.shape, b.shape) {
		return nil, fmt.Errorf("tensor: add shape mismatch %v vs %v", a.shape, b.shape)
	}

	out := a.Clone()
	Axpy(out.data, 1, b.data)

	return out, nil
}

// Scale multiplies every element in place and returns t.
func (t *Tensor) Scale(alpha float32) *Tensor {
	if len(t.data) > 0 {
		blas32.Scal(alpha, blas32.Vector{N: len(t.data), Inc: 1, Data: t.data})
	}

	return t
}

// DotProduct returns the dot product of two equal-length slices.
func DotProduct(a, b []float32) float32 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}

	return blas32.Dot(blas32.Vector{N: n, Inc: 1, Data: a[:n]}, blas32.Vector{N: n, Inc: 1, Data: b[:n]})
}

// Axpy computes dst += alpha * src element-wise.
// If src and dst lengths differ, the shorter length is used.
func Axpy(dst []float32, alpha float32, src []float32) {
	n := min(len(dst), len(src))
	if n == 0 || alpha == 0 {
		return
	}

	blas32.Axpy(alpha, blas32.Vector{N: n, Inc: 1, Data: src[:n]}, blas32.Vector{N: n, Inc: 1, Data: dst[:n]})
}
