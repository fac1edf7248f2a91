package tensor

import (
	"errors"
	"fmt"
)

// Tensor is a dense, row-major float32 tensor. It backs every activation and
// parameter of the Tacotron model.
type Tensor struct {
	shape []int64
	data  []float32
}

// New creates a tensor from data and shape.
func New(data []float32, shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if len(data) != total {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)", len(data), shape, total)
	}

	s := append([]int64(nil), shape...)
	d := append([]float32(nil), data...)

	return &Tensor{shape: s, data: d}, nil
}

// newOwned creates a Tensor taking ownership of the provided data and shape
// slices without copying. len(data) must equal the product of shape elements.
func newOwned(data []float32, shape []int64) *Tensor {
	return &Tensor{shape: shape, data: data}
}

// Zeros creates a zero-initialized tensor.
func Zeros(shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	return &Tensor{
		shape: append([]int64(nil), shape...),
		data:  make([]float32, total),
	}, nil
}

// MustZeros is Zeros for shapes known to be valid at the call site.
func MustZeros(shape ...int64) *Tensor {
	t, err := Zeros(shape)
	if err != nil {
		panic(err)
	}

	return t
}

// Full creates a tensor filled with value.
func Full(shape []int64, value float32) (*Tensor, error) {
	t, err := Zeros(shape)
	if err != nil {
		return nil, err
	}

	for i := range t.data {
		t.data[i] = value
	}

	return t, nil
}

func (t *Tensor) Shape() []int64 {
	if t == nil {
		return nil
	}

	return append([]int64(nil), t.shape...)
}

// Dim returns the size of dimension dim. Negative dims count from the end.
func (t *Tensor) Dim(dim int) int {
	if t == nil {
		return 0
	}

	d, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return 0
	}

	return int(t.shape[d])
}

// Data returns a copy of the underlying tensor data.
func (t *Tensor) Data() []float32 {
	if t == nil {
		return nil
	}

	return append([]float32(nil), t.data...)
}

// RawData returns the underlying data slice. Writes through it mutate the
// tensor.
func (t *Tensor) RawData() []float32 {
	if t == nil {
		return nil
	}

	return t.data
}

func (t *Tensor) ElemCount() int {
	if t == nil {
		return 0
	}

	return len(t.data)
}

func (t *Tensor) Rank() int {
	if t == nil {
		return 0
	}

	return len(t.shape)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}

	return newOwned(append([]float32(nil), t.data...), append([]int64(nil), t.shape...))
}

// Reshape returns a tensor with a new shape and copied values.
func (t *Tensor) Reshape(shape []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: reshape on nil tensor")
	}

	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if total != len(t.data) {
		return nil, fmt.Errorf("tensor: cannot reshape %v (%d elements) to %v (%d elements)", t.shape, len(t.data), shape, total)
	}

	return &Tensor{shape: append([]int64(nil), shape...), data: append([]float32(nil), t.data...)}, nil
}

// Row returns the contiguous slab addressed by index i of the leading
// dimension. The slice aliases the tensor storage.
func (t *Tensor) Row(i int) []float32 {
	if t == nil || len(t.shape) == 0 {
		return nil
	}

	stride := len(t.data) / int(t.shape[0])

	return t.data[i*stride : (i+1)*stride]
}

// At returns the element at the given coordinates.
func (t *Tensor) At(coord ...int) float32 {
	return t.data[t.offset(coord)]
}

// Set writes v at the given coordinates.
func (t *Tensor) Set(v float32, coord ...int) {
	t.data[t.offset(coord)] = v
}

func (t *Tensor) offset(coord []int) int {
	if len(coord) != len(t.shape) {
		panic(fmt.Sprintf("tensor: %d coordinates for rank %d", len(coord), len(t.shape)))
	}

	off := 0
	for i, c := range coord {
		if c < 0 || int64(c) >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for dim %d size %d", c, i, t.shape[i]))
		}

		off = off*int(t.shape[i]) + c
	}

	return off
}

// FromRows stacks equal-length rows into a [len(rows), len(rows[0])] tensor.
func FromRows(rows [][]float32) (*Tensor, error) {
	if len(rows) == 0 {
		return nil, errors.New("tensor: from rows requires at least one row")
	}

	width := len(rows[0])
	data := make([]float32, 0, len(rows)*width)

	for i, r := range rows {
		if len(r) != width {
			return nil, fmt.Errorf("tensor: row %d has length %d, want %d", i, len(r), width)
		}

		data = append(data, r...)
	}

	return newOwned(data, []int64{int64(len(rows)), int64(width)}), nil
}
