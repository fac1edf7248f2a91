package safetensors

import (
	"errors"
	"fmt"
)

// Tensor holds a single float32 tensor.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// LoadFirstTensor reads a safetensors file and returns the tensor whose name
// sorts first. Single-tensor files such as cached spectrograms use this.
func LoadFirstTensor(path string) (*Tensor, error) {
	store, err := OpenStore(path, StoreOptions{})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.Tensor(store.names[0])
}

// LoadFirstTensorFromBytes is LoadFirstTensor for an in-memory payload.
func LoadFirstTensorFromBytes(data []byte) (*Tensor, error) {
	store, err := OpenStoreFromBytes(data, StoreOptions{})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.Tensor(store.names[0])
}

// Matrix returns a rank-2 tensor as rows. The rows alias t.Data.
func (t *Tensor) Matrix() ([][]float32, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("safetensors: tensor %q has shape %v, want rank 2", t.Name, t.Shape)
	}

	rows, cols := int(t.Shape[0]), int(t.Shape[1])
	out := make([][]float32, rows)

	for r := range rows {
		out[r] = t.Data[r*cols : (r+1)*cols : (r+1)*cols]
	}

	return out, nil
}

// MatrixTensor packs equal-length rows into a rank-2 tensor.
func MatrixTensor(name string, rows [][]float32) (Tensor, error) {
	if len(rows) == 0 {
		return Tensor{}, errors.New("safetensors: matrix has no rows")
	}

	cols := len(rows[0])
	data := make([]float32, 0, len(rows)*cols)

	for r, row := range rows {
		if len(row) != cols {
			return Tensor{}, fmt.Errorf("safetensors: matrix row %d has %d columns, want %d", r, len(row), cols)
		}

		data = append(data, row...)
	}

	return Tensor{Name: name, Shape: []int64{int64(len(rows)), int64(cols)}, Data: data}, nil
}
