package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"strings"
	"sync"

	"github.com/example/go-tacotron/internal/runtime/tensor"
	"github.com/example/go-tacotron/internal/safetensors"
)

// ErrMissingParameter is returned when a checkpoint lacks a parameter the
// model asks for.
var ErrMissingParameter = errors.New("nn: parameter missing from checkpoint")

// checkpointPrefix is stripped from names written by data-parallel wrappers.
const checkpointPrefix = "module."

// Init fills the data of a freshly created parameter of the given shape.
type Init func(rng *rand.Rand, shape []int64, data []float32)

// XavierUniform samples U(-a, a) with a = gain*sqrt(6/(fan_in+fan_out)).
// Trailing dimensions past the second count as receptive field.
func XavierUniform(gain float64) Init {
	return func(rng *rand.Rand, shape []int64, data []float32) {
		fanIn, fanOut := fans(shape)
		bound := gain * math.Sqrt(6/float64(fanIn+fanOut))
		fill(rng, data, bound)
	}
}

// Uniform samples U(-bound, bound).
func Uniform(bound float64) Init {
	return func(rng *rand.Rand, _ []int64, data []float32) {
		fill(rng, data, bound)
	}
}

// Constant sets every element to v.
func Constant(v float32) Init {
	return func(_ *rand.Rand, _ []int64, data []float32) {
		for i := range data {
			data[i] = v
		}
	}
}

func fill(rng *rand.Rand, data []float32, bound float64) {
	for i := range data {
		data[i] = float32((rng.Float64()*2 - 1) * bound)
	}
}

func fans(shape []int64) (fanIn, fanOut int64) {
	switch len(shape) {
	case 0:
		return 1, 1
	case 1:
		return shape[0], shape[0]
	}

	field := int64(1)
	for _, d := range shape[2:] {
		field *= d
	}

	return shape[1] * field, shape[0] * field
}

// VarStore owns every named parameter of a model. A fresh store creates
// parameters on first request with a seeded initializer; a store opened
// from a checkpoint serves them from the file instead.
type VarStore struct {
	mu       sync.Mutex
	rng      *rand.Rand
	vars     map[string]*tensor.Tensor
	order    []string
	source   *safetensors.Store
	metadata map[string]string
}

// NewVarStore returns an empty store whose initializers draw from seed.
func NewVarStore(seed int64) *VarStore {
	return &VarStore{
		rng:  rand.New(rand.NewSource(seed)),
		vars: make(map[string]*tensor.Tensor),
	}
}

// OpenVarStore serves parameters from a safetensors checkpoint.
func OpenVarStore(path string) (*VarStore, error) {
	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{StripPrefix: checkpointPrefix})
	if err != nil {
		return nil, err
	}

	return &VarStore{
		rng:      rand.New(rand.NewSource(0)),
		vars:     make(map[string]*tensor.Tensor),
		source:   store,
		metadata: store.Metadata(),
	}, nil
}

// Root returns the unprefixed path into the store.
func (vs *VarStore) Root() Path {
	return Path{vs: vs}
}

// Metadata returns the checkpoint metadata, or nil for a fresh store.
func (vs *VarStore) Metadata() map[string]string {
	return vs.metadata
}

// Names returns parameter names in creation order.
func (vs *VarStore) Names() []string {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	return slices.Clone(vs.order)
}

// Tensor returns a previously requested parameter.
func (vs *VarStore) Tensor(name string) (*tensor.Tensor, bool) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	t, ok := vs.vars[name]

	return t, ok
}

// NumParameters returns the total number of scalar parameters.
func (vs *VarStore) NumParameters() int {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	n := 0
	for _, t := range vs.vars {
		n += t.ElemCount()
	}

	return n
}

// Unused lists checkpoint tensors the model never asked for.
func (vs *VarStore) Unused() []string {
	if vs.source == nil {
		return nil
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()

	var out []string

	for _, name := range vs.source.Names() {
		if _, ok := vs.vars[name]; !ok {
			out = append(out, name)
		}
	}

	return out
}

// Save writes every parameter to path.
func (vs *VarStore) Save(path string, metadata map[string]string) error {
	vs.mu.Lock()

	tensors := make([]safetensors.Tensor, 0, len(vs.order))
	for _, name := range vs.order {
		t := vs.vars[name]
		tensors = append(tensors, safetensors.Tensor{Name: name, Shape: t.Shape(), Data: t.Data()})
	}

	vs.mu.Unlock()

	if err := safetensors.WriteFile(path, tensors, metadata); err != nil {
		return fmt.Errorf("nn: save %s: %w", path, err)
	}

	return nil
}

func (vs *VarStore) get(name string, init Init, shape []int64) (*tensor.Tensor, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if t, ok := vs.vars[name]; ok {
		if !slices.Equal(t.Shape(), shape) {
			return nil, fmt.Errorf("nn: parameter %q requested with shape %v, already created as %v", name, shape, t.Shape())
		}

		return t, nil
	}

	var t *tensor.Tensor

	if vs.source != nil {
		if !vs.source.Has(name) {
			return nil, fmt.Errorf("%w: %q", ErrMissingParameter, name)
		}

		st, err := vs.source.TensorWithShape(name, shape)
		if err != nil {
			return nil, fmt.Errorf("nn: %w", err)
		}

		t, err = tensor.New(st.Data, st.Shape)
		if err != nil {
			return nil, fmt.Errorf("nn: parameter %q: %w", name, err)
		}
	} else {
		var err error

		t, err = tensor.Zeros(shape)
		if err != nil {
			return nil, fmt.Errorf("nn: parameter %q: %w", name, err)
		}

		if init != nil {
			init(vs.rng, shape, t.RawData())
		}
	}

	vs.vars[name] = t
	vs.order = append(vs.order, name)

	return t, nil
}

// Path is a dotted prefix into a VarStore.
type Path struct {
	vs     *VarStore
	prefix string
}

// Sub returns a path extended by parts. Empty parts are skipped.
func (p Path) Sub(parts ...string) Path {
	prefix := p.prefix

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if prefix == "" {
			prefix = part
		} else {
			prefix += "." + part
		}
	}

	return Path{vs: p.vs, prefix: prefix}
}

// Index is Sub with an integer component, for layer lists.
func (p Path) Index(i int) Path {
	return p.Sub(fmt.Sprint(i))
}

// Name returns the fully qualified name of a parameter under p.
func (p Path) Name(name string) string {
	if p.prefix == "" {
		return name
	}

	return p.prefix + "." + name
}

// Get returns the named parameter, creating or loading it on first use.
func (p Path) Get(name string, init Init, shape ...int64) (*tensor.Tensor, error) {
	if p.vs == nil {
		return nil, errors.New("nn: path has no store")
	}

	return p.vs.get(p.Name(name), init, shape)
}
