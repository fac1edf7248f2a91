package nn

import (
	"fmt"
	"math"

	"github.com/example/go-tacotron/internal/runtime/tensor"
)

// LSTMState is the hidden and cell state of a batch, each [B, hidden].
type LSTMState struct {
	H *tensor.Tensor
	C *tensor.Tensor
}

// LSTMCell uses PyTorch gate order (input, forget, cell, output).
type LSTMCell struct {
	WeightIH *tensor.Tensor // [4*hidden, in]
	WeightHH *tensor.Tensor // [4*hidden, hidden]
	BiasIH   *tensor.Tensor // [4*hidden]
	BiasHH   *tensor.Tensor // [4*hidden]
	Hidden   int
}

func NewLSTMCell(p Path, in, hidden int) (*LSTMCell, error) {
	init := Uniform(1 / math.Sqrt(float64(hidden)))
	gates := int64(4 * hidden)

	wih, err := p.Get("weight_ih", init, gates, int64(in))
	if err != nil {
		return nil, err
	}

	whh, err := p.Get("weight_hh", init, gates, int64(hidden))
	if err != nil {
		return nil, err
	}

	bih, err := p.Get("bias_ih", init, gates)
	if err != nil {
		return nil, err
	}

	bhh, err := p.Get("bias_hh", init, gates)
	if err != nil {
		return nil, err
	}

	return &LSTMCell{WeightIH: wih, WeightHH: whh, BiasIH: bih, BiasHH: bhh, Hidden: hidden}, nil
}

func (c *LSTMCell) ZeroState(batch int) LSTMState {
	return LSTMState{
		H: tensor.MustZeros(int64(batch), int64(c.Hidden)),
		C: tensor.MustZeros(int64(batch), int64(c.Hidden)),
	}
}

// Step advances the cell by one time step for x [B, in].
func (c *LSTMCell) Step(x *tensor.Tensor, s LSTMState) (LSTMState, error) {
	gi, err := tensor.Linear(x, c.WeightIH, c.BiasIH)
	if err != nil {
		return LSTMState{}, fmt.Errorf("nn: lstm input gates: %w", err)
	}

	gh, err := tensor.Linear(s.H, c.WeightHH, c.BiasHH)
	if err != nil {
		return LSTMState{}, fmt.Errorf("nn: lstm hidden gates: %w", err)
	}

	gates := gi.RawData()
	tensor.Axpy(gates, 1, gh.RawData())

	batch, hid := x.Dim(0), c.Hidden
	h := tensor.MustZeros(int64(batch), int64(hid))
	cell := tensor.MustZeros(int64(batch), int64(hid))
	prevC := s.C.RawData()

	for b := range batch {
		g := gates[b*4*hid : (b+1)*4*hid]
		hRow := h.Row(b)
		cRow := cell.Row(b)

		for j := range hid {
			i := tensor.SigmoidScalar(g[j])
			f := tensor.SigmoidScalar(g[hid+j])
			u := float32(math.Tanh(float64(g[2*hid+j])))
			o := tensor.SigmoidScalar(g[3*hid+j])

			cRow[j] = f*prevC[b*hid+j] + i*u
			hRow[j] = o * float32(math.Tanh(float64(cRow[j])))
		}
	}

	return LSTMState{H: h, C: cell}, nil
}

// RecurrentCell is an LSTM cell with a regularization scheme that only
// acts in training mode.
type RecurrentCell interface {
	ZeroState(batch int) LSTMState
	Step(x *tensor.Tensor, s LSTMState, m Mode) (LSTMState, error)
}

// DropoutLSTMCell applies dropout to the new hidden state.
type DropoutLSTMCell struct {
	Cell    *LSTMCell
	Dropout float64
}

func (c *DropoutLSTMCell) ZeroState(batch int) LSTMState { return c.Cell.ZeroState(batch) }

func (c *DropoutLSTMCell) Step(x *tensor.Tensor, s LSTMState, m Mode) (LSTMState, error) {
	next, err := c.Cell.Step(x, s)
	if err != nil {
		return LSTMState{}, err
	}

	next.H = m.Dropout(next.H, c.Dropout)

	return next, nil
}

// ZoneoutLSTMCell keeps each unit of the previous state with probability
// Hidden (for h) or Memory (for c) during training, and mixes old and new
// states by the same rates otherwise.
type ZoneoutLSTMCell struct {
	Cell   *LSTMCell
	Hidden float64
	Memory float64
}

func (c *ZoneoutLSTMCell) ZeroState(batch int) LSTMState { return c.Cell.ZeroState(batch) }

func (c *ZoneoutLSTMCell) Step(x *tensor.Tensor, s LSTMState, m Mode) (LSTMState, error) {
	next, err := c.Cell.Step(x, s)
	if err != nil {
		return LSTMState{}, err
	}

	zoneout(next.H, s.H, c.Hidden, m)
	zoneout(next.C, s.C, c.Memory, m)

	return next, nil
}

func zoneout(next, prev *tensor.Tensor, rate float64, m Mode) {
	if rate <= 0 {
		return
	}

	nd, pd := next.RawData(), prev.RawData()

	if m.Training {
		for i := range nd {
			if m.RNG.Float64() < rate {
				nd[i] = pd[i]
			}
		}

		return
	}

	z := float32(rate)
	for i := range nd {
		nd[i] = z*pd[i] + (1-z)*nd[i]
	}
}

// BiLSTM runs one LSTM cell forward and another backward over each
// sequence, honouring per-example lengths. Outputs past a sequence's
// length are zero.
type BiLSTM struct {
	Fwd *LSTMCell
	Bwd *LSTMCell
}

func NewBiLSTM(p Path, in, hidden int) (*BiLSTM, error) {
	fwd, err := NewLSTMCell(p.Sub("forward"), in, hidden)
	if err != nil {
		return nil, err
	}

	bwd, err := NewLSTMCell(p.Sub("backward"), in, hidden)
	if err != nil {
		return nil, err
	}

	return &BiLSTM{Fwd: fwd, Bwd: bwd}, nil
}

// Run maps x [B, T, in] to [B, T, 2*hidden].
func (l *BiLSTM) Run(x *tensor.Tensor, lengths []int) (*tensor.Tensor, error) {
	if x.Rank() != 3 {
		return nil, fmt.Errorf("nn: bilstm expects [B, T, D] input, got %v", x.Shape())
	}

	batch, steps, in := x.Dim(0), x.Dim(1), x.Dim(2)
	if len(lengths) != batch {
		return nil, fmt.Errorf("nn: bilstm got %d lengths for batch %d", len(lengths), batch)
	}

	hid := l.Fwd.Hidden
	out := tensor.MustZeros(int64(batch), int64(steps), int64(2*hid))
	xd, od := x.RawData(), out.RawData()

	run := func(cell *LSTMCell, t int, s LSTMState, offset int) (LSTMState, error) {
		step := tensor.MustZeros(int64(batch), int64(in))
		for b := range batch {
			copy(step.Row(b), xd[(b*steps+t)*in:(b*steps+t+1)*in])
		}

		next, err := cell.Step(step, s)
		if err != nil {
			return LSTMState{}, err
		}

		for b := range batch {
			if t >= lengths[b] {
				copy(next.H.Row(b), s.H.Row(b))
				copy(next.C.Row(b), s.C.Row(b))

				continue
			}

			copy(od[(b*steps+t)*2*hid+offset:], next.H.Row(b))
		}

		return next, nil
	}

	var err error

	s := l.Fwd.ZeroState(batch)
	for t := range steps {
		if s, err = run(l.Fwd, t, s, 0); err != nil {
			return nil, err
		}
	}

	s = l.Bwd.ZeroState(batch)
	for t := steps - 1; t >= 0; t-- {
		if s, err = run(l.Bwd, t, s, hid); err != nil {
			return nil, err
		}
	}

	return out, nil
}
