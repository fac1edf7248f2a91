package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/example/go-tacotron/internal/runtime/tensor"
)

func TestLSTMCellKnownValues(t *testing.T) {
	vs := NewVarStore(0)

	cell, err := NewLSTMCell(vs.Root().Sub("cell"), 1, 1)
	if err != nil {
		t.Fatalf("NewLSTMCell: %v", err)
	}

	// Every gate pre-activation is x: i=f=o=σ(x), g=tanh(x).
	copy(cell.WeightIH.RawData(), []float32{1, 1, 1, 1})
	clear(cell.WeightHH.RawData())
	clear(cell.BiasIH.RawData())
	clear(cell.BiasHH.RawData())

	x := mustTensor(t, []float32{0.5}, 1, 1)

	s, err := cell.Step(x, cell.ZeroState(1))
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	sig := 1 / (1 + math.Exp(-0.5))
	wantC := sig * math.Tanh(0.5)
	wantH := sig * math.Tanh(wantC)

	if got := s.C.At(0, 0); math.Abs(float64(got)-wantC) > 1e-6 {
		t.Fatalf("c = %v, want %v", got, wantC)
	}

	if got := s.H.At(0, 0); math.Abs(float64(got)-wantH) > 1e-6 {
		t.Fatalf("h = %v, want %v", got, wantH)
	}
}

func TestZoneoutEvalMixesStates(t *testing.T) {
	prev := mustTensor(t, []float32{1, 1}, 1, 2)
	next := mustTensor(t, []float32{0, 3}, 1, 2)

	zoneout(next, prev, 0.25, Mode{})

	if !approx(next.Data(), []float32{0.25, 2.5}, 1e-6) {
		t.Fatalf("zoneout eval = %v, want [0.25 2.5]", next.Data())
	}
}

func TestZoneoutTrainingPicksOldOrNew(t *testing.T) {
	prev := mustTensor(t, []float32{1, 1, 1, 1, 1, 1}, 1, 6)
	next := mustTensor(t, []float32{2, 2, 2, 2, 2, 2}, 1, 6)

	zoneout(next, prev, 0.5, Mode{Training: true, RNG: rand.New(rand.NewSource(3))})

	for _, v := range next.Data() {
		if v != 1 && v != 2 {
			t.Fatalf("zoneout training value %v, want 1 or 2", v)
		}
	}
}

func TestRecurrentCellsEvalDeterministic(t *testing.T) {
	vs := NewVarStore(5)

	base, err := NewLSTMCell(vs.Root().Sub("cell"), 3, 4)
	if err != nil {
		t.Fatalf("NewLSTMCell: %v", err)
	}

	x := mustTensor(t, []float32{1, 2, 3, -1, 0, 1}, 2, 3)

	for _, cell := range []RecurrentCell{
		&DropoutLSTMCell{Cell: base, Dropout: 0.5},
		&ZoneoutLSTMCell{Cell: base, Hidden: 0.1, Memory: 0.1},
	} {
		a, err := cell.Step(x, cell.ZeroState(2), Mode{})
		if err != nil {
			t.Fatalf("Step: %v", err)
		}

		b, err := cell.Step(x, cell.ZeroState(2), Mode{})
		if err != nil {
			t.Fatalf("Step: %v", err)
		}

		if !approx(a.H.Data(), b.H.Data(), 0) {
			t.Fatalf("%T eval step is not deterministic", cell)
		}
	}
}

func TestBiLSTMRespectsLengths(t *testing.T) {
	vs := NewVarStore(6)

	l, err := NewBiLSTM(vs.Root().Sub("lstm"), 2, 3)
	if err != nil {
		t.Fatalf("NewBiLSTM: %v", err)
	}

	// Row 1 equals row 0's first two steps followed by padding.
	x := mustTensor(t, []float32{
		1, 0, 0, 1, 1, 1, 0.5, -0.5,
		1, 0, 0, 1, 0, 0, 0, 0,
	}, 2, 4, 2)

	out, err := l.Run(x, []int{4, 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := out.Shape(); got[0] != 2 || got[1] != 4 || got[2] != 6 {
		t.Fatalf("shape = %v, want [2 4 6]", got)
	}

	for tt := 2; tt < 4; tt++ {
		for k := range 6 {
			if v := out.At(1, tt, k); v != 0 {
				t.Fatalf("padded output [1,%d,%d] = %v, want 0", tt, k, v)
			}
		}
	}

	short, err := l.Run(mustTensor(t, []float32{1, 0, 0, 1}, 1, 2, 2), []int{2})
	if err != nil {
		t.Fatalf("Run short: %v", err)
	}

	row1, err := out.Narrow(0, 1, 1)
	if err != nil {
		t.Fatalf("Narrow: %v", err)
	}

	row1, err = row1.Narrow(1, 0, 2)
	if err != nil {
		t.Fatalf("Narrow: %v", err)
	}

	if !approx(row1.Data(), short.Data(), 1e-6) {
		t.Fatalf("padded run %v differs from unpadded %v", row1.Data(), short.Data())
	}

	if _, err := l.Run(tensor.MustZeros(1, 2, 2), []int{1, 2}); err == nil {
		t.Fatal("expected length count error")
	}
}
