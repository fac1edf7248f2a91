package tensor

import (
	"math"
	"testing"
)

func TestNewRejectsShapeMismatch(t *testing.T) {
	if _, err := New([]float32{1, 2, 3}, []int64{2, 2}); err == nil {
		t.Fatal("expected error for data/shape mismatch")
	}
}

func TestRowAliasesStorage(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})

	row := x.Row(1)
	if !equalF32(row, []float32{4, 5, 6}, 0) {
		t.Fatalf("row = %v, want [4 5 6]", row)
	}

	row[0] = 40
	if x.At(1, 0) != 40 {
		t.Fatalf("At(1,0) = %v, want 40", x.At(1, 0))
	}
}

func TestTranspose2D(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})

	y, err := x.Transpose(0, 1)
	if err != nil {
		t.Fatalf("transpose: %v", err)
	}

	if got := y.Shape(); !equalI64(got, []int64{3, 2}) {
		t.Fatalf("shape = %v, want [3 2]", got)
	}

	want := []float32{1, 4, 2, 5, 3, 6}
	if got := y.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestConcatLastDim(t *testing.T) {
	a, _ := New([]float32{1, 2, 3, 4}, []int64{2, 2})
	b, _ := New([]float32{5, 6}, []int64{2, 1})

	out, err := Concat([]*Tensor{a, b}, -1)
	if err != nil {
		t.Fatalf("concat: %v", err)
	}

	want := []float32{1, 2, 5, 3, 4, 6}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestNarrow(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4, 5, 6}, []int64{1, 3, 2})

	out, err := x.Narrow(1, 1, 2)
	if err != nil {
		t.Fatalf("narrow: %v", err)
	}

	if got := out.Shape(); !equalI64(got, []int64{1, 2, 2}) {
		t.Fatalf("shape = %v, want [1 2 2]", got)
	}

	want := []float32{3, 4, 5, 6}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestIndexSelect(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4, 5, 6}, []int64{3, 2})

	out, err := x.IndexSelect([]int{2, 0})
	if err != nil {
		t.Fatalf("index select: %v", err)
	}

	if got := out.Data(); !equalF32(got, []float32{5, 6, 1, 2}, 0) {
		t.Fatalf("data = %v", got)
	}

	if _, err := x.IndexSelect([]int{3}); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestExpandTime(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4}, []int64{2, 2})

	out, err := ExpandTime(x, 3)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	if got := out.Shape(); !equalI64(got, []int64{2, 3, 2}) {
		t.Fatalf("shape = %v", got)
	}

	want := []float32{1, 2, 1, 2, 1, 2, 3, 4, 3, 4, 3, 4}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestSoftmax(t *testing.T) {
	x, _ := New([]float32{1, 2, 3}, []int64{1, 3})

	out, err := Softmax(x)
	if err != nil {
		t.Fatalf("softmax: %v", err)
	}

	want := []float32{0.09003057, 0.24472848, 0.66524094}
	if got := out.Data(); !equalF32(got, want, 1e-5) {
		t.Fatalf("softmax = %v, want ~%v", got, want)
	}
}

func TestMaskedSoftmaxZeroesPadding(t *testing.T) {
	x, _ := New([]float32{5, 1, 100, 2, 2, 2}, []int64{2, 3})
	mask := [][]bool{{true, true, false}, {false, false, false}}

	out, err := MaskedSoftmax(x, mask)
	if err != nil {
		t.Fatalf("masked softmax: %v", err)
	}

	got := out.Data()
	if got[2] != 0 {
		t.Fatalf("masked position weight = %v, want 0", got[2])
	}

	if sum := got[0] + got[1]; math.Abs(float64(sum-1)) > 1e-6 {
		t.Fatalf("valid weights sum = %v, want 1", sum)
	}

	if !equalF32(got[3:], []float32{0, 0, 0}, 0) {
		t.Fatalf("fully masked row = %v, want zeros", got[3:])
	}
}

func TestLinear(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4}, []int64{2, 2})
	w, _ := New([]float32{1, 0, 0, 1, 1, 1}, []int64{3, 2})
	b, _ := New([]float32{0.5, 0, -1}, []int64{3})

	out, err := Linear(x, w, b)
	if err != nil {
		t.Fatalf("linear: %v", err)
	}

	if got := out.Shape(); !equalI64(got, []int64{2, 3}) {
		t.Fatalf("shape = %v, want [2 3]", got)
	}

	want := []float32{1.5, 2, 2, 3.5, 4, 6}
	if got := out.Data(); !equalF32(got, want, 1e-6) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestLinearParallelMatchesSerial(t *testing.T) {
	const rows, in, outDim = 300, 7, 5

	xData := make([]float32, rows*in)
	for i := range xData {
		xData[i] = float32(i%13) / 13
	}

	wData := make([]float32, outDim*in)
	for i := range wData {
		wData[i] = float32(i%5) - 2
	}

	x, _ := New(xData, []int64{rows, in})
	w, _ := New(wData, []int64{outDim, in})

	serial, err := Linear(x, w, nil)
	if err != nil {
		t.Fatalf("serial linear: %v", err)
	}

	SetWorkers(4)
	defer SetWorkers(1)

	parallel, err := Linear(x, w, nil)
	if err != nil {
		t.Fatalf("parallel linear: %v", err)
	}

	if !equalF32(serial.Data(), parallel.Data(), 1e-5) {
		t.Fatal("parallel linear differs from serial result")
	}
}

func TestActivations(t *testing.T) {
	x, _ := New([]float32{-1, 0, 2}, []int64{3})

	if got := ReLU(x).Data(); !equalF32(got, []float32{0, 0, 2}, 0) {
		t.Fatalf("relu = %v", got)
	}

	if got := Sigmoid(x).Data(); !equalF32(got, []float32{0.26894142, 0.5, 0.880797}, 1e-6) {
		t.Fatalf("sigmoid = %v", got)
	}

	if got := Tanh(x).Data(); !equalF32(got, []float32{-0.7615942, 0, 0.9640276}, 1e-6) {
		t.Fatalf("tanh = %v", got)
	}
}
