package audio

import (
	"math"
	"testing"
)

func TestPreemphasisRoundTrip(t *testing.T) {
	in := []float32{0.1, 0.4, -0.2, 0.9, 0}

	pre := Preemphasis(in, 0.97)
	if math.Abs(float64(pre[1]-(0.4-0.97*0.1))) > 1e-6 {
		t.Fatalf("pre[1] = %v", pre[1])
	}

	back := Deemphasis(pre, 0.97)
	for i := range in {
		if math.Abs(float64(back[i]-in[i])) > 1e-5 {
			t.Errorf("sample %d = %v, want %v", i, back[i], in[i])
		}
	}
}

func TestPeakNormalize(t *testing.T) {
	got := PeakNormalize([]float32{0.25, -0.5, 0.1})
	want := []float32{0.5, -1, 0.2}

	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}

	silent := []float32{0, 0}
	if out := PeakNormalize(silent); out[0] != 0 || out[1] != 0 {
		t.Errorf("silence changed: %v", out)
	}
}
