package tacotron

import (
	"math"
	"testing"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/nn"
	"github.com/example/go-tacotron/internal/runtime/tensor"
)

func mustTensor(t *testing.T, data []float32, shape ...int64) *tensor.Tensor {
	t.Helper()

	x, err := tensor.New(data, shape)
	if err != nil {
		t.Fatalf("tensor.New: %v", err)
	}

	return x
}

func TestMeanSquaredError(t *testing.T) {
	pred := mustTensor(t, []float32{1, 2, 3, 4}, 1, 2, 2)
	target := mustTensor(t, []float32{1, 0, 3, 2}, 1, 2, 2)

	got, err := meanSquaredError(pred, target)
	if err != nil {
		t.Fatalf("meanSquaredError: %v", err)
	}

	if got != 2 {
		t.Fatalf("mse = %v, want 2", got)
	}

	if _, err := meanSquaredError(pred, mustTensor(t, []float32{1}, 1)); err == nil {
		t.Fatal("expected shape error")
	}
}

func TestWeightedBCEWithLogits(t *testing.T) {
	logits := mustTensor(t, []float32{0}, 1, 1)

	pos, err := weightedBCEWithLogits(logits, mustTensor(t, []float32{1}, 1, 1), stopPositiveWeight)
	if err != nil {
		t.Fatal(err)
	}

	if !near(pos, 100*math.Ln2, 1e-9) {
		t.Fatalf("positive loss = %v, want %v", pos, 100*math.Ln2)
	}

	neg, err := weightedBCEWithLogits(logits, mustTensor(t, []float32{0}, 1, 1), stopPositiveWeight)
	if err != nil {
		t.Fatal(err)
	}

	if !near(neg, math.Ln2, 1e-9) {
		t.Fatalf("negative loss = %v, want ln 2", neg)
	}

	// Large logits must not overflow.
	big, err := weightedBCEWithLogits(mustTensor(t, []float32{1000}, 1, 1), mustTensor(t, []float32{0}, 1, 1), 1)
	if err != nil || math.IsInf(big, 0) || !near(big, 1000, 1e-6) {
		t.Fatalf("saturated loss = %v (%v), want 1000", big, err)
	}
}

func TestGuidedAttentionPrefersDiagonal(t *testing.T) {
	cfg := tinyConfig()
	cfg.Training.GuidedAttentionLoss = true
	cfg.Training.GuidedAttentionSteps = 10
	cfg.Training.GuidedAttentionToleration = 0.25
	cfg.Training.GuidedAttentionGain = 1.5

	const n = 4

	diag := tensor.MustZeros(1, n, n)
	anti := tensor.MustZeros(1, n, n)

	for i := range n {
		diag.Set(1, 0, i, i)
		anti.Set(1, 0, i, n-1-i)
	}

	l := NewLoss(cfg)
	lengths := []int{n}

	d := l.guidedAttention(diag, lengths, lengths)
	a := l.guidedAttention(anti, lengths, lengths)

	if d != 0 {
		t.Fatalf("diagonal penalty = %v, want 0", d)
	}

	if a <= d {
		t.Fatalf("anti-diagonal penalty %v should exceed diagonal %v", a, d)
	}

	l.UpdateStates()

	if !near(l.sigma, 0.375, 1e-12) || l.steps != 9 {
		t.Fatalf("after update sigma = %v steps = %d", l.sigma, l.steps)
	}

	if wider := l.guidedAttention(anti, lengths, lengths); wider >= a {
		t.Fatalf("wider band penalty %v should be below %v", wider, a)
	}

	l.steps = 1
	l.UpdateStates()
	l.UpdateStates()

	if l.steps != 0 {
		t.Fatalf("steps = %d, want 0", l.steps)
	}

	if got := l.guidedAttention(anti, lengths, lengths); got != 0 {
		t.Fatalf("penalty after schedule = %v, want 0", got)
	}
}

func TestClassifierLossIgnoresPadding(t *testing.T) {
	// Row 1 has a confident wrong prediction in its padded position.
	logits := mustTensor(t, []float32{
		0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 50, -50,
	}, 2, 2, 3)

	got, err := ClassifierLoss([]int{2, 1}, []int{0, 2}, logits)
	if err != nil {
		t.Fatalf("ClassifierLoss: %v", err)
	}

	if !near(got, math.Log(3), 1e-6) {
		t.Fatalf("loss = %v, want ln 3", got)
	}

	if _, err := ClassifierLoss([]int{2, 1}, []int{0, 3}, logits); err == nil {
		t.Fatal("expected out of range language error")
	}
}

func TestGradientReversalBackward(t *testing.T) {
	g := GradientReversal{Lambda: 2, Clip: 0.25}
	in := mustTensor(t, []float32{-1, 0.1, 0.5}, 3)

	if g.Forward(in) != in {
		t.Fatal("forward pass should be the identity")
	}

	want := []float32{0.5, -0.2, -0.5}
	for i, v := range g.Backward(in).Data() {
		if !near(float64(v), float64(want[i]), 1e-6) {
			t.Fatalf("grad[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestKLDivergenceOfStandardNormal(t *testing.T) {
	zero := tensor.MustZeros(2, 3)
	if got := KLDivergence(zero, zero); got != 0 {
		t.Fatalf("KL = %v, want 0", got)
	}

	mean := mustTensor(t, []float32{1, 1}, 1, 2)
	if got := KLDivergence(mean, tensor.MustZeros(1, 2)); !near(got, 0.5, 1e-9) {
		t.Fatalf("KL = %v, want 0.5", got)
	}
}

func TestTeacherForcingRatio(t *testing.T) {
	tc := config.TrainingConfig{TeacherForcing: 0.8, ConstantTeacherForcing: true}
	if got := TeacherForcingRatio(tc, 1e6); got != 0.8 {
		t.Fatalf("constant ratio = %v", got)
	}

	tc.ConstantTeacherForcing = false
	tc.TeacherForcingStartSteps = 100
	tc.TeacherForcingSteps = 200

	for _, tt := range []struct {
		step int
		want float64
	}{
		{0, 0.8},
		{100, 0.8},
		{200, 0.4},
		{300, 0},
		{1000, 0},
	} {
		if got := TeacherForcingRatio(tc, tt.step); !near(got, tt.want, 1e-12) {
			t.Fatalf("step %d: ratio = %v, want %v", tt.step, got, tt.want)
		}
	}
}

func sineMemory(steps, dim int64) *tensor.Tensor {
	memory := tensor.MustZeros(1, steps, dim)
	for i := range memory.RawData() {
		memory.RawData()[i] = float32(math.Sin(float64(i)))
	}

	return memory
}

func TestForwardAttentionAdvancesAtMostOneStep(t *testing.T) {
	for _, kind := range []string{config.AttentionForward, config.AttentionForwardTransition} {
		t.Run(kind, func(t *testing.T) {
			cfg := tinyConfig()
			cfg.Model.AttentionType = kind

			attn, err := NewAttention(nn.NewVarStore(3).Root(), cfg.Model, 4)
			if err != nil {
				t.Fatalf("NewAttention: %v", err)
			}

			state, err := attn.Start(sineMemory(6, 4), lengthsMask([]int{6}, 6))
			if err != nil {
				t.Fatalf("Start: %v", err)
			}

			query := tensor.MustZeros(1, int64(cfg.Model.DecoderDimension))
			prenet := tensor.MustZeros(1, int64(cfg.Model.PrenetDimension))

			for step := range 3 {
				_, weights, err := state.Step(query, prenet)
				if err != nil {
					t.Fatalf("Step %d: %v", step, err)
				}

				for pos, w := range weights.Row(0) {
					if pos > step+1 && w != 0 {
						t.Fatalf("step %d reached position %d (weight %v)", step, pos, w)
					}
				}
			}
		})
	}
}

func TestTransitionAgentControlsAdvance(t *testing.T) {
	tests := []struct {
		name  string
		bias  float32
		check func(step, pos int) bool // reports positions that must be empty
	}{
		{"agent holds position", -20, func(_, pos int) bool { return pos >= 2 }},
		{"agent always advances", 20, func(step, pos int) bool { return step > 0 && pos < step }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tinyConfig()
			cfg.Model.AttentionType = config.AttentionForwardTransition

			attn, err := NewAttention(nn.NewVarStore(9).Root(), cfg.Model, 4)
			if err != nil {
				t.Fatalf("NewAttention: %v", err)
			}

			agent := attn.(*ForwardTransitionAttention).agent
			clear(agent.Weight.RawData())
			agent.Bias.RawData()[0] = tt.bias

			state, err := attn.Start(sineMemory(7, 4), nil)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}

			query := tensor.MustZeros(1, int64(cfg.Model.DecoderDimension))
			prenet := tensor.MustZeros(1, int64(cfg.Model.PrenetDimension))

			if _, _, err := state.Step(query, nil); err == nil {
				t.Fatal("Step without prenet output succeeded")
			}

			for step := range 4 {
				_, weights, err := state.Step(query, prenet)
				if err != nil {
					t.Fatalf("Step %d: %v", step, err)
				}

				for pos, w := range weights.Row(0) {
					if tt.check(step, pos) && w > 1e-6 {
						t.Fatalf("step %d: position %d has weight %v", step, pos, w)
					}
				}
			}
		})
	}
}

func TestLocationSensitiveAttentionMasksPadding(t *testing.T) {
	cfg := tinyConfig()

	attn, err := NewAttention(nn.NewVarStore(5).Root(), cfg.Model, 4)
	if err != nil {
		t.Fatalf("NewAttention: %v", err)
	}

	memory := tensor.MustZeros(2, 5, 4)
	for i := range memory.RawData() {
		memory.RawData()[i] = float32(i%7) * 0.1
	}

	state, err := attn.Start(memory, lengthsMask([]int{5, 2}, 5))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	query := tensor.MustZeros(2, int64(cfg.Model.DecoderDimension))

	for step := range 3 {
		context, weights, err := state.Step(query, nil)
		if err != nil {
			t.Fatalf("Step %d: %v", step, err)
		}

		if !shapeIs(context, 2, 4) {
			t.Fatalf("context shape %v", context.Shape())
		}

		for b, n := range []int{5, 2} {
			var sum float64

			for pos, w := range weights.Row(b) {
				if pos >= n && w != 0 {
					t.Fatalf("row %d position %d has weight %v", b, pos, w)
				}

				sum += float64(w)
			}

			if !near(sum, 1, 1e-5) {
				t.Fatalf("row %d weights sum to %v", b, sum)
			}
		}
	}
}
