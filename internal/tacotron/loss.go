package tacotron

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/dataset"
	"github.com/example/go-tacotron/internal/runtime/tensor"
)

// stopPositiveWeight balances the rare positive stop targets.
const stopPositiveWeight = 100

// Loss term names reported by Loss.Compute.
const (
	LossMelPre    = "mel_pre"
	LossMelPost   = "mel_pos"
	LossStopToken = "stop_token"
	LossLangClass = "lang_class"
	LossGuidedAtt = "guided_att"
	LossLatent    = "latent"
)

// Loss combines the training objectives. It is stateful: the guided
// attention band widens by a constant factor on every UpdateStates call
// and switches off after a fixed number of calls.
type Loss struct {
	cfg   config.Config
	sigma float64
	gain  float64
	steps int
}

func NewLoss(cfg config.Config) *Loss {
	return &Loss{
		cfg:   cfg,
		sigma: cfg.Training.GuidedAttentionToleration,
		gain:  cfg.Training.GuidedAttentionGain,
		steps: cfg.Training.GuidedAttentionSteps,
	}
}

// UpdateStates advances the guided attention schedule by one step.
func (l *Loss) UpdateStates() {
	l.sigma *= l.gain
	l.steps = max(0, l.steps-1)
}

// Compute returns the total loss and its named terms.
func (l *Loss) Compute(batch *dataset.Batch, out *Output) (float64, map[string]float64, error) {
	if batch == nil || out == nil {
		return 0, nil, errors.New("tacotron: loss needs a batch and model output")
	}

	mc := l.cfg.Model
	scale := float64(l.cfg.Audio.NumMels + 2)

	postTarget := batch.Mel
	if mc.PredictLinear {
		if batch.Linear == nil {
			return 0, nil, errors.New("tacotron: batch has no linear spectrograms")
		}

		postTarget = batch.Linear
	}

	pre, err := meanSquaredError(out.Pre, batch.Mel)
	if err != nil {
		return 0, nil, fmt.Errorf("tacotron: %s: %w", LossMelPre, err)
	}

	post, err := meanSquaredError(out.Post, postTarget)
	if err != nil {
		return 0, nil, fmt.Errorf("tacotron: %s: %w", LossMelPost, err)
	}

	stop, err := weightedBCEWithLogits(out.StopLogits, batch.StopTargets, stopPositiveWeight)
	if err != nil {
		return 0, nil, fmt.Errorf("tacotron: %s: %w", LossStopToken, err)
	}

	terms := map[string]float64{
		LossMelPre:    2 * pre,
		LossMelPost:   post,
		LossStopToken: stop / scale,
	}

	if mc.ReversalClassifier {
		ce, err := ClassifierLoss(batch.UtteranceLengths, batch.Languages, out.LanguageLogits)
		if err != nil {
			return 0, nil, fmt.Errorf("tacotron: %s: %w", LossLangClass, err)
		}

		terms[LossLangClass] = ce / scale
	}

	if l.cfg.Training.GuidedAttentionLoss {
		terms[LossGuidedAtt] = l.guidedAttention(out.Alignments, batch.UtteranceLengths, batch.FrameLengths)
	}

	if mc.ResidualEncoder {
		if out.LatentMean == nil || out.LatentLogVar == nil {
			return 0, nil, errors.New("tacotron: output has no latent statistics")
		}

		terms[LossLatent] = float64(mc.ResidualLatentDimension) * KLDivergence(out.LatentMean, out.LatentLogVar)
	}

	var total float64
	for _, v := range terms {
		total += v
	}

	return total, terms, nil
}

// guidedAttention penalizes alignment mass far from the diagonal with
// weights 1 - exp(-(t/T - f/F)² / 2σ²) over each example's valid region,
// normalized by its frame count and averaged over the batch.
func (l *Loss) guidedAttention(align *tensor.Tensor, inputLengths, frameLengths []int) float64 {
	if l.steps == 0 || align == nil {
		return 0
	}

	batch, frames, steps := align.Dim(0), align.Dim(1), align.Dim(2)
	data := align.RawData()
	denom := 2 * l.sigma * l.sigma

	var total float64

	for b := range batch {
		nf, nt := min(frameLengths[b], frames), min(inputLengths[b], steps)
		if nf == 0 || nt == 0 {
			continue
		}

		var sum float64

		for f := range nf {
			row := data[(b*frames+f)*steps:]
			for t := range nt {
				d := float64(t)/float64(nt) - float64(f)/float64(nf)
				sum += (1 - math.Exp(-d*d/denom)) * float64(row[t])
			}
		}

		total += sum / float64(frameLengths[b])
	}

	return total / float64(batch)
}

func meanSquaredError(pred, target *tensor.Tensor) (float64, error) {
	if pred == nil || target == nil {
		return 0, errors.New("missing tensor")
	}

	p, t := pred.RawData(), target.RawData()
	if len(p) != len(t) {
		return 0, fmt.Errorf("shape %v does not match target %v", pred.Shape(), target.Shape())
	}

	if len(p) == 0 {
		return 0, nil
	}

	var sum float64
	for i := range p {
		d := float64(p[i] - t[i])
		sum += d * d
	}

	return sum / float64(len(p)), nil
}

// weightedBCEWithLogits is the mean of
// -(w·y·log σ(x) + (1-y)·log(1-σ(x))), evaluated through softplus.
func weightedBCEWithLogits(logits, targets *tensor.Tensor, posWeight float64) (float64, error) {
	if logits == nil || targets == nil {
		return 0, errors.New("missing tensor")
	}

	x, y := logits.RawData(), targets.RawData()
	if len(x) != len(y) {
		return 0, fmt.Errorf("shape %v does not match target %v", logits.Shape(), targets.Shape())
	}

	if len(x) == 0 {
		return 0, nil
	}

	var sum float64
	for i := range x {
		xi, yi := float64(x[i]), float64(y[i])
		sum += posWeight*yi*softplus(-xi) + (1-yi)*softplus(xi)
	}

	return sum / float64(len(x)), nil
}

func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}

	return math.Log1p(math.Exp(x))
}

// TeacherForcingRatio returns the ratio for a global training step: the
// configured constant, or a linear decay from the configured ratio to zero
// over teacher_forcing_steps starting at teacher_forcing_start_steps.
func TeacherForcingRatio(tc config.TrainingConfig, step int) float64 {
	if tc.ConstantTeacherForcing || step <= tc.TeacherForcingStartSteps {
		return tc.TeacherForcing
	}

	if tc.TeacherForcingSteps <= 0 {
		return 0
	}

	progress := float64(step-tc.TeacherForcingStartSteps) / float64(tc.TeacherForcingSteps)

	return tc.TeacherForcing * max(0, 1-progress)
}
