package dataset

import (
	"errors"
	"fmt"
	"sort"

	"github.com/example/go-tacotron/internal/runtime/tensor"
)

// CollateOptions selects which optional tensors Collate produces.
type CollateOptions struct {
	MultiSpeaker  bool
	MultiLanguage bool
	PredictLinear bool
}

// Batch is a padded, length-sorted group of examples ready for the model.
//
// Rows of every field follow the same permutation: descending utterance
// length, ties in input order. FrameLengths is permuted alongside but is
// not itself sorted.
type Batch struct {
	UtteranceLengths []int
	Utterances       [][]int        // [B][T_max], zero padded
	Mel              *tensor.Tensor // [B, num_mels, F_max]
	Linear           *tensor.Tensor // [B, linear_bins, F_max] or nil
	StopTargets      *tensor.Tensor // [B, F_max]
	FrameLengths     []int
	Speakers         []int // nil unless multi-speaker
	Languages        []int // nil unless multi-language
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int { return len(b.UtteranceLengths) }

// MaxFrames returns the padded frame dimension.
func (b *Batch) MaxFrames() int { return b.Mel.Dim(2) }

// Collate sorts examples by descending symbol count (stable), pads symbols
// and spectrograms with zeros and derives stop-token targets that are 1 from
// each example's last frame onward.
func Collate(examples []Example, opts CollateOptions) (*Batch, error) {
	if len(examples) == 0 {
		return nil, errors.New("dataset: collate empty batch")
	}

	melBins := len(examples[0].Mel)
	linBins := 0

	if opts.PredictLinear {
		linBins = len(examples[0].Linear)
	}

	maxFrames := 0

	for i, ex := range examples {
		if len(ex.Mel) != melBins {
			return nil, fmt.Errorf("%w: example %d has %d mel bins, batch has %d", ErrSpectrogramDimension, i, len(ex.Mel), melBins)
		}

		if opts.PredictLinear && len(ex.Linear) != linBins {
			return nil, fmt.Errorf("%w: example %d has %d linear bins, batch has %d", ErrSpectrogramDimension, i, len(ex.Linear), linBins)
		}

		if melBins == 0 {
			return nil, fmt.Errorf("dataset: example %d has an empty spectrogram", i)
		}

		maxFrames = max(maxFrames, len(ex.Mel[0]))
	}

	if maxFrames == 0 {
		return nil, errors.New("dataset: collate batch without frames")
	}

	order := make([]int, len(examples))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		return len(examples[order[a]].Symbols) > len(examples[order[b]].Symbols)
	})

	n := int64(len(examples))
	batch := &Batch{
		UtteranceLengths: make([]int, len(examples)),
		Utterances:       make([][]int, len(examples)),
		Mel:              tensor.MustZeros(n, int64(melBins), int64(maxFrames)),
		StopTargets:      tensor.MustZeros(n, int64(maxFrames)),
		FrameLengths:     make([]int, len(examples)),
	}

	if opts.PredictLinear {
		batch.Linear = tensor.MustZeros(n, int64(linBins), int64(maxFrames))
	}

	if opts.MultiSpeaker {
		batch.Speakers = make([]int, len(examples))
	}

	if opts.MultiLanguage {
		batch.Languages = make([]int, len(examples))
	}

	maxSymbols := len(examples[order[0]].Symbols)

	for row, src := range order {
		ex := examples[src]
		frames := len(ex.Mel[0])

		batch.UtteranceLengths[row] = len(ex.Symbols)
		batch.Utterances[row] = make([]int, maxSymbols)
		copy(batch.Utterances[row], ex.Symbols)
		batch.FrameLengths[row] = frames

		copySpectrogram(batch.Mel.Row(row), ex.Mel, maxFrames)

		if batch.Linear != nil {
			copySpectrogram(batch.Linear.Row(row), ex.Linear, maxFrames)
		}

		stop := batch.StopTargets.Row(row)
		for t := max(frames-1, 0); t < maxFrames; t++ {
			stop[t] = 1
		}

		if batch.Speakers != nil {
			batch.Speakers[row] = ex.Speaker
		}

		if batch.Languages != nil {
			batch.Languages[row] = ex.Language
		}
	}

	return batch, nil
}

// copySpectrogram writes spec ([bins][frames]) into dst, a [bins, stride]
// slab, leaving the padded tail of each bin untouched.
func copySpectrogram(dst []float32, spec [][]float32, stride int) {
	for b, frames := range spec {
		copy(dst[b*stride:b*stride+stride], frames)
	}
}
