package dataset

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	conciter "github.com/sourcegraph/conc/iter"
	"gonum.org/v1/gonum/floats"

	"github.com/example/go-tacotron/internal/config"
)

// Sampling selects which examples one pass visits.
type Sampling int

const (
	// SequentialSampling visits every example once, shuffled if requested.
	SequentialSampling Sampling = iota
	// BalancedSampling draws as many examples as the dataset holds, with
	// replacement, weighting each by the inverse size of its language.
	BalancedSampling
	// PerfectSampling fills every batch with BatchSize/L examples of each
	// of the L languages present. Languages that run out are reshuffled and
	// reused; the pass ends after Len()/BatchSize full batches.
	PerfectSampling
)

// SamplingFromConfig maps the dataset sampling switches to a Sampling.
func SamplingFromConfig(cfg config.DatasetConfig) Sampling {
	switch {
	case cfg.BalancedSampling && cfg.PerfectSampling:
		return PerfectSampling
	case cfg.BalancedSampling:
		return BalancedSampling
	default:
		return SequentialSampling
	}
}

// LoaderOptions configures batch iteration over a Dataset.
type LoaderOptions struct {
	BatchSize int
	Shuffle   bool
	DropLast  bool
	Seed      int64
	// Workers bounds how many examples of a batch are loaded at once.
	// Values below 1 load sequentially.
	Workers  int
	Sampling Sampling
	Collate  CollateOptions
}

// Loader yields collated batches. Examples of one batch are loaded in
// parallel; batches are produced one at a time in order.
type Loader struct {
	ds   *Dataset
	opts LoaderOptions
	rng  *rand.Rand
	// byLanguage lists item indices per language present in the dataset,
	// in language id order. Set for the balanced modes only.
	byLanguage [][]int
}

func NewLoader(ds *Dataset, opts LoaderOptions) (*Loader, error) {
	if ds == nil {
		return nil, errors.New("dataset: loader requires a dataset")
	}

	if opts.BatchSize <= 0 {
		return nil, errors.New("dataset: loader batch size must be positive")
	}

	l := &Loader{
		ds:   ds,
		opts: opts,
		rng:  rand.New(rand.NewSource(opts.Seed)),
	}

	if opts.Sampling == SequentialSampling {
		return l, nil
	}

	groups := make([][]int, ds.NumLanguages())
	for i, item := range ds.items {
		groups[item.LanguageID] = append(groups[item.LanguageID], i)
	}

	for _, g := range groups {
		if len(g) > 0 {
			l.byLanguage = append(l.byLanguage, g)
		}
	}

	if len(l.byLanguage) == 0 {
		return nil, errors.New("dataset: balanced sampling of an empty dataset")
	}

	if opts.Sampling == PerfectSampling && opts.BatchSize%len(l.byLanguage) != 0 {
		return nil, fmt.Errorf("dataset: batch size %d is not divisible by the %d languages present",
			opts.BatchSize, len(l.byLanguage))
	}

	return l, nil
}

// NumBatches returns the number of batches one pass yields.
func (l *Loader) NumBatches() int {
	n, bs := l.ds.Len(), l.opts.BatchSize
	if l.opts.DropLast || l.opts.Sampling == PerfectSampling {
		return n / bs
	}

	return (n + bs - 1) / bs
}

// order returns the item indices of one pass in visiting order.
func (l *Loader) order() []int {
	switch l.opts.Sampling {
	case BalancedSampling:
		return l.balancedOrder()
	case PerfectSampling:
		return l.perfectOrder()
	}

	order := make([]int, l.ds.Len())
	for i := range order {
		order[i] = i
	}

	if l.opts.Shuffle {
		l.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	return order
}

func (l *Loader) balancedOrder() []int {
	items := make([]int, 0, l.ds.Len())
	weights := make([]float64, 0, l.ds.Len())

	for _, g := range l.byLanguage {
		for _, i := range g {
			items = append(items, i)
			weights = append(weights, 1/float64(len(g)))
		}
	}

	cumulative := floats.CumSum(make([]float64, len(weights)), weights)
	total := cumulative[len(cumulative)-1]
	order := make([]int, l.ds.Len())

	for k := range order {
		j := sort.SearchFloat64s(cumulative, l.rng.Float64()*total)
		order[k] = items[min(j, len(items)-1)]
	}

	return order
}

func (l *Loader) perfectOrder() []int {
	per := l.opts.BatchSize / len(l.byLanguage)
	pools := make([][]int, len(l.byLanguage))
	order := make([]int, 0, l.NumBatches()*l.opts.BatchSize)

	for range l.NumBatches() {
		for lang, g := range l.byLanguage {
			for range per {
				if len(pools[lang]) == 0 {
					pools[lang] = append([]int(nil), g...)
					l.rng.Shuffle(len(g), func(i, j int) { pools[lang][i], pools[lang][j] = pools[lang][j], pools[lang][i] })
				}

				order = append(order, pools[lang][0])
				pools[lang] = pools[lang][1:]
			}
		}
	}

	return order
}

// Each runs one pass over the dataset, calling fn with every batch. It
// stops at the first error from loading or fn, and checks ctx between
// batches.
func (l *Loader) Each(ctx context.Context, fn func(index int, b *Batch) error) error {
	order := l.order()
	mapper := conciter.Mapper[int, Example]{MaxGoroutines: max(l.opts.Workers, 1)}

	for b := range l.NumBatches() {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := b * l.opts.BatchSize
		end := min(start+l.opts.BatchSize, len(order))

		examples, err := mapper.MapErr(order[start:end], func(i *int) (Example, error) {
			return l.ds.Example(*i)
		})
		if err != nil {
			return err
		}

		batch, err := Collate(examples, l.opts.Collate)
		if err != nil {
			return err
		}

		if err := fn(b, batch); err != nil {
			return err
		}
	}

	return nil
}
