package dataset

import (
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/stat"

	"github.com/example/go-tacotron/internal/safetensors"
)

// NormalizationConstants holds per-bin spectrogram statistics. The linear
// vectors are empty when linear spectrograms are not used.
type NormalizationConstants struct {
	MelMean    []float32
	MelStd     []float32
	LinearMean []float32
	LinearStd  []float32
}

// For returns the mean and std vectors for the requested spectrogram kind.
func (c *NormalizationConstants) For(isMel bool) (mean, std []float32) {
	if isMel {
		return c.MelMean, c.MelStd
	}

	return c.LinearMean, c.LinearStd
}

// NormalizationConstants streams every item's unnormalized spectrogram and
// returns the per-bin mean and population std, each averaged over items.
// Items without frames have no statistics and are skipped with a warning.
func (d *Dataset) NormalizationConstants(isMel bool) (mean, std []float32, err error) {
	if len(d.items) == 0 {
		return nil, nil, errors.New("dataset: normalization constants of an empty dataset")
	}

	bins := d.extractor.NumBins(isMel)
	meanSum := make([]float64, bins)
	stdSum := make([]float64, bins)
	row := []float64(nil)
	counted := 0

	for _, item := range d.items {
		spec, err := d.LoadSpectrogram(item, isMel, false)
		if err != nil {
			return nil, nil, err
		}

		if len(spec) == 0 || len(spec[0]) == 0 {
			slog.Warn("skipping item without frames in normalization statistics", "item", item.ID)
			continue
		}

		counted++

		for b, frames := range spec {
			row = row[:0]
			for _, v := range frames {
				row = append(row, float64(v))
			}

			m, s := stat.PopMeanStdDev(row, nil)
			meanSum[b] += m
			stdSum[b] += s
		}
	}

	if counted == 0 {
		return nil, nil, fmt.Errorf("dataset: normalization constants: none of %d items has frames", len(d.items))
	}

	n := float64(counted)
	mean = make([]float32, bins)
	std = make([]float32, bins)

	for b := range bins {
		mean[b] = float32(meanSum[b] / n)
		std[b] = float32(stdSum[b] / n)
	}

	return mean, std, nil
}

// ComputeNormalization gathers mel statistics, and linear ones when
// withLinear is set.
func ComputeNormalization(d *Dataset, withLinear bool) (*NormalizationConstants, error) {
	c := &NormalizationConstants{}

	var err error
	if c.MelMean, c.MelStd, err = d.NormalizationConstants(true); err != nil {
		return nil, err
	}

	if withLinear {
		if c.LinearMean, c.LinearStd, err = d.NormalizationConstants(false); err != nil {
			return nil, err
		}
	}

	return c, nil
}

const (
	melMeanTensor    = "mel_mean"
	melStdTensor     = "mel_std"
	linearMeanTensor = "linear_mean"
	linearStdTensor  = "linear_std"
)

// SaveNormalization writes c as a safetensors file of 1-D tensors.
func SaveNormalization(path string, c *NormalizationConstants) error {
	tensors := []safetensors.Tensor{
		vector(melMeanTensor, c.MelMean),
		vector(melStdTensor, c.MelStd),
	}

	if len(c.LinearMean) > 0 {
		tensors = append(tensors, vector(linearMeanTensor, c.LinearMean), vector(linearStdTensor, c.LinearStd))
	}

	return safetensors.WriteFile(path, tensors, nil)
}

// LoadNormalization reads constants written by SaveNormalization.
func LoadNormalization(path string) (*NormalizationConstants, error) {
	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	c := &NormalizationConstants{}

	read := func(name string, dst *[]float32) error {
		t, err := store.Tensor(name)
		if err != nil {
			return err
		}

		*dst = t.Data

		return nil
	}

	if err := errors.Join(read(melMeanTensor, &c.MelMean), read(melStdTensor, &c.MelStd)); err != nil {
		return nil, fmt.Errorf("dataset: load normalization %s: %w", path, err)
	}

	if store.Has(linearMeanTensor) {
		if err := errors.Join(read(linearMeanTensor, &c.LinearMean), read(linearStdTensor, &c.LinearStd)); err != nil {
			return nil, fmt.Errorf("dataset: load normalization %s: %w", path, err)
		}
	}

	return c, nil
}

func vector(name string, data []float32) safetensors.Tensor {
	return safetensors.Tensor{Name: name, Shape: []int64{int64(len(data))}, Data: data}
}
