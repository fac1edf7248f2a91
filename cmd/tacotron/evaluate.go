package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/dataset"
	"github.com/example/go-tacotron/internal/tacotron"
)

func newEvaluateCmd() *cobra.Command {
	var (
		set        string
		checkpoint string
		ratio      float64
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the teacher-forced model over a dataset split and report its losses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if checkpoint == "" {
				checkpoint = cfg.Paths.Checkpoint
			}

			manifest, err := splitManifest(cfg, set)
			if err != nil {
				return err
			}

			ds, err := dataset.Build(cfg, filepath.Join(cfg.Paths.DatasetRoot, manifest), cfg.Paths.DatasetRoot)
			if err != nil {
				return err
			}

			if err := installNormalization(cfg, ds); err != nil {
				return err
			}

			model, step, err := tacotron.LoadModel(cfg, checkpoint)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("ratio") {
				ratio = tacotron.TeacherForcingRatio(cfg.Training, step)
			}

			summary, err := evaluate(cmd.Context(), cfg, model, ds, ratio)
			if err != nil {
				return err
			}

			return writeEvaluation(cmd.OutOrStdout(), summary)
		},
	}

	cmd.Flags().StringVar(&set, "set", "val", "Dataset split to evaluate (train|val|test)")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "Checkpoint path (default paths.checkpoint)")
	cmd.Flags().Float64Var(&ratio, "ratio", 1, "Teacher forcing ratio (default follows the schedule at the checkpoint step)")

	return cmd
}

func splitManifest(cfg config.Config, set string) (string, error) {
	var file string

	switch set {
	case "train":
		file = cfg.Paths.TrainFile
	case "val":
		file = cfg.Paths.ValFile
	case "test":
		file = cfg.Paths.TestFile
	default:
		return "", fmt.Errorf("unknown dataset split %q (want train|val|test)", set)
	}

	if file == "" {
		return "", fmt.Errorf("no manifest configured for the %s split", set)
	}

	return file, nil
}

// installNormalization loads the stored constants when spectrogram
// normalization is enabled.
func installNormalization(cfg config.Config, ds *dataset.Dataset) error {
	if !cfg.Audio.NormalizeSpectrogram {
		return nil
	}

	consts, err := dataset.LoadNormalization(cfg.Paths.NormalizationFile)
	if err != nil {
		return fmt.Errorf("spectrogram normalization is enabled: %w", err)
	}

	ds.SetNormalization(consts)

	return nil
}

type evaluation struct {
	RunID   string
	Batches int
	Total   float64
	Terms   map[string]float64
}

func evaluate(ctx context.Context, cfg config.Config, model *tacotron.Model, ds *dataset.Dataset, ratio float64) (*evaluation, error) {
	loader, err := dataset.NewLoader(ds, dataset.LoaderOptions{
		BatchSize: cfg.Training.BatchSize,
		Seed:      cfg.Training.Seed,
		Workers:   cfg.Dataset.Workers,
		Sampling:  dataset.SamplingFromConfig(cfg.Dataset),
		Collate:   tacotron.CollateOptions(cfg),
	})
	if err != nil {
		return nil, err
	}

	model.SetTraining(false)

	criterion := tacotron.NewLoss(cfg)
	summary := &evaluation{RunID: uuid.NewString(), Terms: map[string]float64{}}
	logger := slog.With("run_id", summary.RunID)

	logger.Info("evaluation started", "items", ds.Len(), "batches", loader.NumBatches(), "teacher_forcing", ratio)

	err = loader.Each(ctx, func(i int, b *dataset.Batch) error {
		out, err := model.Forward(b, ratio)
		if err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}

		total, terms, err := criterion.Compute(b, out)
		if err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}

		summary.Batches++
		summary.Total += total

		for k, v := range terms {
			summary.Terms[k] += v
		}

		logger.Debug("batch evaluated", "batch", i, "size", b.Size(), "loss", total)

		return nil
	})
	if err != nil {
		return nil, err
	}

	if summary.Batches > 0 {
		n := float64(summary.Batches)
		summary.Total /= n

		for k := range summary.Terms {
			summary.Terms[k] /= n
		}
	}

	logger.Info("evaluation finished", "batches", summary.Batches, "loss", summary.Total)

	return summary, nil
}

func writeEvaluation(w io.Writer, e *evaluation) error {
	if _, err := fmt.Fprintf(w, "run %s: %d batches, loss %.6f\n", e.RunID, e.Batches, e.Total); err != nil {
		return err
	}

	for _, k := range slices.Sorted(maps.Keys(e.Terms)) {
		if _, err := fmt.Fprintf(w, "  %-10s %.6f\n", k, e.Terms[k]); err != nil {
			return err
		}
	}

	return nil
}
