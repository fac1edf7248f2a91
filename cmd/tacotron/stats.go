package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/go-tacotron/internal/dataset"
)

func newStatsCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Compute spectrogram normalization constants of the training set",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if out == "" {
				out = cfg.Paths.NormalizationFile
			}

			ds, err := dataset.Build(cfg, filepath.Join(cfg.Paths.DatasetRoot, cfg.Paths.TrainFile), cfg.Paths.DatasetRoot)
			if err != nil {
				return err
			}

			consts, err := dataset.ComputeNormalization(ds, cfg.Model.PredictLinear)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			if err := dataset.SaveNormalization(out, consts); err != nil {
				return err
			}

			slog.Info("normalization constants written", "path", out, "items", ds.Len(), "linear", cfg.Model.PredictLinear)

			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Output path (default paths.normalization_file)")

	return cmd
}
