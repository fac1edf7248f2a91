package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/dataset"
	"github.com/example/go-tacotron/internal/doctor"
	"github.com/example/go-tacotron/internal/tacotron"
)

// minCheckpointFormat is the oldest checkpoint layout LoadModel reads.
const minCheckpointFormat = "1.0"

func newDoctorCmd() *cobra.Command {
	var (
		checkpoint     string
		skipCheckpoint bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check dataset layout, normalization constants and checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if checkpoint == "" {
				checkpoint = cfg.Paths.Checkpoint
			}

			result := doctor.Run(doctorConfig(cfg, checkpoint, skipCheckpoint), cmd.OutOrStdout())
			if result.Failed() {
				return fmt.Errorf("doctor found %d problem(s)", len(result.Failures()))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "Checkpoint path (default paths.checkpoint)")
	cmd.Flags().BoolVar(&skipCheckpoint, "skip-checkpoint", false, "Skip the checkpoint check (before the first training run)")

	return cmd
}

func doctorConfig(cfg config.Config, checkpoint string, skipCheckpoint bool) doctor.Config {
	root := cfg.Paths.DatasetRoot

	dcfg := doctor.Config{
		DatasetRoot:       root,
		SkipNormalization: !cfg.Audio.NormalizeSpectrogram,
		SkipCheckpoint:    skipCheckpoint || checkpoint == "",
		MinFormat:         minCheckpointFormat,
		Normalization: func() (string, error) {
			return describeNormalization(cfg)
		},
		Checkpoint: func() (string, error) {
			return describeCheckpoint(cfg, checkpoint)
		},
	}

	for _, name := range []string{cfg.Paths.TrainFile, cfg.Paths.ValFile, cfg.Paths.TestFile} {
		if name != "" {
			dcfg.Manifests = append(dcfg.Manifests, filepath.Join(root, name))
		}
	}

	if cfg.Dataset.CacheSpectrograms {
		dcfg.CacheDirs = dataset.CacheDirs(root)
	}

	return dcfg
}

func describeNormalization(cfg config.Config) (string, error) {
	norm, err := dataset.LoadNormalization(cfg.Paths.NormalizationFile)
	if err != nil {
		return "", err
	}

	if len(norm.MelMean) != cfg.Audio.NumMels {
		return "", fmt.Errorf("%d mel bins, config has %d", len(norm.MelMean), cfg.Audio.NumMels)
	}

	return fmt.Sprintf("%d mel bins, %d linear bins", len(norm.MelMean), len(norm.LinearMean)), nil
}

// describeCheckpoint builds the model from the checkpoint so shape and
// architecture mismatches surface, then reports the stored format version.
func describeCheckpoint(cfg config.Config, path string) (string, error) {
	if _, _, err := tacotron.LoadModel(cfg, path); err != nil {
		return "", err
	}

	meta, err := tacotron.ReadCheckpointMetadata(path)
	if err != nil {
		return "", err
	}

	ver, ok := meta[tacotron.MetaVersion]
	if !ok {
		return "", errors.New("checkpoint has no format version")
	}

	return ver, nil
}
