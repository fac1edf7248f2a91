package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/dataset"
	"github.com/example/go-tacotron/internal/nn"
	"github.com/example/go-tacotron/internal/tacotron"
)

func newInitCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a freshly initialized checkpoint for the configured architecture",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if out == "" {
				out = cfg.Paths.Checkpoint
			}

			model, err := tacotron.New(cfg, nn.NewVarStore(cfg.Training.Seed))
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return fmt.Errorf("create checkpoint dir: %w", err)
			}

			extra, err := datasetVocabulary(cfg)
			if err != nil {
				return err
			}

			runID := uuid.NewString()
			extra["run_id"] = runID

			if err := model.SaveCheckpoint(out, 0, extra); err != nil {
				return err
			}

			slog.Info("checkpoint initialized",
				"path", out,
				"run_id", runID,
				"parameters", model.Vars().NumParameters(),
			)

			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Checkpoint path (default paths.checkpoint)")

	return cmd
}

// datasetVocabulary returns the speaker and language order of the configured
// dataset as checkpoint metadata. Without readable manifests the checkpoint
// carries no vocabulary and /info falls back to dataset.languages.
func datasetVocabulary(cfg config.Config) (map[string]string, error) {
	c, err := dataset.NewCollection(cfg)
	if err != nil {
		slog.Warn("checkpoint written without dataset vocabulary", "error", err)
		return map[string]string{}, nil
	}

	return tacotron.VocabularyMetadata(c.Speakers().Names(), c.Languages().Names())
}
