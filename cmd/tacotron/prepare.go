package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-tacotron/internal/dataset"
)

func newPrepareCmd() *cobra.Command {
	var (
		sourcesPath string
		root        string
		manifest    string
		noCache     bool
	)

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Build the spectrogram cache and manifest from a speaker|language|audio|text list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if root == "" {
				root = cfg.Paths.DatasetRoot
			}

			if manifest == "" {
				manifest = cfg.Paths.TrainFile
			}

			f, err := os.Open(sourcesPath)
			if err != nil {
				return fmt.Errorf("open sources: %w", err)
			}
			defer f.Close()

			sources, err := dataset.ReadSources(f)
			if err != nil {
				return err
			}

			records, err := dataset.PrepareCache(cmd.Context(), cfg, sources, dataset.PrepareOptions{
				Root:         root,
				ManifestName: manifest,
				Spectrograms: !noCache,
				Workers:      cfg.Dataset.Workers,
			})
			if err != nil {
				return err
			}

			slog.Info("dataset prepared", "root", root, "manifest", manifest, "records", len(records), "cached", !noCache)

			return nil
		},
	}

	cmd.Flags().StringVar(&sourcesPath, "sources", "", "Source list with one speaker|language|audio|text[|phonemes] line per utterance")
	cmd.Flags().StringVar(&root, "root", "", "Dataset root (default paths.dataset_root)")
	cmd.Flags().StringVar(&manifest, "manifest", "", "Manifest file name under the root (default paths.train_file)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Only write the manifest, skip spectrogram extraction")
	_ = cmd.MarkFlagRequired("sources")

	return cmd
}
