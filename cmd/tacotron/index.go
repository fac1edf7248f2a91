package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-tacotron/internal/dataset"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Index the configured manifests and print a dataset summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			c, err := dataset.NewCollection(cfg)
			if err != nil {
				return err
			}

			return writeSummary(cmd.OutOrStdout(), c)
		},
	}
}

func writeSummary(w io.Writer, c *dataset.Collection) error {
	sets := []struct {
		name string
		ds   *dataset.Dataset
	}{
		{"train", c.Train},
		{"val", c.Val},
		{"test", c.Test},
	}

	for _, s := range sets {
		if s.ds == nil {
			continue
		}

		if _, err := fmt.Fprintf(w, "%s: %d items, %d speakers [%s], %d languages [%s]\n",
			s.name, s.ds.Len(),
			s.ds.NumSpeakers(), strings.Join(s.ds.Speakers().Names(), " "),
			s.ds.NumLanguages(), strings.Join(s.ds.Languages().Names(), " "),
		); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "vocabulary: speakers [%s], languages [%s]\n",
		strings.Join(c.Speakers().Names(), " "), strings.Join(c.Languages().Names(), " "),
	); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "symbols: %d characters, %d phonemes\n",
		c.Train.CharacterSymbols().Len(), c.Train.PhonemeSymbols().Len())

	return err
}
