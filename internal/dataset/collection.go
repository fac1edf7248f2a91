package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/go-tacotron/internal/config"
)

// Collection groups the training, validation and optional test sets of one
// dataset root.
type Collection struct {
	Train *Dataset
	Val   *Dataset
	Test  *Dataset // nil when no test manifest is configured

	speakers  *Vocabulary
	languages *Vocabulary
}

// NewCollection builds every configured set. A configured manifest that
// does not exist is an error, reported before any set is built.
func NewCollection(cfg config.Config) (*Collection, error) {
	root := cfg.Paths.DatasetRoot
	c := &Collection{}

	sets := []struct {
		name string
		file string
		dst  **Dataset
	}{
		{"training", cfg.Paths.TrainFile, &c.Train},
		{"validation", cfg.Paths.ValFile, &c.Val},
		{"test", cfg.Paths.TestFile, &c.Test},
	}

	for _, s := range sets {
		if s.file == "" {
			if s.name == "test" {
				continue
			}

			return nil, fmt.Errorf("dataset: no %s manifest configured", s.name)
		}

		if _, err := os.Stat(filepath.Join(root, s.file)); err != nil {
			return nil, fmt.Errorf("%w: %s set %s", ErrManifestNotFound, s.name, filepath.Join(root, s.file))
		}
	}

	// Each set extends the vocabularies of the sets before it, so a speaker
	// or language keeps one id across training, validation and test.
	var speakers, languages *Vocabulary

	for _, s := range sets {
		if s.file == "" {
			continue
		}

		ds, err := BuildSeeded(cfg, filepath.Join(root, s.file), root, speakers, languages)
		if err != nil {
			return nil, fmt.Errorf("dataset: %s set: %w", s.name, err)
		}

		*s.dst = ds
		speakers, languages = ds.speakers, ds.languages
	}

	c.speakers, c.languages = speakers, languages

	return c, nil
}

// Speakers returns the speaker vocabulary spanning every set, in id order.
func (c *Collection) Speakers() *Vocabulary { return c.speakers }

// Languages returns the language vocabulary spanning every set.
func (c *Collection) Languages() *Vocabulary { return c.languages }
